package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/alecgard/langfuse-mcp/internal/auth"
)

var keygenCost int

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a bearer key for the HTTP transport",
	Long: "keygen prints a new bearer key and its bcrypt hash. Give the key to MCP clients and put the " +
		"hash in server.api_key_hash or LANGFUSE_MCP_API_KEY_HASH. The key is shown only once.",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, plaintext, err := auth.GenerateAPIKey(keygenCost)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "key:    %s\n", plaintext)
		fmt.Fprintf(out, "prefix: %s\n", key.Prefix)
		fmt.Fprintf(out, "hash:   %s\n", key.Hash)
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keygenCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	rootCmd.AddCommand(keygenCmd)
}
