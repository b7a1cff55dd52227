package dispatch

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
)

const truncationMarker = "\n... [truncated: response exceeded %d bytes, narrow the query or lower the limit]"

// OK wraps payload in a success result holding exactly one text block.
// Strings are sent as is, everything else as indented JSON. When maxBytes is
// positive the text is cut at a rune boundary and a marker is appended.
func OK(payload any, maxBytes int) *mcp.CallToolResult {
	var text string
	switch v := payload.(type) {
	case string:
		text = v
	case json.RawMessage:
		var buf any
		if err := json.Unmarshal(v, &buf); err != nil {
			text = string(v)
			break
		}
		data, err := json.MarshalIndent(buf, "", "  ")
		if err != nil {
			return Err("failed to encode response")
		}
		text = string(data)
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return Err("failed to encode response")
		}
		text = string(data)
	}
	return mcp.NewToolResultText(truncate(text, maxBytes))
}

// Err wraps msg in an error result.
func Err(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(msg)
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf(truncationMarker, maxBytes)
}
