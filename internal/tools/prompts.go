package tools

import (
	"context"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

const (
	promptText = "text"
	promptChat = "chat"
)

func (s *Set) modelTools() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{
			Name:        "list_models",
			Description: "List model definitions with their pricing, including Langfuse-managed models.",
			Options:     pagingOptions(),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				q, err := listQuery(a, nil)
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.ListModels(ctx, q))
			},
		},
		{
			Name:        "get_model",
			Description: "Get one model definition.",
			Options: []mcp.ToolOption{
				mcp.WithString("modelId", mcp.Required(), mcp.Description("Model id")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				id, err := required(a, "modelId")
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.GetModel(ctx, id))
			},
		},
	}
}

func (s *Set) promptTools() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{
			Name:        "list_prompts",
			Description: "List prompts with their versions and labels.",
			Options: withOptions(
				pagingOptions(),
				rangeOptions("prompts updated"),
				[]mcp.ToolOption{
					mcp.WithString("name", mcp.Description("Prompt name")),
					mcp.WithString("label", mcp.Description("Only prompts with a version carrying this label")),
					mcp.WithString("tag", mcp.Description("Only prompts with this tag")),
				},
			),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				q, err := listQuery(a, map[string]string{"name": "name", "label": "label", "tag": "tag"})
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.ListPrompts(ctx, q))
			},
		},
		{
			Name:        "get_prompt",
			Description: "Get a prompt by name. Without version or label the version labelled production is returned.",
			Options: []mcp.ToolOption{
				mcp.WithString("name", mcp.Required(), mcp.Description("Prompt name")),
				mcp.WithNumber("version", dispatch.Integer(), mcp.Min(1), mcp.Description("Exact version")),
				mcp.WithString("label", mcp.Description("Version label, for example production or staging")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				name, err := required(a, "name")
				if err != nil {
					return nil, err
				}
				if a.Has("version") && a.String("label") != "" {
					return nil, dispatch.InvalidArgument("label", "cannot be combined with version")
				}
				return raw(s.deps.API.GetPrompt(ctx, name, a.Int("version", 0), a.String("label")))
			},
		},
		{
			Name: "create_prompt",
			Description: "Create a new version of a prompt. Text prompts take prompt, chat prompts take messages " +
				"as a list of {role, content}.",
			Mutating: true,
			Options: []mcp.ToolOption{
				mcp.WithString("name", mcp.Required(), mcp.Description("Prompt name")),
				mcp.WithString("type", mcp.Enum(promptText, promptChat), mcp.Description("Prompt type (default text)")),
				mcp.WithString("prompt", mcp.Description("Prompt text, for text prompts")),
				mcp.WithArray("messages", mcp.Items(map[string]any{"type": "object"}),
					mcp.Description("Chat messages, for chat prompts")),
				mcp.WithObject("config", mcp.Description("Model configuration stored with the version")),
				mcp.WithArray("labels", mcp.WithStringItems(), mcp.Description("Labels for the new version")),
				mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Prompt tags")),
				mcp.WithString("commitMessage", mcp.Description("Change description")),
			},
			Handler:  s.createPrompt,
			AuditRef: ref("prompt", "name"),
		},
		{
			Name:        "update_prompt_labels",
			Description: "Replace the labels of one prompt version. A label moves away from any other version carrying it.",
			Mutating:    true,
			Options: []mcp.ToolOption{
				mcp.WithString("name", mcp.Required(), mcp.Description("Prompt name")),
				mcp.WithNumber("version", mcp.Required(), dispatch.Integer(), mcp.Min(1), mcp.Description("Prompt version")),
				mcp.WithArray("labels", mcp.Required(), mcp.WithStringItems(), mcp.Description("New labels")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				name, err := required(a, "name")
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.UpdatePromptLabels(ctx, name, a.Int("version", 0), a.Strings("labels")))
			},
			AuditRef: func(a dispatch.Args) string {
				return "prompt:" + a.String("name") + "@v" + strconv.Itoa(a.Int("version", 0))
			},
		},
	}
}

func (s *Set) createPrompt(ctx context.Context, a dispatch.Args) (any, error) {
	name, err := required(a, "name")
	if err != nil {
		return nil, err
	}
	req := langfuse.CreatePromptRequest{
		Name:          name,
		Type:          promptText,
		Labels:        a.Strings("labels"),
		Tags:          a.Strings("tags"),
		CommitMessage: a.String("commitMessage"),
	}
	if t := a.String("type"); t != "" {
		req.Type = t
	}
	if cfg := a.Object("config"); cfg != nil {
		req.Config = cfg
	}

	switch req.Type {
	case promptChat:
		msgs, ok := a.Raw("messages").([]any)
		if !ok || len(msgs) == 0 {
			return nil, dispatch.InvalidArgument("messages", "is required for chat prompts")
		}
		for i, m := range msgs {
			msg, _ := m.(map[string]any)
			if role, _ := msg["role"].(string); role == "" {
				return nil, dispatch.InvalidArgument("messages", "item %d needs a role", i)
			}
		}
		req.Prompt = msgs
	default:
		// The text is sent verbatim; only a blank prompt is rejected.
		text, _ := a.Raw("prompt").(string)
		if strings.TrimSpace(text) == "" {
			return nil, dispatch.InvalidArgument("prompt", "is required for text prompts")
		}
		req.Prompt = text
	}
	return raw(s.deps.API.CreatePrompt(ctx, req))
}
