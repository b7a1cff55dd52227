package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

var commentObjectTypes = []string{"TRACE", "OBSERVATION", "SESSION", "PROMPT"}

const maxCommentLength = 3000

func (s *Set) commentTools() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{
			Name:        "list_comments",
			Description: "List comments, optionally only those attached to one object.",
			Options: withOptions(pagingOptions(), []mcp.ToolOption{
				mcp.WithString("objectType", mcp.Enum(commentObjectTypes...), mcp.Description("Type of the commented object")),
				mcp.WithString("objectId", mcp.Description("Id of the commented object; requires objectType")),
				mcp.WithString("authorUserId", mcp.Description("Comment author")),
			}),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				if a.String("objectId") != "" && a.String("objectType") == "" {
					return nil, dispatch.InvalidArgument("objectType", "is required when objectId is set")
				}
				q, err := listQuery(a, map[string]string{
					"objectType":   "objectType",
					"objectId":     "objectId",
					"authorUserId": "authorUserId",
				})
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.ListComments(ctx, q))
			},
		},
		{
			Name:        "get_comment",
			Description: "Get one comment.",
			Options: []mcp.ToolOption{
				mcp.WithString("commentId", mcp.Required(), mcp.Description("Comment id")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				id, err := required(a, "commentId")
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.GetComment(ctx, id))
			},
		},
		{
			Name:        "create_comment",
			Description: "Attach a comment to a trace, observation, session or prompt.",
			Mutating:    true,
			Options: []mcp.ToolOption{
				mcp.WithString("objectType", mcp.Required(), mcp.Enum(commentObjectTypes...), mcp.Description("Type of the commented object")),
				mcp.WithString("objectId", mcp.Required(), mcp.Description("Id of the commented object")),
				mcp.WithString("content", mcp.Required(), mcp.Description("Comment text (markdown, at most 3000 characters)")),
				mcp.WithString("authorUserId", mcp.Description("Author shown in the Langfuse UI")),
			},
			Handler:  s.createComment,
			AuditRef: func(a dispatch.Args) string { return "comment:" + a.String("objectType") + "/" + a.String("objectId") },
		},
	}
}

// createComment needs the real project id, which the public key does not
// carry, so it is resolved from the projects endpoint.
func (s *Set) createComment(ctx context.Context, a dispatch.Args) (any, error) {
	objectID, err := required(a, "objectId")
	if err != nil {
		return nil, err
	}
	content, err := required(a, "content")
	if err != nil {
		return nil, err
	}
	if n := len([]rune(content)); n > maxCommentLength {
		return nil, dispatch.InvalidArgument("content", "must be at most %d characters, got %d", maxCommentLength, n)
	}
	project, err := s.resolveProject(ctx)
	if err != nil {
		return nil, err
	}
	return raw(s.deps.API.CreateComment(ctx, langfuse.CreateCommentRequest{
		ProjectID:    project.ID,
		ObjectType:   a.String("objectType"),
		ObjectID:     objectID,
		Content:      content,
		AuthorUserID: a.String("authorUserId"),
	}))
}
