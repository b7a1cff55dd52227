package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

const (
	scoreNumeric     = "NUMERIC"
	scoreCategorical = "CATEGORICAL"
	scoreBoolean     = "BOOLEAN"
)

var scoreDataTypes = []string{scoreNumeric, scoreCategorical, scoreBoolean}

var scoreSources = []string{"API", "EVAL", "ANNOTATION"}

func (s *Set) scoreTools() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{
			Name:        "list_scores",
			Description: "List scores, optionally filtered by trace, name, source, data type or time range.",
			Options: withOptions(
				pagingOptions(),
				rangeOptions("scores created"),
				[]mcp.ToolOption{
					mcp.WithString("traceId", mcp.Description("Trace id")),
					mcp.WithString("name", mcp.Description("Score name")),
					mcp.WithString("userId", mcp.Description("User id of the scored trace")),
					mcp.WithString("source", mcp.Enum(scoreSources...), mcp.Description("Score source")),
					mcp.WithString("dataType", mcp.Enum(scoreDataTypes...), mcp.Description("Score data type")),
				},
			),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				q, err := listQuery(a, map[string]string{
					"traceId":  "traceId",
					"name":     "name",
					"userId":   "userId",
					"source":   "source",
					"dataType": "dataType",
				})
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.ListScores(ctx, q))
			},
		},
		{
			Name: "create_score",
			Description: "Score a trace, observation or session. NUMERIC and BOOLEAN scores take a number " +
				"(BOOLEAN: 0 or 1), CATEGORICAL scores take a string.",
			Mutating: true,
			Options: []mcp.ToolOption{
				mcp.WithString("name", mcp.Required(), mcp.Description("Score name")),
				dispatch.WithAny("value", mcp.Required(), mcp.Description("Score value")),
				mcp.WithString("dataType", mcp.Enum(scoreDataTypes...), mcp.Description("Score data type (inferred from value when omitted)")),
				mcp.WithString("traceId", mcp.Description("Scored trace; traceId or sessionId is required")),
				mcp.WithString("sessionId", mcp.Description("Scored session")),
				mcp.WithString("observationId", mcp.Description("Scored observation within the trace")),
				mcp.WithString("comment", mcp.Description("Free text explanation")),
			},
			Handler: s.createScore,
			AuditRef: func(a dispatch.Args) string {
				target := a.String("traceId")
				if target == "" {
					target = a.String("sessionId")
				}
				return "score:" + a.String("name") + "@" + target
			},
		},
		{
			Name:        "delete_score",
			Description: "Permanently delete a score. Requires confirm: true.",
			Mutating:    true,
			Destructive: true,
			Options: []mcp.ToolOption{
				mcp.WithString("scoreId", mcp.Required(), mcp.Description("Score id")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				id, err := required(a, "scoreId")
				if err != nil {
					return nil, err
				}
				return deleted(id)(s.deps.API.DeleteScore(ctx, id))
			},
			AuditRef: ref("score", "scoreId"),
		},
	}
}

func (s *Set) createScore(ctx context.Context, a dispatch.Args) (any, error) {
	name, err := required(a, "name")
	if err != nil {
		return nil, err
	}
	req := langfuse.CreateScoreRequest{
		Name:          name,
		TraceID:       a.String("traceId"),
		SessionID:     a.String("sessionId"),
		ObservationID: a.String("observationId"),
		DataType:      a.String("dataType"),
		Comment:       a.String("comment"),
	}
	if req.TraceID == "" && req.SessionID == "" {
		return nil, dispatch.InvalidArgument("traceId", "or sessionId is required")
	}
	if req.ObservationID != "" && req.TraceID == "" {
		return nil, dispatch.InvalidArgument("traceId", "is required when observationId is set")
	}
	if req.Value, req.DataType, err = scoreValue(req.DataType, a.Raw("value")); err != nil {
		return nil, err
	}
	return raw(s.deps.API.CreateScore(ctx, req))
}

// scoreValue checks v against dataType. Without a data type any number or
// string is accepted and the backend infers the type; a JSON boolean becomes
// a BOOLEAN score.
func scoreValue(dataType string, v any) (any, string, error) {
	switch val := v.(type) {
	case float64:
		switch dataType {
		case scoreCategorical:
			return nil, "", dispatch.InvalidArgument("value", "must be a string for CATEGORICAL scores")
		case scoreBoolean:
			if val != 0 && val != 1 {
				return nil, "", dispatch.InvalidArgument("value", "must be 0 or 1 for BOOLEAN scores")
			}
		}
		return val, dataType, nil
	case bool:
		if dataType != "" && dataType != scoreBoolean {
			return nil, "", dispatch.InvalidArgument("value", "must be a number or string")
		}
		if val {
			return 1.0, scoreBoolean, nil
		}
		return 0.0, scoreBoolean, nil
	case string:
		if dataType == scoreNumeric || dataType == scoreBoolean {
			return nil, "", dispatch.InvalidArgument("value", "must be a number for %s scores", dataType)
		}
		if val == "" {
			return nil, "", dispatch.InvalidArgument("value", "must not be empty")
		}
		return val, dataType, nil
	default:
		return nil, "", dispatch.InvalidArgument("value", "must be a number or string")
	}
}
