package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

var datasetItemStatuses = []string{"ACTIVE", "ARCHIVED"}

func (s *Set) datasetTools() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{
			Name:        "list_datasets",
			Description: "List datasets.",
			Options:     pagingOptions(),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				q, err := listQuery(a, nil)
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.ListDatasets(ctx, q))
			},
		},
		{
			Name:        "get_dataset",
			Description: "Get a dataset by name.",
			Options: []mcp.ToolOption{
				mcp.WithString("datasetName", mcp.Required(), mcp.Description("Dataset name")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				name, err := required(a, "datasetName")
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.GetDataset(ctx, name))
			},
		},
		{
			Name:        "list_dataset_items",
			Description: "List the items of a dataset, optionally only those derived from a trace or observation.",
			Options: withOptions(pagingOptions(), []mcp.ToolOption{
				mcp.WithString("datasetName", mcp.Required(), mcp.Description("Dataset name")),
				mcp.WithString("sourceTraceId", mcp.Description("Source trace id")),
				mcp.WithString("sourceObservationId", mcp.Description("Source observation id")),
			}),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				if _, err := required(a, "datasetName"); err != nil {
					return nil, err
				}
				q, err := listQuery(a, map[string]string{
					"datasetName":         "datasetName",
					"sourceTraceId":       "sourceTraceId",
					"sourceObservationId": "sourceObservationId",
				})
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.ListDatasetItems(ctx, q))
			},
		},
		{
			Name:        "get_dataset_item",
			Description: "Get one dataset item.",
			Options: []mcp.ToolOption{
				mcp.WithString("itemId", mcp.Required(), mcp.Description("Dataset item id")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				id, err := required(a, "itemId")
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.GetDatasetItem(ctx, id))
			},
		},
		{
			Name:        "create_dataset",
			Description: "Create a dataset.",
			Mutating:    true,
			Options: []mcp.ToolOption{
				mcp.WithString("name", mcp.Required(), mcp.Description("Dataset name")),
				mcp.WithString("description", mcp.Description("Dataset description")),
				mcp.WithObject("metadata", mcp.Description("Arbitrary metadata")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				name, err := required(a, "name")
				if err != nil {
					return nil, err
				}
				req := langfuse.CreateDatasetRequest{Name: name, Description: a.String("description")}
				if md := a.Object("metadata"); md != nil {
					req.Metadata = md
				}
				return raw(s.deps.API.CreateDataset(ctx, req))
			},
			AuditRef: ref("dataset", "name"),
		},
		{
			Name: "create_dataset_item",
			Description: "Add an item to a dataset, or update it when id names an existing item. " +
				"Input and expectedOutput accept any JSON value.",
			Mutating: true,
			Options: []mcp.ToolOption{
				mcp.WithString("datasetName", mcp.Required(), mcp.Description("Dataset name")),
				mcp.WithString("id", mcp.Description("Item id, to upsert")),
				dispatch.WithAny("input", mcp.Description("Item input")),
				dispatch.WithAny("expectedOutput", mcp.Description("Expected output")),
				mcp.WithObject("metadata", mcp.Description("Arbitrary metadata")),
				mcp.WithString("sourceTraceId", mcp.Description("Trace the item was derived from")),
				mcp.WithString("sourceObservationId", mcp.Description("Observation the item was derived from")),
				mcp.WithString("status", mcp.Enum(datasetItemStatuses...), mcp.Description("Item status (default ACTIVE)")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				name, err := required(a, "datasetName")
				if err != nil {
					return nil, err
				}
				req := langfuse.CreateDatasetItemRequest{
					DatasetName:         name,
					ID:                  a.String("id"),
					Input:               a.Raw("input"),
					ExpectedOutput:      a.Raw("expectedOutput"),
					SourceTraceID:       a.String("sourceTraceId"),
					SourceObservationID: a.String("sourceObservationId"),
					Status:              a.String("status"),
				}
				if md := a.Object("metadata"); md != nil {
					req.Metadata = md
				}
				return raw(s.deps.API.CreateDatasetItem(ctx, req))
			},
			AuditRef: func(a dispatch.Args) string {
				if id := a.String("id"); id != "" {
					return "dataset_item:" + id
				}
				return "dataset:" + a.String("datasetName")
			},
		},
		{
			Name:        "delete_dataset_item",
			Description: "Permanently delete a dataset item. Requires confirm: true.",
			Mutating:    true,
			Destructive: true,
			Options: []mcp.ToolOption{
				mcp.WithString("itemId", mcp.Required(), mcp.Description("Dataset item id")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				id, err := required(a, "itemId")
				if err != nil {
					return nil, err
				}
				return deleted(id)(s.deps.API.DeleteDatasetItem(ctx, id))
			},
			AuditRef: ref("dataset_item", "itemId"),
		},
	}
}

// deleted returns the backend's answer, or a confirmation when the backend
// sent an empty body.
func deleted(id string) func(json.RawMessage, error) (any, error) {
	return func(b json.RawMessage, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		if len(b) == 0 || string(b) == "null" {
			return map[string]any{"id": id, "deleted": true}, nil
		}
		return b, nil
	}
}
