package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	xmessage "golang.org/x/text/message"
)

var printer = xmessage.NewPrinter(language.English)

// Integer marks a number property as integer-valued. mcp-go only offers
// "number", so the type is overridden on the property schema.
func Integer() mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["type"] = "integer"
	}
}

// WithAny declares a property that accepts any JSON value, for payloads such
// as dataset inputs that the backend stores verbatim.
func WithAny(name string, opts ...mcp.PropertyOption) mcp.ToolOption {
	return func(t *mcp.Tool) {
		schema := map[string]any{}
		for _, opt := range opts {
			opt(schema)
		}
		if req, ok := schema["required"].(bool); ok {
			delete(schema, "required")
			if req {
				t.InputSchema.Required = append(t.InputSchema.Required, name)
			}
		}
		if t.InputSchema.Properties == nil {
			t.InputSchema.Properties = map[string]any{}
		}
		t.InputSchema.Properties[name] = schema
	}
}

// compileSchema compiles a tool's input schema for validate.
func compileSchema(name string, schema mcp.ToolInputSchema) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}

	url := "https://langfuse-mcp.local/tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add input schema: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return compiled, nil
}

// validate checks args against the tool's compiled input schema. Null values
// count as absent. Unknown fields are ignored. When several fields are
// invalid, the first one in sorted order is reported.
func validate(compiled *jsonschema.Schema, required []string, args map[string]any) error {
	for _, name := range required {
		if v, ok := args[name]; !ok || v == nil {
			return &ArgumentError{Field: name, Reason: "is required"}
		}
	}

	present := make(map[string]any, len(args))
	for k, v := range args {
		if v != nil {
			present[k] = v
		}
	}
	b, err := json.Marshal(present)
	if err != nil {
		return &ArgumentError{Field: "arguments", Reason: "must be JSON values"}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return &ArgumentError{Field: "arguments", Reason: "must be JSON values"}
	}

	err = compiled.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ArgumentError{Field: "arguments", Reason: err.Error()}
	}
	return argumentError(ve)
}

// argumentError reduces a validation tree to its first leaf, naming the
// top-level argument it concerns.
func argumentError(ve *jsonschema.ValidationError) *ArgumentError {
	leaves := leafErrors(ve, nil)
	slices.SortStableFunc(leaves, func(a, b *jsonschema.ValidationError) int {
		return strings.Compare(strings.Join(a.InstanceLocation, "/"), strings.Join(b.InstanceLocation, "/"))
	})
	leaf := leaves[0]

	field := "arguments"
	if len(leaf.InstanceLocation) > 0 {
		field = leaf.InstanceLocation[0]
	}
	reason := leaf.ErrorKind.LocalizedString(printer)
	if len(leaf.InstanceLocation) > 1 {
		reason = fmt.Sprintf("item %s %s", strings.Join(leaf.InstanceLocation[1:], "/"), reason)
	}
	return &ArgumentError{Field: field, Reason: reason}
}

func leafErrors(ve *jsonschema.ValidationError, out []*jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return append(out, ve)
	}
	for _, c := range ve.Causes {
		out = leafErrors(c, out)
	}
	return out
}
