package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/internal/util"
)

// Bind decodes validated arguments into out, a pointer to a struct with json tags.
func Bind(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	return dec.Decode(args)
}

// NewTypedTool exposes fn as a tool whose schema is derived from T.
// Arguments are validated, then bound into a T before fn runs.
//
//	type searchArgs struct {
//	    Query string `json:"query" jsonschema:"description=Search query"`
//	    Limit int    `json:"limit,omitempty"`
//	}
//
//	t := NewTypedTool("search", "Search the web", func(tc *core.ToolContext, a searchArgs) (any, error) {
//	    ...
//	})
func NewTypedTool[T any](name, description string, fn func(tc *core.ToolContext, args T) (any, error)) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(new(T)), func(tc *core.ToolContext, raw map[string]any) (any, error) {
		var args T
		if err := Bind(raw, &args); err != nil {
			return nil, &ToolArgumentError{Tool: name, Message: fmt.Sprintf("decode arguments: %v", err), Err: err}
		}
		return fn(tc, args)
	})
}
