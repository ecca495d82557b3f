// Package tools defines the tool registry: the set of capabilities the model
// may call, each classified as read-only or side-effecting.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/signoffhq/signoff/domain"
	"github.com/signoffhq/signoff/llm"
)

// Handler executes a tool with validated arguments. resultURL, when non-empty,
// links to the affected resource.
type Handler func(ctx context.Context, args json.RawMessage) (result json.RawMessage, resultURL string, err error)

// PreviewFunc builds the human-facing preview for a write tool invocation.
type PreviewFunc func(args map[string]any) []domain.PreviewField

// Param declares one argument of a tool. Validation is strict: every field a
// call may carry must be declared, optional fields included.
type Param struct {
	Name        string
	Type        string // JSON schema type: string, number, boolean, array, object
	Description string
	Required    bool
}

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	ReadOnly    bool
	Params      []Param
	Run         Handler
	// Preview is optional; nil falls back to a generic dump of all non-null
	// arguments.
	Preview PreviewFunc
}

// Registry is an immutable lookup of tool definitions. It is constructed once
// at process start and passed by reference to every component that needs it.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry builds a registry from the given definitions.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("tool name is required")
		}
		if def.Run == nil {
			return nil, fmt.Errorf("tool %s has no handler", def.Name)
		}
		if _, exists := r.defs[def.Name]; exists {
			return nil, fmt.Errorf("duplicate tool %s", def.Name)
		}
		r.defs[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Get returns the definition for a tool name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// IsWriteTool reports whether the named tool is side-effecting. Unknown tools
// are treated as write tools so they can never execute silently.
func (r *Registry) IsWriteTool(name string) bool {
	def, ok := r.defs[name]
	if !ok {
		return true
	}
	return !def.ReadOnly
}

// Describe returns the human-readable description for a tool.
func (r *Registry) Describe(name string) string {
	return r.defs[name].Description
}

// ValidateArgs parses and strictly validates a call's arguments: undeclared
// fields are rejected and required fields must be present.
func (r *Registry) ValidateArgs(name string, args json.RawMessage) (map[string]any, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %s", name)
	}

	parsed := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
		}
	}

	declared := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		declared[p.Name] = true
	}
	for field := range parsed {
		if !declared[field] {
			return nil, fmt.Errorf("undeclared argument %q for tool %s", field, name)
		}
	}
	for _, p := range def.Params {
		if p.Required {
			if v, ok := parsed[p.Name]; !ok || v == nil {
				return nil, fmt.Errorf("missing required argument %q for tool %s", p.Name, name)
			}
		}
	}
	return parsed, nil
}

// GeneratePreview computes the preview fields for a write tool invocation.
// Tools without their own generator get a generic enumeration of every
// non-null argument, in declared parameter order.
func (r *Registry) GeneratePreview(name string, args json.RawMessage) []domain.PreviewField {
	def, ok := r.defs[name]
	if !ok {
		return nil
	}

	parsed := map[string]any{}
	if len(args) > 0 {
		_ = json.Unmarshal(args, &parsed)
	}

	if def.Preview != nil {
		return def.Preview(parsed)
	}

	var fields []domain.PreviewField
	seen := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		seen[p.Name] = true
		v, ok := parsed[p.Name]
		if !ok || v == nil {
			continue
		}
		fields = append(fields, domain.PreviewField{Field: fieldLabel(p.Name), NewValue: formatValue(v)})
	}
	// Arguments outside the declared set still show up, sorted for stability.
	var extra []string
	for k, v := range parsed {
		if !seen[k] && v != nil {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fields = append(fields, domain.PreviewField{Field: fieldLabel(k), NewValue: formatValue(parsed[k])})
	}
	return fields
}

// Specs returns the function-calling tool list for the completion request.
// Schemas are strict: fixed field set, no undeclared fields.
func (r *Registry) Specs() []llm.Tool {
	specs := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		def := r.defs[name]
		props := map[string]any{}
		var required []string
		for _, p := range def.Params {
			props[p.Name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		params := map[string]any{
			"type":                 "object",
			"properties":           props,
			"additionalProperties": false,
		}
		if len(required) > 0 {
			params["required"] = required
		}
		specs = append(specs, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return specs
}

// fieldLabel turns an argument name into a display label: "title" -> "Title",
// "team_id" -> "Team Id".
func fieldLabel(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(out)
	}
}
