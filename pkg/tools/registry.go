package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/llm"
)

// Registry maps tool names to tools. It is built once and never mutated,
// so it can be shared by concurrent conversations.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry indexes tools by signature name. Empty and duplicate names are rejected.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if t == nil {
			return nil, errors.New("tool is nil")
		}
		name := t.Signature().Name
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("tool name is empty")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("tool %s already registered", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics; for static tool sets.
func MustRegistry(ts ...Tool) *Registry {
	r, err := NewRegistry(ts...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Signatures returns every signature in registration order.
func (r *Registry) Signatures() []Signature {
	if r == nil {
		return nil
	}
	out := make([]Signature, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Signature())
	}
	return out
}

// Catalog renders the registry as gateway tool specs.
func (r *Registry) Catalog() []llm.Tool {
	sigs := r.Signatures()
	out := make([]llm.Tool, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.Spec())
	}
	return out
}

// Call resolves, parses, validates and runs one tool invocation. Every
// failure is a reasoned error: unknown_tool, malformed_arguments,
// argument_mismatch or tool_execution. A panicking tool is reported as a
// tool_execution failure.
func (r *Registry) Call(ctx context.Context, name, rawArgs string) (string, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return "", errorsx.New(errorsx.ReasonUnknownTool, "Function %s does not exist", name)
	}
	args, err := ParseArguments(rawArgs)
	if err != nil {
		return "", errorsx.New(errorsx.ReasonMalformedArguments, "arguments for function %s are not a JSON object: %v", name, err)
	}
	if err := Check(tool.Signature(), args); err != nil {
		return "", err
	}
	return invoke(ctx, tool, args)
}

// ParseArguments decodes a raw argument payload into a JSON object. A JSON
// null is treated as an empty object; any other non-object is rejected.
func ParseArguments(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func invoke(ctx context.Context, tool Tool, args map[string]any) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = errorsx.New(errorsx.ReasonToolExecution, "function %s panicked: %v", tool.Signature().Name, rec)
		}
	}()
	out, err = tool.Invoke(ctx, args)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("function %s failed: %w", tool.Signature().Name, err), errorsx.ReasonToolExecution)
	}
	return out, nil
}
