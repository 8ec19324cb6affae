package tools

import (
	"context"
)

// Tool is a local capability the model may ask to run. Invoke receives
// arguments that already passed Validate and returns text (already serialised
// if structured).
type Tool interface {
	Signature() Signature
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// HandlerFunc executes a tool with raw arguments.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

type funcTool struct {
	sig Signature
	fn  HandlerFunc
}

// New builds a Tool from a signature and handler.
func New(sig Signature, fn HandlerFunc) Tool {
	return funcTool{sig: sig, fn: fn}
}

func (t funcTool) Signature() Signature { return t.sig }

func (t funcTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

// Typed builds a Tool whose handler receives arguments decoded into T, with
// declared defaults applied first.
func Typed[T any](sig Signature, fn func(ctx context.Context, in T) (string, error)) Tool {
	return funcTool{sig: sig, fn: func(ctx context.Context, args map[string]any) (string, error) {
		var in T
		if err := Decode(sig.WithDefaults(args), &in); err != nil {
			return "", err
		}
		return fn(ctx, in)
	}}
}
