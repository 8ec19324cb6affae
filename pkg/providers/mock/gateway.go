package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/harunnryd/resep/pkg/llm"
)

// ErrScriptExhausted is returned once every scripted step has been served.
var ErrScriptExhausted = errors.New("mock gateway: script exhausted")

// Step is one scripted gateway outcome.
type Step struct {
	Response llm.Response
	Err      error
}

// Reply scripts a direct answer.
func Reply(text string) Step {
	return Step{Response: llm.Response{
		FinishReason: llm.FinishStop,
		Message:      llm.AssistantMessage(text),
	}}
}

// Call scripts a tool request with raw JSON arguments.
func Call(name, args string) Step {
	return Step{Response: llm.Response{
		FinishReason: llm.FinishFunctionCall,
		Message: llm.FunctionCallMessage(llm.FunctionCall{
			ID:        uuid.NewString(),
			Name:      name,
			Arguments: args,
		}),
	}}
}

// Fail scripts a gateway error.
func Fail(err error) Step {
	return Step{Err: err}
}

// ScriptedGateway replays steps in order and records every request it sees.
type ScriptedGateway struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
	name     string
}

func NewScriptedGateway(steps ...Step) *ScriptedGateway {
	return &ScriptedGateway{steps: steps, name: "mock"}
}

func (g *ScriptedGateway) Name() string { return g.name }

func (g *ScriptedGateway) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rec := req
	rec.Messages = llm.CloneMessages(req.Messages)
	rec.Tools = append([]llm.Tool(nil), req.Tools...)
	g.requests = append(g.requests, rec)
	if len(g.steps) == 0 {
		return llm.Response{}, ErrScriptExhausted
	}
	step := g.steps[0]
	g.steps = g.steps[1:]
	return step.Response, step.Err
}

// Push appends steps to the script.
func (g *ScriptedGateway) Push(steps ...Step) {
	g.mu.Lock()
	g.steps = append(g.steps, steps...)
	g.mu.Unlock()
}

// Requests returns copies of every request received so far.
func (g *ScriptedGateway) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// Remaining reports how many scripted steps are left.
func (g *ScriptedGateway) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.steps)
}

var _ llm.Gateway = (*ScriptedGateway)(nil)
