package mock

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/harunnryd/resep/pkg/llm"
)

// LLMConfig drives StaticGateway.
type LLMConfig struct {
	// ResponseText is the final answer. "{result}" is replaced by the latest
	// function result, so a configured tool round trip shows up in the reply.
	ResponseText string
	// ToolName, when offered in the catalog, is requested once per user turn.
	ToolName      string
	ToolArguments string
}

// StaticGateway is a stateless stand-in for a hosted model, configured from
// settings rather than scripted in code. It requests ToolName after every
// user message and answers with ResponseText after the result comes back.
type StaticGateway struct {
	cfg LLMConfig
}

func NewStaticGateway(cfg LLMConfig) *StaticGateway {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	if cfg.ToolArguments == "" {
		cfg.ToolArguments = "{}"
	}
	return &StaticGateway{cfg: cfg}
}

func (g *StaticGateway) Name() string { return "mock" }

func (g *StaticGateway) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	last := llm.Message{}
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1]
	}
	if last.Role == llm.RoleUser && g.offered(req) {
		return llm.Response{
			FinishReason: llm.FinishFunctionCall,
			Message: llm.FunctionCallMessage(llm.FunctionCall{
				ID:        uuid.NewString(),
				Name:      g.cfg.ToolName,
				Arguments: g.cfg.ToolArguments,
			}),
		}, nil
	}
	text := g.cfg.ResponseText
	if last.Role == llm.RoleFunction {
		text = strings.ReplaceAll(text, "{result}", last.Content)
	}
	return llm.Response{FinishReason: llm.FinishStop, Message: llm.AssistantMessage(text)}, nil
}

func (g *StaticGateway) offered(req llm.Request) bool {
	if g.cfg.ToolName == "" {
		return false
	}
	switch req.ToolChoice.Mode {
	case llm.ToolChoiceModeNone:
		return false
	case llm.ToolChoiceModeForced:
		return req.ToolChoice.Name == g.cfg.ToolName
	}
	for _, t := range req.Tools {
		if t.Name == g.cfg.ToolName {
			return true
		}
	}
	return false
}

var _ llm.Gateway = (*StaticGateway)(nil)
