package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Tool is a catalog entry sent to the model: a name, a description and a JSON
// schema object describing its parameters.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoiceMode selects whether and which tool the model may call.
type ToolChoiceMode string

const (
	ToolChoiceModeAuto   ToolChoiceMode = "auto"
	ToolChoiceModeNone   ToolChoiceMode = "none"
	ToolChoiceModeForced ToolChoiceMode = "forced"
)

// ToolChoice is the selection policy. Name is set only for forced choices.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

func ToolChoiceAuto() ToolChoice { return ToolChoice{Mode: ToolChoiceModeAuto} }
func ToolChoiceNone() ToolChoice { return ToolChoice{Mode: ToolChoiceModeNone} }

func ToolChoiceForce(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceModeForced, Name: name}
}

// ParseToolChoice accepts "auto", "none", a bare tool name, or {"name": "..."}.
// Empty input means auto.
func ParseToolChoice(raw string) ToolChoice {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "auto":
		return ToolChoiceAuto()
	case "none":
		return ToolChoiceNone()
	}
	if strings.HasPrefix(raw, "{") {
		var forced struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(raw), &forced); err == nil && forced.Name != "" {
			return ToolChoiceForce(forced.Name)
		}
	}
	return ToolChoiceForce(raw)
}

// Wire returns the OpenAI-style value: "auto", "none" or {"name": ...}.
func (c ToolChoice) Wire() any {
	switch c.Mode {
	case ToolChoiceModeNone:
		return "none"
	case ToolChoiceModeForced:
		return map[string]string{"name": c.Name}
	default:
		return "auto"
	}
}

func (c ToolChoice) String() string {
	if c.Mode == ToolChoiceModeForced {
		return "forced:" + c.Name
	}
	if c.Mode == "" {
		return string(ToolChoiceModeAuto)
	}
	return string(c.Mode)
}

// Request is one call to the model gateway. A nil Temperature leaves the
// provider default in place. Tools may be empty, in which case ToolChoice is ignored.
type Request struct {
	Messages    []Message
	Tools       []Tool
	ToolChoice  ToolChoice
	Temperature *float64
}

// Temperature is a helper for filling Request.Temperature.
func Temperature(v float64) *float64 { return &v }

// FinishReason explains why the model stopped.
type FinishReason string

const (
	FinishStop         FinishReason = "stop"
	FinishFunctionCall FinishReason = "function_call"
	FinishLength       FinishReason = "length"
)

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the gateway result: either a direct answer or a message whose
// FunctionCall asks for a tool.
type Response struct {
	FinishReason FinishReason
	Message      Message
	Usage        Usage
}

// FunctionCall returns the requested tool call, or nil for a direct answer.
func (r Response) FunctionCall() *FunctionCall {
	if !r.Message.HasFunctionCall() {
		return nil
	}
	return r.Message.FunctionCall
}

// Gateway sends a conversation to a hosted model.
type Gateway interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// GatewayFunc adapts a function to Gateway; mostly for tests.
type GatewayFunc func(ctx context.Context, req Request) (Response, error)

func (f GatewayFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

func (GatewayFunc) Name() string { return "func" }
