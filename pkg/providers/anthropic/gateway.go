package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/harunnryd/resep/pkg/llm"
	"github.com/harunnryd/resep/pkg/resilience"
)

const defaultMaxTokens = 1024

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int64
	HTTPClient *http.Client
}

// Gateway maps the function-calling loop onto the Messages API: function
// calls become tool_use blocks and function results become tool_result blocks.
type Gateway struct {
	client    *sdk.Client
	model     string
	maxTokens int64
}

func NewGateway(cfg Config) *Gateway {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries belong to llm.RetryGateway
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	model := cfg.Model
	if model == "" {
		model = string(sdk.ModelClaude3_5SonnetLatest)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Gateway{
		client:    sdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (g *Gateway) Name() string { return "anthropic" }

func (g *Gateway) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	msg, err := g.client.Messages.New(ctx, g.ToProviderFormat(req))
	if err != nil {
		return llm.Response{}, mapError(err)
	}
	return FromProviderFormat(msg)
}

// MapTools converts catalog entries into tool definitions.
func MapTools(tools []llm.Tool) []sdk.ToolParam {
	out := make([]sdk.ToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, sdk.ToolParam{
			Name:        sdk.F(t.Name),
			Description: sdk.F(t.Description),
			InputSchema: sdk.F(interface{}(t.Parameters)),
		})
	}
	return out
}

func (g *Gateway) ToProviderFormat(req llm.Request) sdk.MessageNewParams {
	// "none" is expressed by not offering tools at all
	offerTools := len(req.Tools) > 0 && req.ToolChoice.Mode != llm.ToolChoiceModeNone
	system, messages := toMessages(req.Messages, offerTools)
	params := sdk.MessageNewParams{
		Model:     sdk.F(sdk.Model(g.model)),
		MaxTokens: sdk.F(g.maxTokens),
		Messages:  sdk.F(messages),
	}
	if len(system) > 0 {
		params.System = sdk.F(system)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.F(*req.Temperature)
	}
	if offerTools {
		params.Tools = sdk.F(MapTools(req.Tools))
		if req.ToolChoice.Mode == llm.ToolChoiceModeForced {
			params.ToolChoice = sdk.F[sdk.ToolChoiceUnionParam](sdk.ToolChoiceToolParam{
				Type: sdk.F(sdk.ToolChoiceToolTypeTool),
				Name: sdk.F(req.ToolChoice.Name),
			})
		}
	}
	return params
}

// toMessages converts the history. The API rejects tool_use and tool_result
// blocks in a request without tools, so when structured is false earlier
// calls and results are rendered as plain text.
func toMessages(msgs []llm.Message, structured bool) ([]sdk.TextBlockParam, []sdk.MessageParam) {
	var system []sdk.TextBlockParam
	var out []sdk.MessageParam
	pendingID := ""
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, sdk.NewTextBlock(m.Content))
		case llm.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			if m.HasFunctionCall() && !structured {
				blocks = append(blocks, sdk.NewTextBlock(callText(*m.FunctionCall)))
			} else if m.HasFunctionCall() {
				id := m.FunctionCall.ID
				if id == "" {
					id = "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				}
				pendingID = id
				blocks = append(blocks, sdk.NewToolUseBlockParam(id, m.FunctionCall.Name, toolInput(m.FunctionCall.Arguments)))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case llm.RoleFunction:
			if !structured {
				out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Name+" returned: "+m.Content)))
				continue
			}
			id := m.CallID()
			if id == "" {
				id = pendingID
			}
			pendingID = ""
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(id, m.Content, false)))
		}
	}
	return system, out
}

func callText(call llm.FunctionCall) string {
	return "called " + call.Name + "(" + call.Arguments + ")"
}

// toolInput passes valid JSON objects through untouched; anything else is
// sent as an empty object since tool_use input must be an object.
func toolInput(arguments string) interface{} {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &obj); err != nil || obj == nil {
		return map[string]interface{}{}
	}
	return json.RawMessage(arguments)
}

func FromProviderFormat(msg *sdk.Message) (llm.Response, error) {
	if msg == nil {
		return llm.Response{}, errors.New("anthropic: empty message")
	}
	var text strings.Builder
	var call *llm.FunctionCall
	for _, block := range msg.Content {
		switch block.Type {
		case sdk.ContentBlockTypeText:
			text.WriteString(block.Text)
		case sdk.ContentBlockTypeToolUse:
			if call != nil {
				// one call per turn; later ones are dropped
				continue
			}
			raw, err := json.Marshal(block.Input)
			if err != nil {
				return llm.Response{}, err
			}
			call = &llm.FunctionCall{ID: block.ID, Name: block.Name, Arguments: string(raw)}
		}
	}
	resp := llm.Response{
		FinishReason: llm.FinishStop,
		Message:      llm.AssistantMessage(text.String()),
		Usage: llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	switch {
	case call != nil:
		resp.FinishReason = llm.FinishFunctionCall
		resp.Message.FunctionCall = call
	case msg.StopReason == sdk.MessageStopReasonMaxTokens:
		resp.FinishReason = llm.FinishLength
	}
	return resp, nil
}

func mapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return resilience.RateLimitError{Provider: "anthropic", Message: apiErr.Error()}
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusRequestTimeout:
			return resilience.Permanent(err)
		}
	}
	return err
}

var _ llm.Gateway = (*Gateway)(nil)
