package openai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/harunnryd/resep/pkg/llm"
)

const (
	APITypeOpenAI = "openai"
	APITypeAzure  = "azure"
)

// Config selects the endpoint. For Azure, BaseURL is the resource endpoint
// and Deployment names the chat deployment; Model is used when Deployment is empty.
type Config struct {
	APIKey     string
	APIType    string
	BaseURL    string
	APIVersion string
	Model      string
	Deployment string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ClientConfig builds the go-openai client configuration.
func (c Config) ClientConfig() goopenai.ClientConfig {
	var cfg goopenai.ClientConfig
	if strings.EqualFold(c.APIType, APITypeAzure) {
		cfg = goopenai.DefaultAzureConfig(c.APIKey, c.BaseURL)
		if c.APIVersion != "" {
			cfg.APIVersion = c.APIVersion
		}
		if c.Deployment != "" {
			deployment := c.Deployment
			cfg.AzureModelMapperFunc = func(string) string { return deployment }
		}
	} else {
		cfg = goopenai.DefaultConfig(c.APIKey)
		if c.BaseURL != "" {
			cfg.BaseURL = c.BaseURL
		}
	}
	switch {
	case c.HTTPClient != nil:
		cfg.HTTPClient = c.HTTPClient
	case c.Timeout > 0:
		cfg.HTTPClient = &http.Client{Timeout: c.Timeout}
	default:
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return cfg
}

// Gateway talks to the chat completions API using the functions /
// function_call fields.
type Gateway struct {
	client *goopenai.Client
	model  string
	name   string
}

func NewGateway(cfg Config) *Gateway {
	name := APITypeOpenAI
	if strings.EqualFold(cfg.APIType, APITypeAzure) {
		name = APITypeAzure
	}
	model := cfg.Model
	if model == "" {
		model = cfg.Deployment
	}
	if model == "" {
		model = goopenai.GPT3Dot5Turbo
	}
	return &Gateway{
		client: goopenai.NewClientWithConfig(cfg.ClientConfig()),
		model:  model,
		name:   name,
	}
}

func (g *Gateway) Name() string { return g.name }

func (g *Gateway) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.ToProviderFormat(req))
	if err != nil {
		return llm.Response{}, mapError(g.name, err)
	}
	return g.FromProviderFormat(resp)
}

// MapTools converts catalog entries into function definitions.
func (g *Gateway) MapTools(tools []llm.Tool) []goopenai.FunctionDefinition {
	out := make([]goopenai.FunctionDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, goopenai.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

func (g *Gateway) ToProviderFormat(req llm.Request) goopenai.ChatCompletionRequest {
	out := goopenai.ChatCompletionRequest{
		Model:    g.model,
		Messages: toMessages(req.Messages),
	}
	if req.Temperature != nil {
		// the client drops a zero temperature as unset
		t := float32(*req.Temperature)
		if t == 0 {
			t = math.SmallestNonzeroFloat32
		}
		out.Temperature = t
	}
	if len(req.Tools) > 0 {
		out.Functions = g.MapTools(req.Tools)
		out.FunctionCall = req.ToolChoice.Wire()
	}
	return out
}

func (g *Gateway) FromProviderFormat(resp goopenai.ChatCompletionResponse) (llm.Response, error) {
	if len(resp.Choices) == 0 {
		return llm.Response{}, errors.New("openai: no choices returned")
	}
	choice := resp.Choices[0]
	msg := llm.AssistantMessage(choice.Message.Content)
	if fc := choice.Message.FunctionCall; fc != nil && fc.Name != "" {
		msg.FunctionCall = &llm.FunctionCall{
			ID:        uuid.NewString(),
			Name:      fc.Name,
			Arguments: fc.Arguments,
		}
	}
	return llm.Response{
		FinishReason: llm.FinishReason(choice.FinishReason),
		Message:      msg,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func toMessages(msgs []llm.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case llm.RoleFunction:
			cm.Name = m.Name
		case llm.RoleAssistant:
			if m.HasFunctionCall() {
				cm.FunctionCall = &goopenai.FunctionCall{
					Name:      m.FunctionCall.Name,
					Arguments: m.FunctionCall.Arguments,
				}
			}
		}
		out = append(out, cm)
	}
	return out
}

var _ llm.Gateway = (*Gateway)(nil)
