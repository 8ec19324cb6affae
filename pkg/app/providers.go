package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/resep/pkg/configutil"
	"github.com/harunnryd/resep/pkg/llm"
	"github.com/harunnryd/resep/pkg/providers/anthropic"
	"github.com/harunnryd/resep/pkg/providers/mock"
	"github.com/harunnryd/resep/pkg/providers/openai"
	"github.com/harunnryd/resep/pkg/search"
)

type LLMFactory func(cfg Config) (llm.Gateway, error)
type EmbedderFactory func(cfg Config) (search.Embedder, error)

// ProviderRegistry maps vendor names from the config to constructors.
type ProviderRegistry struct {
	llm       map[string]LLMFactory
	embedding map[string]EmbedderFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		llm:       make(map[string]LLMFactory),
		embedding: make(map[string]EmbedderFactory),
	}
}

// DefaultProviders registers openai, azure, anthropic and mock.
func DefaultProviders() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterLLM("openai", openAIGateway(openai.APITypeOpenAI))
	r.RegisterLLM("azure", openAIGateway(openai.APITypeAzure))
	r.RegisterLLM("anthropic", anthropicGateway)
	r.RegisterLLM("mock", mockGateway)
	r.RegisterEmbedder("openai", openAIEmbedder(openai.APITypeOpenAI))
	r.RegisterEmbedder("azure", openAIEmbedder(openai.APITypeAzure))
	r.RegisterEmbedder("mock", mockEmbedder)
	return r
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterEmbedder(name string, factory EmbedderFactory) {
	r.embedding[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildLLM(cfg Config) (llm.Gateway, error) {
	fn := r.llm[providerKey(cfg.Vendors.LLM.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s (have %s)", cfg.Vendors.LLM.Provider, strings.Join(keys(r.llm), ", "))
	}
	return fn(cfg)
}

// BuildEmbedder returns nil, nil when no embedding provider is configured;
// the index then runs keyword-only.
func (r *ProviderRegistry) BuildEmbedder(cfg Config) (search.Embedder, error) {
	if strings.TrimSpace(cfg.Vendors.Embedding.Provider) == "" {
		return nil, nil
	}
	fn := r.embedding[providerKey(cfg.Vendors.Embedding.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("embedding provider not registered: %s (have %s)", cfg.Vendors.Embedding.Provider, strings.Join(keys(r.embedding), ", "))
	}
	return fn(cfg)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type openAISettings struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	APIVersion string        `mapstructure:"api_version"`
	Deployment string        `mapstructure:"deployment"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func openAISchema(apiType string) configutil.Schema {
	if apiType == openai.APITypeAzure {
		return configutil.Schema{
			Required: []string{"api_key", "base_url", "deployment"},
			Optional: []string{"api_version", "model", "timeout"},
		}
	}
	return configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "base_url", "timeout"},
	}
}

func decodeOpenAI(path, apiType string, settings map[string]any) (openai.Config, string, error) {
	if err := configutil.ValidateAt(path, settings, openAISchema(apiType)); err != nil {
		return openai.Config{}, "", err
	}
	var s openAISettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return openai.Config{}, "", fmt.Errorf("%s: %w", path, err)
	}
	if err := configutil.RequireString(s.APIKey, path+".api_key"); err != nil {
		return openai.Config{}, "", err
	}
	return openai.Config{
		APIKey:     s.APIKey,
		APIType:    apiType,
		BaseURL:    s.BaseURL,
		APIVersion: s.APIVersion,
		Model:      s.Model,
		Deployment: s.Deployment,
		Timeout:    s.Timeout,
	}, s.Model, nil
}

func openAIGateway(apiType string) LLMFactory {
	return func(cfg Config) (llm.Gateway, error) {
		oc, _, err := decodeOpenAI("vendors.llm.settings", apiType, cfg.Vendors.LLM.Settings)
		if err != nil {
			return nil, err
		}
		return openai.NewGateway(oc), nil
	}
}

func openAIEmbedder(apiType string) EmbedderFactory {
	return func(cfg Config) (search.Embedder, error) {
		oc, model, err := decodeOpenAI("vendors.embedding.settings", apiType, cfg.Vendors.Embedding.Settings)
		if err != nil {
			return nil, err
		}
		return openai.NewEmbedder(oc, model), nil
	}
}

type anthropicSettings struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

func anthropicGateway(cfg Config) (llm.Gateway, error) {
	const path = "vendors.llm.settings"
	if err := configutil.ValidateAt(path, cfg.Vendors.LLM.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "base_url", "max_tokens"},
	}); err != nil {
		return nil, err
	}
	var s anthropicSettings
	if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return anthropic.NewGateway(anthropic.Config{
		APIKey:    s.APIKey,
		Model:     s.Model,
		BaseURL:   s.BaseURL,
		MaxTokens: s.MaxTokens,
	}), nil
}

type mockLLMSettings struct {
	ResponseText  string `mapstructure:"response_text"`
	ToolName      string `mapstructure:"tool_name"`
	ToolArguments string `mapstructure:"tool_arguments"`
}

func mockGateway(cfg Config) (llm.Gateway, error) {
	if err := configutil.ValidateAt("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
		Optional: []string{"response_text", "tool_name", "tool_arguments"},
	}); err != nil {
		return nil, err
	}
	var s mockLLMSettings
	if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &s); err != nil {
		return nil, err
	}
	return mock.NewStaticGateway(mock.LLMConfig{
		ResponseText:  s.ResponseText,
		ToolName:      s.ToolName,
		ToolArguments: s.ToolArguments,
	}), nil
}

// mockEmbedder hashes words into cfg.Search.Dimensions buckets so its vectors
// always fit the index.
func mockEmbedder(cfg Config) (search.Embedder, error) {
	if err := configutil.ValidateAt("vendors.embedding.settings", cfg.Vendors.Embedding.Settings, configutil.Schema{}); err != nil {
		return nil, err
	}
	return mock.NewHashEmbedder(cfg.Search.Dimensions), nil
}
