package app

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/harunnryd/resep/pkg/configutil"
	"github.com/harunnryd/resep/pkg/conversation"
	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/resilience"
)

// DefaultRecipeSystemPrompt frames the recipe assistant.
const DefaultRecipeSystemPrompt = `Assistant is a large language model designed to help users find and create recipes.

You have access to a search index with hundreds of recipes. You can search for recipes by name, ingredient, or cuisine.

You are designed to be an interactive assistant, so you can ask users clarifying questions to help them find the right recipe. It's better to give more detailed queries to the search index rather than vague one.`

type Config struct {
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Search        SearchConfig        `mapstructure:"search"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	Resilience    ResilienceConfig    `mapstructure:"resilience"`
	Server        ServerConfig        `mapstructure:"server"`
	Data          DataConfig          `mapstructure:"data"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	LLM       VendorConfig `mapstructure:"llm"`
	Embedding VendorConfig `mapstructure:"embedding"`
}

type SearchConfig struct {
	IndexName      string  `mapstructure:"index_name"`
	SemanticConfig string  `mapstructure:"semantic_config"`
	K              int     `mapstructure:"k"`
	Alpha          float64 `mapstructure:"alpha"`
	Dimensions     int     `mapstructure:"dimensions"`
	BatchSize      int     `mapstructure:"batch_size"`
	LoadOnStart    bool    `mapstructure:"load_on_start"`
}

type ConversationConfig struct {
	Mode          string   `mapstructure:"mode"`
	Temperature   *float64 `mapstructure:"temperature"`
	MaxIterations int      `mapstructure:"max_iterations"`
	ToolTimeoutMS int      `mapstructure:"tool_timeout_ms"`
	ToolChoice    string   `mapstructure:"tool_choice"`
	SystemPrompt  string   `mapstructure:"system_prompt"`
	MaxHistory    int      `mapstructure:"max_history"`
	Tools         []string `mapstructure:"tools"`
}

type ResilienceConfig struct {
	RetryAttempts     int     `mapstructure:"retry_attempts"`
	RetryBaseMS       int     `mapstructure:"retry_base_ms"`
	RetryMaxMS        int     `mapstructure:"retry_max_ms"`
	RetryJitter       float64 `mapstructure:"retry_jitter"`
	UseCircuitBreaker bool    `mapstructure:"use_circuit_breaker"`
	BreakerThreshold  int     `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int     `mapstructure:"breaker_cooldown_ms"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	WSPath         string   `mapstructure:"ws_path"`
	MCPPath        string   `mapstructure:"mcp_path"`
	MCPEnabled     bool     `mapstructure:"mcp_enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DataConfig struct {
	RecipesPath string `mapstructure:"recipes_path"`
	StockCSV    string `mapstructure:"stock_csv"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// LoadConfig reads a YAML (or any viper-supported) config file. A .env file
// next to the working directory is loaded first when present, and ${VAR}
// references anywhere in the config are expanded afterwards.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errorsx.Wrap(fmt.Errorf("load .env: %w", err), errorsx.ReasonConfig)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfig)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("decode config: %w", err), errorsx.ReasonConfig)
	}
	expandEnvStrings(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig is what LoadConfig yields for an empty file.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vendors.llm.provider", "openai")
	v.SetDefault("vendors.embedding.provider", "openai")
	v.SetDefault("search.index_name", "recipes")
	v.SetDefault("search.semantic_config", "my-semantic-config")
	v.SetDefault("search.k", 3)
	v.SetDefault("search.alpha", 0.5)
	v.SetDefault("search.dimensions", 1536)
	v.SetDefault("search.batch_size", 100)
	v.SetDefault("search.load_on_start", true)
	v.SetDefault("conversation.mode", string(conversation.ModeMultiTurn))
	v.SetDefault("conversation.max_iterations", conversation.DefaultMaxIterations)
	v.SetDefault("conversation.tool_timeout_ms", 10000)
	v.SetDefault("conversation.tool_choice", "auto")
	v.SetDefault("conversation.system_prompt", DefaultRecipeSystemPrompt)
	v.SetDefault("conversation.max_history", 40)
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.retry_base_ms", 200)
	v.SetDefault("resilience.retry_max_ms", 5000)
	v.SetDefault("resilience.retry_jitter", 0.2)
	v.SetDefault("resilience.use_circuit_breaker", true)
	v.SetDefault("resilience.breaker_threshold", 3)
	v.SetDefault("resilience.breaker_cooldown_ms", 30000)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.mcp_path", "/mcp")
	v.SetDefault("server.mcp_enabled", true)
	v.SetDefault("data.recipes_path", "data/recipes.jsonl")
	v.SetDefault("data.stock_csv", "data/stock_data.csv")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func (c Config) Validate() error {
	if err := configutil.RequireString(c.Vendors.LLM.Provider, "vendors.llm.provider"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	if _, err := conversation.ParseMode(c.Conversation.Mode); err != nil {
		return errorsx.Wrap(fmt.Errorf("conversation.mode: %w", err), errorsx.ReasonConfig)
	}
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return errorsx.New(errorsx.ReasonConfig, "search.alpha must be within [0, 1], got %v", c.Search.Alpha)
	}
	if c.Search.Dimensions <= 0 {
		return errorsx.New(errorsx.ReasonConfig, "search.dimensions must be positive")
	}
	if c.Conversation.MaxIterations < 0 {
		return errorsx.New(errorsx.ReasonConfig, "conversation.max_iterations must not be negative")
	}
	return nil
}

// RetryPolicy builds the gateway retry policy from the resilience section.
func (c Config) RetryPolicy() *resilience.RetryPolicy {
	r := c.Resilience
	return resilience.NewRetryPolicy(
		r.RetryAttempts,
		time.Duration(r.RetryBaseMS)*time.Millisecond,
		time.Duration(r.RetryMaxMS)*time.Millisecond,
		r.RetryJitter,
	)
}

// Breaker returns nil when the circuit breaker is disabled.
func (c Config) Breaker() *resilience.CircuitBreaker {
	r := c.Resilience
	if !r.UseCircuitBreaker {
		return nil
	}
	return resilience.NewCircuitBreaker(r.BreakerThreshold, time.Duration(r.BreakerCooldownMS)*time.Millisecond)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.LLM.Settings = configutil.ExpandSettings(cfg.Vendors.LLM.Settings)
	cfg.Vendors.Embedding.Settings = configutil.ExpandSettings(cfg.Vendors.Embedding.Settings)
}

// expandValue expands ${VAR} in every settable string field, slice element
// and map[string]string value reachable from v.
func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() && strings.Contains(v.String(), "$") {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(v.MapIndex(key).String())))
			}
		}
	}
}
