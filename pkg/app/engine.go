// Package app wires configuration, providers, the recipe index, the tool
// registry and the conversation driver into one Engine that the demos,
// the websocket transport and the MCP server share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/resep/pkg/conversation"
	"github.com/harunnryd/resep/pkg/ingest"
	"github.com/harunnryd/resep/pkg/llm"
	"github.com/harunnryd/resep/pkg/logging"
	"github.com/harunnryd/resep/pkg/metrics"
	"github.com/harunnryd/resep/pkg/observers"
	"github.com/harunnryd/resep/pkg/redact"
	"github.com/harunnryd/resep/pkg/resilience"
	"github.com/harunnryd/resep/pkg/search"
	"github.com/harunnryd/resep/pkg/tools"
	"github.com/harunnryd/resep/pkg/tools/builtin"
)

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Logger    *slog.Logger
	// Gateway and Embedder bypass the provider registry when set.
	Gateway  llm.Gateway
	Embedder search.Embedder
	// Tools are registered after the configured built-ins.
	Tools    []tools.Tool
	Observer metrics.Observer
	Listener conversation.StateListener
	Now      func() time.Time
}

type Engine struct {
	cfg      Config
	log      *slog.Logger
	gateway  llm.Gateway
	embedder search.Embedder
	index    *search.Index
	registry *tools.Registry
	driver   *conversation.Driver
	mode     conversation.Mode
	policy   llm.ToolChoice

	asyncObs *metrics.AsyncObserver
	closers  []func() error
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)
	e := &Engine{cfg: cfg, log: log}

	e.asyncObs = metrics.NewAsyncObserver(e.buildObservers(opts.Observer), 2048)
	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}

	gw := opts.Gateway
	if gw == nil {
		built, err := providers.BuildLLM(cfg)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("build providers: %w", err)
		}
		gw = built
	}
	e.gateway = e.wrapGateway(gw)

	emb := opts.Embedder
	if emb == nil {
		built, err := providers.BuildEmbedder(cfg)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("build providers: %w", err)
		}
		emb = built
	}
	if emb != nil {
		retrying := ingest.NewRetryingEmbedder(emb, resilience.EmbeddingRetryPolicy())
		retrying.SetObserver(e.asyncObs)
		e.embedder = retrying
	}

	schema := search.RecipeSchema(cfg.Search.IndexName)
	schema.Dimensions = cfg.Search.Dimensions
	semantic := search.DefaultSemanticConfig
	if name := strings.TrimSpace(cfg.Search.SemanticConfig); name != "" {
		semantic = name
		schema.Semantic[0].Name = name
	}
	idx, err := search.NewIndex(schema,
		search.WithAlpha(cfg.Search.Alpha),
		search.WithLogger(log),
		search.WithObserver(e.asyncObs),
	)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.index = idx
	e.closers = append(e.closers, idx.Close)

	deps := builtin.Deps{
		StockDataPath: cfg.Data.StockCSV,
		Searcher:      idx,
		Embedder:      e.embedder,
		Recipes:       builtin.RecipeOptions{K: cfg.Search.K, SemanticConfig: semantic},
		Now:           opts.Now,
	}
	selected := builtin.All(deps)
	if len(cfg.Conversation.Tools) > 0 {
		selected = builtin.Select(deps, cfg.Conversation.Tools...)
	}
	reg, err := tools.NewRegistry(append(selected, opts.Tools...)...)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.registry = reg

	e.mode, _ = conversation.ParseMode(cfg.Conversation.Mode)
	e.policy = llm.ParseToolChoice(cfg.Conversation.ToolChoice)
	driverOpts := []conversation.Option{
		conversation.WithMaxIterations(cfg.Conversation.MaxIterations),
		conversation.WithToolTimeout(time.Duration(cfg.Conversation.ToolTimeoutMS) * time.Millisecond),
		conversation.WithObserver(e.asyncObs),
		conversation.WithLogger(log),
		conversation.WithListener(opts.Listener),
	}
	if cfg.Conversation.Temperature != nil {
		driverOpts = append(driverOpts, conversation.WithTemperature(*cfg.Conversation.Temperature))
	}
	e.driver = conversation.NewDriver(e.gateway, driverOpts...)

	log.Info("resep_init",
		"environment", cfg.Environment,
		"llm_provider", e.gateway.Name(),
		"embedding_provider", cfg.Vendors.Embedding.Provider,
		"mode", string(e.mode),
		"tool_choice", e.policy.String(),
		"tools", strings.Join(reg.Names(), ","),
	)
	return e, nil
}

func (e *Engine) buildObservers(extra metrics.Observer) metrics.Observer {
	list := []metrics.Observer{
		observers.NewLoggerObserver(e.log),
		observers.NewLatencyObserver(e.log),
	}
	if dir := strings.TrimSpace(e.cfg.Observability.ArtifactsDir); dir != "" {
		if days := e.cfg.Observability.RetentionDays; days > 0 {
			if n, err := observers.PurgeArtifacts(dir, time.Duration(days)*24*time.Hour, time.Now()); err != nil {
				e.log.Warn("artifact_purge_failed", "dir", dir, "error", err)
			} else if n > 0 {
				e.log.Info("artifacts_purged", "dir", dir, "removed", n)
			}
		}
		timeline := observers.NewTimelineObserver(dir)
		usage := observers.NewUsageObserver(dir)
		list = append(list, timeline, usage)
		e.closers = append(e.closers, timeline.Close, usage.Close)
	}
	if extra != nil {
		list = append(list, extra)
	}
	return observers.NewMultiObserver(list...)
}

// wrapGateway puts retries outside the breaker so an open breaker stops
// retrying immediately.
func (e *Engine) wrapGateway(gw llm.Gateway) llm.Gateway {
	if breaker := e.cfg.Breaker(); breaker != nil {
		cb := llm.NewCircuitBreakerGateway(gw, breaker)
		cb.SetObserver(e.asyncObs)
		gw = cb
	}
	retry := llm.NewRetryGateway(gw, e.cfg.RetryPolicy())
	retry.SetObserver(e.asyncObs)
	return retry
}

// Start loads the recipe file into the index when search.load_on_start is
// set and the file exists.
func (e *Engine) Start(ctx context.Context) error {
	if !e.cfg.Search.LoadOnStart || e.cfg.Data.RecipesPath == "" {
		return nil
	}
	if _, err := os.Stat(e.cfg.Data.RecipesPath); errors.Is(err, os.ErrNotExist) {
		e.log.Warn("recipes_file_missing", "path", e.cfg.Data.RecipesPath)
		return nil
	}
	_, err := e.LoadRecipes(ctx, e.cfg.Data.RecipesPath, nil)
	return err
}

// LoadRecipes resets the index and loads path. progress, if set, sees the
// size of every uploaded batch.
func (e *Engine) LoadRecipes(ctx context.Context, path string, progress func(int)) (ingest.Stats, error) {
	opts := []ingest.Option{
		ingest.WithBatchSize(e.cfg.Search.BatchSize),
		ingest.WithLogger(e.log),
	}
	if progress != nil {
		opts = append(opts, ingest.WithProgress(progress))
	}
	return ingest.NewLoader(e.index, e.embedder, opts...).LoadFile(ctx, path)
}

// NewConversation starts a conversation seeded with the configured system prompt.
func (e *Engine) NewConversation() *conversation.Conversation {
	if prompt := strings.TrimSpace(e.cfg.Conversation.SystemPrompt); prompt != "" {
		return conversation.New(llm.SystemMessage(prompt))
	}
	return conversation.New()
}

// Chat appends a user turn, trims old history and runs the configured loop.
// A direct answer is appended to conv as well.
func (e *Engine) Chat(ctx context.Context, conv *conversation.Conversation, text string) (llm.Response, error) {
	conv.Append(llm.UserMessage(text))
	if dropped := conv.Prune(e.cfg.Conversation.MaxHistory); dropped > 0 {
		e.log.Debug("history_pruned", "dropped", dropped, "session_id", conversation.SessionID(ctx))
	}
	resp, err := e.driver.RunWithMode(ctx, e.mode, conv, nil, e.registry, e.policy)
	if err == nil && resp.FunctionCall() == nil && resp.Message.Content != "" {
		conv.Append(llm.AssistantMessage(resp.Message.Content))
	}
	return resp, err
}

func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) Logger() *slog.Logger { return e.log }
func (e *Engine) Gateway() llm.Gateway { return e.gateway }
func (e *Engine) Embedder() search.Embedder { return e.embedder }
func (e *Engine) Index() *search.Index { return e.index }
func (e *Engine) Registry() *tools.Registry { return e.registry }
func (e *Engine) Driver() *conversation.Driver { return e.driver }
func (e *Engine) Mode() conversation.Mode { return e.mode }
func (e *Engine) ToolChoice() llm.ToolChoice { return e.policy }
func (e *Engine) Observer() metrics.Observer { return e.asyncObs }

// Health reports whether the index is still usable.
func (e *Engine) Health() error {
	if e.index == nil {
		return errors.New("engine not initialized")
	}
	_, err := e.index.Count()
	return err
}

// Close flushes metrics and releases the index. Safe to call more than once.
func (e *Engine) Close() error {
	var errs error
	if e.asyncObs != nil {
		errs = e.asyncObs.Drain()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = errors.Join(errs, e.closers[i]())
	}
	e.closers = nil
	return errs
}

// Drain lets the engine plug into runner.Drainer.
func (e *Engine) Drain() error { return e.Close() }
