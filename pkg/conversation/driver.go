package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/llm"
	"github.com/harunnryd/resep/pkg/logging"
	"github.com/harunnryd/resep/pkg/metrics"
	"github.com/harunnryd/resep/pkg/redact"
	"github.com/harunnryd/resep/pkg/resilience"
	"github.com/harunnryd/resep/pkg/tools"
)

// Mode selects how many tool rounds a run allows.
type Mode string

const (
	// ModeMultiTurn keeps dispatching tools until the model answers directly.
	ModeMultiTurn Mode = "multi_turn"
	// ModeSingleTurn dispatches at most one tool, then asks once more without
	// tools and returns that answer as is.
	ModeSingleTurn Mode = "single_turn"
)

// ParseMode accepts "multi_turn", "single_turn" and the short forms "multi" and "single".
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "multi", "multi_turn", "multiturn":
		return ModeMultiTurn, nil
	case "single", "single_turn", "singleturn":
		return ModeSingleTurn, nil
	}
	return "", fmt.Errorf("unknown conversation mode %q", raw)
}

// ErrMaxIterations is returned when the model keeps requesting tools past
// the configured limit.
var ErrMaxIterations = errors.New("conversation: too many tool rounds")

// DefaultMaxIterations bounds multi-turn runs.
const DefaultMaxIterations = 10

const logPayloadLimit = 512

// Driver runs the function-calling loop against one model gateway. A Driver
// holds no per-conversation state and may be shared.
type Driver struct {
	gateway       llm.Gateway
	temperature   *float64
	maxIterations int
	toolTimeout   time.Duration
	listeners     []StateListener
	obs           metrics.Observer
	logger        *slog.Logger
}

type Option func(*Driver)

func WithTemperature(v float64) Option {
	return func(d *Driver) { d.temperature = llm.Temperature(v) }
}

// WithMaxIterations caps tool rounds per run; n <= 0 removes the cap.
func WithMaxIterations(n int) Option {
	return func(d *Driver) { d.maxIterations = n }
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.toolTimeout = timeout }
}

func WithListener(l StateListener) Option {
	return func(d *Driver) {
		if l != nil {
			d.listeners = append(d.listeners, l)
		}
	}
}

func WithObserver(obs metrics.Observer) Option {
	return func(d *Driver) { d.obs = metrics.OrNoop(obs) }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = logging.NewComponentLogger(l, "conversation") }
}

func NewDriver(gateway llm.Gateway, opts ...Option) *Driver {
	d := &Driver{
		gateway:       gateway,
		maxIterations: DefaultMaxIterations,
		obs:           metrics.NoopObserver{},
		logger:        logging.NewComponentLogger(nil, "conversation"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunWithMode dispatches to Run or RunOnce.
func (d *Driver) RunWithMode(ctx context.Context, mode Mode, conv *Conversation, catalog []llm.Tool, registry *tools.Registry, policy llm.ToolChoice) (llm.Response, error) {
	if mode == ModeSingleTurn {
		return d.RunOnce(ctx, conv, catalog, registry, policy)
	}
	return d.Run(ctx, conv, catalog, registry, policy)
}

// Run is the multi-turn loop: while the model requests a tool, dispatch it,
// append the request and result, and ask again with the same catalog. A
// forced policy applies to the first round only; later rounds use auto. The
// first direct answer is returned. A nil catalog means the registry's own
// catalog.
func (d *Driver) Run(ctx context.Context, conv *Conversation, catalog []llm.Tool, registry *tools.Registry, policy llm.ToolChoice) (llm.Response, error) {
	if catalog == nil {
		catalog = registry.Catalog()
	}
	sm := d.newRun(ctx, ModeMultiTurn)
	for {
		resp, err := d.generate(ctx, ModeMultiTurn, d.request(conv, catalog, policy))
		if err != nil {
			return llm.Response{}, err
		}
		call := resp.FunctionCall()
		if call == nil {
			if err := sm.Transition(StateDone, "model answered"); err != nil {
				return resp, err
			}
			return resp, nil
		}
		if d.maxIterations > 0 && sm.iteration >= d.maxIterations {
			d.logger.Warn("max_iterations_reached", "limit", d.maxIterations, "tool", call.Name)
			return resp, errorsx.Wrap(fmt.Errorf("%w (limit %d)", ErrMaxIterations, d.maxIterations), errorsx.ReasonMaxIterations)
		}
		if err := d.dispatchRound(ctx, sm, conv, registry, *call); err != nil {
			return resp, err
		}
		// a forced call would be forced again every round
		if policy.Mode == llm.ToolChoiceModeForced {
			policy = llm.ToolChoiceAuto()
		}
		if err := sm.Transition(StateAwaitingModel, "resubmitting with tool result"); err != nil {
			return resp, err
		}
	}
}

// RunOnce is the single-turn variant: at most one tool is dispatched, then
// the model is asked again without tools and that response is returned
// unconditionally, even if it carries another tool request.
func (d *Driver) RunOnce(ctx context.Context, conv *Conversation, catalog []llm.Tool, registry *tools.Registry, policy llm.ToolChoice) (llm.Response, error) {
	if catalog == nil {
		catalog = registry.Catalog()
	}
	sm := d.newRun(ctx, ModeSingleTurn)
	resp, err := d.generate(ctx, ModeSingleTurn, d.request(conv, catalog, policy))
	if err != nil {
		return llm.Response{}, err
	}
	call := resp.FunctionCall()
	if call == nil {
		if err := sm.Transition(StateDone, "model answered"); err != nil {
			return resp, err
		}
		return resp, nil
	}
	if err := d.dispatchRound(ctx, sm, conv, registry, *call); err != nil {
		return resp, err
	}
	final, err := d.generate(ctx, ModeSingleTurn, d.request(conv, nil, llm.ToolChoice{}))
	if err != nil {
		return llm.Response{}, err
	}
	if err := sm.Transition(StateDone, "final response"); err != nil {
		return final, err
	}
	return final, nil
}

func (d *Driver) newRun(ctx context.Context, mode Mode) *stateMachine {
	listeners := append([]StateListener{StateListenerFunc(func(ev StateChange) {
		metrics.Record(d.obs, metrics.EventStateChange, float64(ev.Iteration), sessionTags(ctx, map[string]string{
			"from": ev.FromState.String(),
			"to":   ev.ToState.String(),
			"mode": string(mode),
		}))
	})}, d.listeners...)
	return newStateMachine(mode, listeners)
}

func (d *Driver) request(conv *Conversation, catalog []llm.Tool, policy llm.ToolChoice) llm.Request {
	return llm.Request{
		Messages:    conv.Messages(),
		Tools:       catalog,
		ToolChoice:  policy,
		Temperature: d.temperature,
	}
}

func (d *Driver) generate(ctx context.Context, mode Mode, req llm.Request) (llm.Response, error) {
	start := time.Now()
	resp, err := d.gateway.Generate(ctx, req)
	tags := sessionTags(ctx, map[string]string{"provider": d.gateway.Name(), "mode": string(mode)})
	if err != nil {
		reason := errorsx.ReasonModelGateway
		if resilience.IsRateLimit(err) {
			reason = errorsx.ReasonModelRateLimit
		}
		err = errorsx.Wrap(fmt.Errorf("model gateway %s: %w", d.gateway.Name(), err), reason)
		tags["reason"] = string(errorsx.Reason(err))
		metrics.Record(d.obs, metrics.EventModelError, 1, tags)
		d.logger.Error("model_generate_error", "provider", d.gateway.Name(), "reason_code", string(errorsx.Reason(err)), "error", err)
		return llm.Response{}, err
	}
	d.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventModelCall,
		Time:  time.Now(),
		Value: float64(time.Since(start).Milliseconds()),
		Tags:  tags,
		Fields: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	})
	d.logger.Debug("model_responded",
		"provider", d.gateway.Name(),
		"finish_reason", string(resp.FinishReason),
		"tools_offered", len(req.Tools),
		"messages", len(req.Messages),
	)
	return resp, nil
}

// dispatchRound runs ToolRequested -> ToolExecuted around one dispatch.
func (d *Driver) dispatchRound(ctx context.Context, sm *stateMachine, conv *Conversation, registry *tools.Registry, call llm.FunctionCall) error {
	if err := sm.Transition(StateToolRequested, "model requested "+call.Name); err != nil {
		return err
	}
	d.dispatch(ctx, conv, registry, call)
	return sm.Transition(StateToolExecuted, call.Name+" finished")
}

// dispatch executes one requested call and appends the request/result pair.
// Failures never escape: they become the result text, prefixed with their
// reason code.
func (d *Driver) dispatch(ctx context.Context, conv *Conversation, registry *tools.Registry, call llm.FunctionCall) {
	conv.Append(llm.FunctionCallMessage(call))

	toolCtx := ctx
	if d.toolTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, d.toolTimeout)
		defer cancel()
	}
	start := time.Now()
	out, err := registry.Call(toolCtx, call.Name, call.Arguments)
	latency := float64(time.Since(start).Milliseconds())
	tags := sessionTags(ctx, map[string]string{"tool": call.Name})
	if err != nil {
		out = errorsx.Text(err)
		tags["reason"] = string(errorsx.Reason(err))
		metrics.Record(d.obs, metrics.EventToolError, latency, tags)
		d.logger.Warn("tool_dispatch_failed",
			"tool", call.Name,
			"call_id", call.ID,
			"reason_code", string(errorsx.Reason(err)),
			"arguments", redact.Truncate(call.Arguments, logPayloadLimit),
			"error", redact.Text(err.Error()),
		)
	} else {
		d.logger.Info("tool_dispatched",
			"tool", call.Name,
			"call_id", call.ID,
			"arguments", redact.Truncate(call.Arguments, logPayloadLimit),
			"result", redact.Truncate(out, logPayloadLimit),
			"latency_ms", latency,
		)
	}
	metrics.Record(d.obs, metrics.EventToolCall, latency, tags)

	conv.Append(llm.FunctionResultMessage(call.Name, call.ID, out))
}
