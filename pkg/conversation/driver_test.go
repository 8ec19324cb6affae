package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/llm"
	"github.com/harunnryd/resep/pkg/metrics"
	"github.com/harunnryd/resep/pkg/providers/mock"
	"github.com/harunnryd/resep/pkg/resilience"
	"github.com/harunnryd/resep/pkg/tools"
)

type invocationLog struct {
	mu    sync.Mutex
	names []string
}

func (l *invocationLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *invocationLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func recordingTool(log *invocationLog, name, out string, params ...tools.Param) tools.Tool {
	return tools.New(tools.Signature{Name: name, Params: params}, func(context.Context, map[string]any) (string, error) {
		log.add(name)
		return out, nil
	})
}

type stateRecorder struct {
	changes []StateChange
}

func (r *stateRecorder) OnStateChange(ev StateChange) { r.changes = append(r.changes, ev) }

func (r *stateRecorder) path() string {
	if len(r.changes) == 0 {
		return ""
	}
	parts := []string{r.changes[0].FromState.String()}
	for _, c := range r.changes {
		parts = append(parts, c.ToState.String())
	}
	return strings.Join(parts, ">")
}

func TestRunMultiTurnDispatchesInOrder(t *testing.T) {
	log := &invocationLog{}
	reg := tools.MustRegistry(recordingTool(log, "A", "a-out"), recordingTool(log, "B", "b-out"))
	gw := mock.NewScriptedGateway(mock.Call("A", `{}`), mock.Call("B", `{}`), mock.Reply("answer"))
	states := &stateRecorder{}
	d := NewDriver(gw, WithListener(states), WithTemperature(0))
	conv := New(llm.UserMessage("go"))

	resp, err := d.Run(context.Background(), conv, nil, reg, llm.ToolChoiceAuto())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.Message.Content != "answer" {
		t.Fatalf("unexpected answer %q", resp.Message.Content)
	}
	if got := strings.Join(log.list(), ","); got != "A,B" {
		t.Fatalf("expected A then B, got %s", got)
	}
	msgs := conv.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected user + 2 pairs, got %d messages", len(msgs))
	}
	if msgs[1].FunctionCall.Name != "A" || msgs[1].Content != "" || msgs[2].Role != llm.RoleFunction || msgs[2].Content != "a-out" {
		t.Fatalf("unexpected first pair %+v %+v", msgs[1], msgs[2])
	}
	if msgs[3].FunctionCall.Name != "B" || msgs[4].Name != "B" || msgs[4].Content != "b-out" {
		t.Fatalf("unexpected second pair %+v %+v", msgs[3], msgs[4])
	}
	if err := conv.Validate(); err != nil {
		t.Fatalf("pairing: %v", err)
	}

	reqs := gw.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 gateway calls, got %d", len(reqs))
	}
	for i, r := range reqs {
		if len(r.Tools) != 2 || r.ToolChoice.Mode != llm.ToolChoiceModeAuto {
			t.Fatalf("request %d lost catalog or policy: %+v", i, r)
		}
		if r.Temperature == nil || *r.Temperature != 0 {
			t.Fatalf("request %d lost temperature", i)
		}
	}
	want := "AWAITING_MODEL>TOOL_REQUESTED>TOOL_EXECUTED>AWAITING_MODEL>TOOL_REQUESTED>TOOL_EXECUTED>AWAITING_MODEL>DONE"
	if got := states.path(); got != want {
		t.Fatalf("unexpected state path\n got %s\nwant %s", got, want)
	}
}

func TestRunSingleTurnReturnsSecondResponseUnconditionally(t *testing.T) {
	log := &invocationLog{}
	reg := tools.MustRegistry(recordingTool(log, "A", "a-out"))
	gw := mock.NewScriptedGateway(mock.Call("A", `{}`), mock.Call("A", `{}`))
	states := &stateRecorder{}
	conv := New(llm.UserMessage("go"))

	resp, err := NewDriver(gw, WithListener(states)).RunOnce(context.Background(), conv, nil, reg, llm.ToolChoiceAuto())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if resp.FunctionCall() == nil {
		t.Fatalf("second response must be returned as is")
	}
	if n := len(log.list()); n != 1 {
		t.Fatalf("expected exactly one invocation, got %d", n)
	}
	reqs := gw.Requests()
	if len(reqs) != 2 || len(reqs[1].Tools) != 0 {
		t.Fatalf("second request must omit tools: %+v", reqs)
	}
	if conv.Len() != 3 {
		t.Fatalf("expected one pair appended, got %d messages", conv.Len())
	}
	if got := states.path(); got != "AWAITING_MODEL>TOOL_REQUESTED>TOOL_EXECUTED>DONE" {
		t.Fatalf("unexpected state path %s", got)
	}
}

func TestDirectAnswerLeavesConversationUntouched(t *testing.T) {
	for _, mode := range []Mode{ModeMultiTurn, ModeSingleTurn} {
		gw := mock.NewScriptedGateway(mock.Reply("hello"))
		conv := New(llm.UserMessage("hi"))
		resp, err := NewDriver(gw).RunWithMode(context.Background(), mode, conv, nil, tools.MustRegistry(), llm.ToolChoiceNone())
		if err != nil || resp.Message.Content != "hello" {
			t.Fatalf("%s: unexpected %+v (%v)", mode, resp, err)
		}
		if conv.Len() != 1 || len(gw.Requests()) != 1 {
			t.Fatalf("%s: direct answer must not append or resubmit", mode)
		}
	}
}

func TestLocalFailuresBecomeResults(t *testing.T) {
	boom := tools.New(tools.Signature{Name: "boom"}, func(context.Context, map[string]any) (string, error) {
		return "", errors.New("exploded")
	})
	panicky := tools.New(tools.Signature{Name: "panicky"}, func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	})
	strict := tools.New(tools.Signature{Name: "strict", Params: []tools.Param{{Name: "x", Required: true}}}, func(context.Context, map[string]any) (string, error) {
		return "never", nil
	})
	reg := tools.MustRegistry(boom, panicky, strict)

	cases := []struct {
		call   mock.Step
		prefix string
	}{
		{mock.Call("nope", `{}`), "unknown_tool: Function nope does not exist"},
		{mock.Call("strict", `{"x": `), "malformed_arguments:"},
		{mock.Call("strict", `{}`), "argument_mismatch: Invalid number of arguments for function: strict"},
		{mock.Call("boom", `{}`), "tool_execution:"},
		{mock.Call("panicky", `{}`), "tool_execution:"},
	}
	for _, tc := range cases {
		mem := metrics.NewMemoryObserver()
		gw := mock.NewScriptedGateway(tc.call, mock.Reply("recovered"))
		conv := New(llm.UserMessage("go"))
		resp, err := NewDriver(gw, WithObserver(mem)).Run(context.Background(), conv, nil, reg, llm.ToolChoiceAuto())
		if err != nil {
			t.Fatalf("%s: local failure must not abort: %v", tc.prefix, err)
		}
		if resp.Message.Content != "recovered" {
			t.Fatalf("%s: loop did not proceed", tc.prefix)
		}
		last := conv.Messages()[2]
		if last.Role != llm.RoleFunction || !strings.HasPrefix(last.Content, tc.prefix) {
			t.Fatalf("expected result starting %q, got %q", tc.prefix, last.Content)
		}
		if mem.Count(metrics.EventToolError) != 1 {
			t.Fatalf("%s: expected tool_error event", tc.prefix)
		}
	}
}

func TestGatewayErrorPropagates(t *testing.T) {
	gw := mock.NewScriptedGateway(mock.Fail(errors.New("503")))
	_, err := NewDriver(gw).Run(context.Background(), New(llm.UserMessage("hi")), nil, nil, llm.ToolChoiceAuto())
	if !errorsx.HasReason(err, errorsx.ReasonModelGateway) {
		t.Fatalf("expected model_gateway reason, got %v", err)
	}

	gw = mock.NewScriptedGateway(mock.Fail(resilience.RateLimitError{Provider: "mock"}))
	_, err = NewDriver(gw).Run(context.Background(), New(llm.UserMessage("hi")), nil, nil, llm.ToolChoiceAuto())
	if !errorsx.HasReason(err, errorsx.ReasonModelRateLimit) {
		t.Fatalf("expected model_rate_limit reason, got %v", err)
	}
}

func TestSecondCallFailureInSingleTurn(t *testing.T) {
	reg := tools.MustRegistry(recordingTool(&invocationLog{}, "A", "ok"))
	gw := mock.NewScriptedGateway(mock.Call("A", `{}`), mock.Fail(errors.New("timeout")))
	conv := New(llm.UserMessage("go"))
	_, err := NewDriver(gw).RunOnce(context.Background(), conv, nil, reg, llm.ToolChoiceAuto())
	if !errorsx.HasReason(err, errorsx.ReasonModelGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if conv.Len() != 3 {
		t.Fatalf("pair appended before the failure must stay, got %d", conv.Len())
	}
}

func TestMaxIterations(t *testing.T) {
	log := &invocationLog{}
	reg := tools.MustRegistry(recordingTool(log, "A", "again"))
	gw := mock.NewScriptedGateway(mock.Call("A", `{}`), mock.Call("A", `{}`), mock.Call("A", `{}`))
	_, err := NewDriver(gw, WithMaxIterations(2)).Run(context.Background(), New(llm.UserMessage("loop")), nil, reg, llm.ToolChoiceAuto())
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("expected ErrMaxIterations, got %v", err)
	}
	if n := len(log.list()); n != 2 {
		t.Fatalf("expected 2 invocations before stopping, got %d", n)
	}
}

func TestForcedPolicyAndExplicitCatalog(t *testing.T) {
	reg := tools.MustRegistry(
		recordingTool(&invocationLog{}, "get_current_weather", "sunny"),
		recordingTool(&invocationLog{}, "calculator", "5"),
	)
	catalog := []llm.Tool{reg.Catalog()[0]}
	gw := mock.NewScriptedGateway(mock.Call("get_current_weather", `{}`), mock.Reply("It is sunny"))
	_, err := NewDriver(gw).Run(context.Background(), New(llm.UserMessage("weather?")), catalog, reg, llm.ToolChoiceForce("get_current_weather"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	reqs := gw.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	for _, r := range reqs {
		if len(r.Tools) != 1 || r.Tools[0].Name != "get_current_weather" {
			t.Fatalf("catalog changed between calls: %+v", r.Tools)
		}
	}
	if reqs[0].ToolChoice.Mode != llm.ToolChoiceModeForced || reqs[0].ToolChoice.Name != "get_current_weather" {
		t.Fatalf("first request should force the tool: %+v", reqs[0].ToolChoice)
	}
	if reqs[1].ToolChoice.Mode != llm.ToolChoiceModeAuto {
		t.Fatalf("resubmission should fall back to auto: %+v", reqs[1].ToolChoice)
	}
}

// forcingGateway calls the forced tool whenever a request forces one and
// answers otherwise.
type forcingGateway struct {
	calls int
}

func (g *forcingGateway) Name() string { return "forcing" }

func (g *forcingGateway) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	g.calls++
	if req.ToolChoice.Mode == llm.ToolChoiceModeForced {
		return mock.Call(req.ToolChoice.Name, `{}`).Response, nil
	}
	return mock.Reply("done").Response, nil
}

func TestForcedPolicyReachesAnswer(t *testing.T) {
	var log invocationLog
	reg := tools.MustRegistry(recordingTool(&log, "A", "ok"))
	gw := &forcingGateway{}
	resp, err := NewDriver(gw, WithMaxIterations(10)).Run(context.Background(), New(llm.UserMessage("go")), nil, reg, llm.ToolChoiceForce("A"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.Message.Content != "done" || gw.calls != 2 {
		t.Fatalf("expected answer after 2 calls, got %q after %d", resp.Message.Content, gw.calls)
	}
	if got := log.list(); len(got) != 1 {
		t.Fatalf("expected one dispatch, got %v", got)
	}
}

func TestNonePolicyKeptAcrossRounds(t *testing.T) {
	reg := tools.MustRegistry(recordingTool(&invocationLog{}, "A", "ok"))
	gw := mock.NewScriptedGateway(mock.Call("A", `{}`), mock.Reply("done"))
	if _, err := NewDriver(gw).Run(context.Background(), New(llm.UserMessage("go")), nil, reg, llm.ToolChoiceNone()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, r := range gw.Requests() {
		if r.ToolChoice.Mode != llm.ToolChoiceModeNone {
			t.Fatalf("none policy changed between calls: %+v", r.ToolChoice)
		}
	}
}

func TestToolTimeout(t *testing.T) {
	slow := tools.New(tools.Signature{Name: "slow"}, func(ctx context.Context, _ map[string]any) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	})
	gw := mock.NewScriptedGateway(mock.Call("slow", `{}`), mock.Reply("ok"))
	conv := New(llm.UserMessage("go"))
	_, err := NewDriver(gw, WithToolTimeout(10*time.Millisecond)).Run(context.Background(), conv, nil, tools.MustRegistry(slow), llm.ToolChoiceAuto())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := conv.Messages()[2].Content; !strings.Contains(got, "deadline exceeded") {
		t.Fatalf("expected timeout text, got %q", got)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeMultiTurn, "single": ModeSingleTurn, "MULTI_TURN": ModeMultiTurn} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseMode("forever"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
