// Package console renders conversation runs for terminal demos.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/harunnryd/resep/pkg/conversation"
	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/llm"
)

var (
	stepColor    = color.New(color.FgCyan)
	toolColor    = color.New(color.FgGreen)
	resultColor  = color.New(color.FgMagenta)
	errorColor   = color.New(color.FgRed)
	messageColor = color.New(color.FgBlue)
	stateColor   = color.New(color.FgYellow)
)

type Printer struct {
	w          io.Writer
	showStates bool
}

type Option func(*Printer)

// WithStates prints every state transition of a run.
func WithStates() Option {
	return func(p *Printer) { p.showStates = true }
}

// New writes to w, or stdout when w is nil.
func New(w io.Writer, opts ...Option) *Printer {
	if w == nil {
		w = os.Stdout
	}
	p := &Printer{w: w}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) Step(format string, args ...any) {
	stepColor.Fprintf(p.w, "== "+format+" ==\n", args...)
}

func (p *Printer) ToolCall(call llm.FunctionCall) {
	toolColor.Fprintf(p.w, "-> %s(%s)\n", call.Name, call.Arguments)
}

func (p *Printer) ToolResult(name, content string) {
	resultColor.Fprintf(p.w, "<- %s: %s\n", name, content)
}

func (p *Printer) Reply(text string) {
	messageColor.Fprintln(p.w, text)
}

func (p *Printer) Error(err error) {
	if err == nil {
		return
	}
	errorColor.Fprintf(p.w, "error [%s]: %v\n", errorsx.Reason(err), err)
}

// Response prints whatever the model returned: the requested call, the text, or both.
func (p *Printer) Response(resp llm.Response) {
	if call := resp.FunctionCall(); call != nil {
		p.ToolCall(*call)
	}
	if resp.Message.Content != "" {
		p.Reply(resp.Message.Content)
	}
	if resp.Usage.TotalTokens > 0 {
		fmt.Fprintf(p.w, "(tokens: %d prompt, %d completion)\n", resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
}

// Turn prints the tool traffic that followed the latest user message.
func (p *Printer) Turn(msgs []llm.Message) {
	start := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			start = i + 1
			break
		}
	}
	for _, m := range msgs[start:] {
		switch {
		case m.HasFunctionCall():
			p.ToolCall(*m.FunctionCall)
		case m.Role == llm.RoleFunction:
			p.ToolResult(m.Name, m.Content)
		}
	}
}

// Messages dumps a conversation one JSON object per line.
func (p *Printer) Messages(msgs []llm.Message) {
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			fmt.Fprintf(p.w, "%+v\n", m)
			continue
		}
		fmt.Fprintln(p.w, string(raw))
	}
}

// OnStateChange makes Printer a conversation.StateListener.
func (p *Printer) OnStateChange(ev conversation.StateChange) {
	if !p.showStates {
		return
	}
	line := fmt.Sprintf("   [%s] %s -> %s", ev.Mode, ev.FromState, ev.ToState)
	if r := strings.TrimSpace(ev.Reason); r != "" {
		line += " (" + r + ")"
	}
	stateColor.Fprintln(p.w, line)
}
