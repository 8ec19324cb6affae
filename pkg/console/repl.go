package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/harunnryd/resep/pkg/conversation"
	"github.com/harunnryd/resep/pkg/llm"
)

// Chatter is the slice of app.Engine the REPL needs.
type Chatter interface {
	NewConversation() *conversation.Conversation
	Chat(ctx context.Context, conv *conversation.Conversation, text string) (llm.Response, error)
}

// LineReader is satisfied by *readline.Instance.
type LineReader interface {
	Readline() (string, error)
}

const (
	CmdExit    = "/exit"
	CmdReset   = "/reset"
	CmdHistory = "/history"
)

// NewPrompt opens a readline instance that persists history to historyFile.
func NewPrompt(historyFile string) (*readline.Instance, error) {
	if historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(historyFile), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            color.GreenString("> "),
		HistoryFile:       historyFile,
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         CmdExit,
	})
	if err != nil {
		return nil, fmt.Errorf("create readline: %w", err)
	}
	return rl, nil
}

// Interactive reports whether f is a terminal, i.e. whether a readline
// prompt makes sense.
func Interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// LineScanner reads lines from a pipe or file when no terminal is attached.
type LineScanner struct {
	sc *bufio.Scanner
}

func NewLineScanner(r io.Reader) *LineScanner {
	return &LineScanner{sc: bufio.NewScanner(r)}
}

func (l *LineScanner) Readline() (string, error) {
	if l.sc.Scan() {
		return l.sc.Text(), nil
	}
	if err := l.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func DefaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".resep_history")
}

// REPL reads lines until EOF, interrupt or /exit and chats each one on a
// single conversation. Run errors are printed and the loop continues.
func (p *Printer) REPL(ctx context.Context, in LineReader, chat Chatter) error {
	conv := chat.NewConversation()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case CmdExit:
			return nil
		case CmdReset:
			conv = chat.NewConversation()
			p.Step("conversation reset")
			continue
		case CmdHistory:
			p.Messages(conv.Messages())
			continue
		}
		resp, err := chat.Chat(ctx, conv, line)
		p.Turn(conv.Messages())
		if err != nil {
			p.Error(err)
			continue
		}
		p.Reply(resp.Message.Content)
	}
}
