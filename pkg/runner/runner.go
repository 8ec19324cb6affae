// Package runner owns process lifecycle for long-running entry points:
// print the banner, start, wait for cancellation, then drain in order.
package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run on the runner goroutine. OnStart failing aborts Run.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func()
}

type Drainer interface {
	Drain() error
}

// DrainFunc adapts a function to Drainer.
type DrainFunc func() error

func (f DrainFunc) Drain() error { return f() }

// Sequence drains each step in order and joins their errors.
func Sequence(steps ...Drainer) Drainer {
	return DrainFunc(func() error {
		var errs []error
		for _, s := range steps {
			if s == nil {
				continue
			}
			if err := s.Drain(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

var Version = "dev"

// PrintBanner writes the startup banner. A nil writer means stdout.
func PrintBanner(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	tpl := "{{ .Title \"RESEP\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(w, true, true, bytes.NewBufferString(tpl))
}
