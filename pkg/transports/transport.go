package transports

import (
	"context"
	"net/http"
)

// Transport is a network front end for the conversation engine.
// Implementations own their listener lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Mounter lets other handlers (the MCP endpoint) share a transport's listener.
type Mounter interface {
	Mount(path string, h http.Handler)
}

// ReadyReporter allows transports to expose readiness metadata (e.g. the listen address).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
