// Package mcpserver exposes a tool registry over the Model Context Protocol,
// so the same handlers the conversation loop dispatches to can be called by
// any MCP client.
package mcpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/logging"
	"github.com/harunnryd/resep/pkg/metrics"
	"github.com/harunnryd/resep/pkg/tools"
)

const (
	DefaultName    = "resep"
	DefaultVersion = "0.1.0"
)

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = logging.NewComponentLogger(l, "mcp") }
}

func WithObserver(obs metrics.Observer) Option {
	return func(s *Server) { s.obs = metrics.OrNoop(obs) }
}

func WithImplementation(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// Server wraps an mcp.Server whose tools are backed by a Registry.
type Server struct {
	reg     *tools.Registry
	mcp     *mcp.Server
	log     *slog.Logger
	obs     metrics.Observer
	name    string
	version string
}

func New(reg *tools.Registry, opts ...Option) *Server {
	s := &Server{
		reg:     reg,
		log:     logging.NewComponentLogger(slog.Default(), "mcp"),
		obs:     metrics.NoopObserver{},
		name:    DefaultName,
		version: DefaultVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: s.name, Version: s.version},
		&mcp.ServerOptions{Logger: s.log},
	)
	for _, sig := range reg.Signatures() {
		s.mcp.AddTool(&mcp.Tool{
			Name:        sig.Name,
			Description: sig.Description,
			InputSchema: sig.Schema(),
		}, s.handle)
	}
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

func (s *Server) handle(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.Params.Name
	args := strings.TrimSpace(string(req.Params.Arguments))
	if args == "" || args == "null" {
		args = "{}"
	}

	start := time.Now()
	out, err := s.reg.Call(ctx, name, args)
	tags := map[string]string{"tool": name, "transport": "mcp"}
	metrics.Record(s.obs, metrics.EventToolCall, float64(time.Since(start).Milliseconds()), tags)
	if err != nil {
		tags["reason"] = string(errorsx.Reason(err))
		metrics.Record(s.obs, metrics.EventToolError, 1, tags)
		s.log.Warn("mcp_tool_failed", "tool", name, "reason", errorsx.Reason(err))
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: errorsx.Text(err)}},
			IsError: true,
		}, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out}},
	}, nil
}

// Connect attaches the server to an arbitrary transport and returns the session.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// ServeStdio runs the server over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.log.Info("mcp_stdio_started", "tools", s.reg.Len())
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}
