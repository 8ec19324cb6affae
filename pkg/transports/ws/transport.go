// Package ws serves the conversation loop over websockets. Every connection
// owns one conversation; messages on a connection are handled in order.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harunnryd/resep/pkg/conversation"
	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/llm"
	"github.com/harunnryd/resep/pkg/logging"
	"github.com/harunnryd/resep/pkg/transports"
)

// Chatter runs one user turn against a conversation.
type Chatter interface {
	NewConversation() *conversation.Conversation
	Chat(ctx context.Context, conv *conversation.Conversation, text string) (llm.Response, error)
}

type Config struct {
	ServerAddr     string   `mapstructure:"addr"`
	Path           string   `mapstructure:"ws_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadLimit      int64    `mapstructure:"read_limit"`
	WriteTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

type Transport struct {
	cfg      Config
	chat     Chatter
	log      *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	mux      *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	draining atomic.Bool
}

type Option func(*Transport)

func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.log = logging.NewComponentLogger(l, "ws") }
}

func New(cfg Config, chat Chatter, opts ...Option) *Transport {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		cfg:  cfg,
		chat: chat,
		log:  logging.NewComponentLogger(slog.Default(), "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		mux:      http.NewServeMux(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	for _, opt := range opts {
		opt(t)
	}
	t.mux.Handle(t.cfg.Path, t)
	t.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if t.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return t
}

func (t *Transport) Name() string { return "ws" }

// Mount serves another handler on the same listener, e.g. the MCP endpoint.
func (t *Transport) Mount(path string, h http.Handler) {
	t.mux.Handle(path, h)
}

// Handler returns the mux with the websocket endpoint and /health.
func (t *Transport) Handler() http.Handler { return t.mux }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{"addr": t.cfg.ServerAddr, "path": t.cfg.Path}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("ws_server_error", "error", err.Error())
		}
	}()
	t.log.Info("ws_server_started", "addr", t.cfg.ServerAddr, "path", t.cfg.Path)
	return nil
}

func (t *Transport) Stop() error {
	if !t.draining.CompareAndSwap(false, true) {
		return nil
	}
	t.cancel()
	var err error
	if t.server != nil {
		err = t.server.Close()
	}
	t.mu.Lock()
	for id, sess := range t.sessions {
		_ = sess.close()
		delete(t.sessions, id)
	}
	t.mu.Unlock()
	return err
}

// Sessions reports how many connections are open.
func (t *Transport) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// ServeHTTP upgrades the request and runs the session until the client
// disconnects or the transport stops.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(t.cfg.ReadLimit)

	sess := &session{
		id:           uuid.NewString(),
		conn:         conn,
		conv:         t.chat.NewConversation(),
		writeTimeout: t.cfg.WriteTimeout,
	}
	t.attach(sess)
	defer t.detach(sess)

	ctx := conversation.WithSession(t.ctx, sess.id)
	log := t.log.With("session_id", sess.id)
	log.Info("ws_session_started", "remote", r.RemoteAddr)
	if err := sess.write(Event{Type: EventSession, SessionID: sess.id}); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("ws_read_failed", "error", err)
			}
			break
		}
		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			_ = sess.write(Event{Type: EventError, Reason: "bad_request", Message: "message must be a JSON object"})
			continue
		}
		if err := t.handle(ctx, sess, in); err != nil {
			break
		}
	}
	log.Info("ws_session_ended", "messages", sess.conv.Len())
}

// handle returns an error only when the connection is no longer writable.
func (t *Transport) handle(ctx context.Context, sess *session, in Inbound) error {
	switch strings.ToLower(strings.TrimSpace(in.Type)) {
	case InboundReset:
		sess.conv = t.chat.NewConversation()
		return sess.write(Event{Type: EventReset, SessionID: sess.id})
	case InboundMessage, "":
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return sess.write(Event{Type: EventError, Reason: "bad_request", Message: "text is required"})
		}
		resp, err := t.chat.Chat(ctx, sess.conv, text)
		for _, m := range turnMessages(sess.conv.Messages()) {
			if ev, ok := toolEvent(m); ok {
				if werr := sess.write(ev); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			return sess.write(Event{Type: EventError, Reason: string(errorsx.Reason(err)), Message: err.Error()})
		}
		return sess.write(Event{Type: EventReply, Text: resp.Message.Content})
	default:
		return sess.write(Event{Type: EventError, Reason: "bad_request", Message: "unknown type " + in.Type})
	}
}

// turnMessages returns what followed the most recent user message.
func turnMessages(msgs []llm.Message) []llm.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i+1:]
		}
	}
	return nil
}

func toolEvent(m llm.Message) (Event, bool) {
	switch {
	case m.HasFunctionCall():
		return Event{Type: EventToolCall, Name: m.FunctionCall.Name, Arguments: m.FunctionCall.Arguments}, true
	case m.Role == llm.RoleFunction:
		return Event{Type: EventToolResult, Name: m.Name, Text: m.Content}, true
	}
	return Event{}, false
}

func (t *Transport) attach(sess *session) {
	t.mu.Lock()
	t.sessions[sess.id] = sess
	t.mu.Unlock()
}

func (t *Transport) detach(sess *session) {
	t.mu.Lock()
	delete(t.sessions, sess.id)
	t.mu.Unlock()
	_ = sess.close()
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	originHost := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		switch {
		case a == "":
		case strings.HasPrefix(a, "http://"), strings.HasPrefix(a, "https://"):
			if strings.EqualFold(a, origin) {
				return true
			}
		case strings.EqualFold(a, originHost):
			return true
		}
	}
	return false
}

type session struct {
	id           string
	conn         *websocket.Conn
	conv         *conversation.Conversation
	writeTimeout time.Duration
	mu           sync.Mutex
	closed       atomic.Bool
}

func (s *session) write(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(ev)
}

func (s *session) close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

var (
	_ transports.Transport     = (*Transport)(nil)
	_ transports.Mounter       = (*Transport)(nil)
	_ transports.ReadyReporter = (*Transport)(nil)
)
