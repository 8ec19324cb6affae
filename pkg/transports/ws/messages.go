package ws

const (
	InboundMessage = "message"
	InboundReset   = "reset"
)

// Inbound is what clients send: {"type": "message", "text": "..."} or
// {"type": "reset"}. A missing type means message.
type Inbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

const (
	EventSession    = "session"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventReply      = "reply"
	EventReset      = "reset"
	EventError      = "error"
)

// Event is what the server sends. Tool calls and results of a turn are
// streamed before its reply.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}
