package llm

import "strings"

// Role tags a message in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// FunctionCall is a tool invocation requested by the model. Arguments is the
// raw JSON text exactly as the model produced it.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of a conversation. Content is empty for an assistant
// message that only carries a FunctionCall. Name is set on function results.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content,omitempty"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// FunctionCallMessage is the assistant turn that asked for call.
func FunctionCallMessage(call FunctionCall) Message {
	c := call
	return Message{Role: RoleAssistant, FunctionCall: &c}
}

// FunctionResultMessage carries a tool's output (or error text) back to the model.
// callID is optional and only used by providers that correlate results by ID.
func FunctionResultMessage(name, callID, content string) Message {
	m := Message{Role: RoleFunction, Name: name, Content: content}
	if callID != "" {
		m.FunctionCall = &FunctionCall{ID: callID, Name: name}
	}
	return m
}

// HasFunctionCall reports whether an assistant message requests a tool.
func (m Message) HasFunctionCall() bool {
	return m.Role == RoleAssistant && m.FunctionCall != nil && strings.TrimSpace(m.FunctionCall.Name) != ""
}

// CallID returns the correlation ID of a function call or result, if any.
func (m Message) CallID() string {
	if m.FunctionCall == nil {
		return ""
	}
	return m.FunctionCall.ID
}

// CloneMessages copies a message slice including nested function calls.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m
		if m.FunctionCall != nil {
			fc := *m.FunctionCall
			out[i].FunctionCall = &fc
		}
	}
	return out
}
