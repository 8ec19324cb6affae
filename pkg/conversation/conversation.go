package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/harunnryd/resep/pkg/llm"
)

// Conversation is the ordered message log of one chat. A run of the Driver
// appends to it; callers append user turns between runs.
type Conversation struct {
	mu       sync.Mutex
	messages []llm.Message
}

func New(msgs ...llm.Message) *Conversation {
	return &Conversation{messages: llm.CloneMessages(msgs)}
}

func (c *Conversation) Append(msgs ...llm.Message) {
	c.mu.Lock()
	c.messages = append(c.messages, llm.CloneMessages(msgs)...)
	c.mu.Unlock()
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return llm.CloneMessages(c.messages)
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) Last() (llm.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return llm.Message{}, false
	}
	return llm.CloneMessages(c.messages[len(c.messages)-1:])[0], true
}

// Validate checks that every function result directly follows the assistant
// message that requested it.
func (c *Conversation) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return validatePairs(c.messages)
}

func validatePairs(msgs []llm.Message) error {
	for i, m := range msgs {
		if m.Role != llm.RoleFunction {
			continue
		}
		if i == 0 {
			return fmt.Errorf("message 0: function result %s has no preceding request", m.Name)
		}
		prev := msgs[i-1]
		if !prev.HasFunctionCall() {
			return fmt.Errorf("message %d: function result %s does not follow a function call", i, m.Name)
		}
		if prev.FunctionCall.Name != m.Name {
			return fmt.Errorf("message %d: function result %s follows a call to %s", i, m.Name, prev.FunctionCall.Name)
		}
	}
	return nil
}

// Prune drops the oldest non-system messages until at most maxHistory remain,
// never splitting a request from its result. It returns how many were dropped.
func (c *Conversation) Prune(maxHistory int) int {
	if maxHistory <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var nonSystem []int
	for i, m := range c.messages {
		if !strings.EqualFold(string(m.Role), string(llm.RoleSystem)) {
			nonSystem = append(nonSystem, i)
		}
	}
	if len(nonSystem) <= maxHistory {
		return 0
	}
	toDrop := len(nonSystem) - maxHistory
	// a result left at the front would lose its request
	for toDrop < len(nonSystem) && c.messages[nonSystem[toDrop]].Role == llm.RoleFunction {
		toDrop++
	}
	drop := make(map[int]struct{}, toDrop)
	for _, idx := range nonSystem[:toDrop] {
		drop[idx] = struct{}{}
	}
	kept := make([]llm.Message, 0, len(c.messages)-toDrop)
	for i, m := range c.messages {
		if _, ok := drop[i]; !ok {
			kept = append(kept, m)
		}
	}
	c.messages = kept
	return toDrop
}
