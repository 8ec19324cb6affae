package conversation

import (
	"testing"

	"github.com/harunnryd/resep/pkg/llm"
)

func TestValidatePairs(t *testing.T) {
	call := llm.FunctionCallMessage(llm.FunctionCall{Name: "A", Arguments: "{}"})
	ok := New(llm.UserMessage("hi"), call, llm.FunctionResultMessage("A", "", "out"))
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid pair rejected: %v", err)
	}
	orphan := New(llm.UserMessage("hi"), llm.FunctionResultMessage("A", "", "out"))
	if err := orphan.Validate(); err == nil {
		t.Fatalf("orphan result accepted")
	}
	mismatch := New(call, llm.FunctionResultMessage("B", "", "out"))
	if err := mismatch.Validate(); err == nil {
		t.Fatalf("mismatched result accepted")
	}
}

func TestMessagesIsACopy(t *testing.T) {
	c := New(llm.FunctionCallMessage(llm.FunctionCall{Name: "A"}))
	msgs := c.Messages()
	msgs[0].FunctionCall.Name = "changed"
	if last, _ := c.Last(); last.FunctionCall.Name != "A" {
		t.Fatalf("conversation was mutated through a copy")
	}
}

func TestPruneKeepsPairsTogether(t *testing.T) {
	c := New(
		llm.SystemMessage("sys"),
		llm.UserMessage("q1"),
		llm.FunctionCallMessage(llm.FunctionCall{Name: "A"}),
		llm.FunctionResultMessage("A", "", "a"),
		llm.AssistantMessage("a1"),
		llm.UserMessage("q2"),
	)
	// keeping 3 would start at A's result, so it goes too
	if dropped := c.Prune(3); dropped != 3 {
		t.Fatalf("expected 3 dropped, got %d", dropped)
	}
	msgs := c.Messages()
	if len(msgs) != 3 || msgs[0].Role != llm.RoleSystem || msgs[1].Content != "a1" {
		t.Fatalf("unexpected pruned log %+v", msgs)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("pruning broke pairing: %v", err)
	}
	if c.Prune(0) != 0 {
		t.Fatalf("zero limit must not prune")
	}
}
