package content

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestNewConversationSeedsSystemMessage(t *testing.T) {
	conv := NewConversation("order-7", "Ты — эксперт.")

	if conv.OrderID() != "order-7" {
		t.Errorf("OrderID() = %q", conv.OrderID())
	}
	if conv.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", conv.Len())
	}
	first := conv.Messages()[0]
	if first.Role != schema.System || first.Content != "Ты — эксперт." {
		t.Errorf("first message = %+v", first)
	}
}

func TestConversationAppendOrder(t *testing.T) {
	conv := NewConversation("order-7", "система")
	conv.Append(schema.UserMessage("вопрос"))
	conv.Append(&schema.Message{Role: schema.Assistant, Content: "ответ"})

	msgs := conv.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[1].Role != schema.User || msgs[1].Content != "вопрос" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
	if msgs[2].Role != schema.Assistant || msgs[2].Content != "ответ" {
		t.Errorf("msgs[2] = %+v", msgs[2])
	}
}

func TestConversationIgnoresNil(t *testing.T) {
	conv := NewConversation("order-7", "система")
	conv.Append(nil)
	if conv.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after nil append", conv.Len())
	}
}

func TestConversationMessagesReturnsCopy(t *testing.T) {
	conv := NewConversation("order-7", "система")
	conv.Append(schema.UserMessage("вопрос"))

	msgs := conv.Messages()
	msgs[0] = nil

	if got := conv.Messages(); got[0] == nil {
		t.Error("mutating the returned slice must not affect the conversation")
	}
}
