package content

import (
	"github.com/cloudwego/eino/schema"
)

// Conversation 一个订单的生成对话。
// 计划、各章、文献列表共享同一份历史，模型因此能保持术语和风格一致。
// 订单内的生成是严格顺序的，这里不做并发保护。
type Conversation struct {
	orderID  string
	messages []*schema.Message
}

// NewConversation 创建以 system 指令开头的新对话。
func NewConversation(orderID, systemPrompt string) *Conversation {
	return &Conversation{
		orderID:  orderID,
		messages: []*schema.Message{schema.SystemMessage(systemPrompt)},
	}
}

// OrderID 返回对话所属的订单。
func (c *Conversation) OrderID() string {
	return c.orderID
}

// Append 追加一条消息。
func (c *Conversation) Append(msg *schema.Message) {
	if msg == nil {
		return
	}
	c.messages = append(c.messages, msg)
}

// Messages 返回历史的副本。
func (c *Conversation) Messages() []*schema.Message {
	out := make([]*schema.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len 返回消息条数，含 system 指令。
func (c *Conversation) Len() int {
	return len(c.messages)
}
