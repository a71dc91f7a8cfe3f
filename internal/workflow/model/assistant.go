package model

import "github.com/cloudwego/eino/schema"

// AssistantAskInput 一次助手调用的输入。
// Messages 是完整的对话历史（首条为 system 指令），
// 生成是有状态的：同一订单的所有调用共享一个对话。
type AssistantAskInput struct {
	Workflow string

	Provider string
	Model    string

	Temperature *float32
	MaxTokens   *int

	Messages []*schema.Message
}
