package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	llmctx "github.com/kursovik/kursovik-ai-api/internal/domain/service"
	wfmodel "github.com/kursovik/kursovik-ai-api/internal/workflow/model"
	workflowport "github.com/kursovik/kursovik-ai-api/internal/workflow/port"
)

// AssistantChain 带对话历史的单轮助手调用。
// 不负责拼提示词：调用方准备好完整的消息序列，这里只接模型。
type AssistantChain struct {
	factory workflowport.ChatModelFactory
}

func NewAssistantChain(factory workflowport.ChatModelFactory) *AssistantChain {
	return &AssistantChain{factory: factory}
}

func (c *AssistantChain) Invoke(ctx context.Context, in *wfmodel.AssistantAskInput) (*schema.Message, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if strings.TrimSpace(in.Provider) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if len(in.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	workflow := strings.TrimSpace(in.Workflow)
	if workflow == "" {
		workflow = "assistant_ask"
	}

	ctx = llmctx.WithWorkflowProvider(ctx, workflow, strings.TrimSpace(in.Provider))
	chatModel, err := c.factory.Get(ctx, strings.TrimSpace(in.Provider))
	if err != nil {
		return nil, err
	}

	outMsg, err := chatModel.Generate(ctx, in.Messages, buildAssistantModelOptions(in)...)
	if err != nil {
		return nil, err
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response")
	}
	return outMsg, nil
}

func buildAssistantModelOptions(in *wfmodel.AssistantAskInput) []model.Option {
	opts := make([]model.Option, 0, 3)
	if in == nil {
		return opts
	}
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	if strings.TrimSpace(in.Model) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(in.Model)))
	}
	return opts
}
