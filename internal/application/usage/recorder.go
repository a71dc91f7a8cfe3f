// Package usage 提供 LLM 用量流水记录
package usage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/repository"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
)

// Recorder 把每次 LLM 调用记成一条按订单维度的流水。
// 由 eino 全局 callbacks 在 OnEnd 时调用，失败只记日志不回传，
// 用量统计丢一条不影响订单主流程。
type Recorder struct {
	usageRepo repository.LLMUsageEventRepository
}

var _ service.LLMUsageRecorder = (*Recorder)(nil)

func NewRecorder(usageRepo repository.LLMUsageEventRepository) *Recorder {
	return &Recorder{usageRepo: usageRepo}
}

func (r *Recorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage: prompt=%d completion=%d", in.PromptTokens, in.CompletionTokens)
	}

	evt := &entity.LLMUsageEvent{
		ID:               uuid.NewString(),
		OrderID:          strings.TrimSpace(in.OrderID),
		Workflow:         strings.TrimSpace(in.Workflow),
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		DurationMs:       in.DurationMs,
	}
	if err := r.usageRepo.Create(ctx, evt); err != nil {
		logger.Warn(ctx, "failed to record llm usage",
			"order_id", evt.OrderID,
			"workflow", evt.Workflow,
			"error", err,
		)
	}
	return nil
}
