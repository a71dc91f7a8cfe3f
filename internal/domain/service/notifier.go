package service

import (
	"context"

	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
)

// AdminNotifier 向运营人员推送订单事件。
// 约定：实现为 best-effort，通知失败不应影响订单主流程。
type AdminNotifier interface {
	// NotifyOrderCompleted 订单生成完成时通知
	NotifyOrderCompleted(ctx context.Context, order *entity.Order) error

	// NotifyOrderFailed 订单生成失败时通知
	NotifyOrderFailed(ctx context.Context, order *entity.Order, reason string) error

	// NotifyGenerationWarning 生成过程中出现可恢复问题时通知,
	// 如校验重试耗尽后保留了未通过的片段
	NotifyGenerationWarning(ctx context.Context, order *entity.Order, warning string) error
}
