// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
)

type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	ListByOrder(ctx context.Context, orderID string) ([]*entity.LLMUsageEvent, error)
	GetTokenUsage(ctx context.Context, orderID string) (int64, error)
	GetTokenUsageInRange(ctx context.Context, startInclusive, endExclusive time.Time) (int64, error)
}
