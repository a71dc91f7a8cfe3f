// Package sqlite 提供 SQLite Repository 实现
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
)

type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "sqlite.LLMUsageEventRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create llm usage event: %w", err)
	}
	return nil
}

func (r *LLMUsageEventRepository) ListByOrder(ctx context.Context, orderID string) ([]*entity.LLMUsageEvent, error) {
	ctx, span := tracer.Start(ctx, "sqlite.LLMUsageEventRepository.ListByOrder")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var events []*entity.LLMUsageEvent
	if err := db.Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list llm usage events: %w", err)
	}
	return events, nil
}

func (r *LLMUsageEventRepository) GetTokenUsage(ctx context.Context, orderID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "sqlite.LLMUsageEventRepository.GetTokenUsage")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&entity.LLMUsageEvent{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(COALESCE(tokens_prompt,0) + COALESCE(tokens_completion,0)),0)").
		Scan(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get llm usage: %w", err)
	}
	return total, nil
}

func (r *LLMUsageEventRepository) GetTokenUsageInRange(ctx context.Context, startInclusive, endExclusive time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "sqlite.LLMUsageEventRepository.GetTokenUsageInRange")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&entity.LLMUsageEvent{}).
		Where("created_at >= ? AND created_at < ?", startInclusive, endExclusive).
		Select("COALESCE(SUM(COALESCE(tokens_prompt,0) + COALESCE(tokens_completion,0)),0)").
		Scan(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get llm usage: %w", err)
	}
	return total, nil
}
