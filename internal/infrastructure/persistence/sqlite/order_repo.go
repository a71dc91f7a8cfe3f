// Package sqlite 提供 SQLite Repository 实现
package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/repository"
)

// OrderRepository 订单仓储实现
type OrderRepository struct {
	client *Client
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(client *Client) *OrderRepository {
	return &OrderRepository{client: client}
}

// Create 创建订单
func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	ctx, span := tracer.Start(ctx, "sqlite.OrderRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(order).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取订单
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := tracer.Start(ctx, "sqlite.OrderRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var order entity.Order
	if err := db.First(&order, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// Update 更新订单
func (r *OrderRepository) Update(ctx context.Context, order *entity.Order) error {
	ctx, span := tracer.Start(ctx, "sqlite.OrderRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(order).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// ListByUser 获取用户订单列表
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Order], error) {
	ctx, span := tracer.Start(ctx, "sqlite.OrderRepository.ListByUser")
	defer span.End()

	filter := &repository.OrderFilter{UserID: userID}
	return r.list(ctx, filter, pagination)
}

// List 按过滤条件获取订单列表
func (r *OrderRepository) List(ctx context.Context, filter *repository.OrderFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Order], error) {
	ctx, span := tracer.Start(ctx, "sqlite.OrderRepository.List")
	defer span.End()

	return r.list(ctx, filter, pagination)
}

func (r *OrderRepository) list(ctx context.Context, filter *repository.OrderFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Order], error) {
	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Order{})

	// 应用过滤条件
	if filter != nil {
		if filter.UserID != "" {
			query = query.Where("user_id = ?", filter.UserID)
		}
		if filter.WorkType != "" {
			query = query.Where("work_type = ?", filter.WorkType)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}

	// 获取总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	// 获取列表
	var orders []*entity.Order
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return repository.NewPagedResult(orders, total, pagination), nil
}

// GetByIdempotencyKey 根据幂等键获取订单
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Order, error) {
	ctx, span := tracer.Start(ctx, "sqlite.OrderRepository.GetByIdempotencyKey")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var order entity.Order
	if err := db.First(&order, "idempotency_key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get order by idempotency key: %w", err)
	}
	return &order, nil
}

// UpdateProgress 更新生成进度和阶段
func (r *OrderRepository) UpdateProgress(ctx context.Context, id string, progress int, stage string) error {
	ctx, span := tracer.Start(ctx, "sqlite.OrderRepository.UpdateProgress")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Order{}).Where("id = ?", id).Updates(map[string]interface{}{
		"progress": progress,
		"stage":    stage,
	}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update order progress: %w", err)
	}
	return nil
}

// GetOrderStats 获取订单统计信息
func (r *OrderRepository) GetOrderStats(ctx context.Context) (*repository.OrderStats, error) {
	ctx, span := tracer.Start(ctx, "sqlite.OrderRepository.GetOrderStats")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var stats repository.OrderStats

	// 总订单数
	db.Model(&entity.Order{}).Count(&stats.TotalOrders)

	// 按状态统计
	db.Model(&entity.Order{}).Where("status = ?", entity.OrderStatusCreated).Count(&stats.CreatedOrders)
	db.Model(&entity.Order{}).Where("status = ?", entity.OrderStatusGenerating).Count(&stats.GeneratingOrders)
	db.Model(&entity.Order{}).Where("status = ?", entity.OrderStatusCompleted).Count(&stats.CompletedOrders)
	db.Model(&entity.Order{}).Where("status = ?", entity.OrderStatusFailed).Count(&stats.FailedOrders)

	// Token 使用统计
	var tokensUsed *int64
	db.Model(&entity.LLMUsageEvent{}).Select("SUM(tokens_prompt + tokens_completion)").Scan(&tokensUsed)
	if tokensUsed != nil {
		stats.TotalTokensUsed = *tokensUsed
	}

	return &stats, nil
}
