// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
)

// OrderFilter 订单过滤条件
type OrderFilter struct {
	UserID   string
	WorkType entity.WorkType
	Status   entity.OrderStatus
}

// OrderRepository 订单仓储接口
type OrderRepository interface {
	// Create 创建订单
	Create(ctx context.Context, order *entity.Order) error

	// GetByID 根据 ID 获取订单
	GetByID(ctx context.Context, id string) (*entity.Order, error)

	// Update 更新订单
	Update(ctx context.Context, order *entity.Order) error

	// ListByUser 获取用户订单列表
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.Order], error)

	// List 按过滤条件获取订单列表
	List(ctx context.Context, filter *OrderFilter, pagination Pagination) (*PagedResult[*entity.Order], error)

	// GetByIdempotencyKey 根据幂等键获取订单
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.Order, error)

	// UpdateProgress 更新生成进度（0-100）和阶段
	UpdateProgress(ctx context.Context, id string, progress int, stage string) error

	// GetOrderStats 获取订单统计信息
	GetOrderStats(ctx context.Context) (*OrderStats, error)
}

// OrderStats 订单统计信息
type OrderStats struct {
	TotalOrders      int64 `json:"total_orders"`
	CreatedOrders    int64 `json:"created_orders"`
	GeneratingOrders int64 `json:"generating_orders"`
	CompletedOrders  int64 `json:"completed_orders"`
	FailedOrders     int64 `json:"failed_orders"`
	TotalTokensUsed  int64 `json:"total_tokens_used"`
}
