// Package redis 提供 Redis 进度存储实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var progressTracer = otel.Tracer("redis.progress")

// progressTTL 进度键的保留期，订单完成后仍可短期查询
const progressTTL = 24 * time.Hour

// ProgressSnapshot 订单生成进度快照
type ProgressSnapshot struct {
	OrderID   string    `json:"order_id"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressStore 订单进度的快路径存储。
// 工作进程高频写入，API 读取时优先走这里，落库频率可以更低。
type ProgressStore struct {
	client *Client
}

// NewProgressStore 创建进度存储
func NewProgressStore(client *Client) *ProgressStore {
	return &ProgressStore{client: client}
}

func progressKey(orderID string) string {
	return fmt.Sprintf("order:progress:%s", orderID)
}

// Set 写入进度快照
func (s *ProgressStore) Set(ctx context.Context, snapshot ProgressSnapshot) error {
	ctx, span := progressTracer.Start(ctx, "progress.Set",
		trace.WithAttributes(
			attribute.String("order.id", snapshot.OrderID),
			attribute.Int("order.progress", snapshot.Progress),
		))
	defer span.End()

	snapshot.UpdatedAt = time.Now()
	bytes, err := json.Marshal(snapshot)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	if err := s.client.rdb.Set(ctx, progressKey(snapshot.OrderID), bytes, progressTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set progress: %w", err)
	}
	return nil
}

// Publish 以原始字段写入进度快照，应用层通过该方法隔离快照结构。
func (s *ProgressStore) Publish(ctx context.Context, orderID string, progress int, stage, message string) error {
	return s.Set(ctx, ProgressSnapshot{
		OrderID:  orderID,
		Progress: progress,
		Stage:    stage,
		Message:  message,
	})
}

// Get 读取进度快照，键不存在时返回 (nil, nil)
func (s *ProgressStore) Get(ctx context.Context, orderID string) (*ProgressSnapshot, error) {
	ctx, span := progressTracer.Start(ctx, "progress.Get",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	val, err := s.client.rdb.Get(ctx, progressKey(orderID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	var snapshot ProgressSnapshot
	if err := json.Unmarshal(val, &snapshot); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &snapshot, nil
}

// Delete 删除进度快照
func (s *ProgressStore) Delete(ctx context.Context, orderID string) error {
	ctx, span := progressTracer.Start(ctx, "progress.Delete",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return s.client.rdb.Del(ctx, progressKey(orderID)).Err()
}
