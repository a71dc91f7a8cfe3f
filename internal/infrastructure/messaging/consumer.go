// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/metrics"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer 基于消费者组的流消费者。
// 失败的消息不立即重投：留在 pending 里按退避时间重新认领，
// 超过重试上限进死信流。
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	backoff       BackoffConfig

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	// 孤儿消息的认领门槛要盖过最长退避，否则会抢走同伴正在退避的消息
	reclaimIdle := 5 * time.Minute
	if doubled := cfg.Backoff.Max * 2; doubled > reclaimIdle {
		reclaimIdle = doubled
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		reclaimIdle:   reclaimIdle,
		retryLimit:    cfg.RetryLimit,
		backoff:       cfg.Backoff,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
	}
}

// RegisterHandler 按消息类型注册处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 建组并启动消费循环
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.loop(ctx)
	return nil
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

func (c *Consumer) loop(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("work queue consumer started",
		"stream", c.stream,
		"group", c.group,
		"consumer", c.consumerName,
	)

	lastReclaim := time.Now().Add(-c.claimInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("work queue consumer stopped", "reason", "context cancelled")
			return
		case <-c.stopCh:
			log.Info("work queue consumer stopped", "reason", "shutdown")
			return
		default:
		}

		// 每轮先补救自己的 pending，新消息靠 XReadGroup 的阻塞等
		c.retryOwnPending(ctx)
		if time.Since(lastReclaim) >= c.claimInterval {
			c.adoptOrphanedPending(ctx)
			lastReclaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			log.Error("failed to read from stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				c.handleEntry(ctx, entry)
			}
		}
	}
}

// handleEntry 解析并分发一条流消息
func (c *Consumer) handleEntry(ctx context.Context, entry redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.handleEntry",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", entry.ID),
		))
	defer span.End()

	msg, ok := c.decodeEntry(ctx, entry)
	if !ok {
		// 格式坏掉的消息重试也没用，直接确认丢弃
		c.ack(ctx, entry.ID)
		return
	}

	// 订单号等进日志上下文，生成链路的所有日志都能带上
	if msg.OrderID != "" {
		ctx = logger.WithContext(ctx, logger.OrderIDKey, msg.OrderID)
	}
	if msg.UserID != "" {
		ctx = logger.WithContext(ctx, logger.UserIDKey, msg.UserID)
	}
	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}

	log := logger.FromContext(ctx)

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.String("order_id", msg.OrderID),
		attribute.String("user_id", msg.UserID),
	)

	c.mu.RLock()
	handler, exists := c.handlers[msg.Type]
	c.mu.RUnlock()

	if !exists {
		log.Warn("no handler for message type", "type", msg.Type)
		c.ack(ctx, entry.ID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		log.Error("handler failed", "error", err, "message_id", msg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "failed").Inc()
		c.afterFailure(ctx, entry.ID, msg)
		return
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "ok").Inc()
	c.ack(ctx, entry.ID)
}

// decodeEntry 从流条目还原 Message，格式错误返回 ok=false
func (c *Consumer) decodeEntry(ctx context.Context, entry redis.XMessage) (*Message, bool) {
	raw, ok := entry.Values["data"].(string)
	if !ok {
		logger.FromContext(ctx).Error("invalid message format", "message_id", entry.ID)
		return nil, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		logger.FromContext(ctx).Error("failed to unmarshal message", "error", err, "message_id", entry.ID)
		return nil, false
	}
	return &msg, true
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "error", err, "message_id", id)
	}
}

// afterFailure 决定失败消息的去向：上限内留 pending 等退避重试，超限进死信流
func (c *Consumer) afterFailure(ctx context.Context, entryID string, msg *Message) {
	log := logger.FromContext(ctx)
	deliveries := c.deliveryCount(ctx, entryID)

	if deliveries >= c.retryLimit {
		log.Warn("message moved to DLQ after max retries",
			"message_id", msg.ID,
			"retry_count", deliveries,
		)
		c.deadLetter(ctx, msg, fmt.Errorf("message exceeded max retries"))
		c.ack(ctx, entryID)
		return
	}
	log.Info("message left pending for retry",
		"message_id", msg.ID,
		"retry_count", deliveries,
	)
}

// deliveryCount 从 XPENDING 取消息的投递次数
func (c *Consumer) deliveryCount(ctx context.Context, entryID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  entryID,
		End:    entryID,
		Count:  1,
	}).Result()

	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// deadLetter 把消息连同失败原因写入死信流
func (c *Consumer) deadLetter(ctx context.Context, msg *Message, cause error) {
	payload := map[string]interface{}{
		"original_stream": string(c.stream),
		"data":            msg,
		"error":           cause.Error(),
		"failed_at":       time.Now().Unix(),
	}

	data, _ := json.Marshal(payload)
	c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream.DLQStream(),
		Values: map[string]interface{}{"data": string(data)},
	})
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "dlq").Inc()
}

// claimEntries 认领一批 pending 条目。minIdle 为 0 表示无条件认领
func (c *Consumer) claimEntries(ctx context.Context, ids []string, minIdle time.Duration) []redis.XMessage {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		logger.FromContext(ctx).Error("failed to claim pending messages", "error", err, "message_ids", ids)
		return nil
	}
	return claimed
}

// drainToDeadLetter 认领重试耗尽的条目并送进死信流
func (c *Consumer) drainToDeadLetter(ctx context.Context, entryID string, minIdle time.Duration) {
	for _, entry := range c.claimEntries(ctx, []string{entryID}, minIdle) {
		if msg, ok := c.decodeEntry(ctx, entry); ok {
			c.deadLetter(ctx, msg, fmt.Errorf("message exceeded max retries"))
		}
		c.ack(ctx, entry.ID)
	}
}

// retryOwnPending 重试自己名下退避到期的 pending 消息
func (c *Consumer) retryOwnPending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: c.consumerName,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return
		}
		logger.FromContext(ctx).Error("failed to query pending messages", "error", err)
		return
	}

	for i := range pending {
		p := pending[i]
		if int(p.RetryCount) >= c.retryLimit {
			c.drainToDeadLetter(ctx, p.ID, 0)
			continue
		}

		wait := c.backoff.CalculateBackoff(int(p.RetryCount))
		if p.Idle < wait {
			continue
		}

		for _, entry := range c.claimEntries(ctx, []string{p.ID}, wait) {
			c.handleEntry(ctx, entry)
		}
	}
}

// adoptOrphanedPending 接手其他消费者（多半已宕机）滞留过久的 pending 消息
func (c *Consumer) adoptOrphanedPending(ctx context.Context) {
	if c.reclaimIdle <= 0 {
		return
	}

	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  "-",
		End:    "+",
		Count:  20,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return
		}
		logger.FromContext(ctx).Error("failed to query pending messages for reclaim", "error", err)
		return
	}

	for i := range pending {
		p := pending[i]
		if p.Consumer == c.consumerName || p.Idle < c.reclaimIdle {
			continue
		}
		if int(p.RetryCount) >= c.retryLimit {
			c.drainToDeadLetter(ctx, p.ID, c.reclaimIdle)
			continue
		}

		for _, entry := range c.claimEntries(ctx, []string{p.ID}, c.reclaimIdle) {
			c.handleEntry(ctx, entry)
		}
	}
}

// MonitorDLQ 周期上报消费组积压并对死信流水位报警
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if pending, err := c.client.XPending(ctx, string(c.stream), string(c.group)).Result(); err == nil {
				metrics.RedisStreamLag.WithLabelValues(string(c.stream), string(c.group)).Set(float64(pending.Count))
			}

			dlqStream := c.stream.DLQStream()
			info, err := c.client.XInfoStream(ctx, dlqStream).Result()
			if err != nil {
				continue
			}

			if info.Length > alertThreshold {
				log.Warn("DLQ has pending messages",
					"stream", dlqStream,
					"count", info.Length,
				)
			}
		}
	}
}
