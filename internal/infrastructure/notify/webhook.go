// Package notify 提供管理员通知的 webhook 推送
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
)

// 通知事件类型
const (
	eventOrderCompleted    = "order.completed"
	eventOrderFailed       = "order.failed"
	eventGenerationWarning = "order.warning"
)

// WebhookNotifier 通过 HTTP webhook 推送订单事件,未配置时降级为仅记录日志
type WebhookNotifier struct {
	enabled    bool
	webhookURL string
	httpClient *http.Client
}

type webhookPayload struct {
	Event          string    `json:"event"`
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id"`
	WorkType       string    `json:"work_type"`
	Theme          string    `json:"theme"`
	Pages          int       `json:"pages"`
	Model          string    `json:"model"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	PagesGenerated float64   `json:"pages_generated,omitempty"`
	DurationMs     int64     `json:"duration_ms,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewWebhookNotifier 创建管理员通知器
func NewWebhookNotifier(cfg *config.NotifyConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ service.AdminNotifier = (*WebhookNotifier)(nil)

// NotifyOrderCompleted 推送订单完成事件
func (n *WebhookNotifier) NotifyOrderCompleted(ctx context.Context, order *entity.Order) error {
	logger.Info(ctx, "order completed",
		"order_id", order.ID,
		"work_type", string(order.WorkType),
		"pages_generated", order.PagesGenerated,
		"duration_ms", order.DurationMs)

	return n.post(ctx, &webhookPayload{
		Event:          eventOrderCompleted,
		OrderID:        order.ID,
		UserID:         order.UserID,
		WorkType:       string(order.WorkType),
		Theme:          order.Theme,
		Pages:          order.Pages,
		Model:          order.Model,
		Status:         string(order.Status),
		PagesGenerated: order.PagesGenerated,
		DurationMs:     int64(order.DurationMs),
		OccurredAt:     time.Now().UTC(),
	})
}

// NotifyOrderFailed 推送订单失败事件,reason 携带失败原因全文
func (n *WebhookNotifier) NotifyOrderFailed(ctx context.Context, order *entity.Order, reason string) error {
	logger.Warn(ctx, "order failed",
		"order_id", order.ID,
		"work_type", string(order.WorkType),
		"reason", reason)

	return n.post(ctx, &webhookPayload{
		Event:      eventOrderFailed,
		OrderID:    order.ID,
		UserID:     order.UserID,
		WorkType:   string(order.WorkType),
		Theme:      order.Theme,
		Pages:      order.Pages,
		Model:      order.Model,
		Status:     string(order.Status),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

// NotifyGenerationWarning 推送生成过程中的可恢复问题
func (n *WebhookNotifier) NotifyGenerationWarning(ctx context.Context, order *entity.Order, warning string) error {
	logger.Warn(ctx, "generation warning",
		"order_id", order.ID,
		"warning", warning)

	return n.post(ctx, &webhookPayload{
		Event:      eventGenerationWarning,
		OrderID:    order.ID,
		UserID:     order.UserID,
		WorkType:   string(order.WorkType),
		Theme:      order.Theme,
		Pages:      order.Pages,
		Model:      order.Model,
		Status:     string(order.Status),
		Reason:     warning,
		OccurredAt: time.Now().UTC(),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload *webhookPayload) error {
	if !n.enabled {
		return nil
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed: status=%d", httpResp.StatusCode)
	}
	return nil
}
