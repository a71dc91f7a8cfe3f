// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
)

// Currency 价格币种：Telegram Stars
const Currency = "XTR"

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	Theme          string `json:"theme" binding:"required"`
	Pages          int    `json:"pages" binding:"required"`
	WorkType       string `json:"work_type" binding:"required"`
	Model          string `json:"model,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// OrderArtifacts 已完成订单的产物下载地址
type OrderArtifacts struct {
	Tex  string `json:"tex,omitempty"`
	PDF  string `json:"pdf,omitempty"`
	Docx string `json:"docx,omitempty"`
}

// OrderResponse 订单快照
type OrderResponse struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	WorkType       string          `json:"work_type"`
	WorkTypeLabel  string          `json:"work_type_label"`
	Theme          string          `json:"theme"`
	Pages          int             `json:"pages"`
	Model          string          `json:"model"`
	Price          int             `json:"price"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	Stage          string          `json:"stage,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	RetryCount     int             `json:"retry_count,omitempty"`
	PagesGenerated float64         `json:"pages_generated,omitempty"`
	Artifacts      *OrderArtifacts `json:"artifacts,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	DurationMs     int             `json:"duration_ms,omitempty"`
}

// ToOrderResponse 将订单实体转换为响应
func ToOrderResponse(o *entity.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	resp := &OrderResponse{
		ID:             o.ID,
		UserID:         o.UserID,
		WorkType:       string(o.WorkType),
		WorkTypeLabel:  o.WorkType.Label(),
		Theme:          o.Theme,
		Pages:          o.Pages,
		Model:          o.Model,
		Price:          o.Price,
		Currency:       Currency,
		Status:         string(o.Status),
		Progress:       o.Progress,
		Stage:          o.Stage,
		ErrorMessage:   o.ErrorMessage,
		RetryCount:     o.RetryCount,
		PagesGenerated: o.PagesGenerated,
		CreatedAt:      o.CreatedAt,
		StartedAt:      o.StartedAt,
		CompletedAt:    o.CompletedAt,
		DurationMs:     o.DurationMs,
	}
	if o.Status == entity.OrderStatusCompleted {
		artifacts := &OrderArtifacts{}
		if o.TexPath != "" {
			artifacts.Tex = "/v1/orders/" + o.ID + "/tex"
		}
		if o.PDFPath != "" {
			artifacts.PDF = "/v1/orders/" + o.ID + "/pdf"
		}
		if o.DocxPath != "" {
			artifacts.Docx = "/v1/orders/" + o.ID + "/docx"
		}
		resp.Artifacts = artifacts
	}
	return resp
}

// ToOrderListResponse 将订单实体列表转换为响应列表
func ToOrderListResponse(orders []*entity.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, ToOrderResponse(o))
	}
	return out
}

// ProgressResponse 订单进度快照
type ProgressResponse struct {
	OrderID   string     `json:"order_id"`
	Status    string     `json:"status"`
	Progress  int        `json:"progress"`
	Stage     string     `json:"stage,omitempty"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// RequeueOrderResponse 重新排队结果
type RequeueOrderResponse struct {
	ID         string `json:"id"`
	Requeued   bool   `json:"requeued"`
	RetryCount int    `json:"retry_count"`
}

// PriceResponse 价格查询结果
type PriceResponse struct {
	Model    string `json:"model"`
	WorkType string `json:"work_type,omitempty"`
	Price    int    `json:"price"`
	Currency string `json:"currency"`
}

// WorkTypeOption 支持的工作类型及其显示名
type WorkTypeOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SamplesResponse 示例主题列表
type SamplesResponse struct {
	Themes    []string         `json:"themes"`
	WorkTypes []WorkTypeOption `json:"work_types"`
}
