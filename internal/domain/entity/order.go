// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// WorkType 学术工作类型
type WorkType string

const (
	WorkTypeCoursework WorkType = "coursework"
	WorkTypeDiploma    WorkType = "diploma"
	WorkTypeReference  WorkType = "reference"
	WorkTypeReport     WorkType = "report"
	WorkTypeResearch   WorkType = "research"
	WorkTypePractice   WorkType = "practice"
)

// workTypeLabels 工作类型的俄文显示名
var workTypeLabels = map[WorkType]string{
	WorkTypeCoursework: "Курсовая работа",
	WorkTypeDiploma:    "Дипломная работа",
	WorkTypeReference:  "Реферат",
	WorkTypeReport:     "Доклад",
	WorkTypeResearch:   "Исследование",
	WorkTypePractice:   "Отчет по практике",
}

// workTypeGenitives 工作类型的俄文属格，用于提示词拼接
var workTypeGenitives = map[WorkType]string{
	WorkTypeCoursework: "курсовой работы",
	WorkTypeDiploma:    "дипломной работы",
	WorkTypeReference:  "реферата",
	WorkTypeReport:     "доклада",
	WorkTypeResearch:   "исследования",
	WorkTypePractice:   "отчета по практике",
}

// IsValid 检查工作类型是否合法
func (t WorkType) IsValid() bool {
	_, ok := workTypeLabels[t]
	return ok
}

// Label 返回工作类型的俄文显示名
func (t WorkType) Label() string {
	if label, ok := workTypeLabels[t]; ok {
		return label
	}
	return string(t)
}

// Genitive 返回工作类型的俄文属格形式
func (t WorkType) Genitive() string {
	if g, ok := workTypeGenitives[t]; ok {
		return g
	}
	return string(t)
}

// AllWorkTypes 返回所有支持的工作类型
func AllWorkTypes() []WorkType {
	return []WorkType{
		WorkTypeCoursework,
		WorkTypeDiploma,
		WorkTypeReference,
		WorkTypeReport,
		WorkTypeResearch,
		WorkTypePractice,
	}
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusGenerating OrderStatus = "generating"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
)

// Order 文档生成订单
type Order struct {
	ID             string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string      `json:"user_id" gorm:"index;type:varchar(64);not null"`
	WorkType       WorkType    `json:"work_type" gorm:"type:varchar(32);not null"`
	Theme          string      `json:"theme" gorm:"type:varchar(512);not null"`
	Pages          int         `json:"pages" gorm:"not null"`
	Model          string      `json:"model" gorm:"type:varchar(64);not null"`
	Price          int         `json:"price" gorm:"not null;default:0"`
	Status         OrderStatus `json:"status" gorm:"index;type:varchar(16);not null"`
	Progress       int         `json:"progress" gorm:"not null;default:0"`
	Stage          string      `json:"stage,omitempty" gorm:"type:varchar(32)"`
	ErrorMessage   string      `json:"error_message,omitempty" gorm:"type:text"`
	RetryCount     int         `json:"retry_count" gorm:"not null;default:0"`
	TexPath        string      `json:"tex_path,omitempty" gorm:"type:varchar(512)"`
	PDFPath        string      `json:"pdf_path,omitempty" gorm:"type:varchar(512)"`
	DocxPath       string      `json:"docx_path,omitempty" gorm:"type:varchar(512)"`
	FullTex        string      `json:"-" gorm:"type:text"`
	PagesGenerated float64     `json:"pages_generated,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty" gorm:"uniqueIndex;type:varchar(128);default:null"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	DurationMs     int         `json:"duration_ms,omitempty"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// NewOrder 创建新订单
func NewOrder(userID string, workType WorkType, theme string, pages int, model string, price int) *Order {
	return &Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		WorkType:  workType,
		Theme:     theme,
		Pages:     pages,
		Model:     model,
		Price:     price,
		Status:    OrderStatusCreated,
		CreatedAt: time.Now(),
	}
}

// Start 开始生成
func (o *Order) Start() {
	now := time.Now()
	o.Status = OrderStatusGenerating
	o.Progress = 0
	o.ErrorMessage = ""
	o.StartedAt = &now
}

// Complete 生成完成
func (o *Order) Complete(pagesGenerated float64) {
	now := time.Now()
	o.Status = OrderStatusCompleted
	o.Progress = 100
	o.PagesGenerated = pagesGenerated
	o.CompletedAt = &now
	if o.StartedAt != nil {
		o.DurationMs = int(now.Sub(*o.StartedAt).Milliseconds())
	}
}

// Fail 生成失败
func (o *Order) Fail(errMsg string) {
	now := time.Now()
	o.Status = OrderStatusFailed
	o.ErrorMessage = errMsg
	o.CompletedAt = &now
	if o.StartedAt != nil {
		o.DurationMs = int(now.Sub(*o.StartedAt).Milliseconds())
	}
}

// Requeue 重新排队
func (o *Order) Requeue() {
	o.RetryCount++
	o.Status = OrderStatusCreated
	o.Progress = 0
	o.Stage = ""
	o.ErrorMessage = ""
	o.StartedAt = nil
	o.CompletedAt = nil
}

// CanRetry 检查是否可以重试
func (o *Order) CanRetry(maxRetries int) bool {
	return o.RetryCount < maxRetries && o.Status == OrderStatusFailed
}

// UpdateProgress 更新生成进度
func (o *Order) UpdateProgress(progress int, stage string) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	o.Progress = progress
	o.Stage = stage
}

// IsDone 检查订单是否已结束
func (o *Order) IsDone() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusFailed
}
