// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/repository"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/messaging"
	redisstore "github.com/kursovik/kursovik-ai-api/internal/infrastructure/persistence/redis"
	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/dto"
	"github.com/kursovik/kursovik-ai-api/pkg/errors"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/metrics"
)

const (
	minOrderPages = 1
	maxOrderPages = 100
)

// JobPublisher 把新订单投递到生成队列
type JobPublisher interface {
	PublishWorkGenJob(ctx context.Context, job *messaging.WorkGenJobMessage) (string, error)
}

// ProgressReader 订单进度快照的快路径读取
type ProgressReader interface {
	Get(ctx context.Context, orderID string) (*redisstore.ProgressSnapshot, error)
}

// OrderHandler 订单处理器
type OrderHandler struct {
	orders   repository.OrderRepository
	tx       repository.Transactor
	producer JobPublisher
	progress ProgressReader
	pricing  *service.PriceCalculator
	cfg      *config.Config
}

// NewOrderHandler 创建订单处理器。progress 可为 nil，进度查询将直接走订单行。
func NewOrderHandler(
	orders repository.OrderRepository,
	tx repository.Transactor,
	producer JobPublisher,
	progress ProgressReader,
	pricing *service.PriceCalculator,
	cfg *config.Config,
) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		tx:       tx,
		producer: producer,
		progress: progress,
		pricing:  pricing,
		cfg:      cfg,
	}
}

// CreateOrder 创建订单并投递生成任务
// @Summary 创建文档生成订单
// @Description 校验参数、计价、落库并投递异步生成任务
// @Tags Orders
// @Accept json
// @Produce json
// @Param body body dto.CreateOrderRequest true "订单参数"
// @Success 201 {object} dto.Response[dto.OrderResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	req.Theme = strings.TrimSpace(req.Theme)
	if req.Theme == "" {
		dto.BadRequest(c, "theme must not be empty")
		return
	}
	if len([]rune(req.Theme)) > 500 {
		dto.BadRequest(c, "theme is too long")
		return
	}
	if req.Pages < minOrderPages || req.Pages > maxOrderPages {
		dto.BadRequest(c, "pages must be between 1 and 100")
		return
	}

	workType := entity.WorkType(strings.ToLower(strings.TrimSpace(req.WorkType)))
	if !workType.IsValid() {
		respondError(c, errors.New(errors.CodeUnknownWorkType, "unknown work type").
			WithDetail("work_type="+req.WorkType), "invalid work type")
		return
	}

	model, err := resolveModel(h.cfg, req.Model)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	// 幂等键：Header 优先，body 兜底
	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}

	price := h.pricing.Calculate(model)

	order := entity.NewOrder(req.UserID, workType, req.Theme, req.Pages, model, price)
	order.IdempotencyKey = idempotencyKey

	// 幂等检查和落库在同一个事务里，同键并发请求只会写入一行
	var existing *entity.Order
	err = h.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if idempotencyKey != "" {
			prev, err := h.orders.GetByIdempotencyKey(txCtx, idempotencyKey)
			if err != nil {
				return err
			}
			if prev != nil {
				existing = prev
				return nil
			}
		}
		return h.orders.Create(txCtx, order)
	})
	if err != nil {
		logger.Error(ctx, "failed to create order", err, "user_id", req.UserID)
		dto.InternalError(c, "failed to create order")
		return
	}
	if existing != nil {
		dto.Success(c, dto.ToOrderResponse(existing))
		return
	}

	if _, err := h.producer.PublishWorkGenJob(ctx, &messaging.WorkGenJobMessage{
		OrderID:        order.ID,
		UserID:         order.UserID,
		WorkType:       string(order.WorkType),
		Theme:          order.Theme,
		Pages:          order.Pages,
		Model:          order.Model,
		IdempotencyKey: idempotencyKey,
	}); err != nil {
		// 订单行保留，管理端可以重新投递
		logger.Error(ctx, "failed to publish work gen job", err, "order_id", order.ID)
		respondError(c, errors.Wrap(err, errors.CodeQueueError, "failed to enqueue generation job"),
			"failed to enqueue generation job")
		return
	}

	metrics.OrdersCreatedTotal.WithLabelValues(string(order.WorkType), order.Model).Inc()
	logger.Info(ctx, "order created",
		"order_id", order.ID,
		"user_id", order.UserID,
		"work_type", order.WorkType,
		"pages", order.Pages,
		"model", order.Model,
		"price", order.Price,
	)

	dto.Created(c, dto.ToOrderResponse(order))
}

// GetOrder 获取订单详情
// @Summary 获取订单详情
// @Tags Orders
// @Produce json
// @Param id path string true "订单 ID"
// @Success 200 {object} dto.Response[dto.OrderResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx := c.Request.Context()

	order, err := h.loadOrder(ctx, c)
	if err != nil {
		respondError(c, err, "failed to get order")
		return
	}

	dto.Success(c, dto.ToOrderResponse(order))
}

// GetProgress 获取订单生成进度。
// 优先读 redis 快照（工作进程高频写入），未命中时回落到订单行。
// @Summary 获取订单进度
// @Tags Orders
// @Produce json
// @Param id path string true "订单 ID"
// @Success 200 {object} dto.Response[dto.ProgressResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/orders/{id}/progress [get]
func (h *OrderHandler) GetProgress(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := dto.BindOrderID(c)

	if h.progress != nil {
		snapshot, err := h.progress.Get(ctx, orderID)
		if err != nil {
			logger.Warn(ctx, "progress fast path failed, falling back to db", "order_id", orderID, "error", err)
		} else if snapshot != nil {
			updatedAt := snapshot.UpdatedAt
			dto.Success(c, &dto.ProgressResponse{
				OrderID:   snapshot.OrderID,
				Status:    string(statusForStage(snapshot.Stage)),
				Progress:  snapshot.Progress,
				Stage:     snapshot.Stage,
				Message:   snapshot.Message,
				UpdatedAt: &updatedAt,
			})
			return
		}
	}

	order, err := h.loadOrder(ctx, c)
	if err != nil {
		respondError(c, err, "failed to get order progress")
		return
	}

	dto.Success(c, &dto.ProgressResponse{
		OrderID:  order.ID,
		Status:   string(order.Status),
		Progress: order.Progress,
		Stage:    order.Stage,
		Message:  order.ErrorMessage,
	})
}

// DownloadTex 下载 LaTeX 源文件
func (h *OrderHandler) DownloadTex(c *gin.Context) {
	h.downloadArtifact(c, func(o *entity.Order) string { return o.TexPath })
}

// DownloadPDF 下载 PDF 产物
func (h *OrderHandler) DownloadPDF(c *gin.Context) {
	h.downloadArtifact(c, func(o *entity.Order) string { return o.PDFPath })
}

// DownloadDocx 下载 DOCX 产物
func (h *OrderHandler) DownloadDocx(c *gin.Context) {
	h.downloadArtifact(c, func(o *entity.Order) string { return o.DocxPath })
}

// downloadArtifact 产物下载的公共路径：订单未完成一律 404,
// 订单完成但文件已被清理则 410。
func (h *OrderHandler) downloadArtifact(c *gin.Context, pathOf func(*entity.Order) string) {
	ctx := c.Request.Context()

	order, err := h.loadOrder(ctx, c)
	if err != nil {
		respondError(c, err, "failed to get order")
		return
	}

	if order.Status != entity.OrderStatusCompleted {
		respondError(c, errors.New(errors.CodeArtifactNotFound, "artifact not found").
			WithDetail("order is not completed yet"), "artifact not found")
		return
	}

	path := pathOf(order)
	if path == "" {
		respondError(c, errors.ErrArtifactNotFound, "artifact not found")
		return
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Warn(ctx, "artifact file missing on disk", "order_id", order.ID, "path", path)
			respondError(c, errors.ErrArtifactGone, "artifact file missing")
			return
		}
		logger.Error(ctx, "failed to stat artifact", err, "order_id", order.ID, "path", path)
		dto.InternalError(c, "failed to read artifact")
		return
	}

	c.FileAttachment(path, filepath.Base(path))
}

// ListUserOrders 获取用户订单列表
// @Summary 获取用户订单列表
// @Tags Orders
// @Produce json
// @Param uid path string true "用户 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.OrderResponse]
// @Router /v1/users/{uid}/orders [get]
func (h *OrderHandler) ListUserOrders(c *gin.Context) {
	ctx := c.Request.Context()
	userID := dto.BindUserID(c)
	pageReq := dto.BindPage(c)

	result, err := h.orders.ListByUser(ctx, userID, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		logger.Error(ctx, "failed to list user orders", err, "user_id", userID)
		dto.InternalError(c, "failed to list orders")
		return
	}

	resp := dto.ToOrderListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}

// loadOrder 按 URI 中的 id 加载订单，没有则返回 ErrOrderNotFound。
func (h *OrderHandler) loadOrder(ctx context.Context, c *gin.Context) (*entity.Order, error) {
	orderID := strings.TrimSpace(dto.BindOrderID(c))
	if orderID == "" {
		return nil, errors.New(errors.CodeInvalidParam, "order id is required")
	}

	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.ErrOrderNotFound
	}
	return order, nil
}

// statusForStage 把进度快照的阶段映射为订单状态。
// 快照不携带状态字段，阶段集合由生成器固定。
func statusForStage(stage string) entity.OrderStatus {
	switch stage {
	case "":
		return entity.OrderStatusCreated
	case "done":
		return entity.OrderStatusCompleted
	case "failed":
		return entity.OrderStatusFailed
	default:
		return entity.OrderStatusGenerating
	}
}
