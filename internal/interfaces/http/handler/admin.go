package handler

import (
	"crypto/subtle"
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/repository"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/messaging"
	redisstore "github.com/kursovik/kursovik-ai-api/internal/infrastructure/persistence/redis"
	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/dto"
	"github.com/kursovik/kursovik-ai-api/pkg/errors"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/utils"
)

// statsCacheTTL 统计快照的缓存时长。
// 统计是全表聚合，管理端轮询没必要每次都打到 SQLite。
const statsCacheTTL = 10 * time.Second

// AdminHandler 管理端处理器
type AdminHandler struct {
	orders   repository.OrderRepository
	producer JobPublisher
	jwt      *utils.JWTManager
	cache    *redisstore.Cache
	cfg      *config.Config
}

// NewAdminHandler 创建管理端处理器。cache 可为 nil，此时统计直接查库。
func NewAdminHandler(
	orders repository.OrderRepository,
	producer JobPublisher,
	jwtManager *utils.JWTManager,
	cache *redisstore.Cache,
	cfg *config.Config,
) *AdminHandler {
	return &AdminHandler{
		orders:   orders,
		producer: producer,
		jwt:      jwtManager,
		cache:    cache,
		cfg:      cfg,
	}
}

// Login 管理端登录，签发访问令牌
// @Summary 管理端登录
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body dto.AdminLoginRequest true "账号密码"
// @Success 200 {object} dto.Response[dto.AdminLoginResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/admin/login [post]
func (h *AdminHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	admin := h.cfg.Security.Admin
	if admin.Username == "" || admin.Password == "" {
		logger.Warn(ctx, "admin login attempted but admin account not configured")
		dto.Unauthorized(c, "admin login disabled")
		return
	}

	// 常量时间比较，避免用户名/密码逐字节泄露
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(admin.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(admin.Password)) == 1
	if !userOK || !passOK {
		logger.Warn(ctx, "admin login failed", "username", req.Username, "ip", c.ClientIP())
		dto.Unauthorized(c, "invalid credentials")
		return
	}

	ttl := h.cfg.Security.JWT.Expiration
	token, err := h.jwt.GenerateToken(req.Username, "admin", "access", ttl)
	if err != nil {
		logger.Error(ctx, "failed to generate admin token", err)
		dto.InternalError(c, "failed to generate token")
		return
	}

	logger.Info(ctx, "admin logged in", "username", req.Username, "ip", c.ClientIP())
	dto.Success(c, &dto.AdminLoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

// ListOrders 管理端订单列表，支持按状态过滤
// @Summary 管理端订单列表
// @Tags Admin
// @Produce json
// @Param status query string false "订单状态过滤"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.OrderResponse]
// @Router /v1/admin/orders [get]
func (h *AdminHandler) ListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	pageReq := dto.BindPage(c)

	filter := &repository.OrderFilter{}
	if status := strings.ToLower(strings.TrimSpace(c.Query("status"))); status != "" {
		switch entity.OrderStatus(status) {
		case entity.OrderStatusCreated, entity.OrderStatusGenerating,
			entity.OrderStatusCompleted, entity.OrderStatusFailed:
			filter.Status = entity.OrderStatus(status)
		default:
			dto.BadRequest(c, "unknown status: "+status)
			return
		}
	}
	if workType := strings.ToLower(strings.TrimSpace(c.Query("work_type"))); workType != "" {
		if !entity.WorkType(workType).IsValid() {
			dto.BadRequest(c, "unknown work type: "+workType)
			return
		}
		filter.WorkType = entity.WorkType(workType)
	}
	if userID := strings.TrimSpace(c.Query("user_id")); userID != "" {
		filter.UserID = userID
	}

	result, err := h.orders.List(ctx, filter, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		logger.Error(ctx, "failed to list orders", err)
		dto.InternalError(c, "failed to list orders")
		return
	}

	resp := dto.ToOrderListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}

// RequeueOrder 把失败订单重新投递到生成队列
// @Summary 重新投递订单
// @Tags Admin
// @Produce json
// @Param id path string true "订单 ID"
// @Success 200 {object} dto.Response[dto.RequeueOrderResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/admin/orders/{id}/requeue [post]
func (h *AdminHandler) RequeueOrder(c *gin.Context) {
	ctx := c.Request.Context()

	orderID := strings.TrimSpace(dto.BindOrderID(c))
	if orderID == "" {
		dto.BadRequest(c, "order id is required")
		return
	}

	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		respondError(c, err, "failed to get order")
		return
	}
	if order == nil {
		respondError(c, errors.ErrOrderNotFound, "order not found")
		return
	}

	if !order.CanRetry(h.cfg.Messaging.RedisStream.RetryLimit) {
		respondError(c, errors.New(errors.CodeOrderNotReady, "order cannot be requeued").
			WithDetail("status="+string(order.Status)), "order cannot be requeued")
		return
	}

	order.Requeue()
	if err := h.orders.Update(ctx, order); err != nil {
		logger.Error(ctx, "failed to update order for requeue", err, "order_id", order.ID)
		dto.InternalError(c, "failed to requeue order")
		return
	}

	if _, err := h.producer.PublishWorkGenJob(ctx, &messaging.WorkGenJobMessage{
		OrderID:  order.ID,
		UserID:   order.UserID,
		WorkType: string(order.WorkType),
		Theme:    order.Theme,
		Pages:    order.Pages,
		Model:    order.Model,
	}); err != nil {
		logger.Error(ctx, "failed to publish requeue job", err, "order_id", order.ID)
		respondError(c, errors.Wrap(err, errors.CodeQueueError, "failed to enqueue generation job"),
			"failed to enqueue generation job")
		return
	}

	if h.cache != nil {
		// 重投改变了状态分布，让统计快照提前过期
		if err := h.cache.Invalidate(ctx, redisstore.StatsKey); err != nil {
			logger.Warn(ctx, "failed to invalidate stats cache", "error", err)
		}
	}

	logger.Info(ctx, "order requeued", "order_id", order.ID, "retry_count", order.RetryCount)
	dto.Success(c, &dto.RequeueOrderResponse{
		ID:         order.ID,
		Requeued:   true,
		RetryCount: order.RetryCount,
	})
}

// Stats 订单与用量统计
// @Summary 订单统计
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[repository.OrderStats]
// @Router /v1/admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache == nil {
		stats, err := h.orders.GetOrderStats(ctx)
		if err != nil {
			logger.Error(ctx, "failed to get order stats", err)
			dto.InternalError(c, "failed to get stats")
			return
		}
		dto.Success(c, stats)
		return
	}

	// 统计由 worker 持续改写，短 TTL 的脏读可以接受
	raw, err := h.cache.GetOrLoadSafe(ctx, redisstore.StatsKey, statsCacheTTL, func() (interface{}, error) {
		return h.orders.GetOrderStats(ctx)
	})
	if err != nil {
		logger.Error(ctx, "failed to get order stats", err)
		dto.InternalError(c, "failed to get stats")
		return
	}

	var stats repository.OrderStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		logger.Error(ctx, "failed to decode cached stats", err)
		dto.InternalError(c, "failed to get stats")
		return
	}

	dto.Success(c, &stats)
}
