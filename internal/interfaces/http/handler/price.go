package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/dto"
	"github.com/kursovik/kursovik-ai-api/pkg/errors"
)

// PriceHandler 计价处理器
type PriceHandler struct {
	pricing *service.PriceCalculator
	cfg     *config.Config
}

// NewPriceHandler 创建计价处理器
func NewPriceHandler(pricing *service.PriceCalculator, cfg *config.Config) *PriceHandler {
	return &PriceHandler{pricing: pricing, cfg: cfg}
}

// GetPrice 查询订单价格
// 价格只取决于模型，页数不参与计价。
// @Summary 查询价格
// @Tags Pricing
// @Produce json
// @Param model query string false "模型名，缺省用默认供应商的模型"
// @Param work_type query string false "工作类型"
// @Success 200 {object} dto.Response[dto.PriceResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/price [get]
func (h *PriceHandler) GetPrice(c *gin.Context) {
	workType := strings.ToLower(strings.TrimSpace(c.Query("work_type")))
	if workType != "" && !entity.WorkType(workType).IsValid() {
		respondError(c, errors.New(errors.CodeUnknownWorkType, "unknown work type").
			WithDetail("work_type="+workType), "invalid work type")
		return
	}

	model, err := resolveModel(h.cfg, c.Query("model"))
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	dto.Success(c, &dto.PriceResponse{
		Model:    model,
		WorkType: workType,
		Price:    h.pricing.Calculate(model),
		Currency: dto.Currency,
	})
}
