package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/application/work/pagecalc"
	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/dto"
)

// PlanHandler 工作计划校验处理器
type PlanHandler struct {
	pages pagecalc.Params
}

// NewPlanHandler 创建计划校验处理器
func NewPlanHandler(pages pagecalc.Params) *PlanHandler {
	return &PlanHandler{pages: pages}
}

// ValidatePlan 校验工作计划的结构深度
// @Summary 校验工作计划
// @Description 解析计划文本并检查条目数是否满足目标页数
// @Tags Plans
// @Accept json
// @Produce json
// @Param body body dto.ValidatePlanRequest true "计划文本和目标页数"
// @Success 200 {object} dto.Response[dto.ValidatePlanResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/plans/validate [post]
func (h *PlanHandler) ValidatePlan(c *gin.Context) {
	var req dto.ValidatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Plan) == "" {
		dto.BadRequest(c, "plan must not be empty")
		return
	}
	if req.Pages < minOrderPages || req.Pages > maxOrderPages {
		dto.BadRequest(c, "pages must be between 1 and 100")
		return
	}

	valid, items := h.pages.ValidateWorkPlan(req.Plan, req.Pages)
	chapters := pagecalc.ParseWorkPlan(req.Plan)

	minItems := req.Pages / 3
	if minItems < 1 {
		minItems = 1
	}

	dto.Success(c, &dto.ValidatePlanResponse{
		Valid:    valid,
		Items:    items,
		MinItems: minItems,
		Chapters: dto.ToPlanChapters(chapters),
	})
}
