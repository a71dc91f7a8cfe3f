package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/dto"
)

// SamplesHandler 示例主题处理器
type SamplesHandler struct {
	cfg *config.Config
}

// NewSamplesHandler 创建示例主题处理器
func NewSamplesHandler(cfg *config.Config) *SamplesHandler {
	return &SamplesHandler{cfg: cfg}
}

// GetSamples 返回示例主题和支持的工作类型
// @Summary 获取示例主题
// @Tags Samples
// @Produce json
// @Success 200 {object} dto.Response[dto.SamplesResponse]
// @Router /v1/samples [get]
func (h *SamplesHandler) GetSamples(c *gin.Context) {
	themes := []string{}
	if h.cfg != nil {
		themes = h.cfg.Samples.Themes
	}

	workTypes := make([]dto.WorkTypeOption, 0, len(entity.AllWorkTypes()))
	for _, t := range entity.AllWorkTypes() {
		workTypes = append(workTypes, dto.WorkTypeOption{
			Value: string(t),
			Label: t.Label(),
		})
	}

	dto.Success(c, &dto.SamplesResponse{
		Themes:    themes,
		WorkTypes: workTypes,
	})
}
