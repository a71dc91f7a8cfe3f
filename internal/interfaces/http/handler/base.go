package handler

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/dto"
	"github.com/kursovik/kursovik-ai-api/pkg/errors"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
)

// resolveModel 解析订单使用的 LLM 模型名。
// 空值回落到默认提供商配置的模型；"test" 直通离线测试模型，
// 不要求出现在提供商配置里。
func resolveModel(cfg *config.Config, model string) (string, error) {
	m := strings.TrimSpace(model)
	if strings.EqualFold(m, "test") {
		return "test", nil
	}
	if m == "" {
		if cfg == nil {
			return "", fmt.Errorf("server config not configured")
		}
		p := strings.TrimSpace(cfg.LLM.DefaultProvider)
		if p == "" {
			return "", fmt.Errorf("llm provider not specified")
		}
		providerCfg, ok := cfg.LLM.Providers[p]
		if !ok {
			return "", fmt.Errorf("llm provider not found: %s", p)
		}
		m = strings.TrimSpace(providerCfg.Model)
		if m == "" {
			return "", fmt.Errorf("llm model not configured for provider %s", p)
		}
	}
	if len(m) > 64 {
		return "", fmt.Errorf("llm model too long")
	}
	return m, nil
}

// respondError 把应用错误映射为统一错误响应；未知错误记日志并回 500。
func respondError(c *gin.Context, err error, fallback string) {
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
			ErrorCode: string(appErr.Code),
			Details:   appErr.Detail,
		})
		return
	}
	logger.Error(c.Request.Context(), fallback, err)
	dto.InternalError(c, fallback)
}
