// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"github.com/kursovik/kursovik-ai-api/internal/application/work/pagecalc"
)

// ValidatePlanRequest 工作计划校验请求
type ValidatePlanRequest struct {
	Plan  string `json:"plan" binding:"required"`
	Pages int    `json:"pages" binding:"required"`
}

// PlanChapter 解析出的一章
type PlanChapter struct {
	Title       string   `json:"title"`
	Subsections []string `json:"subsections,omitempty"`
}

// ValidatePlanResponse 工作计划校验结果
type ValidatePlanResponse struct {
	Valid    bool          `json:"valid"`
	Items    int           `json:"items"`
	MinItems int           `json:"min_items"`
	Chapters []PlanChapter `json:"chapters"`
}

// ToPlanChapters 将解析结果转换为响应结构
func ToPlanChapters(chapters []pagecalc.Chapter) []PlanChapter {
	out := make([]PlanChapter, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, PlanChapter{
			Title:       ch.Title,
			Subsections: ch.Subsections,
		})
	}
	return out
}
