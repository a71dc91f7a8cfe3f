// Package content 实现按页数预算的分步正文生成：
// 先让模型出计划，再逐章生成并度量页数，不足时补子小节，
// 超出容差时提前收束，最后追加文献列表并修复引用键。
package content

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/kursovik/kursovik-ai-api/internal/application/work/latexdoc"
	"github.com/kursovik/kursovik-ai-api/internal/application/work/pagecalc"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	wfmodel "github.com/kursovik/kursovik-ai-api/internal/workflow/model"
	workflowprompt "github.com/kursovik/kursovik-ai-api/internal/workflow/prompt"
	apperrors "github.com/kursovik/kursovik-ai-api/pkg/errors"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/metrics"
)

// AssistantInvoker 由 workflow 层的 AssistantChain 实现。
type AssistantInvoker interface {
	Invoke(ctx context.Context, in *wfmodel.AssistantAskInput) (*schema.Message, error)
}

// ProgressFunc 把阶段性进度回报给调用方。
// percent 属于生成器自己的 0-100 刻度，调用方自行换算到订单进度。
type ProgressFunc func(ctx context.Context, message string, percent int)

// Options 生成器参数。零值字段回退到默认值。
type Options struct {
	Pages pagecalc.Params
	// OvershootTolerance 提前收束的容差系数：累计页数达到目标乘以该系数即停
	OvershootTolerance float64
	// MaxValidationAttempts 单个片段 LaTeX 校验的最大生成次数
	MaxValidationAttempts int
	// PlanAttempts 计划生成的最大尝试次数
	PlanAttempts int
	// ValidationEnabled 关闭后片段不做 LaTeX 校验（CLI 调试用）
	ValidationEnabled bool
}

// DefaultOptions 返回生产默认参数。
func DefaultOptions() Options {
	return Options{
		Pages:                 pagecalc.DefaultParams(),
		OvershootTolerance:    1.15,
		MaxValidationAttempts: 3,
		PlanAttempts:          3,
		ValidationEnabled:     true,
	}
}

// Params 一次生成任务的业务参数。
type Params struct {
	OrderID  string
	Provider string
	Model    string
	Theme    string
	Pages    int
	WorkType entity.WorkType
}

// ValidationWarning 记录一个重试耗尽后仍未通过校验、但保留下来的片段。
type ValidationWarning struct {
	Section  string
	Attempts int
	Detail   string
}

// Result 生成结果。
type Result struct {
	// Text 完整的 LaTeX 正文（不含文档模板）
	Text string
	// PagesGenerated 正文折算页数
	PagesGenerated float64
	// ChapterCount 计划解析出的章节数（含文献列表），目录页数估算用
	ChapterCount int
	// Warnings 校验未通过但保留的片段
	Warnings []ValidationWarning
}

// Generator 分步内容生成器。
type Generator struct {
	invoker  AssistantInvoker
	registry *workflowprompt.Registry
	opts     Options
	rng      *rand.Rand
}

func NewGenerator(invoker AssistantInvoker, registry *workflowprompt.Registry, opts Options) *Generator {
	return &Generator{
		invoker:  invoker,
		registry: registry,
		opts:     opts,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewConversation 为订单创建带 system 指令的新对话。
func (g *Generator) NewConversation(orderID string) (*Conversation, error) {
	system, err := workflowprompt.SystemPrompt()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "load system prompt")
	}
	return NewConversation(orderID, system), nil
}

// GenerateWorkPlan 生成工作计划。
// 计划条目数不达标时重试，次数耗尽后返回最后一版计划：
// 解析不出章节时上层自会落到 legacy 整篇生成。
func (g *Generator) GenerateWorkPlan(ctx context.Context, conv *Conversation, p Params) (string, error) {
	vars := map[string]any{
		"work_type": p.WorkType.Genitive(),
		"theme":     p.Theme,
		"pages":     p.Pages,
	}

	attempts := g.planAttempts()
	var plan string
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		plan, err = g.ask(ctx, conv, p, "work_plan", workflowprompt.PromptWorkPlanV1, vars)
		if err != nil {
			return "", err
		}
		ok, items := g.opts.Pages.ValidateWorkPlan(plan, p.Pages)
		if ok {
			return plan, nil
		}
		logger.Warn(ctx, "work plan too shallow",
			"order_id", p.OrderID,
			"items", items,
			"attempt", attempt,
			"max_attempts", attempts,
		)
	}
	return plan, nil
}

// GenerateWorkContentStepwise 按计划逐章生成正文。
// 计划解析不出章节时退回 legacy 整篇生成。
func (g *Generator) GenerateWorkContentStepwise(ctx context.Context, conv *Conversation, p Params, planText string, progress ProgressFunc) (*Result, error) {
	chapters := pagecalc.ParseWorkPlan(planText)
	if len(chapters) == 0 {
		logger.Warn(ctx, "plan yielded no chapters, falling back to legacy generation", "order_id", p.OrderID)
		return g.GenerateFullWorkContentLegacy(ctx, conv, p)
	}

	mainChapters, biblioChapter := splitChapters(chapters)

	contentTarget := g.opts.Pages.CalculateContentPagesForTarget(p.Pages, len(mainChapters))
	budgets := g.opts.Pages.CalculatePagesPerChapter(contentTarget-bibliographyPages, mainChapters)

	var warnings []ValidationWarning
	var full strings.Builder
	totalPages := 0.0

	for i, chapter := range mainChapters {
		target, ok := budgets[chapter.Title]
		if !ok {
			target = defaultChapterPages
		}

		if progress != nil {
			pct := int(float64(i) / float64(len(mainChapters)) * 90)
			progress(ctx, fmt.Sprintf("Генерирую главу: %s...", truncateRunes(chapter.Title, 50)), pct)
		}

		chapterContent, warn, err := g.GenerateChapterContent(ctx, conv, p, chapter.Title, target)
		if err != nil {
			return nil, err
		}
		if warn != nil {
			warnings = append(warnings, *warn)
		}

		currentPages := g.opts.Pages.CountPagesInText(chapterContent)
		if g.opts.Pages.ShouldGenerateSubsections(currentPages, target) {
			subContent, subWarnings, err := g.GenerateSubsectionsContent(ctx, conv, p, chapter.Title, chapter.Subsections, target-currentPages)
			if err != nil {
				return nil, err
			}
			warnings = append(warnings, subWarnings...)
			if subContent != "" {
				chapterContent += "\n\n" + subContent
				currentPages = g.opts.Pages.CountPagesInText(chapterContent)
			}
		}

		full.WriteString(chapterContent)
		full.WriteString("\n\n\\newpage\n\n")
		totalPages += currentPages

		if totalPages >= contentTarget*g.overshoot() {
			logger.Info(ctx, "content target reached, stopping early",
				"order_id", p.OrderID,
				"generated_pages", totalPages,
				"target_pages", contentTarget,
				"chapters_done", i+1,
				"chapters_total", len(mainChapters),
			)
			break
		}
	}

	// 文献列表永远收尾，哪怕正文提前收束
	if progress != nil {
		progress(ctx, "Генерирую список источников...", 95)
	}
	biblioTitle := defaultBibliographyTitle
	if biblioChapter != nil {
		biblioTitle = biblioChapter.Title
	}
	biblioContent, warn, err := g.GenerateChapterContent(ctx, conv, p, biblioTitle, bibliographyPages)
	if err != nil {
		return nil, err
	}
	if warn != nil {
		warnings = append(warnings, *warn)
	}

	text := strings.TrimSpace(full.String() + biblioContent)
	text, stats := RepairCitations(text, g.rng.Intn)
	recordCitationStats(stats)

	return &Result{
		Text:           text,
		PagesGenerated: g.opts.Pages.CountPagesInText(text),
		ChapterCount:   len(chapters),
		Warnings:       warnings,
	}, nil
}

// GenerateChapterContent 生成单章正文，按标题关键字路由到对应提示词。
func (g *Generator) GenerateChapterContent(ctx context.Context, conv *Conversation, p Params, chapterTitle string, targetPages float64) (string, *ValidationWarning, error) {
	titleLower := strings.ToLower(chapterTitle)
	baseVars := map[string]any{
		"work_type": p.WorkType.Genitive(),
		"theme":     p.Theme,
	}

	var (
		id       workflowprompt.PromptID
		workflow string
	)
	switch {
	case strings.Contains(titleLower, "введение"):
		id, workflow = workflowprompt.PromptChapterIntroV1, "chapter_intro"
		baseVars["target_chars"] = g.opts.Pages.TargetChars(targetPages)
	case strings.Contains(titleLower, "заключение"):
		id, workflow = workflowprompt.PromptChapterConclusionV1, "chapter_conclusion"
		baseVars["target_chars"] = g.opts.Pages.TargetChars(targetPages)
	case strings.Contains(titleLower, "список"), strings.Contains(titleLower, "библиография"):
		id, workflow = workflowprompt.PromptChapterBibliographyV1, "chapter_bibliography"
	default:
		id, workflow = workflowprompt.PromptChapterGenericV1, "chapter_generic"
		baseVars["chapter_title"] = chapterTitle
		baseVars["target_chars"] = g.opts.Pages.TargetChars(targetPages)
	}

	return g.askValidated(ctx, conv, p, workflow, id, baseVars, chapterTitle)
}

// GenerateSubsectionsContent 为体量不足的章节补充子小节。
// 计划里没有子小节时先让模型自拟标题（这一步不做校验），
// 再逐个生成正文并用 FixSectionCommands 修正层级。
func (g *Generator) GenerateSubsectionsContent(ctx context.Context, conv *Conversation, p Params, chapterTitle string, subsections []string, targetPages float64) (string, []ValidationWarning, error) {
	if len(subsections) == 0 {
		titlesText, err := g.ask(ctx, conv, p, "subsection_titles", workflowprompt.PromptSubsectionTitlesV1, map[string]any{
			"chapter_title": chapterTitle,
			"theme":         p.Theme,
		})
		if err != nil {
			return "", nil, err
		}
		for _, line := range strings.Split(titlesText, "\n") {
			if title := strings.TrimSpace(line); title != "" {
				subsections = append(subsections, title)
			}
		}
	}
	if len(subsections) == 0 {
		return "", nil, nil
	}

	targetChars := g.opts.Pages.TargetChars(targetPages / float64(len(subsections)))

	var warnings []ValidationWarning
	var b strings.Builder
	for _, subsection := range subsections {
		vars := map[string]any{
			"subsection_title": subsection,
			"chapter_title":    chapterTitle,
			"theme":            p.Theme,
			"target_chars":     targetChars,
		}
		text, warn, err := g.askValidated(ctx, conv, p, "subsection", workflowprompt.PromptSubsectionV1, vars, subsection)
		if err != nil {
			return "", warnings, err
		}
		if warn != nil {
			warnings = append(warnings, *warn)
		}
		b.WriteString(latexdoc.FixSectionCommands(text, subsection))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), warnings, nil
}

// GenerateSimpleWorkContent 短篇路径：正文一次生成，文献列表另起一问。
// 无计划、无目录，适用于一两页的小作业。
func (g *Generator) GenerateSimpleWorkContent(ctx context.Context, conv *Conversation, p Params) (*Result, error) {
	vars := map[string]any{
		"work_type": p.WorkType.Genitive(),
		"theme":     p.Theme,
	}

	var warnings []ValidationWarning

	body, warn, err := g.askValidated(ctx, conv, p, "simple_work", workflowprompt.PromptSimpleWorkV1, vars, "Основная часть")
	if err != nil {
		return nil, err
	}
	if warn != nil {
		warnings = append(warnings, *warn)
	}

	biblio, warn, err := g.askValidated(ctx, conv, p, "simple_bibliography", workflowprompt.PromptSimpleBibliographyV1, vars, defaultBibliographyTitle)
	if err != nil {
		return nil, err
	}
	if warn != nil {
		warnings = append(warnings, *warn)
	}

	text := body + "\n\n" + biblio
	text, stats := RepairCitations(text, g.rng.Intn)
	recordCitationStats(stats)

	return &Result{
		Text:           text,
		PagesGenerated: g.opts.Pages.CountPagesInText(text),
		Warnings:       warnings,
	}, nil
}

// GenerateFullWorkContentLegacy 整篇一次生成，计划不可解析时的兜底。
func (g *Generator) GenerateFullWorkContentLegacy(ctx context.Context, conv *Conversation, p Params) (*Result, error) {
	vars := map[string]any{
		"work_type": p.WorkType.Genitive(),
		"theme":     p.Theme,
		"pages":     p.Pages,
	}
	text, err := g.ask(ctx, conv, p, "legacy_full_work", workflowprompt.PromptLegacyFullWorkV1, vars)
	if err != nil {
		return nil, err
	}

	text, stats := RepairCitations(text, g.rng.Intn)
	recordCitationStats(stats)

	return &Result{
		Text:           text,
		PagesGenerated: g.opts.Pages.CountPagesInText(text),
		Warnings:       nil,
	}, nil
}

// ask 渲染提示词、追加到对话、调用模型并把回答写回对话。
func (g *Generator) ask(ctx context.Context, conv *Conversation, p Params, workflow string, id workflowprompt.PromptID, vars map[string]any) (string, error) {
	userMsg, err := g.registry.Render(ctx, id, vars)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeGenerationFailed, "render prompt")
	}
	conv.Append(userMsg)

	out, err := g.invoker.Invoke(ctx, &wfmodel.AssistantAskInput{
		Workflow: workflow,
		Provider: p.Provider,
		Model:    p.Model,
		Messages: conv.Messages(),
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "LLM call failed")
	}
	text := strings.TrimSpace(out.Content)
	if text == "" {
		return "", apperrors.New(apperrors.CodeLLMEmptyResponse, "LLM returned empty response").
			WithDetail(fmt.Sprintf("workflow=%s order=%s", workflow, p.OrderID))
	}
	conv.Append(out)
	return text, nil
}

// askValidated 在 ask 之上加 LaTeX 环境配对校验。
// 未通过时重发同一提示词索要新版本，次数耗尽保留最后一版并返回告警。
func (g *Generator) askValidated(ctx context.Context, conv *Conversation, p Params, workflow string, id workflowprompt.PromptID, vars map[string]any, section string) (string, *ValidationWarning, error) {
	attempts := g.validationAttempts()

	var text, lastDetail string
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		text, err = g.ask(ctx, conv, p, workflow, id, vars)
		if err != nil {
			return "", nil, err
		}
		if !g.opts.ValidationEnabled {
			return text, nil, nil
		}

		ok, detail := latexdoc.ValidateLatexTags(text)
		if ok {
			metrics.LatexValidationTotal.WithLabelValues(workflow, "valid").Inc()
			return text, nil, nil
		}
		metrics.LatexValidationTotal.WithLabelValues(workflow, "invalid").Inc()
		lastDetail = detail

		if attempt < attempts {
			metrics.LatexValidationRetries.WithLabelValues(workflow).Inc()
			logger.Warn(ctx, "fragment failed latex validation, requesting again",
				"order_id", p.OrderID,
				"section", section,
				"attempt", attempt,
				"detail", detail,
			)
		}
	}

	// 所有尝试都失败：保留最后一版，交给编译阶段碰运气
	metrics.LatexInvalidKept.Inc()
	logger.Warn(ctx, "fragment kept despite failed latex validation",
		"order_id", p.OrderID,
		"section", section,
		"attempts", attempts,
		"detail", lastDetail,
	)
	return text, &ValidationWarning{Section: section, Attempts: attempts, Detail: lastDetail}, nil
}

const (
	// bibliographyPages 文献列表的固定页数预算
	bibliographyPages = 0.5
	// defaultChapterPages 预算映射缺项时的章节预算
	defaultChapterPages = 2.0

	defaultBibliographyTitle = "Список использованных источников"
)

// bibliographyKeywords 识别文献列表章节的标题关键字。
var bibliographyKeywords = []string{"список", "библиография", "источник", "литература"}

func isBibliographyChapter(title string) bool {
	lower := strings.ToLower(title)
	for _, keyword := range bibliographyKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// splitChapters 把计划分成正文章节和文献列表章节。
func splitChapters(chapters []pagecalc.Chapter) ([]pagecalc.Chapter, *pagecalc.Chapter) {
	var main []pagecalc.Chapter
	var biblio *pagecalc.Chapter
	for i := range chapters {
		if isBibliographyChapter(chapters[i].Title) {
			biblio = &chapters[i]
			continue
		}
		main = append(main, chapters[i])
	}
	return main, biblio
}

func (g *Generator) overshoot() float64 {
	if g.opts.OvershootTolerance > 0 {
		return g.opts.OvershootTolerance
	}
	return 1.15
}

func (g *Generator) validationAttempts() int {
	if g.opts.MaxValidationAttempts > 0 {
		return g.opts.MaxValidationAttempts
	}
	return 3
}

func (g *Generator) planAttempts() int {
	if g.opts.PlanAttempts > 0 {
		return g.opts.PlanAttempts
	}
	return 3
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func recordCitationStats(stats CitationStats) {
	if stats.Sequential > 0 {
		metrics.CitationsRewritten.WithLabelValues("sequential").Add(float64(stats.Sequential))
	}
	if stats.Random > 0 {
		metrics.CitationsRewritten.WithLabelValues("random").Add(float64(stats.Random))
	}
	if stats.Stripped > 0 {
		metrics.CitationsRewritten.WithLabelValues("stripped").Add(float64(stats.Stripped))
	}
}
