// Package work 编排订单的完整生成流程：
// 计划与正文生成、LaTeX 文档组装、PDF 编译、DOCX 转换、产物落盘与通知。
package work

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kursovik/kursovik-ai-api/internal/application/work/content"
	"github.com/kursovik/kursovik-ai-api/internal/application/work/latexdoc"
	"github.com/kursovik/kursovik-ai-api/internal/application/work/pagecalc"
	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/repository"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
	apperrors "github.com/kursovik/kursovik-ai-api/pkg/errors"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("application.work")

// DocumentConverter 文档转换出口，生产实现封装 pdflatex/pandoc/libreoffice。
type DocumentConverter interface {
	CompileLatexToPDF(ctx context.Context, texContent string, workDir string, baseName string) (string, error)
	ConvertTexToDocx(ctx context.Context, texPath string, workDir string) (string, error)
}

// ProgressSink 进度快照的快路径出口，实现应为尽力而为。
type ProgressSink interface {
	Publish(ctx context.Context, orderID string, progress int, stage, message string) error
}

// Config 生成编排参数。
type Config struct {
	// Provider 默认 LLM 提供商名
	Provider string
	// Pages 页数模型参数，用于统计整篇文档的折算页数
	Pages pagecalc.Params
	// SimpleWorkMaxPages 小于等于该页数的订单走单次生成，不出计划和目录
	SimpleWorkMaxPages int
	// ArtifactsDir 产物根目录，每个订单一个子目录
	ArtifactsDir string
	// WorkDir 生成期间的临时目录根，空值用系统临时目录
	WorkDir string
	// KeepWorkDir 调试用，保留临时目录
	KeepWorkDir bool
	// DocxEnabled 是否生成 DOCX 产物
	DocxEnabled bool
	// FailOnInvalidLatex 校验重试耗尽后不保留片段，直接判订单失败
	FailOnInvalidLatex bool
}

// NewConfig 从应用配置构造编排参数。
func NewConfig(cfg *config.Config) Config {
	return Config{
		Provider:           cfg.LLM.DefaultProvider,
		Pages:              NewPagesParams(&cfg.Generation),
		SimpleWorkMaxPages: cfg.Generation.SimpleWorkMaxPages,
		ArtifactsDir:       cfg.Storage.Artifacts.Dir,
		WorkDir:            cfg.Storage.Artifacts.WorkDir,
		KeepWorkDir:        cfg.Storage.Artifacts.KeepWorkDir,
		DocxEnabled:        cfg.Features.Docx.Enabled,
		FailOnInvalidLatex: !cfg.Features.Validation.KeepOnFailure,
	}
}

// NewPagesParams 从生成配置构造页数模型参数。
func NewPagesParams(gen *config.GenerationConfig) pagecalc.Params {
	return pagecalc.Params{
		SymbolsPerPage:      gen.SymbolsPerPage,
		TitlePagePages:      gen.TitlePagePages,
		TOCBasePages:        gen.TOCBasePages,
		TOCPerChapterPages:  gen.TOCPerChapterPages,
		SubsectionThreshold: gen.SubsectionThreshold,
	}
}

// NewContentOptions 从应用配置构造内容生成器参数。
func NewContentOptions(cfg *config.Config) content.Options {
	return content.Options{
		Pages:                 NewPagesParams(&cfg.Generation),
		OvershootTolerance:    cfg.Generation.OvershootTolerance,
		MaxValidationAttempts: cfg.Generation.MaxValidationAttempts,
		PlanAttempts:          cfg.Generation.PlanAttempts,
		ValidationEnabled:     cfg.Features.Validation.Enabled,
	}
}

// WorkGenerator 串联内容生成与产物转换的应用服务。
// 一次 Generate 调用处理一个订单，可安全并发处理不同订单。
type WorkGenerator struct {
	generator *content.Generator
	converter DocumentConverter
	orders    repository.OrderRepository
	progress  ProgressSink
	notifier  service.AdminNotifier
	cfg       Config
}

// NewWorkGenerator 创建生成编排服务。progress 和 notifier 可为 nil。
func NewWorkGenerator(
	generator *content.Generator,
	converter DocumentConverter,
	orders repository.OrderRepository,
	progress ProgressSink,
	notifier service.AdminNotifier,
	cfg Config,
) *WorkGenerator {
	return &WorkGenerator{
		generator: generator,
		converter: converter,
		orders:    orders,
		progress:  progress,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Generate 执行订单的完整生成流程并推进订单状态。
// PDF 编译失败是致命错误；DOCX 转换失败只降级，订单仍算完成。
func (g *WorkGenerator) Generate(ctx context.Context, order *entity.Order) error {
	ctx, span := tracer.Start(ctx, "work.WorkGenerator.Generate",
		trace.WithAttributes(
			attribute.String("order.id", order.ID),
			attribute.String("order.work_type", string(order.WorkType)),
			attribute.Int("order.pages", order.Pages),
		))
	defer span.End()

	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	start := time.Now()

	order.Start()
	if err := g.orders.Update(ctx, order); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "mark order generating")
	}

	logger.Info(ctx, "work generation started",
		"order_id", order.ID,
		"work_type", string(order.WorkType),
		"theme", order.Theme,
		"pages", order.Pages,
		"model", order.Model,
	)

	result, includeTOC, err := g.generateContent(ctx, order)
	if err != nil {
		return g.fail(ctx, span, order, err)
	}

	if len(result.Warnings) > 0 {
		warnText := formatWarnings(result.Warnings)
		if g.cfg.FailOnInvalidLatex {
			err := apperrors.New(apperrors.CodeLatexInvalid, "generated fragments failed latex validation").
				WithDetail(warnText)
			return g.fail(ctx, span, order, err)
		}
		logger.Warn(ctx, "order completed with validation warnings",
			"order_id", order.ID,
			"warnings", len(result.Warnings),
		)
		if g.notifier != nil {
			if nerr := g.notifier.NotifyGenerationWarning(ctx, order, warnText); nerr != nil {
				logger.Warn(ctx, "failed to notify generation warning", "order_id", order.ID, "error", nerr.Error())
			}
		}
	}

	g.reportProgress(ctx, order, 92, "latex", "Собираю документ...")
	document := latexdoc.CreateLatexDocument(order.Theme, result.Text, includeTOC)

	tempDir, cleanup, err := g.workspace(order.ID)
	if err != nil {
		return g.fail(ctx, span, order, apperrors.Wrap(err, apperrors.CodeInternalError, "create work directory"))
	}
	defer cleanup(ctx)

	baseName := "work_" + order.ID

	g.reportProgress(ctx, order, 95, "pdf", "Компилирую PDF...")
	pdfPath, err := g.converter.CompileLatexToPDF(ctx, document, tempDir, baseName)
	if err != nil {
		return g.fail(ctx, span, order, err)
	}

	docxPath := ""
	if g.cfg.DocxEnabled {
		g.reportProgress(ctx, order, 98, "docx", "Готовлю DOCX...")
		texPath := filepath.Join(tempDir, baseName+".tex")
		docxPath, err = g.converter.ConvertTexToDocx(ctx, texPath, tempDir)
		if err != nil {
			// DOCX 只是附加格式，转换失败不影响订单
			logger.Warn(ctx, "docx conversion failed, order continues without docx",
				"order_id", order.ID,
				"error", err.Error(),
			)
			docxPath = ""
		}
	}

	if err := g.storeArtifacts(ctx, order, tempDir, baseName, pdfPath, docxPath); err != nil {
		return g.fail(ctx, span, order, err)
	}

	totalPages := g.cfg.Pages.CountTotalPagesInDocument(result.Text, result.ChapterCount)

	order.FullTex = document
	order.Complete(totalPages)
	if err := g.orders.Update(ctx, order); err != nil {
		return g.fail(ctx, span, order, apperrors.Wrap(err, apperrors.CodeDatabaseError, "persist completed order"))
	}
	g.reportProgress(ctx, order, 100, "done", "Готово")

	metrics.WorkGenerationTotal.WithLabelValues(string(order.WorkType), "success").Inc()
	metrics.WorkGenerationDuration.WithLabelValues(string(order.WorkType)).Observe(time.Since(start).Seconds())
	metrics.WorkGeneratedPages.WithLabelValues(string(order.WorkType)).Observe(totalPages)

	logger.Info(ctx, "work generation finished",
		"order_id", order.ID,
		"pages_generated", totalPages,
		"duration_ms", order.DurationMs,
		"pdf_path", order.PDFPath,
		"docx_path", order.DocxPath,
	)

	if g.notifier != nil {
		if nerr := g.notifier.NotifyOrderCompleted(ctx, order); nerr != nil {
			logger.Warn(ctx, "failed to notify order completion", "order_id", order.ID, "error", nerr.Error())
		}
	}
	return nil
}

// generateContent 按订单页数选择生成路径并返回正文。
// 短订单走单次生成且不带目录，其余按计划逐章生成。
func (g *WorkGenerator) generateContent(ctx context.Context, order *entity.Order) (*content.Result, bool, error) {
	conv, err := g.generator.NewConversation(order.ID)
	if err != nil {
		return nil, false, err
	}

	params := content.Params{
		OrderID:  order.ID,
		Provider: g.providerFor(order),
		Model:    order.Model,
		Theme:    order.Theme,
		Pages:    order.Pages,
		WorkType: order.WorkType,
	}

	if order.Pages <= g.simpleMaxPages() {
		g.reportProgress(ctx, order, 10, "content", "Генерирую текст работы...")
		result, err := g.generator.GenerateSimpleWorkContent(ctx, conv, params)
		if err != nil {
			return nil, false, err
		}
		return result, false, nil
	}

	g.reportProgress(ctx, order, 5, "plan", "Составляю план работы...")
	plan, err := g.generator.GenerateWorkPlan(ctx, conv, params)
	if err != nil {
		return nil, false, err
	}

	g.reportProgress(ctx, order, 10, "content", "Генерирую содержимое...")
	contentProgress := func(ctx context.Context, message string, percent int) {
		// 内容生成占订单进度的 10-90 区间
		g.reportProgress(ctx, order, 10+percent*80/100, "content", message)
	}
	result, err := g.generator.GenerateWorkContentStepwise(ctx, conv, params, plan, contentProgress)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// providerFor 解析订单使用的提供商。模型名 test 强制走本地测试模型。
func (g *WorkGenerator) providerFor(order *entity.Order) string {
	if strings.EqualFold(order.Model, "test") {
		return "test"
	}
	return g.cfg.Provider
}

func (g *WorkGenerator) simpleMaxPages() int {
	if g.cfg.SimpleWorkMaxPages > 0 {
		return g.cfg.SimpleWorkMaxPages
	}
	return 2
}

// workspace 创建订单的临时工作目录，返回清理函数。
func (g *WorkGenerator) workspace(orderID string) (string, func(context.Context), error) {
	if g.cfg.WorkDir != "" {
		if err := os.MkdirAll(g.cfg.WorkDir, 0o755); err != nil {
			return "", nil, err
		}
	}
	dir, err := os.MkdirTemp(g.cfg.WorkDir, "workgen-"+orderID+"-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func(ctx context.Context) {
		if g.cfg.KeepWorkDir {
			logger.Debug(ctx, "keeping work directory", "dir", dir)
			return
		}
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn(ctx, "failed to remove work directory", "dir", dir, "error", rmErr.Error())
		}
	}
	return dir, cleanup, nil
}

// storeArtifacts 把产物从临时目录移动到订单的产物目录并更新路径。
func (g *WorkGenerator) storeArtifacts(ctx context.Context, order *entity.Order, tempDir, baseName, pdfPath, docxPath string) error {
	destDir := filepath.Join(g.cfg.ArtifactsDir, order.ID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalError, "create artifacts directory")
	}

	texDst := filepath.Join(destDir, baseName+".tex")
	if err := moveFile(filepath.Join(tempDir, baseName+".tex"), texDst); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalError, "store tex artifact")
	}
	order.TexPath = texDst

	pdfDst := filepath.Join(destDir, baseName+".pdf")
	if err := moveFile(pdfPath, pdfDst); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalError, "store pdf artifact")
	}
	order.PDFPath = pdfDst

	if docxPath != "" {
		docxDst := filepath.Join(destDir, baseName+".docx")
		if err := moveFile(docxPath, docxDst); err != nil {
			logger.Warn(ctx, "failed to store docx artifact", "order_id", order.ID, "error", err.Error())
		} else {
			order.DocxPath = docxDst
		}
	}
	return nil
}

// fail 统一的失败收尾：落库、推进度、上报指标并通知管理员。
func (g *WorkGenerator) fail(ctx context.Context, span trace.Span, order *entity.Order, err error) error {
	span.RecordError(err)

	order.Fail(err.Error())
	if uerr := g.orders.Update(ctx, order); uerr != nil {
		logger.Error(ctx, "failed to persist failed order", uerr, "order_id", order.ID)
	}
	if g.progress != nil {
		if perr := g.progress.Publish(ctx, order.ID, order.Progress, "failed", "Генерация не удалась"); perr != nil {
			logger.Warn(ctx, "failed to publish failure progress", "order_id", order.ID, "error", perr.Error())
		}
	}

	metrics.WorkGenerationTotal.WithLabelValues(string(order.WorkType), "failed").Inc()
	logger.Error(ctx, "work generation failed", err, "order_id", order.ID)

	if g.notifier != nil {
		if nerr := g.notifier.NotifyOrderFailed(ctx, order, err.Error()); nerr != nil {
			logger.Warn(ctx, "failed to notify order failure", "order_id", order.ID, "error", nerr.Error())
		}
	}
	return err
}

// reportProgress 同步推进订单行和快路径进度。进度写失败不影响主流程。
func (g *WorkGenerator) reportProgress(ctx context.Context, order *entity.Order, progress int, stage, message string) {
	order.UpdateProgress(progress, stage)
	if err := g.orders.UpdateProgress(ctx, order.ID, order.Progress, stage); err != nil {
		logger.Warn(ctx, "failed to persist progress", "order_id", order.ID, "error", err.Error())
	}
	if g.progress != nil {
		if err := g.progress.Publish(ctx, order.ID, order.Progress, stage, message); err != nil {
			logger.Warn(ctx, "failed to publish progress", "order_id", order.ID, "error", err.Error())
		}
	}
}

// formatWarnings 把校验告警拼成一段通知文本。
func formatWarnings(warnings []content.ValidationWarning) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d fragment(s) kept after failed latex validation:\n", len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(&b, "- %s (attempts: %d): %s\n", w.Section, w.Attempts, w.Detail)
	}
	return strings.TrimRight(b.String(), "\n")
}

// moveFile 移动文件，跨文件系统时回退到复制。
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
