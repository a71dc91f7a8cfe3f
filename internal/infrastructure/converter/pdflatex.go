package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kursovik/kursovik-ai-api/pkg/errors"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/metrics"
)

// CompileLatexToPDF 将 LaTeX 源码编译为 PDF,返回产物路径
//
// pdflatex 运行两遍以生成目录和交叉引用。编译器的非零退出码不直接视为失败,
// 只要产出的 PDF 超过最小体积就认为编译成功;否则返回携带完整编译日志的错误
func (c *Converter) CompileLatexToPDF(ctx context.Context, texContent string, workDir string, baseName string) (string, error) {
	ctx, span := tracer.Start(ctx, "converter.Converter.CompileLatexToPDF",
		trace.WithAttributes(attribute.String("base_name", baseName)))
	defer span.End()

	start := time.Now()

	texPath := filepath.Join(workDir, baseName+".tex")
	pdfPath := filepath.Join(workDir, baseName+".pdf")

	if err := os.WriteFile(texPath, []byte(texContent), 0o644); err != nil {
		metrics.PDFCompileTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		return "", fmt.Errorf("failed to write tex file: %w", err)
	}

	args := []string{"-interaction=nonstopmode", "-output-directory", workDir, texPath}

	var logs []string

	logger.Debug(ctx, "running first pdflatex pass", "tex_path", texPath)
	log1, code1, err1 := c.runTool(ctx, workDir, c.cfg.PDFLatexPath, args...)
	logs = append(logs, "=== First Pass ===", log1)
	if err1 != nil {
		logger.Warn(ctx, "first pdflatex pass reported errors", "exit_code", code1, "error", err1.Error())
	}

	logger.Debug(ctx, "running second pdflatex pass", "tex_path", texPath)
	log2, code2, err2 := c.runTool(ctx, workDir, c.cfg.PDFLatexPath, args...)
	logs = append(logs, "=== Second Pass ===", log2)
	if err2 != nil {
		logger.Warn(ctx, "second pdflatex pass reported errors", "exit_code", code2, "error", err2.Error())
	}

	info, statErr := os.Stat(pdfPath)
	if statErr == nil && info.Size() > c.cfg.MinPDFBytes {
		metrics.PDFCompileTotal.WithLabelValues("success").Inc()
		metrics.PDFCompileDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int64("pdf_bytes", info.Size()))
		logger.Info(ctx, "pdf compiled",
			"pdf_path", pdfPath,
			"size_bytes", info.Size(),
			"duration_ms", time.Since(start).Milliseconds())
		return pdfPath, nil
	}

	metrics.PDFCompileTotal.WithLabelValues("failed").Inc()

	detail := fmt.Sprintf("pdflatex exit code: %d\n", code2)
	switch {
	case os.IsNotExist(statErr):
		detail += "PDF file was not created\n"
	case statErr == nil:
		detail += fmt.Sprintf("PDF file exists but is too small (%d bytes)\n", info.Size())
	}
	detail += strings.Join(logs, "\n")

	appErr := apperrors.New(apperrors.CodePDFCompile, "pdflatex compilation failed").WithDetail(detail)
	span.RecordError(appErr)
	logger.Error(ctx, "pdf compilation failed", appErr, "tex_path", texPath, "exit_code", code2)
	return "", appErr
}
