package converter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kursovik/kursovik-ai-api/pkg/errors"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/metrics"
)

var (
	newpagePattern    = regexp.MustCompile(`\\newpage\s*`)
	blankLinesPattern = regexp.MustCompile(`\n\s*\n\s*\n+`)

	latexArgCmdPattern  = regexp.MustCompile(`\\[a-zA-Z]+\{[^}]*\}`)
	latexBareCmdPattern = regexp.MustCompile(`\\[a-zA-Z]+`)
	latexGroupPattern   = regexp.MustCompile(`\{[^}]*\}`)
	latexLineBreak      = regexp.MustCompile(`\\\\`)
	blankPairPattern    = regexp.MustCompile(`\n\s*\n`)
)

// ConvertTexToDocx 将 LaTeX 文档转换为 DOCX,返回产物路径
//
// 依次尝试 pandoc 直接转换、LibreOffice 纯文本降级,最后从同目录下
// 已编译的 PDF 经 ODT 中转兜底;全部路径失败才返回错误
func (c *Converter) ConvertTexToDocx(ctx context.Context, texPath string, workDir string) (string, error) {
	ctx, span := tracer.Start(ctx, "converter.Converter.ConvertTexToDocx",
		trace.WithAttributes(attribute.String("tex_path", texPath)))
	defer span.End()

	baseName := strings.TrimSuffix(filepath.Base(texPath), filepath.Ext(texPath))
	docxPath := filepath.Join(workDir, baseName+".docx")

	texContent, err := os.ReadFile(texPath)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to read tex file: %w", err)
	}

	var failures []string

	path, err := c.convertWithPandoc(ctx, string(texContent), workDir, baseName, docxPath)
	if err == nil {
		return path, nil
	}
	failures = append(failures, fmt.Sprintf("pandoc: %v", err))
	logger.Warn(ctx, "pandoc conversion failed, trying libreoffice", "error", err.Error())

	path, err = c.convertWithLibreOffice(ctx, string(texContent), workDir, baseName, docxPath)
	if err == nil {
		return path, nil
	}
	failures = append(failures, fmt.Sprintf("libreoffice: %v", err))
	logger.Warn(ctx, "libreoffice conversion failed, trying pdf route", "error", err.Error())

	pdfPath := filepath.Join(workDir, baseName+".pdf")
	path, err = c.convertPDFToDocx(ctx, pdfPath, workDir, baseName, docxPath)
	if err == nil {
		return path, nil
	}
	failures = append(failures, fmt.Sprintf("pdf route: %v", err))

	appErr := apperrors.New(apperrors.CodeDocxConvert, "docx conversion failed").
		WithDetail(strings.Join(failures, "; "))
	span.RecordError(appErr)
	logger.Error(ctx, "all docx conversion paths failed", appErr, "tex_path", texPath)
	return "", appErr
}

// convertWithPandoc 通过 pandoc 直接转换
//
// 预处理会把 \newpage 替换成空行,避免 "ewpage" 残留在结果中
func (c *Converter) convertWithPandoc(ctx context.Context, texContent string, workDir string, baseName string, docxPath string) (string, error) {
	if _, err := exec.LookPath(c.cfg.PandocPath); err != nil {
		metrics.DocxConvertTotal.WithLabelValues("pandoc", "failed").Inc()
		return "", fmt.Errorf("pandoc not found: %w", err)
	}

	tmpTex := filepath.Join(workDir, baseName+"_pandoc.tex")
	if err := os.WriteFile(tmpTex, []byte(prepareTexForPandoc(texContent)), 0o644); err != nil {
		metrics.DocxConvertTotal.WithLabelValues("pandoc", "failed").Inc()
		return "", fmt.Errorf("failed to write temp tex file: %w", err)
	}
	defer os.Remove(tmpTex)

	out, code, err := c.runTool(ctx, workDir, c.cfg.PandocPath,
		tmpTex,
		"-o", docxPath,
		"--from=latex",
		"--to=docx",
		"--toc",
		"--toc-depth=3",
		"--wrap=none",
	)
	if err != nil || !fileExists(docxPath) {
		metrics.DocxConvertTotal.WithLabelValues("pandoc", "failed").Inc()
		return "", fmt.Errorf("pandoc exited with code %d: %s", code, tail(out, 500))
	}

	metrics.DocxConvertTotal.WithLabelValues("pandoc", "success").Inc()
	logger.Info(ctx, "docx created via pandoc", "docx_path", docxPath)
	return docxPath, nil
}

// convertWithLibreOffice 剥离 LaTeX 命令后经纯文本转换,排版信息会丢失
func (c *Converter) convertWithLibreOffice(ctx context.Context, texContent string, workDir string, baseName string, docxPath string) (string, error) {
	bin, err := c.lookupLibreOffice()
	if err != nil {
		metrics.DocxConvertTotal.WithLabelValues("libreoffice", "failed").Inc()
		return "", err
	}

	txtPath := filepath.Join(workDir, baseName+"_plain.txt")
	if err := os.WriteFile(txtPath, []byte(extractPlainText(texContent)), 0o644); err != nil {
		metrics.DocxConvertTotal.WithLabelValues("libreoffice", "failed").Inc()
		return "", fmt.Errorf("failed to write plain text file: %w", err)
	}
	defer os.Remove(txtPath)

	out, code, err := c.runTool(ctx, workDir, bin,
		"--headless",
		"--convert-to", "docx",
		"--outdir", workDir,
		txtPath,
	)

	generated := filepath.Join(workDir, baseName+"_plain.docx")
	if err != nil || !fileExists(generated) {
		metrics.DocxConvertTotal.WithLabelValues("libreoffice", "failed").Inc()
		return "", fmt.Errorf("libreoffice exited with code %d: %s", code, tail(out, 500))
	}

	if err := os.Rename(generated, docxPath); err != nil {
		metrics.DocxConvertTotal.WithLabelValues("libreoffice", "failed").Inc()
		return "", fmt.Errorf("failed to rename docx file: %w", err)
	}

	metrics.DocxConvertTotal.WithLabelValues("libreoffice", "success").Inc()
	logger.Info(ctx, "docx created via libreoffice", "docx_path", docxPath)
	return docxPath, nil
}

// convertPDFToDocx 从已编译的 PDF 经 ODT 中转生成 DOCX
//
// LibreOffice 不能直接把 PDF 转成 DOCX,必须经 ODT 作为中间格式
func (c *Converter) convertPDFToDocx(ctx context.Context, pdfPath string, workDir string, baseName string, docxPath string) (string, error) {
	if !fileExists(pdfPath) {
		metrics.DocxConvertTotal.WithLabelValues("libreoffice_pdf", "failed").Inc()
		return "", fmt.Errorf("pdf file not found: %s", pdfPath)
	}

	bin, err := c.lookupLibreOffice()
	if err != nil {
		metrics.DocxConvertTotal.WithLabelValues("libreoffice_pdf", "failed").Inc()
		return "", err
	}

	out, code, err := c.runTool(ctx, workDir, bin,
		"--headless",
		"--convert-to", "odt",
		"--outdir", workDir,
		pdfPath,
	)
	odtPath := filepath.Join(workDir, baseName+".odt")
	if err != nil || !fileExists(odtPath) {
		metrics.DocxConvertTotal.WithLabelValues("libreoffice_pdf", "failed").Inc()
		return "", fmt.Errorf("pdf to odt failed with code %d: %s", code, tail(out, 500))
	}
	defer os.Remove(odtPath)

	out, code, err = c.runTool(ctx, workDir, bin,
		"--headless",
		"--convert-to", "docx",
		"--outdir", workDir,
		odtPath,
	)
	if err != nil || !fileExists(docxPath) {
		metrics.DocxConvertTotal.WithLabelValues("libreoffice_pdf", "failed").Inc()
		return "", fmt.Errorf("odt to docx failed with code %d: %s", code, tail(out, 500))
	}

	metrics.DocxConvertTotal.WithLabelValues("libreoffice_pdf", "success").Inc()
	logger.Info(ctx, "docx created via pdf route", "docx_path", docxPath)
	return docxPath, nil
}

// prepareTexForPandoc 预处理 LaTeX 供 pandoc 使用
func prepareTexForPandoc(texContent string) string {
	out := newpagePattern.ReplaceAllString(texContent, "\n\n")
	return blankLinesPattern.ReplaceAllString(out, "\n\n")
}

// extractPlainText 剥离 LaTeX 命令,只保留正文文本
func extractPlainText(texContent string) string {
	text := latexArgCmdPattern.ReplaceAllString(texContent, "")
	text = latexBareCmdPattern.ReplaceAllString(text, "")
	text = latexGroupPattern.ReplaceAllString(text, "")
	text = latexLineBreak.ReplaceAllString(text, "\n")
	return blankPairPattern.ReplaceAllString(text, "\n\n")
}
