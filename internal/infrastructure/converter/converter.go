// Package converter 提供 LaTeX 文档到 PDF/DOCX 的转换能力
//
// 所有转换都是对外部工具 (pdflatex/pandoc/libreoffice) 的子进程编排,
// 工具缺失或单条路径失败不会中断进程,由调用方决定是否致命
package converter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/kursovik/kursovik-ai-api/internal/config"
)

var tracer = otel.Tracer("converter")

// Converter 文档转换器,封装外部转换工具的调用
type Converter struct {
	cfg *config.ConverterConfig
}

// NewConverter 创建文档转换器
func NewConverter(cfg *config.ConverterConfig) *Converter {
	return &Converter{cfg: cfg}
}

// runTool 在指定目录下执行外部工具并收集输出
//
// 返回合并后的 stdout/stderr、进程退出码和执行错误;
// 超时由配置的 Timeout 控制,超时会显式标注在错误里
func (c *Converter) runTool(ctx context.Context, dir string, bin string, args ...string) (string, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := combineOutput(stdout.String(), stderr.String())

	if runCtx.Err() == context.DeadlineExceeded {
		return output, -1, fmt.Errorf("%s timed out after %s", bin, c.cfg.Timeout)
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return output, exitCode, err
}

// lookupLibreOffice 按候选名查找可用的 LibreOffice 可执行文件
func (c *Converter) lookupLibreOffice() (string, error) {
	candidates := []string{c.cfg.LibreOfficePath}
	if c.cfg.LibreOfficePath != "soffice" {
		candidates = append(candidates, "soffice")
	}
	for _, bin := range candidates {
		if path, err := exec.LookPath(bin); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("libreoffice not found (tried %s)", strings.Join(candidates, ", "))
}

// combineOutput 合并 stdout 和 stderr 为单段日志
func combineOutput(stdout, stderr string) string {
	var parts []string
	if stdout != "" {
		parts = append(parts, stdout)
	}
	if stderr != "" {
		parts = append(parts, stderr)
	}
	return strings.Join(parts, "\n")
}

// fileExists 判断文件是否存在且非空
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// tail 截取字符串末尾 n 个字节,用于错误详情
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
