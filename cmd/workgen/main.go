// Package main 离线生成 CLI：不经过队列和数据库，直接生成一份文档。
// 联调提示词和排版参数用，默认走本地测试模型。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kursovik/kursovik-ai-api/internal/application/work"
	"github.com/kursovik/kursovik-ai-api/internal/application/work/content"
	"github.com/kursovik/kursovik-ai-api/internal/application/work/latexdoc"
	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/converter"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/llm"
	"github.com/kursovik/kursovik-ai-api/internal/workflow/chain"
	workflowprompt "github.com/kursovik/kursovik-ai-api/internal/workflow/prompt"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
)

func main() {
	var (
		theme    = flag.String("theme", "", "тема работы (обязательно)")
		pages    = flag.Int("pages", 10, "целевое число страниц (1-100)")
		workType = flag.String("work-type", "coursework", "тип работы: coursework|diploma|reference|report|research|practice")
		model    = flag.String("model", "test", "имя модели; test — локальная тестовая модель")
		output   = flag.String("output", ".", "каталог для результата")
		pdf      = flag.Bool("pdf", false, "скомпилировать PDF через pdflatex")
		timeout  = flag.Duration("timeout", 30*time.Minute, "предел времени генерации")
	)
	flag.Parse()

	if strings.TrimSpace(*theme) == "" {
		fmt.Fprintln(os.Stderr, "workgen: -theme is required")
		flag.Usage()
		os.Exit(2)
	}
	if *pages < 1 || *pages > 100 {
		fmt.Fprintln(os.Stderr, "workgen: -pages must be between 1 and 100")
		os.Exit(2)
	}
	wt := entity.WorkType(strings.ToLower(strings.TrimSpace(*workType)))
	if !wt.IsValid() {
		fmt.Fprintf(os.Stderr, "workgen: unknown work type %q\n", *workType)
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "workgen: load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init("warn", "text")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, wt, *theme, *pages, *model, *output, *pdf); err != nil {
		fmt.Fprintf(os.Stderr, "workgen: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, workType entity.WorkType, theme string, pages int, model, output string, compilePDF bool) error {
	factory := llm.NewEinoFactory(cfg)
	assistant := chain.NewAssistantChain(factory)
	registry := workflowprompt.NewRegistry()
	generator := content.NewGenerator(assistant, registry, work.NewContentOptions(cfg))

	provider := cfg.LLM.DefaultProvider
	if strings.EqualFold(model, "test") {
		provider = llm.TestProviderName
	}

	conv, err := generator.NewConversation("cli")
	if err != nil {
		return err
	}

	params := content.Params{
		OrderID:  "cli",
		Provider: provider,
		Model:    model,
		Theme:    theme,
		Pages:    pages,
		WorkType: workType,
	}

	simpleMax := cfg.Generation.SimpleWorkMaxPages
	if simpleMax <= 0 {
		simpleMax = 2
	}

	var (
		result     *content.Result
		includeTOC bool
	)
	if pages <= simpleMax {
		fmt.Println("generating simple work...")
		result, err = generator.GenerateSimpleWorkContent(ctx, conv, params)
	} else {
		fmt.Println("generating work plan...")
		var plan string
		plan, err = generator.GenerateWorkPlan(ctx, conv, params)
		if err != nil {
			return err
		}
		fmt.Println(plan)

		progress := func(_ context.Context, message string, percent int) {
			fmt.Printf("[%3d%%] %s\n", percent, message)
		}
		result, err = generator.GenerateWorkContentStepwise(ctx, conv, params, plan, progress)
		includeTOC = true
	}
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Printf("warning: section %q failed validation after %d attempts\n", w.Section, w.Attempts)
	}

	document := latexdoc.CreateLatexDocument(theme, result.Text, includeTOC)

	if err := os.MkdirAll(output, 0o755); err != nil {
		return err
	}
	texPath := filepath.Join(output, "work.tex")
	if err := os.WriteFile(texPath, []byte(document), 0o644); err != nil {
		return err
	}
	fmt.Printf("tex written: %s (%.1f pages of content)\n", texPath, result.PagesGenerated)

	if compilePDF {
		conv := converter.NewConverter(&cfg.Converter)
		pdfPath, err := conv.CompileLatexToPDF(ctx, document, output, "work")
		if err != nil {
			return fmt.Errorf("compile pdf: %w", err)
		}
		fmt.Printf("pdf written: %s\n", pdfPath)
	}

	return nil
}
