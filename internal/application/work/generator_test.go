package work

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/kursovik/kursovik-ai-api/internal/application/work/content"
	"github.com/kursovik/kursovik-ai-api/internal/application/work/pagecalc"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/repository"
	wfmodel "github.com/kursovik/kursovik-ai-api/internal/workflow/model"
	workflowprompt "github.com/kursovik/kursovik-ai-api/internal/workflow/prompt"
)

// scriptedInvoker 按脚本依次回复模型请求。
type scriptedInvoker struct {
	responses []string
	calls     int
}

func (s *scriptedInvoker) Invoke(_ context.Context, in *wfmodel.AssistantAskInput) (*schema.Message, error) {
	s.calls++
	if s.calls > len(s.responses) {
		return nil, fmt.Errorf("no scripted response for call %d (workflow %s)", s.calls, in.Workflow)
	}
	return &schema.Message{Role: schema.Assistant, Content: s.responses[s.calls-1]}, nil
}

// fakeConverter 模拟产物生成：把源码写到临时目录，按需返回失败。
type fakeConverter struct {
	pdfErr  error
	docxErr error
}

func (c *fakeConverter) CompileLatexToPDF(_ context.Context, texContent, workDir, baseName string) (string, error) {
	texPath := filepath.Join(workDir, baseName+".tex")
	if err := os.WriteFile(texPath, []byte(texContent), 0o644); err != nil {
		return "", err
	}
	if c.pdfErr != nil {
		return "", c.pdfErr
	}
	pdfPath := filepath.Join(workDir, baseName+".pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.5 fake"), 0o644); err != nil {
		return "", err
	}
	return pdfPath, nil
}

func (c *fakeConverter) ConvertTexToDocx(_ context.Context, texPath, workDir string) (string, error) {
	if c.docxErr != nil {
		return "", c.docxErr
	}
	baseName := strings.TrimSuffix(filepath.Base(texPath), ".tex")
	docxPath := filepath.Join(workDir, baseName+".docx")
	if err := os.WriteFile(docxPath, []byte("PK fake docx"), 0o644); err != nil {
		return "", err
	}
	return docxPath, nil
}

// fakeOrderRepo 只实现编排用到的方法，其余为空操作。
type fakeOrderRepo struct {
	statuses []entity.OrderStatus
	progress []int
}

func (r *fakeOrderRepo) Create(_ context.Context, _ *entity.Order) error { return nil }
func (r *fakeOrderRepo) GetByID(_ context.Context, _ string) (*entity.Order, error) {
	return nil, nil
}
func (r *fakeOrderRepo) Update(_ context.Context, order *entity.Order) error {
	r.statuses = append(r.statuses, order.Status)
	return nil
}
func (r *fakeOrderRepo) ListByUser(_ context.Context, _ string, _ repository.Pagination) (*repository.PagedResult[*entity.Order], error) {
	return nil, nil
}
func (r *fakeOrderRepo) List(_ context.Context, _ *repository.OrderFilter, _ repository.Pagination) (*repository.PagedResult[*entity.Order], error) {
	return nil, nil
}
func (r *fakeOrderRepo) GetByIdempotencyKey(_ context.Context, _ string) (*entity.Order, error) {
	return nil, nil
}
func (r *fakeOrderRepo) UpdateProgress(_ context.Context, _ string, progress int, _ string) error {
	r.progress = append(r.progress, progress)
	return nil
}
func (r *fakeOrderRepo) GetOrderStats(_ context.Context) (*repository.OrderStats, error) {
	return nil, nil
}

// fakeProgressSink 记录推送过的进度快照。
type fakeProgressSink struct {
	stages   []string
	percents []int
	messages []string
}

func (s *fakeProgressSink) Publish(_ context.Context, _ string, progress int, stage, message string) error {
	s.stages = append(s.stages, stage)
	s.percents = append(s.percents, progress)
	s.messages = append(s.messages, message)
	return nil
}

// fakeNotifier 记录通知调用。
type fakeNotifier struct {
	completed []string
	failed    []string
	warnings  []string
}

func (n *fakeNotifier) NotifyOrderCompleted(_ context.Context, order *entity.Order) error {
	n.completed = append(n.completed, order.ID)
	return nil
}
func (n *fakeNotifier) NotifyOrderFailed(_ context.Context, order *entity.Order, reason string) error {
	n.failed = append(n.failed, reason)
	return nil
}
func (n *fakeNotifier) NotifyGenerationWarning(_ context.Context, order *entity.Order, warning string) error {
	n.warnings = append(n.warnings, warning)
	return nil
}

type workGenFixture struct {
	gen      *WorkGenerator
	repo     *fakeOrderRepo
	sink     *fakeProgressSink
	notifier *fakeNotifier
	conv     *fakeConverter
}

func newWorkGenFixture(t *testing.T, cfg Config, responses ...string) *workGenFixture {
	t.Helper()

	opts := content.DefaultOptions()
	opts.Pages = pagecalc.Params{SymbolsPerPage: 10}
	contentGen := content.NewGenerator(&scriptedInvoker{responses: responses}, workflowprompt.NewRegistry(), opts)

	cfg.Pages = pagecalc.Params{SymbolsPerPage: 10}
	if cfg.ArtifactsDir == "" {
		cfg.ArtifactsDir = t.TempDir()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir()
	}
	if cfg.Provider == "" {
		cfg.Provider = "test"
	}
	if cfg.SimpleWorkMaxPages == 0 {
		cfg.SimpleWorkMaxPages = 2
	}

	f := &workGenFixture{
		repo:     &fakeOrderRepo{},
		sink:     &fakeProgressSink{},
		notifier: &fakeNotifier{},
		conv:     &fakeConverter{},
	}
	f.gen = NewWorkGenerator(contentGen, f.conv, f.repo, f.sink, f.notifier, cfg)
	return f
}

func testOrder(pages int) *entity.Order {
	return entity.NewOrder("user-1", entity.WorkTypeCoursework, "Развитие облачных технологий", pages, "test", pages*100)
}

// stepwiseResponses 对应 10 页订单的完整逐章脚本：
// план、введение、основная глава（需要两个子小节）、заключение、список источников。
func stepwiseResponses() []string {
	return []string{
		"1. Введение\n2. Теоретические основы\n3. Заключение\n4. Список литературы",
		strings.Repeat("а", 20),
		strings.Repeat("б", 10),
		"Первый вопрос\nВторой вопрос",
		strings.Repeat("в", 10),
		strings.Repeat("г", 10),
		strings.Repeat("д", 50),
		"\\begin{thebibliography}{99}\n\\bibitem{source1} Иванов И.И. Основы дисциплины.\n\\end{thebibliography}",
	}
}

func TestWorkGeneratorGenerateStepwise(t *testing.T) {
	f := newWorkGenFixture(t, Config{DocxEnabled: true}, stepwiseResponses()...)
	order := testOrder(10)

	if err := f.gen.Generate(context.Background(), order); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if order.Status != entity.OrderStatusCompleted {
		t.Errorf("status = %s, want completed", order.Status)
	}
	if order.Progress != 100 {
		t.Errorf("progress = %d, want 100", order.Progress)
	}
	// 13.5 страниц текста + титульный лист 1.0 + оглавление 0.5+4×0.05
	if diff := order.PagesGenerated - 15.2; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("PagesGenerated = %v, want 15.2", order.PagesGenerated)
	}
	if order.DurationMs < 0 {
		t.Errorf("DurationMs = %d", order.DurationMs)
	}

	for _, path := range []string{order.TexPath, order.PDFPath, order.DocxPath} {
		if path == "" {
			t.Fatalf("artifact path not set: tex=%q pdf=%q docx=%q", order.TexPath, order.PDFPath, order.DocxPath)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("artifact missing: %v", err)
		}
	}

	texBytes, err := os.ReadFile(order.TexPath)
	if err != nil {
		t.Fatalf("read tex artifact: %v", err)
	}
	tex := string(texBytes)
	if !strings.Contains(tex, "Развитие облачных технологий") {
		t.Error("tex artifact missing theme on title page")
	}
	if !strings.Contains(tex, "\\tableofcontents") {
		t.Error("stepwise document must include table of contents")
	}
	if order.FullTex != tex {
		t.Error("FullTex must match the stored tex artifact")
	}

	if len(f.notifier.completed) != 1 || len(f.notifier.failed) != 0 {
		t.Errorf("notifier calls: completed=%v failed=%v", f.notifier.completed, f.notifier.failed)
	}

	if f.repo.statuses[0] != entity.OrderStatusGenerating {
		t.Errorf("first persisted status = %s, want generating", f.repo.statuses[0])
	}
	if last := f.repo.statuses[len(f.repo.statuses)-1]; last != entity.OrderStatusCompleted {
		t.Errorf("last persisted status = %s, want completed", last)
	}

	if f.sink.stages[0] != "plan" || f.sink.stages[len(f.sink.stages)-1] != "done" {
		t.Errorf("stages = %v", f.sink.stages)
	}
	for i := 1; i < len(f.sink.percents); i++ {
		if f.sink.percents[i] < f.sink.percents[i-1] {
			t.Errorf("progress must be non-decreasing: %v", f.sink.percents)
		}
	}
	if last := f.sink.percents[len(f.sink.percents)-1]; last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestWorkGeneratorSimplePathSkipsPlanAndTOC(t *testing.T) {
	f := newWorkGenFixture(t, Config{DocxEnabled: true},
		"Краткий текст работы по выбранной теме.",
		"\\begin{thebibliography}{99}\n\\bibitem{source1} Книга.\n\\end{thebibliography}",
	)
	order := testOrder(2)

	if err := f.gen.Generate(context.Background(), order); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if order.Status != entity.OrderStatusCompleted {
		t.Errorf("status = %s, want completed", order.Status)
	}
	for _, stage := range f.sink.stages {
		if stage == "plan" {
			t.Errorf("simple path must not report a plan stage: %v", f.sink.stages)
		}
	}
	if strings.Contains(order.FullTex, "\\tableofcontents") {
		t.Error("simple document must not include table of contents")
	}
}

func TestWorkGeneratorPDFCompileFailureIsFatal(t *testing.T) {
	f := newWorkGenFixture(t, Config{DocxEnabled: true},
		"Текст.",
		"Источники.",
	)
	f.conv.pdfErr = errors.New("pdflatex compilation failed")
	order := testOrder(2)

	err := f.gen.Generate(context.Background(), order)
	if err == nil {
		t.Fatal("expected an error")
	}
	if order.Status != entity.OrderStatusFailed {
		t.Errorf("status = %s, want failed", order.Status)
	}
	if order.ErrorMessage == "" {
		t.Error("ErrorMessage must be set")
	}
	if len(f.notifier.failed) != 1 {
		t.Errorf("failure notifications = %v", f.notifier.failed)
	}
	if len(f.notifier.completed) != 0 {
		t.Errorf("unexpected completion notifications: %v", f.notifier.completed)
	}
}

func TestWorkGeneratorDocxFailureIsNotFatal(t *testing.T) {
	f := newWorkGenFixture(t, Config{DocxEnabled: true},
		"Текст.",
		"Источники.",
	)
	f.conv.docxErr = errors.New("pandoc not found")
	order := testOrder(2)

	if err := f.gen.Generate(context.Background(), order); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if order.Status != entity.OrderStatusCompleted {
		t.Errorf("status = %s, want completed", order.Status)
	}
	if order.DocxPath != "" {
		t.Errorf("DocxPath = %q, want empty after conversion failure", order.DocxPath)
	}
	if order.PDFPath == "" {
		t.Error("PDFPath must still be set")
	}
}

func TestWorkGeneratorDocxDisabled(t *testing.T) {
	f := newWorkGenFixture(t, Config{},
		"Текст.",
		"Источники.",
	)
	order := testOrder(2)

	if err := f.gen.Generate(context.Background(), order); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if order.DocxPath != "" {
		t.Errorf("DocxPath = %q, want empty when docx disabled", order.DocxPath)
	}
	for _, stage := range f.sink.stages {
		if stage == "docx" {
			t.Errorf("docx stage must not be reported when disabled: %v", f.sink.stages)
		}
	}
}

func TestWorkGeneratorNotifiesValidationWarnings(t *testing.T) {
	invalid := "\\begin{itemize}\nнезакрытый список"
	f := newWorkGenFixture(t, Config{},
		invalid, invalid, invalid, // 正文三次尝试都没通过校验
		"Источники.",
	)
	order := testOrder(2)

	if err := f.gen.Generate(context.Background(), order); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if order.Status != entity.OrderStatusCompleted {
		t.Errorf("status = %s, want completed", order.Status)
	}
	if len(f.notifier.warnings) != 1 {
		t.Fatalf("warning notifications = %d, want 1", len(f.notifier.warnings))
	}
	if !strings.Contains(f.notifier.warnings[0], "Незакрытые теги") {
		t.Errorf("warning text = %q", f.notifier.warnings[0])
	}
}

func TestWorkGeneratorFailsOnInvalidLatexWhenConfigured(t *testing.T) {
	invalid := "\\begin{itemize}\nнезакрытый список"
	f := newWorkGenFixture(t, Config{FailOnInvalidLatex: true},
		invalid, invalid, invalid,
		"Источники.",
	)
	order := testOrder(2)

	err := f.gen.Generate(context.Background(), order)
	if err == nil {
		t.Fatal("expected an error")
	}
	if order.Status != entity.OrderStatusFailed {
		t.Errorf("status = %s, want failed", order.Status)
	}
	if len(f.notifier.failed) != 1 {
		t.Errorf("failure notifications = %v", f.notifier.failed)
	}
}
