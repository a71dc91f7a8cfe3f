package content

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/kursovik/kursovik-ai-api/internal/application/work/pagecalc"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	wfmodel "github.com/kursovik/kursovik-ai-api/internal/workflow/model"
	workflowprompt "github.com/kursovik/kursovik-ai-api/internal/workflow/prompt"
	apperrors "github.com/kursovik/kursovik-ai-api/pkg/errors"
)

// scriptedInvoker 按脚本依次回复并记录每次调用。
type scriptedInvoker struct {
	responses []string
	calls     []*wfmodel.AssistantAskInput
}

func (s *scriptedInvoker) Invoke(_ context.Context, in *wfmodel.AssistantAskInput) (*schema.Message, error) {
	s.calls = append(s.calls, in)
	if len(s.calls) > len(s.responses) {
		return nil, fmt.Errorf("no scripted response for call %d (workflow %s)", len(s.calls), in.Workflow)
	}
	return &schema.Message{Role: schema.Assistant, Content: s.responses[len(s.calls)-1]}, nil
}

func (s *scriptedInvoker) workflows() []string {
	out := make([]string, len(s.calls))
	for i, call := range s.calls {
		out[i] = call.Workflow
	}
	return out
}

// lastPrompt 返回第 i 次调用里真正发给模型的用户提示词。
func (s *scriptedInvoker) lastPrompt(i int) string {
	msgs := s.calls[i].Messages
	return msgs[len(msgs)-1].Content
}

type failingInvoker struct{ err error }

func (f *failingInvoker) Invoke(_ context.Context, _ *wfmodel.AssistantAskInput) (*schema.Message, error) {
	return nil, f.err
}

// testOptions 用 10 字符一页的迷你换算，便于用短字符串精确控制页数。
func testOptions() Options {
	opts := DefaultOptions()
	opts.Pages = pagecalc.Params{SymbolsPerPage: 10}
	return opts
}

func testParams(pages int) Params {
	return Params{
		OrderID:  "order-test",
		Provider: "test",
		Model:    "test-model",
		Theme:    "Развитие облачных технологий",
		Pages:    pages,
		WorkType: entity.WorkTypeCoursework,
	}
}

func newTestGenerator(t *testing.T, responses ...string) (*Generator, *scriptedInvoker, *Conversation) {
	t.Helper()
	inv := &scriptedInvoker{responses: responses}
	g := NewGenerator(inv, workflowprompt.NewRegistry(), testOptions())
	conv, err := g.NewConversation("order-test")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	return g, inv, conv
}

func TestGeneratorNewConversationSeedsSystemPrompt(t *testing.T) {
	g := NewGenerator(&scriptedInvoker{}, workflowprompt.NewRegistry(), testOptions())
	conv, err := g.NewConversation("order-1")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if conv.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", conv.Len())
	}
	first := conv.Messages()[0]
	if first.Role != schema.System {
		t.Errorf("first message role = %s, want system", first.Role)
	}
	if !strings.Contains(first.Content, "эксперт") {
		t.Errorf("system prompt missing expected wording: %q", first.Content)
	}
}

func TestGenerateWorkPlanRetriesUntilDeepEnough(t *testing.T) {
	shallow := "1. Единственная глава"
	good := "1. Первая глава\n2. Вторая глава\n3. Третья глава\n4. Четвертая глава"
	g, inv, conv := newTestGenerator(t, shallow, good)

	plan, err := g.GenerateWorkPlan(context.Background(), conv, testParams(12))
	if err != nil {
		t.Fatalf("GenerateWorkPlan: %v", err)
	}
	if plan != good {
		t.Errorf("plan = %q, want the second response", plan)
	}
	if got := inv.workflows(); !reflect.DeepEqual(got, []string{"work_plan", "work_plan"}) {
		t.Errorf("workflows = %v", got)
	}
	prompt := inv.lastPrompt(0)
	if !strings.Contains(prompt, "объемом 12 страниц") {
		t.Errorf("prompt missing page count: %q", prompt)
	}
	if !strings.Contains(prompt, "курсовой работы") {
		t.Errorf("prompt missing genitive work type: %q", prompt)
	}
	// system + (user+assistant) ×2
	if conv.Len() != 5 {
		t.Errorf("conversation length = %d, want 5", conv.Len())
	}
}

func TestGenerateWorkPlanKeepsLastAfterExhaustedRetries(t *testing.T) {
	g, inv, conv := newTestGenerator(t, "1. Раз", "1. Два", "1. Три")

	plan, err := g.GenerateWorkPlan(context.Background(), conv, testParams(12))
	if err != nil {
		t.Fatalf("GenerateWorkPlan: %v", err)
	}
	if plan != "1. Три" {
		t.Errorf("plan = %q, want last response", plan)
	}
	if len(inv.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(inv.calls))
	}
}

func TestGenerateChapterContentRouting(t *testing.T) {
	tests := []struct {
		title    string
		workflow string
	}{
		{"Введение", "chapter_intro"},
		{"ЗАКЛЮЧЕНИЕ", "chapter_conclusion"},
		{"Список использованных источников", "chapter_bibliography"},
		{"Библиография", "chapter_bibliography"},
		{"Теоретические основы вопроса", "chapter_generic"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			g, inv, conv := newTestGenerator(t, "Содержимое главы.")
			text, warn, err := g.GenerateChapterContent(context.Background(), conv, testParams(10), tt.title, 2.0)
			if err != nil {
				t.Fatalf("GenerateChapterContent: %v", err)
			}
			if warn != nil {
				t.Errorf("unexpected warning: %+v", warn)
			}
			if text != "Содержимое главы." {
				t.Errorf("text = %q", text)
			}
			if inv.calls[0].Workflow != tt.workflow {
				t.Errorf("workflow = %s, want %s", inv.calls[0].Workflow, tt.workflow)
			}
			if inv.calls[0].Provider != "test" || inv.calls[0].Model != "test-model" {
				t.Errorf("provider/model not propagated: %+v", inv.calls[0])
			}
		})
	}
}

func TestGenerateChapterContentValidationRetriesAndKeepsLast(t *testing.T) {
	invalid := "\\begin{itemize}\n\\item Пункт без закрытия"
	g, inv, conv := newTestGenerator(t, invalid, invalid, invalid)

	text, warn, err := g.GenerateChapterContent(context.Background(), conv, testParams(10), "Обзор подходов", 2.0)
	if err != nil {
		t.Fatalf("GenerateChapterContent: %v", err)
	}
	if len(inv.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(inv.calls))
	}
	if text != invalid {
		t.Errorf("text = %q, want last response kept", text)
	}
	if warn == nil {
		t.Fatal("expected a validation warning")
	}
	if warn.Section != "Обзор подходов" || warn.Attempts != 3 {
		t.Errorf("warning = %+v", warn)
	}
	if !strings.Contains(warn.Detail, "Незакрытые теги") {
		t.Errorf("warning detail = %q", warn.Detail)
	}
}

func TestGenerateChapterContentValidationRecovers(t *testing.T) {
	invalid := "\\begin{table}\nнезакрыто"
	valid := "\\begin{itemize}\n\\item Закрыто\n\\end{itemize}"
	g, inv, conv := newTestGenerator(t, invalid, valid)

	text, warn, err := g.GenerateChapterContent(context.Background(), conv, testParams(10), "Анализ данных", 2.0)
	if err != nil {
		t.Fatalf("GenerateChapterContent: %v", err)
	}
	if text != valid {
		t.Errorf("text = %q, want second response", text)
	}
	if warn != nil {
		t.Errorf("unexpected warning: %+v", warn)
	}
	if len(inv.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(inv.calls))
	}
}

func TestGenerateChapterContentValidationDisabled(t *testing.T) {
	invalid := "\\begin{itemize}\nнезакрыто"
	inv := &scriptedInvoker{responses: []string{invalid}}
	opts := testOptions()
	opts.ValidationEnabled = false
	g := NewGenerator(inv, workflowprompt.NewRegistry(), opts)
	conv, err := g.NewConversation("order-test")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	text, warn, err := g.GenerateChapterContent(context.Background(), conv, testParams(10), "Глава", 2.0)
	if err != nil {
		t.Fatalf("GenerateChapterContent: %v", err)
	}
	if text != invalid || warn != nil || len(inv.calls) != 1 {
		t.Errorf("validation must be skipped entirely: text=%q warn=%+v calls=%d", text, warn, len(inv.calls))
	}
}

func TestGenerateSubsectionsContentInventsTitles(t *testing.T) {
	g, inv, conv := newTestGenerator(t,
		"Первый вопрос\nВторой вопрос",
		"Текст первого раздела.",
		"Текст второго раздела.",
	)

	text, warnings, err := g.GenerateSubsectionsContent(context.Background(), conv, testParams(10), "Теоретическая глава", nil, 2.0)
	if err != nil {
		t.Fatalf("GenerateSubsectionsContent: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %+v", warnings)
	}
	want := []string{"subsection_titles", "subsection", "subsection"}
	if got := inv.workflows(); !reflect.DeepEqual(got, want) {
		t.Errorf("workflows = %v, want %v", got, want)
	}
	if !strings.Contains(text, "\\subsection{Первый вопрос}\n\nТекст первого раздела.") {
		t.Errorf("missing first subsection block:\n%s", text)
	}
	if !strings.Contains(text, "\\subsection{Второй вопрос}\n\nТекст второго раздела.") {
		t.Errorf("missing second subsection block:\n%s", text)
	}
	// 2.0 页拆给两个小节，TargetChars(1.0) при 10 символах на страницу
	if prompt := inv.lastPrompt(1); !strings.Contains(prompt, "примерно 10 символов") {
		t.Errorf("subsection prompt missing char budget: %q", prompt)
	}
}

func TestGenerateSubsectionsContentUsesPlanTitles(t *testing.T) {
	g, inv, conv := newTestGenerator(t,
		"\\subsection{Основные понятия}\n\nУже с заголовком.",
		"Без заголовка.",
	)

	text, _, err := g.GenerateSubsectionsContent(context.Background(), conv, testParams(10),
		"Теоретическая глава", []string{"Основные понятия", "Обзор подходов"}, 2.0)
	if err != nil {
		t.Fatalf("GenerateSubsectionsContent: %v", err)
	}
	want := []string{"subsection", "subsection"}
	if got := inv.workflows(); !reflect.DeepEqual(got, want) {
		t.Errorf("workflows = %v, want %v (titles must come from plan)", got, want)
	}
	if strings.Count(text, "\\subsection{Основные понятия}") != 1 {
		t.Errorf("existing heading must not be duplicated:\n%s", text)
	}
	if !strings.Contains(text, "\\subsection{Обзор подходов}\n\nБез заголовка.") {
		t.Errorf("missing heading for plain response:\n%s", text)
	}
}

func TestGenerateWorkContentStepwise(t *testing.T) {
	plan := "1. Введение\n2. Теоретические основы\n3. Заключение\n4. Список литературы"
	biblio := "\\begin{thebibliography}{99}\n\\bibitem{source1} Иванов И.И. Основы дисциплины.\n\\end{thebibliography}"
	g, inv, conv := newTestGenerator(t,
		strings.Repeat("а", 20), // Введение：预算 1.5 页一次就出了 2.0 页，不补子小节
		strings.Repeat("б", 10), // Теоретические основы：预算 4.8 页只出 1.0 页，要补子小节
		"Первый вопрос\nВторой вопрос",
		strings.Repeat("в", 10),
		strings.Repeat("г", 10),
		strings.Repeat("д", 50), // Заключение
		biblio,
	)

	var progress []string
	var percents []int
	record := func(_ context.Context, message string, percent int) {
		progress = append(progress, message)
		percents = append(percents, percent)
	}

	result, err := g.GenerateWorkContentStepwise(context.Background(), conv, testParams(10), plan, record)
	if err != nil {
		t.Fatalf("GenerateWorkContentStepwise: %v", err)
	}

	wantWorkflows := []string{
		"chapter_intro",
		"chapter_generic",
		"subsection_titles",
		"subsection",
		"subsection",
		"chapter_conclusion",
		"chapter_bibliography",
	}
	if got := inv.workflows(); !reflect.DeepEqual(got, wantWorkflows) {
		t.Errorf("workflows = %v, want %v", got, wantWorkflows)
	}

	if result.ChapterCount != 4 {
		t.Errorf("ChapterCount = %d, want 4", result.ChapterCount)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %+v", result.Warnings)
	}
	if !almostEqual(result.PagesGenerated, 13.5) {
		t.Errorf("PagesGenerated = %v, want 13.5", result.PagesGenerated)
	}
	if got := strings.Count(result.Text, "\\newpage"); got != 3 {
		t.Errorf("newpage count = %d, want 3", got)
	}
	if !strings.Contains(result.Text, "бббббббббб\n\n\\subsection{Первый вопрос}\n\nвввввввввв") {
		t.Errorf("subsections must be appended to the chapter body:\n%s", result.Text)
	}
	if !strings.Contains(result.Text, "\\begin{thebibliography}") {
		t.Errorf("bibliography missing:\n%s", result.Text)
	}

	wantProgress := []string{
		"Генерирую главу: Введение...",
		"Генерирую главу: Теоретические основы...",
		"Генерирую главу: Заключение...",
		"Генерирую список источников...",
	}
	if !reflect.DeepEqual(progress, wantProgress) {
		t.Errorf("progress = %v, want %v", progress, wantProgress)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("percents must be non-decreasing: %v", percents)
		}
	}
	if percents[0] != 0 || percents[len(percents)-1] != 95 {
		t.Errorf("percents = %v", percents)
	}

	// 正文总预算 max(1, 10−1−(0.5+3×0.05))=8.35，扣掉 список 0.5、
	// введение/заключение 各 1.5，剩余 4.85 全归唯一的主体章节
	if prompt := inv.lastPrompt(0); !strings.Contains(prompt, "примерно 15 символов") {
		t.Errorf("intro prompt budget wrong: %q", prompt)
	}
	if prompt := inv.lastPrompt(1); !strings.Contains(prompt, "примерно 48 символов") {
		t.Errorf("main chapter prompt budget wrong: %q", prompt)
	}
	if prompt := inv.lastPrompt(3); !strings.Contains(prompt, "примерно 19 символов") {
		t.Errorf("subsection prompt budget wrong: %q", prompt)
	}

	// system + (user+assistant) на каждый из 7 вызовов
	if conv.Len() != 15 {
		t.Errorf("conversation length = %d, want 15", conv.Len())
	}
}

func TestGenerateWorkContentStepwiseStopsEarlyOnOvershoot(t *testing.T) {
	plan := "1. Первая глава\n2. Вторая глава\n3. Список литературы"
	g, inv, conv := newTestGenerator(t,
		strings.Repeat("а", 40), // 4.0 страницы сразу перекрывают цель 3.4×1.15
		"Источники по теме.",
	)

	result, err := g.GenerateWorkContentStepwise(context.Background(), conv, testParams(5), plan, nil)
	if err != nil {
		t.Fatalf("GenerateWorkContentStepwise: %v", err)
	}
	want := []string{"chapter_generic", "chapter_bibliography"}
	if got := inv.workflows(); !reflect.DeepEqual(got, want) {
		t.Errorf("workflows = %v, want %v (second chapter must be skipped)", got, want)
	}
	if result.ChapterCount != 3 {
		t.Errorf("ChapterCount = %d, want 3", result.ChapterCount)
	}
}

func TestGenerateWorkContentStepwiseFallsBackToLegacy(t *testing.T) {
	g, inv, conv := newTestGenerator(t, "Полный текст работы \\cite{ref2020} без списка литературы.")

	result, err := g.GenerateWorkContentStepwise(context.Background(), conv, testParams(10),
		"Свободные рассуждения о теме без структуры", nil)
	if err != nil {
		t.Fatalf("GenerateWorkContentStepwise: %v", err)
	}
	if got := inv.workflows(); !reflect.DeepEqual(got, []string{"legacy_full_work"}) {
		t.Errorf("workflows = %v", got)
	}
	if result.ChapterCount != 0 {
		t.Errorf("ChapterCount = %d, want 0", result.ChapterCount)
	}
	if strings.Contains(result.Text, "\\cite") {
		t.Errorf("citations without bibliography must be stripped: %q", result.Text)
	}
}

func TestGenerateSimpleWorkContent(t *testing.T) {
	body := "Основной текст \\cite{внешний2021} работы."
	biblio := "\\begin{thebibliography}{99}\n\\bibitem{source1} Книга.\n\\end{thebibliography}"
	g, inv, conv := newTestGenerator(t, body, biblio)

	result, err := g.GenerateSimpleWorkContent(context.Background(), conv, testParams(2))
	if err != nil {
		t.Fatalf("GenerateSimpleWorkContent: %v", err)
	}
	want := []string{"simple_work", "simple_bibliography"}
	if got := inv.workflows(); !reflect.DeepEqual(got, want) {
		t.Errorf("workflows = %v, want %v", got, want)
	}
	if result.ChapterCount != 0 {
		t.Errorf("ChapterCount = %d, want 0", result.ChapterCount)
	}
	if !strings.Contains(result.Text, "\\cite{source1}") {
		t.Errorf("foreign citation must be rewritten to source1: %q", result.Text)
	}
	if !strings.Contains(result.Text, "\\begin{thebibliography}") {
		t.Errorf("bibliography missing: %q", result.Text)
	}
	if prompt := inv.lastPrompt(0); !strings.Contains(prompt, "курсовой работы") {
		t.Errorf("prompt missing genitive work type: %q", prompt)
	}
}

func TestGenerateFullWorkContentLegacy(t *testing.T) {
	g, inv, conv := newTestGenerator(t, "Цельный текст работы от введения до заключения.")

	result, err := g.GenerateFullWorkContentLegacy(context.Background(), conv, testParams(10))
	if err != nil {
		t.Fatalf("GenerateFullWorkContentLegacy: %v", err)
	}
	if got := inv.workflows(); !reflect.DeepEqual(got, []string{"legacy_full_work"}) {
		t.Errorf("workflows = %v", got)
	}
	if result.Text != "Цельный текст работы от введения до заключения." {
		t.Errorf("text = %q", result.Text)
	}
	if prompt := inv.lastPrompt(0); !strings.Contains(prompt, "10 страниц") {
		t.Errorf("prompt missing page count: %q", prompt)
	}
}

func TestGeneratorWrapsInvokerError(t *testing.T) {
	g := NewGenerator(&failingInvoker{err: errors.New("connection refused")}, workflowprompt.NewRegistry(), testOptions())
	conv, err := g.NewConversation("order-test")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	_, err = g.GenerateWorkPlan(context.Background(), conv, testParams(10))
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeLLMCallFailed {
		t.Errorf("err = %v, want AppError with CodeLLMCallFailed", err)
	}
}

func TestGeneratorRejectsEmptyResponse(t *testing.T) {
	g, _, conv := newTestGenerator(t, "   \n\t ")

	_, _, err := g.GenerateChapterContent(context.Background(), conv, testParams(10), "Глава", 2.0)
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeLLMEmptyResponse {
		t.Errorf("err = %v, want AppError with CodeLLMEmptyResponse", err)
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	return diff < 1e-9 && diff > -1e-9
}
