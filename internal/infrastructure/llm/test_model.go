package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// TestChatModel 确定性的本地聊天模型。
// 按请求文本的关键字返回预置的俄文 LaTeX 片段，用于端到端联调和演示，
// 不消耗任何真实模型配额。
type TestChatModel struct{}

// NewTestChatModel 创建测试聊天模型
func NewTestChatModel() *TestChatModel {
	return &TestChatModel{}
}

var (
	testPagesPattern      = regexp.MustCompile(`(\d+)\s*страниц`)
	testCharsPattern      = regexp.MustCompile(`(\d+)\s*символов`)
	testChapterPattern    = regexp.MustCompile(`Напиши главу\s+"([^"]+)"`)
	testSubsectionPattern = regexp.MustCompile(`Напиши подраздел\s+"([^"]+)"`)
)

// testFillerParagraph 正文填充段落，约 620 个字符
const testFillerParagraph = `В рамках настоящего исследования рассматриваются ключевые аспекты изучаемой темы, включая теоретические основы, методологические подходы и практические рекомендации. Анализ научной литературы показывает, что данная проблематика остается актуальной и требует комплексного подхода к изучению. Современные исследователи выделяют несколько направлений развития данной области, каждое из которых имеет свои особенности и ограничения. Систематизация накопленного опыта позволяет сформулировать обоснованные выводы и определить перспективы дальнейших исследований. Полученные результаты могут быть использованы как в теоретических изысканиях, так и в прикладных разработках по рассматриваемой тематике.`

// Generate 根据请求关键字返回预置响应
func (m *TestChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	prompt := lastUserContent(input)
	lower := strings.ToLower(prompt)

	var content string
	switch {
	case strings.Contains(lower, "составь подробный план"):
		content = m.buildPlan(lower)
	case strings.Contains(lower, "предложи") && strings.Contains(lower, "подраздела"):
		content = "Теоретические основы вопроса\nАнализ современного состояния\nПрактические рекомендации"
	case strings.Contains(lower, "thebibliography") || strings.Contains(lower, "библиограф"):
		content = "\\section{Список использованных источников}\n\n" +
			"\\begin{thebibliography}{99}\n" +
			"\\bibitem{source1} Иванов, И.И. Основы научных исследований: учебник / И.И. Иванов. — М.: Наука, 2021. — 320 с.\n" +
			"\\bibitem{source2} Петрова, А.С. Методология современной науки / А.С. Петрова // Вестник науки. — 2022. — № 4. — С. 15–28.\n" +
			"\\bibitem{source3} Сидоров, В.П. Актуальные проблемы теории и практики / В.П. Сидоров. — СПб.: Питер, 2023. — 256 с.\n" +
			"\\end{thebibliography}"
	case strings.Contains(lower, "напиши введение"):
		content = "\\section{Введение}\n\n" +
			"Актуальность темы исследования обусловлена возрастающим значением рассматриваемой проблематики в современных условиях. " +
			"Целью работы является комплексное изучение предметной области и разработка практических рекомендаций \\cite{source1}. " +
			"Для достижения поставленной цели необходимо решить следующие задачи: изучить теоретические основы, " +
			"проанализировать современное состояние вопроса и обобщить полученные результаты. " +
			"Объектом исследования выступают процессы и явления, связанные с темой работы. " +
			"Предметом исследования являются закономерности и особенности их развития."
	case strings.Contains(lower, "напиши заключение"):
		content = "\\section{Заключение}\n\n" +
			"В ходе выполнения работы были решены все поставленные задачи и достигнута цель исследования. " +
			"Проведенный анализ позволил систематизировать теоретические подходы и выявить ключевые закономерности развития предметной области. " +
			"Практическая значимость полученных результатов заключается в возможности их применения при решении прикладных задач \\cite{source2}. " +
			"Перспективы дальнейших исследований связаны с углубленным изучением отдельных аспектов рассмотренной проблематики."
	default:
		content = m.buildBody(prompt)
	}

	out := &schema.Message{
		Role:    schema.Assistant,
		Content: content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage: &schema.TokenUsage{
				PromptTokens:     len([]rune(prompt)) / 4,
				CompletionTokens: len([]rune(content)) / 4,
				TotalTokens:      (len([]rune(prompt)) + len([]rune(content))) / 4,
			},
		},
	}
	return out, nil
}

// Stream 以单条消息的流形式返回 Generate 的结果
func (m *TestChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// buildPlan 按请求页数生成章节数不同的工作计划。
// 所有条目都带编号，保证计划能被解析出完整结构。
func (m *TestChatModel) buildPlan(prompt string) string {
	pages := extractNumber(testPagesPattern, prompt, 20)

	chapters := 4
	switch {
	case pages <= 10:
		chapters = 2
	case pages <= 20:
		chapters = 3
	}

	var b strings.Builder
	b.WriteString("1. Введение\n")
	titles := []string{
		"Теоретические основы исследуемой темы",
		"Анализ современного состояния проблемы",
		"Практические аспекты и рекомендации",
		"Перспективы развития предметной области",
	}
	num := 1
	for i := 0; i < chapters; i++ {
		num++
		fmt.Fprintf(&b, "%d. %s\n", num, titles[i])
		fmt.Fprintf(&b, "   %d.1 Основные понятия и определения\n", num)
		fmt.Fprintf(&b, "   %d.2 Обзор существующих подходов\n", num)
		if pages > 20 {
			fmt.Fprintf(&b, "   %d.3 Практика применения\n", num)
		}
	}
	fmt.Fprintf(&b, "%d. Заключение\n", num+1)
	fmt.Fprintf(&b, "%d. Список использованных источников", num+2)
	return b.String()
}

// buildBody 生成带标题命令和引用标记的正文填充。
// 章节请求配 \section，子小节请求配 \subsection，体量按请求的
// 字符数或页数凑足。
func (m *TestChatModel) buildBody(prompt string) string {
	var b strings.Builder

	if mt := testSubsectionPattern.FindStringSubmatch(prompt); mt != nil {
		fmt.Fprintf(&b, "\\subsection{%s}\n\n", mt[1])
	} else if mt := testChapterPattern.FindStringSubmatch(prompt); mt != nil {
		fmt.Fprintf(&b, "\\section{%s}\n\n", mt[1])
	}

	targetRunes := extractNumber(testCharsPattern, prompt, 0)
	if targetRunes == 0 {
		pages := extractNumber(testPagesPattern, prompt, 2)
		if pages > 16 {
			pages = 16
		}
		targetRunes = pages * 1250
	}

	fillerRunes := len([]rune(testFillerParagraph))
	written := 0
	for i := 0; written < targetRunes; i++ {
		if i > 0 {
			b.WriteString("\n\n")
			written += 2
		}
		b.WriteString(testFillerParagraph)
		written += fillerRunes
		if i%2 == 0 {
			fmt.Fprintf(&b, " \\cite{source%d}", i%3+1)
		}
	}
	return b.String()
}

func extractNumber(re *regexp.Regexp, prompt string, def int) int {
	matches := re.FindStringSubmatch(prompt)
	if len(matches) < 2 {
		return def
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func lastUserContent(input []*schema.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] != nil && input[i].Role == schema.User {
			return input[i].Content
		}
	}
	if len(input) > 0 && input[len(input)-1] != nil {
		return input[len(input)-1].Content
	}
	return ""
}
