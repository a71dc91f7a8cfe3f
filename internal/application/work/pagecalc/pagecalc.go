// Package pagecalc 提供页数换算、章节预算分配与工作计划解析。
//
// “页”是面向用户的单位：正文字符数按固定系数折算成页数，
// 标题页和目录按经验值计入总页数。所有函数均为纯函数。
package pagecalc

import (
	"math"
	"strings"
	"unicode/utf8"
)

// 默认换算参数，来源于 A4、三厘米左边距、1.5 倍行距下的经验值。
const (
	DefaultSymbolsPerPage      = 1250
	DefaultTitlePagePages      = 1.0
	DefaultTOCBasePages        = 0.5
	DefaultTOCPerChapterPages  = 0.05
	DefaultSubsectionThreshold = 0.7
)

// Params 页数模型参数，零值字段按默认值处理。
type Params struct {
	// SymbolsPerPage 一页正文折算的字符数
	SymbolsPerPage int
	// TitlePagePages 标题页折算页数
	TitlePagePages float64
	// TOCBasePages 目录基础页数
	TOCBasePages float64
	// TOCPerChapterPages 目录随章节数的增量页数
	TOCPerChapterPages float64
	// SubsectionThreshold 触发子小节补充生成的页数比阈值
	SubsectionThreshold float64
}

// DefaultParams 返回默认页数模型参数。
func DefaultParams() Params {
	return Params{
		SymbolsPerPage:      DefaultSymbolsPerPage,
		TitlePagePages:      DefaultTitlePagePages,
		TOCBasePages:        DefaultTOCBasePages,
		TOCPerChapterPages:  DefaultTOCPerChapterPages,
		SubsectionThreshold: DefaultSubsectionThreshold,
	}
}

func (p Params) symbolsPerPage() float64 {
	if p.SymbolsPerPage > 0 {
		return float64(p.SymbolsPerPage)
	}
	return DefaultSymbolsPerPage
}

func (p Params) subsectionThreshold() float64 {
	if p.SubsectionThreshold > 0 {
		return p.SubsectionThreshold
	}
	return DefaultSubsectionThreshold
}

// tocPages 估算目录占用的页数。
func (p Params) tocPages(numChapters int) float64 {
	base := p.TOCBasePages
	if base == 0 {
		base = DefaultTOCBasePages
	}
	per := p.TOCPerChapterPages
	if per == 0 {
		per = DefaultTOCPerChapterPages
	}
	return base + float64(numChapters)*per
}

func (p Params) titlePages() float64 {
	if p.TitlePagePages == 0 {
		return DefaultTitlePagePages
	}
	return p.TitlePagePages
}

// CountPagesInText 统计正文文本折算的页数。
// 先剥离 LaTeX 控制序列和花括号组，再按字符数换算，结果可为小数。
func (p Params) CountPagesInText(text string) float64 {
	clean := StripLatex(text)
	return float64(utf8.RuneCountInString(clean)) / p.symbolsPerPage()
}

// TargetChars 把页数预算换算成提示词里要求的字符数。
func (p Params) TargetChars(pages float64) int {
	return int(pages * p.symbolsPerPage())
}

// CountTotalPagesInDocument 统计完整文档的页数，含标题页与目录。
func (p Params) CountTotalPagesInDocument(content string, numChapters int) float64 {
	return p.titlePages() + p.tocPages(numChapters) + p.CountPagesInText(content)
}

// CalculateContentPagesForTarget 由目标总页数推算需要生成的正文页数。
// 扣除标题页和目录后不足一页时按一页处理。
func (p Params) CalculateContentPagesForTarget(totalPages, numChapters int) float64 {
	service := p.titlePages() + p.tocPages(numChapters)
	return math.Max(1.0, float64(totalPages)-service)
}

// specialChapterBudgets 固定预算的特殊章节，按关键字在小写标题中匹配，
// 顺序即匹配优先级。
var specialChapterBudgets = []struct {
	keyword string
	pages   float64
}{
	{"введение", 1.5},
	{"заключение", 1.5},
	{"список", 0.5},
	{"библиография", 0.5},
}

// CalculatePagesPerChapter 把正文页数预算分配到各章节。
// 特殊章节（введение/заключение/список/библиография）拿固定预算，
// 剩余页数在普通章节间均分；剩余不足时普通章节分到零。
func (p Params) CalculatePagesPerChapter(totalPages float64, chapters []Chapter) map[string]float64 {
	if len(chapters) == 0 {
		return map[string]float64{}
	}

	budgets := make(map[string]float64, len(chapters))
	specialPages := 0.0
	var mainChapters []Chapter

	for _, chapter := range chapters {
		titleLower := strings.ToLower(chapter.Title)
		matched := false
		for _, special := range specialChapterBudgets {
			if strings.Contains(titleLower, special.keyword) {
				budgets[chapter.Title] = special.pages
				specialPages += special.pages
				matched = true
				break
			}
		}
		if !matched {
			mainChapters = append(mainChapters, chapter)
		}
	}

	perMain := 0.0
	if remaining := totalPages - specialPages; len(mainChapters) > 0 && remaining > 0 {
		perMain = remaining / float64(len(mainChapters))
	}
	for _, chapter := range mainChapters {
		budgets[chapter.Title] = perMain
	}

	return budgets
}

// ShouldGenerateSubsections 判断章节正文是否不足、需要补充子小节。
func (p Params) ShouldGenerateSubsections(currentPages, targetPages float64) bool {
	return currentPages < targetPages*p.subsectionThreshold()
}

// ValidateWorkPlan 校验计划条目数是否达到页数要求的下限（max(1, pages/3)）。
// 返回是否通过与实际条目数。
func (p Params) ValidateWorkPlan(planText string, pages int) (bool, int) {
	chapters := ParseWorkPlan(planText)
	items := CountPlanItems(chapters)
	minItems := pages / 3
	if minItems < 1 {
		minItems = 1
	}
	return items >= minItems, items
}

// StripLatex 剥离 LaTeX 标记，只留下用于计数的正文字符。
// 单遍扫描：命令及其花括号参数、独立花括号组被丢弃，\\ 视为换行，
// 最后把所有空白折叠成单个空格。
func StripLatex(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		switch c := text[i]; c {
		case '\\':
			if i+1 < len(text) && text[i+1] == '\\' {
				b.WriteByte('\n')
				i += 2
				continue
			}
			j := i + 1
			for j < len(text) && isASCIILetter(text[j]) {
				j++
			}
			if j == i+1 {
				// 一个反斜杠加非字母（\%、\$ 等转义）：丢掉反斜杠，保留字符
				i++
				continue
			}
			if j < len(text) && text[j] == '*' {
				j++
			}
			if j < len(text) && text[j] == '{' {
				j = skipBraceGroup(text, j)
			}
			i = j
		case '{':
			i = skipBraceGroup(text, i)
		case '}':
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// skipBraceGroup 从 text[start]=='{' 起跳过配对的花括号组，返回组后的下标。
// 未闭合时认为组延伸到文本末尾。
func skipBraceGroup(text string, start int) int {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(text)
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
