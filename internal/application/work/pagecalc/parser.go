package pagecalc

import (
	"regexp"
	"strings"
)

// Chapter 工作计划中的一章及其子小节标题。
type Chapter struct {
	Title       string
	Subsections []string
}

// 计划行识别模式。子小节的数字形式（1.1 标题）必须先于章节模式判断，
// 否则会被 “N. 标题” 吞掉。
var (
	subsectionNumberedRe = regexp.MustCompile(`^(\d+\.\d+)\s*(.+)$`)
	subsectionDashRe     = regexp.MustCompile(`^-\s*(.+)$`)
	subsectionStarRe     = regexp.MustCompile(`^\*\s*(.+)$`)

	chapterNumberedRe = regexp.MustCompile(`^(\d+)\.\s*(.+)$`)
	chapterWordRe     = regexp.MustCompile(`(?i)^Глава\s*(\d+)\.?\s*(.+)$`)
	chapterParenRe    = regexp.MustCompile(`^(\d+)\)\s*(.+)$`)
	chapterRomanRe    = regexp.MustCompile(`(?i)^[IVX]+\.\s*(.+)$`)
)

// ParseWorkPlan 按行解析 LLM 返回的工作计划文本。
// 识别四种章节写法（“1. X”、“Глава 1. X”、“1) X”、“IV. X”）和
// 三种子小节写法（“1.1 X”、“- X”、“* X”）；尚无章节时出现的子小节行
// 以及其它无法识别的行一律忽略。
func ParseWorkPlan(planText string) []Chapter {
	var chapters []Chapter
	current := -1

	for _, rawLine := range strings.Split(planText, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if title, ok := matchSubsection(line); ok {
			if current >= 0 {
				chapters[current].Subsections = append(chapters[current].Subsections, title)
			}
			continue
		}

		if title, ok := matchChapter(line); ok {
			chapters = append(chapters, Chapter{Title: title})
			current = len(chapters) - 1
		}
	}

	return chapters
}

func matchSubsection(line string) (string, bool) {
	if m := subsectionNumberedRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[2]), true
	}
	if m := subsectionDashRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := subsectionStarRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

func matchChapter(line string) (string, bool) {
	if m := chapterNumberedRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[2]), true
	}
	if m := chapterWordRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[2]), true
	}
	if m := chapterParenRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[2]), true
	}
	if m := chapterRomanRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// CountPlanItems 统计计划的总条目数：章节数加所有子小节数。
func CountPlanItems(chapters []Chapter) int {
	count := len(chapters)
	for _, chapter := range chapters {
		count += len(chapter.Subsections)
	}
	return count
}
