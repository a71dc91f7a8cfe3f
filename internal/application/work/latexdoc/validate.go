package latexdoc

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	envTagRe         = regexp.MustCompile(`\\(begin|end)\{([a-zA-Z]+\*?)\}`)
	leadingNewpageRe = regexp.MustCompile(`^\\newpage\s*`)
	sectionAtLineRe  = regexp.MustCompile(`(?m)^\\section\{([^}]+)\}`)
	anySectionLineRe = regexp.MustCompile(`(?m)^\\(sub)?section\{`)
)

// ValidateLatexTags 校验 \begin/\end 环境是否正确配对。
// 返回是否有效和俄语错误描述（会进重试日志与管理员告警）。
func ValidateLatexTags(content string) (bool, string) {
	var stack []string
	for _, m := range envTagRe.FindAllStringSubmatch(content, -1) {
		kind, name := m[1], m[2]
		if kind == "begin" {
			stack = append(stack, name)
			continue
		}
		if len(stack) == 0 {
			return false, fmt.Sprintf(`Закрывающий тег \end{%s} без соответствующего открывающего`, name)
		}
		if top := stack[len(stack)-1]; top != name {
			return false, fmt.Sprintf(`Несоответствие тегов: ожидался \end{%s}, найден \end{%s}`, top, name)
		}
		stack = stack[:len(stack)-1]
	}
	if len(stack) > 0 {
		return false, "Незакрытые теги: " + strings.Join(stack, ", ")
	}
	return true, ""
}

// FixSectionCommands 修正子小节正文里的层级错误：
// 去掉开头多余的 \newpage，把行首的 \section 降级为 \subsection，
// 两者都没有时补一个带期望标题的 \subsection。
func FixSectionCommands(content, expectedTitle string) string {
	s := strings.TrimSpace(content)
	s = leadingNewpageRe.ReplaceAllString(s, "")

	if loc := sectionAtLineRe.FindStringSubmatchIndex(s); loc != nil {
		title := s[loc[2]:loc[3]]
		s = s[:loc[0]] + `\subsection{` + title + `}` + s[loc[1]:]
	}

	if !anySectionLineRe.MatchString(s) {
		s = `\subsection{` + expectedTitle + "}\n\n" + s
	}
	return s
}
