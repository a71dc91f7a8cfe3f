package latexdoc

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceLatexOpenRe = regexp.MustCompile("(?im)^\\s*```\\s*latex\\s*\n?")
	fenceOpenRe      = regexp.MustCompile("(?m)^\\s*```\\s*\n?")
	fenceCloseRe     = regexp.MustCompile("(?m)\n?```\\s*$")

	displayMathRe = regexp.MustCompile(`(?s)\$\$.*?\$\$`)
	parenMathRe   = regexp.MustCompile(`(?s)\\\(.*?\\\)`)
	bracketMathRe = regexp.MustCompile(`(?s)\\\[.*?\\\]`)

	mathCharRe   = regexp.MustCompile(`[a-zA-Z_^{}\(\)\[\]+\-*/=<>]`)
	justNumberRe = regexp.MustCompile(`^[\d\s.,]+$`)

	emptyCommandRe = regexp.MustCompile(`\\[a-zA-Z]+\{\s*\}`)
	emptyBracesRe  = regexp.MustCompile(`\{\s*\}`)
	backslashRunRe = regexp.MustCompile(`\\{2,}`)
	blankLinesRe   = regexp.MustCompile(`\n\s*\n\s*\n+`)

	bibSectionHeadRe = regexp.MustCompile(`(?i)\\section\*?\{[^}]*список[^}]*(?:литературы|источников|использованных)[^}]*\}`)
	bibChapterHeadRe = regexp.MustCompile(`(?i)\\chapter\{[^}]*список[^}]*(?:литературы|источников|использованных)[^}]*\}`)
)

// specialCharReplacer 转义纯文本行里的 LaTeX 特殊字符。
// 只处理不含反斜杠的行，避免碰到命令本身。
var specialCharReplacer = strings.NewReplacer(
	"#", `\#`,
	"%", `\%`,
	"^", `\textasciicircum{}`,
	"_", `\_`,
	"~", `\textasciitilde{}`,
)

// CleanLatexContent 清洗 LLM 返回的 LaTeX 正文：去掉 markdown 代码栅栏、
// 转义货币符号和特殊字符、删掉空命令并收敛多余的换行。
// 空命令在特殊字符转义之前删除，这样删完命令变成纯文本的行仍能被转义。
func CleanLatexContent(content string) string {
	content = RemoveMarkdownCodeBlocks(content)
	content = SmartEscapeDollars(content)

	content = emptyCommandRe.ReplaceAllString(content, "")
	content = emptyBracesRe.ReplaceAllString(content, "")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.ContainsRune(line, '\\') {
			continue
		}
		lines[i] = specialCharReplacer.Replace(line)
	}
	content = strings.Join(lines, "\n")

	content = backslashRunRe.ReplaceAllString(content, `\\`)
	content = blankLinesRe.ReplaceAllString(content, "\n\n")

	lines = strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}

// RemoveMarkdownCodeBlocks 去掉 LLM 喜欢加的 ```latex / ``` 代码栅栏。
func RemoveMarkdownCodeBlocks(content string) string {
	if content == "" {
		return content
	}
	content = fenceLatexOpenRe.ReplaceAllString(content, "")
	content = fenceOpenRe.ReplaceAllString(content, "")
	content = fenceCloseRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// SmartEscapeDollars 转义表示货币的 $，保留数学公式。
// 支持 $...$、$$...$$、\(...\)、\[...\] 四种公式语法；
// 公式先替换成占位符，转义完剩余的 $ 后再还原。幂等。
func SmartEscapeDollars(text string) string {
	type mathMarker struct{ marker, math string }
	var markers []mathMarker
	stash := func(math string) string {
		marker := fmt.Sprintf("__MATH_MARKER_%d__", len(markers))
		markers = append(markers, mathMarker{marker: marker, math: math})
		return marker
	}

	// display math 先于 inline，避免 $$ 被拆成两对 $
	text = displayMathRe.ReplaceAllStringFunc(text, stash)
	text = parenMathRe.ReplaceAllStringFunc(text, stash)
	text = bracketMathRe.ReplaceAllStringFunc(text, stash)
	text = protectInlineMath(text, stash)

	text = strings.ReplaceAll(text, `\\$`, `\$`)
	text = escapeBareDollars(text)

	for _, m := range markers {
		text = strings.ReplaceAll(text, m.marker, m.math)
	}
	return text
}

// protectInlineMath 把成对的 $...$ 行内公式换成占位符。
// 只有内容含数学符号且不是纯数字时才算公式；连续的 $$ 不参与配对。
func protectInlineMath(text string, stash func(string) string) string {
	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		if text[i] != '$' {
			b.WriteByte(text[i])
			i++
			continue
		}
		j := i
		for j < len(text) && text[j] == '$' {
			j++
		}
		if j-i >= 2 {
			b.WriteString(text[i:j])
			i = j
			continue
		}
		k := strings.IndexByte(text[i+1:], '$')
		if k < 0 {
			b.WriteString(text[i:])
			return b.String()
		}
		end := i + 1 + k
		if end+1 < len(text) && text[end+1] == '$' {
			// 候选的闭合 $ 粘在 $$ 上，不成对
			b.WriteString(text[i:end])
			i = end
			continue
		}
		if inner := text[i+1 : end]; isMathExpression(inner) {
			b.WriteString(stash(text[i : end+1]))
		} else {
			b.WriteString(text[i : end+1])
		}
		i = end + 1
	}
	return b.String()
}

// isMathExpression 判断 $...$ 的内容是否像公式：
// 含字母、运算符或括号，且不是纯数字（“$5$”是价格不是公式）。
func isMathExpression(inner string) bool {
	return mathCharRe.MatchString(inner) && !justNumberRe.MatchString(strings.TrimSpace(inner))
}

func escapeBareDollars(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		if text[i] == '$' && (i == 0 || text[i-1] != '\\') {
			b.WriteString(`\$`)
			continue
		}
		b.WriteByte(text[i])
	}
	return b.String()
}

// SmartEscapeAmpersands 转义未转义的 &，先把重复转义压回单层。幂等。
func SmartEscapeAmpersands(text string) string {
	text = strings.ReplaceAll(text, `\\&`, `\&`)

	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		if text[i] == '&' && (i == 0 || text[i-1] != '\\') {
			b.WriteString(`\&`)
			continue
		}
		b.WriteByte(text[i])
	}
	return b.String()
}

// FindBibliographySection 定位文献列表小节在文本中的范围 [start, end)。
// 标题必须是含“список … литературы/источников/использованных”的
// \section、\section* 或 \chapter；小节延伸到下一个同级命令或文本结尾。
func FindBibliographySection(content string) (start, end int, ok bool) {
	if loc := bibSectionHeadRe.FindStringIndex(content); loc != nil {
		return loc[0], sectionEnd(content, loc[1], `\section`), true
	}
	if loc := bibChapterHeadRe.FindStringIndex(content); loc != nil {
		return loc[0], sectionEnd(content, loc[1], `\chapter`), true
	}
	return 0, 0, false
}

func sectionEnd(content string, from int, boundary string) int {
	if idx := strings.Index(content[from:], boundary); idx >= 0 {
		return from + idx
	}
	return len(content)
}

// FixBibliographyAmpersands 只在文献列表小节里转义 &。
// 参考文献里 & 常见（出版社、合著者），正文里的 & 则留给作者自理。
func FixBibliographyAmpersands(content string) string {
	start, end, ok := FindBibliographySection(content)
	if !ok {
		return content
	}
	return content[:start] + SmartEscapeAmpersands(content[start:end]) + content[end:]
}
