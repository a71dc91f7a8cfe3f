// Package latexdoc 负责把 LLM 生成的正文装配成可编译的 LaTeX 文档：
// 清洗特殊字符、校验环境配对、修复常见标记错误并套用统一的标题页模板。
package latexdoc

import (
	_ "embed"
	"strings"
)

//go:embed templates/document.tex
var documentTemplate string

// CreateLatexDocument 把正文套入文档模板，返回完整的 .tex 源码。
// 正文先经过 CleanLatexContent 清洗，再对文献列表做 & 转义。
// includeTOC 控制是否在标题页后插入目录页。
func CreateLatexDocument(theme, content string, includeTOC bool) string {
	content = CleanLatexContent(content)
	content = FixBibliographyAmpersands(content)

	toc := ""
	if includeTOC {
		toc = "\\tableofcontents\n\\newpage\n\n"
	}

	return strings.NewReplacer(
		"{{theme}}", theme,
		"{{toc}}", toc,
		"{{content}}", content,
	).Replace(documentTemplate)
}
