package content

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kursovik/kursovik-ai-api/internal/application/work/latexdoc"
)

var (
	bibItemKeyRe = regexp.MustCompile(`\\bibitem\{source(\d+)\}`)
	citeRe       = regexp.MustCompile(`\\cite\{([^}]*)\}`)
	sourceKeyRe  = regexp.MustCompile(`^source\d+$`)
)

// CitationStats 引用修复的动作计数。
type CitationStats struct {
	Sequential int
	Random     int
	Stripped   int
}

// RepairCitations 把正文里模型自创的 \cite 键改写成文献列表里真实存在的键。
//
// 从文献列表小节取出 \bibitem{sourceN} 的最大编号 N，然后按文档顺序改写
// 正文（文献列表之外）中所有不是 sourceK 形式的 \cite：前 N 个依次映射到
// source1..sourceN，之后的均匀随机落在 [1,N]。整篇文档共用一个计数器。
// 文献列表完全没有条目时，陌生的 \cite 直接删除。
//
// intn 注入随机源，方便测试固定种子。
func RepairCitations(text string, intn func(int) int) (string, CitationStats) {
	var stats CitationStats

	bibStart, bibEnd, hasBib := latexdoc.FindBibliographySection(text)
	bibScope := text
	if hasBib {
		bibScope = text[bibStart:bibEnd]
	}

	maxN := 0
	for _, m := range bibItemKeyRe.FindAllStringSubmatch(bibScope, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxN {
			maxN = n
		}
	}

	counter := 0
	rewrite := func(segment string) string {
		return citeRe.ReplaceAllStringFunc(segment, func(tok string) string {
			key := citeRe.FindStringSubmatch(tok)[1]
			if sourceKeyRe.MatchString(key) {
				return tok
			}
			if maxN == 0 {
				stats.Stripped++
				return ""
			}
			counter++
			if counter <= maxN {
				stats.Sequential++
				return fmt.Sprintf(`\cite{source%d}`, counter)
			}
			stats.Random++
			return fmt.Sprintf(`\cite{source%d}`, 1+intn(maxN))
		})
	}

	if !hasBib {
		return rewrite(text), stats
	}

	var b strings.Builder
	b.Grow(len(text))
	b.WriteString(rewrite(text[:bibStart]))
	b.WriteString(text[bibStart:bibEnd])
	b.WriteString(rewrite(text[bibEnd:]))
	return b.String(), stats
}
