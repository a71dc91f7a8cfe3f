package latexdoc

import (
	"strings"
	"testing"
)

func TestRemoveMarkdownCodeBlocks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", "обычный текст", "обычный текст"},
		{"latex fence", "```latex\n\\section{X}\n```", `\section{X}`},
		{"bare fence", "```\n\\section{X}\n```", `\section{X}`},
		{"uppercase fence", "```LATEX\n\\section{X}\n```", `\section{X}`},
		{"leading whitespace", "  ```latex\n\\section{X}\n```  ", `\section{X}`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemoveMarkdownCodeBlocks(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSmartEscapeDollars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"money only", "стоимость $5", `стоимость \$5`},
		{"formula kept", "$x + y = z$", "$x + y = z$"},
		{"formula and money", "$C(t)$ costs $5", `$C(t)$ costs \$5`},
		{"display math", "$$\\sum_{i=1}^n i$$", "$$\\sum_{i=1}^n i$$"},
		{"paren math", `\(a+b\)`, `\(a+b\)`},
		{"bracket math", `\[a+b\]`, `\[a+b\]`},
		{"number pair escaped", "цена $5$ рублей", `цена \$5\$ рублей`},
		{"already escaped", `цена \$5`, `цена \$5`},
		{"double escaped normalized", `цена \\$5`, `цена \$5`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SmartEscapeDollars(tt.in); got != tt.want {
				t.Errorf("SmartEscapeDollars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// 重复调用不能再次转义：f(f(x)) == f(x)。
func TestSmartEscapeDollarsIdempotent(t *testing.T) {
	inputs := []string{
		"стоимость $5 и $10",
		"$C(t)$ costs $5",
		"формула $x^2$ и цена $7$",
		"$$display$$ и \\(inline\\)",
		"без долларов вообще",
	}
	for _, in := range inputs {
		once := SmartEscapeDollars(in)
		twice := SmartEscapeDollars(once)
		if once != twice {
			t.Errorf("not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestSmartEscapeAmpersands(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Иванов & Петров", `Иванов \& Петров`},
		{`уже \& готово`, `уже \& готово`},
		{`дважды \\& готово`, `дважды \& готово`},
		{"&&", `\&\&`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SmartEscapeAmpersands(tt.in); got != tt.want {
			t.Errorf("SmartEscapeAmpersands(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindBibliographySection(t *testing.T) {
	content := `\section{Введение}
Текст.
\section{Список использованных источников}
\begin{thebibliography}{99}
\bibitem{source1} Иванов И.И. Статья // Журнал. 2020.
\end{thebibliography}
\section{Приложение}
Хвост.`

	start, end, ok := FindBibliographySection(content)
	if !ok {
		t.Fatal("bibliography section not found")
	}
	section := content[start:end]
	if !strings.HasPrefix(section, `\section{Список использованных источников}`) {
		t.Errorf("section starts with %q", section[:40])
	}
	if strings.Contains(section, "Приложение") {
		t.Error("section should stop before the next \\section")
	}
	if !strings.Contains(section, `\bibitem{source1}`) {
		t.Error("section should contain the bibliography body")
	}
}

func TestFindBibliographySectionToEnd(t *testing.T) {
	content := `\section{Список литературы}
\bibitem{source1} Источник.`
	start, end, ok := FindBibliographySection(content)
	if !ok {
		t.Fatal("not found")
	}
	if start != 0 || end != len(content) {
		t.Errorf("range = [%d, %d), want [0, %d)", start, end, len(content))
	}
}

func TestFindBibliographySectionMissing(t *testing.T) {
	if _, _, ok := FindBibliographySection(`\section{Введение} + текст`); ok {
		t.Error("unexpected bibliography match")
	}
	// 标题里没有 список 关键字
	if _, _, ok := FindBibliographySection(`\section{Литературный обзор}`); ok {
		t.Error("обзор is not a bibliography")
	}
}

func TestFixBibliographyAmpersands(t *testing.T) {
	content := `\section{Основная часть}
Компании M&M в тексте.
\section{Список литературы}
\bibitem{source1} Smith & Jones. Title.`

	got := FixBibliographyAmpersands(content)
	if !strings.Contains(got, `Smith \& Jones`) {
		t.Errorf("bibliography ampersand not escaped: %q", got)
	}
	if !strings.Contains(got, "M&M в тексте") {
		t.Errorf("body ampersand must stay untouched: %q", got)
	}
}

func TestFixBibliographyAmpersandsIdempotent(t *testing.T) {
	content := `\section{Список источников литературы}
A & B \& C`
	once := FixBibliographyAmpersands(content)
	twice := FixBibliographyAmpersands(once)
	if once != twice {
		t.Errorf("not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestCleanLatexContent(t *testing.T) {
	t.Run("fences and dollars", func(t *testing.T) {
		in := "```latex\nцена $5\n```"
		got := CleanLatexContent(in)
		if got != `цена \$5` {
			t.Errorf("got %q", got)
		}
	})

	t.Run("special chars on plain lines", func(t *testing.T) {
		got := CleanLatexContent("скидка 100% и тег #1 и x_1")
		for _, want := range []string{`\%`, `\#`, `\_`} {
			if !strings.Contains(got, want) {
				t.Errorf("got %q, want escaped %s", got, want)
			}
		}
	})

	t.Run("command lines untouched", func(t *testing.T) {
		in := `\section{Проценты 100%}`
		if got := CleanLatexContent(in); got != in {
			t.Errorf("got %q, want unchanged", got)
		}
	})

	t.Run("empty commands removed", func(t *testing.T) {
		got := CleanLatexContent(`до \textbf{} после`)
		if strings.Contains(got, `\textbf`) {
			t.Errorf("got %q, want empty command removed", got)
		}
	})

	// 删掉空命令后只剩纯文本的行也要转义
	t.Run("escape after empty command removal", func(t *testing.T) {
		got := CleanLatexContent(`\textbf{} скидка 50%`)
		if !strings.Contains(got, `\%`) {
			t.Errorf("got %q, want escaped percent", got)
		}
	})

	t.Run("blank lines collapsed", func(t *testing.T) {
		got := CleanLatexContent("a\n\n\n\nb")
		if got != "a\n\nb" {
			t.Errorf("got %q, want %q", got, "a\n\nb")
		}
	})

	t.Run("backslash runs collapsed", func(t *testing.T) {
		got := CleanLatexContent(`строка\\\\вторая`)
		if got != `строка\\вторая` {
			t.Errorf("got %q, want %q", got, `строка\\вторая`)
		}
	})

	t.Run("trailing whitespace trimmed", func(t *testing.T) {
		got := CleanLatexContent("строка   \nвторая\t")
		if got != "строка\nвторая" {
			t.Errorf("got %q", got)
		}
	})
}

func TestCreateLatexDocument(t *testing.T) {
	doc := CreateLatexDocument("Нейронные сети", `\section{Введение}
Текст работы.`, true)

	for _, want := range []string{
		`\documentclass[12pt,a4paper,draft]{article}`,
		`\usepackage[russian]{babel}`,
		"Тема: Нейронные сети",
		`\tableofcontents`,
		`\section{Введение}`,
		`\end{document}`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
}

func TestCreateLatexDocumentWithoutTOC(t *testing.T) {
	doc := CreateLatexDocument("Тема", "Текст.", false)
	if strings.Contains(doc, `\tableofcontents`) {
		t.Error("document should not contain a table of contents")
	}
}

// 装配时正文要先走清洗管道。
func TestCreateLatexDocumentCleansContent(t *testing.T) {
	doc := CreateLatexDocument("Тема", "```latex\nцена $10\n```", true)
	if strings.Contains(doc, "```") {
		t.Error("markdown fences must not survive")
	}
	if !strings.Contains(doc, `\$10`) {
		t.Error("bare dollar must be escaped")
	}
}
