package converter

import (
	"strings"
	"testing"
)

func TestPrepareTexForPandoc(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "newpage replaced with blank line",
			in:   "Титульный лист\\newpage Введение",
			want: "Титульный лист\n\nВведение",
		},
		{
			name: "newpage with trailing newlines",
			in:   "Глава 1\\newpage\n\nГлава 2",
			want: "Глава 1\n\nГлава 2",
		},
		{
			name: "blank runs collapsed",
			in:   "Первый абзац\n\n\n\nВторой абзац",
			want: "Первый абзац\n\nВторой абзац",
		},
		{
			name: "double blank kept as is",
			in:   "Первый абзац\n\nВторой абзац",
			want: "Первый абзац\n\nВторой абзац",
		},
		{
			name: "other commands untouched",
			in:   "\\section{Введение} текст",
			want: "\\section{Введение} текст",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prepareTexForPandoc(tt.in)
			if got != tt.want {
				t.Errorf("prepareTexForPandoc(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractPlainText(t *testing.T) {
	in := "\\section{Введение} Актуальность темы \\textbf{обусловлена} развитием отрасли \\\\ вторая строка"

	got := extractPlainText(in)

	if strings.Contains(got, "\\") {
		t.Errorf("extractPlainText left latex commands in output: %q", got)
	}
	for _, word := range []string{"Актуальность темы", "развитием отрасли", "вторая строка"} {
		if !strings.Contains(got, word) {
			t.Errorf("extractPlainText dropped content %q, got %q", word, got)
		}
	}
	if strings.Contains(got, "Введение") {
		t.Errorf("extractPlainText kept command argument text: %q", got)
	}
}

func TestExtractPlainTextCollapsesBlankLines(t *testing.T) {
	in := "Первый абзац\n\n\n\nВторой абзац"

	got := extractPlainText(in)

	if strings.Contains(got, "\n\n\n") {
		t.Errorf("extractPlainText left runs of blank lines: %q", got)
	}
	if !strings.Contains(got, "Первый абзац") || !strings.Contains(got, "Второй абзац") {
		t.Errorf("extractPlainText dropped paragraph text: %q", got)
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short string unchanged", in: "short", n: 10, want: "short"},
		{name: "exact length unchanged", in: "abcde", n: 5, want: "abcde"},
		{name: "long string truncated", in: "0123456789", n: 4, want: "...6789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tail(tt.in, tt.n); got != tt.want {
				t.Errorf("tail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestCombineOutput(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		stderr string
		want   string
	}{
		{name: "both present", stdout: "out", stderr: "err", want: "out\nerr"},
		{name: "stdout only", stdout: "out", stderr: "", want: "out"},
		{name: "stderr only", stdout: "", stderr: "err", want: "err"},
		{name: "both empty", stdout: "", stderr: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := combineOutput(tt.stdout, tt.stderr); got != tt.want {
				t.Errorf("combineOutput(%q, %q) = %q, want %q", tt.stdout, tt.stderr, got, tt.want)
			}
		})
	}
}
