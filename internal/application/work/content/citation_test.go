package content

import (
	"fmt"
	"strings"
	"testing"
)

// fixedIntn 返回确定性的"随机"序列，便于断言。
func fixedIntn(values ...int) func(int) int {
	i := 0
	return func(n int) int {
		v := values[i%len(values)]
		i++
		return v % n
	}
}

func TestRepairCitationsSequentialThenRandom(t *testing.T) {
	text := `Как отмечает автор \cite{ivanov2020}, процесс сложен \cite{petrov}.
Далее \cite{sidorov21} и \cite{smith_ml} и \cite{doe2019}.

\section{Список использованных источников}
\begin{thebibliography}{99}
\bibitem{source1} Иванов И.И. Труд.
\bibitem{source2} Петров П.П. Статья.
\bibitem{source3} Сидоров С.С. Книга.
\end{thebibliography}`

	got, stats := RepairCitations(text, fixedIntn(1))

	// 前三个按序分配，其余落到随机的合法键
	for i := 1; i <= 3; i++ {
		want := fmt.Sprintf(`\cite{source%d}`, i)
		if !strings.Contains(got, want) {
			t.Errorf("RepairCitations: missing %s in output:\n%s", want, got)
		}
	}
	if strings.Contains(got, `\cite{ivanov2020}`) || strings.Contains(got, `\cite{doe2019}`) {
		t.Errorf("RepairCitations: foreign keys survived:\n%s", got)
	}
	// fixedIntn(1) → 1+1=2 → source2
	if !strings.Contains(got, `Далее \cite{source3} и \cite{source2} и \cite{source2}`) {
		t.Errorf("RepairCitations: random overflow keys wrong:\n%s", got)
	}
	if stats.Sequential != 3 || stats.Random != 2 || stats.Stripped != 0 {
		t.Errorf("stats = %+v, want {Sequential:3 Random:2 Stripped:0}", stats)
	}
}

func TestRepairCitationsKeepsSourceKeys(t *testing.T) {
	text := `Текст \cite{source2} и ещё \cite{source1}.

\begin{thebibliography}{99}
\bibitem{source1} Первый.
\bibitem{source2} Второй.
\end{thebibliography}`

	got, stats := RepairCitations(text, fixedIntn(0))

	if !strings.Contains(got, `\cite{source2} и ещё \cite{source1}`) {
		t.Errorf("source-form keys must pass through untouched:\n%s", got)
	}
	if stats.Sequential != 0 || stats.Random != 0 || stats.Stripped != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestRepairCitationsStripsWhenNoBibliography(t *testing.T) {
	text := `Утверждение \cite{unknown2020} доказано \cite{another}.`

	got, stats := RepairCitations(text, fixedIntn(0))

	if strings.Contains(got, `\cite`) {
		t.Errorf("citations must be stripped when no bibitems exist:\n%s", got)
	}
	if !strings.Contains(got, "Утверждение  доказано") {
		t.Errorf("surrounding text must survive:\n%s", got)
	}
	if stats.Stripped != 2 {
		t.Errorf("stats.Stripped = %d, want 2", stats.Stripped)
	}
}

func TestRepairCitationsLeavesBibliographySectionAlone(t *testing.T) {
	// 文献列表内部的 \cite 不改写，只动正文部分
	text := `Начало \cite{foreign}.

\section{Список использованных источников}
\begin{thebibliography}{99}
\bibitem{source1} Работа со ссылкой \cite{weird_key}.
\end{thebibliography}`

	got, _ := RepairCitations(text, fixedIntn(0))

	if !strings.Contains(got, `Начало \cite{source1}.`) {
		t.Errorf("body citation must be rewritten:\n%s", got)
	}
	if !strings.Contains(got, `\cite{weird_key}`) {
		t.Errorf("bibliography-internal citation must stay verbatim:\n%s", got)
	}
}

func TestRepairCitationsGapNumbering(t *testing.T) {
	// bibitem 编号有缺口时，maxN 取最大编号
	text := `Раз \cite{a} два \cite{b} три \cite{c} четыре \cite{d} пять \cite{e}.

\begin{thebibliography}{99}
\bibitem{source1} Один.
\bibitem{source4} Четыре.
\end{thebibliography}`

	got, stats := RepairCitations(text, fixedIntn(2))

	for i := 1; i <= 4; i++ {
		want := fmt.Sprintf(`\cite{source%d}`, i)
		if !strings.Contains(got, want) {
			t.Errorf("missing sequential key %s:\n%s", want, got)
		}
	}
	if stats.Sequential != 4 || stats.Random != 1 {
		t.Errorf("stats = %+v, want {Sequential:4 Random:1}", stats)
	}
}

func TestRepairCitationsNoCitations(t *testing.T) {
	text := "Просто текст без ссылок."
	got, stats := RepairCitations(text, fixedIntn(0))
	if got != text {
		t.Errorf("text without citations must be unchanged, got:\n%s", got)
	}
	if stats != (CitationStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestRepairCitationsIdempotent(t *testing.T) {
	text := `Опора \cite{чужой2021} и \cite{another_ref}.

\begin{thebibliography}{99}
\bibitem{source1} Единственный источник.
\end{thebibliography}`

	once, _ := RepairCitations(text, fixedIntn(0))
	twice, _ := RepairCitations(once, fixedIntn(0))
	if once != twice {
		t.Errorf("RepairCitations must be idempotent:\nonce:  %s\ntwice: %s", once, twice)
	}
}
