// Package report formats results: text tables, sample files and
// plots.
package report

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/stratsel/stratsel/encompass"
	"bitbucket.org/stratsel/stratsel/sampler"
)

var lang = language.English

// Table is a text table with a header row.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// String renders the table with aligned columns.
func (t *Table) String() string {
	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.Rows {
		for i, c := range row {
			if w := runewidth.StringWidth(c); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	divider := "+"
	for _, w := range widths {
		divider += strings.Repeat("-", w+2) + "+"
	}
	divider += "\n"

	if t.Title != "" {
		inner := len(divider) - 3
		left := (inner - runewidth.StringWidth(t.Title)) / 2
		if left < 0 {
			left = 0
		}
		sb.WriteString(divider)
		sb.WriteString("|" + blank(left) + runewidth.FillRight(t.Title, inner-left) + "|\n")
	}
	sb.WriteString(divider)
	writeRow(&sb, t.Header, widths)
	sb.WriteString(divider)
	for _, row := range t.Rows {
		writeRow(&sb, row, widths)
	}
	sb.WriteString(divider)
	return sb.String()
}

func writeRow(sb *strings.Builder, row []string, widths []int) {
	sb.WriteString("|")
	for i, c := range row {
		sb.WriteString(" " + runewidth.FillRight(c, widths[i]) + " |")
	}
	sb.WriteString("\n")
}

func blank(w int) string {
	if w < 1 {
		return ""
	}
	return strings.Repeat(" ", w)
}

// StepwiseTable renders a stepwise estimate, one row per block.
func StepwiseTable(res *encompass.Stepwise) *Table {
	p := message.NewPrinter(lang)
	t := &Table{
		Title:  "Stepwise encompassing",
		Header: []string{"block", "rows", "count", "M", "P(block | previous)"},
	}
	first := 1
	for b := range res.Count {
		t.Rows = append(t.Rows, []string{
			p.Sprintf("%d", b+1),
			p.Sprintf("%d-%d", first, res.Steps[b]),
			p.Sprintf("%d", int64(res.Count[b])),
			p.Sprintf("%d", int64(res.M[b])),
			p.Sprintf("%.6f", res.Count[b]/res.M[b]),
		})
		first = res.Steps[b] + 1
	}
	t.Rows = append(t.Rows, []string{"total", "", "", "", p.Sprintf("%.6g", res.Integral)})
	return t
}

// CountTable renders a direct count estimate.
func CountTable(res *encompass.Count) *Table {
	p := message.NewPrinter(lang)
	return &Table{
		Title:  "Monte Carlo count",
		Header: []string{"count", "M", "integral"},
		Rows: [][]string{{
			p.Sprintf("%d", res.Count),
			p.Sprintf("%d", res.M),
			p.Sprintf("%.6g", res.Integral),
		}},
	}
}

// Summary is a per-parameter summary of a chain.
type Summary struct {
	Mean []float64 `json:"mean"`
	SD   []float64 `json:"sd"`
}

// Summarize computes means and standard deviations of every
// parameter.
func Summarize(c *sampler.Chain) *Summary {
	s := &Summary{Mean: make([]float64, c.D), SD: make([]float64, c.D)}
	if c.Len() < 2 {
		return s
	}
	x := make([]float64, c.Len())
	for d := 0; d < c.D; d++ {
		for i := range x {
			x[i] = c.Row(i)[d]
		}
		s.Mean[d], s.SD[d] = stat.MeanStdDev(x, nil)
	}
	return s
}

// SummaryTable renders a chain summary.
func SummaryTable(s *Summary) *Table {
	p := message.NewPrinter(lang)
	t := &Table{
		Title:  "Posterior summary",
		Header: []string{"parameter", "mean", "sd"},
	}
	for d := range s.Mean {
		t.Rows = append(t.Rows, []string{
			p.Sprintf("p%d", d+1),
			p.Sprintf("%.4f", s.Mean[d]),
			p.Sprintf("%.4f", s.SD[d]),
		})
	}
	return t
}
