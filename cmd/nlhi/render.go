package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/engine"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4B7BE5"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D98E04"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
)

// Text columns of the result and series tables; the rest hold numbers.
var (
	resultTextCols = []int{0, 2} // Domain, Unit
	seriesTextCols = []int{0}    // Date
)

// newTable returns a bordered table styled by columnStyles.
func newTable(textCols []int, headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(columnStyles(textCols))
}

// columnStyles left-aligns the columns in textCols and right-aligns every
// other body column.
func columnStyles(textCols []int) table.StyleFunc {
	text := make(map[int]bool, len(textCols))
	for _, c := range textCols {
		text[c] = true
	}
	return func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case text[col]:
			return cellStyle
		default:
			return numberStyle
		}
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func renderResult(w io.Writer, res engine.Result) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s on %s", res.Region, res.Date)))

	t := newTable(resultTextCols, "Domain", "TLIPHS", "Unit", "Years", "Mortality", "DSTLYA", "DSAV")
	for _, d := range res.Record.Domains {
		t.Row(d.Name, formatFloat(d.TLIPHS), d.TLIPHSUnit, formatFloat(d.TLIPHSYears),
			formatFloat(d.Mortality), formatFloat(d.DSTLYA), formatFloat(d.DSAV))
	}
	fmt.Fprintln(w, t.String())
	fmt.Fprintf(w, "NLHI: %s\n", formatFloat(res.Record.NLHI))

	for _, warning := range res.Warnings {
		fmt.Fprintln(w, warnStyle.Render("warning: "+warning))
	}
}

func renderSeries(w io.Writer, s domain.Series) {
	fmt.Fprintln(w, titleStyle.Render(s.Region))
	if s.Empty() {
		fmt.Fprintln(w, mutedStyle.Render("no records"))
		return
	}

	headers := append([]string{"Date", "NLHI"}, s.Domains...)
	t := newTable(seriesTextCols, headers...)
	for i, date := range s.Dates {
		row := make([]string, 0, len(headers))
		row = append(row, date, formatFloat(s.NLHI[i]))
		for _, v := range s.DSAV[i] {
			row = append(row, formatFloat(v))
		}
		t.Row(row...)
	}
	fmt.Fprintln(w, t.String())
}
