package executor

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const emptyResult = "Empty result set"

// RenderTable lays out normalized rows as a fixed-width text table with a
// header line. Cells are right-aligned and columns separated by two spaces.
func RenderTable(columns []string, rows [][]any) string {
	if len(columns) == 0 {
		return emptyResult
	}

	cells := make([][]string, len(rows))
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = runewidth.StringWidth(c)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i := range columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			text := oneLine(Format(v))
			cells[r][i] = text
			if w := runewidth.StringWidth(text); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeLine(&b, columns, widths)
	for _, row := range cells {
		b.WriteByte('\n')
		writeLine(&b, row, widths)
	}
	if len(rows) == 0 {
		b.WriteString("\n(0 rows)")
	}
	return b.String()
}

func writeLine(b *strings.Builder, cells []string, widths []int) {
	for i, c := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(runewidth.FillLeft(c, widths[i]))
	}
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\t", " ").Replace(s)
}
