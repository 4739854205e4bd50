package cli

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const columnGap = "  "

// Table renders rows as aligned columns with a dashed header separator.
type Table struct {
	headers   []string
	rows      [][]string
	maxWidths map[int]int
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers, maxWidths: make(map[int]int)}
}

// SetColumnMaxWidth wraps a column's cells at word boundaries. Zero means no limit.
func (t *Table) SetColumnMaxWidth(col, width int) {
	t.maxWidths[col] = width
}

// FitTerminal limits the last column so rows fit the width of the terminal
// behind f. It does nothing when f is not a terminal.
func (t *Table) FitTerminal(f *os.File) {
	fd := int(f.Fd()) // #nosec G115 - file descriptors fit in int
	if !term.IsTerminal(fd) || len(t.headers) == 0 {
		return
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return
	}

	last := len(t.headers) - 1
	used := 0
	for i, w := range t.widths(false) {
		if i < last {
			used += w + len(columnGap)
		}
	}
	if remaining := width - used; remaining > 10 {
		t.SetColumnMaxWidth(last, remaining)
	}
}

// AddRow adds a row, padding or truncating it to the header count.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Render formats the table.
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	widths := t.widths(true)
	var b strings.Builder

	writeLine := func(cells []string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = padRight(c, widths[i])
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, columnGap), " "))
		b.WriteString("\n")
	}

	writeLine(t.headers)
	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	writeLine(sep)

	for _, row := range t.rows {
		wrapped := make([][]string, len(row))
		lines := 1
		for i, cell := range row {
			wrapped[i] = wrapText(cell, t.maxWidths[i])
			lines = max(lines, len(wrapped[i]))
		}
		for l := 0; l < lines; l++ {
			cells := make([]string, len(row))
			for i := range row {
				if l < len(wrapped[i]) {
					cells[i] = wrapped[i][l]
				}
			}
			writeLine(cells)
		}
	}
	return b.String()
}

// WriteTo writes the rendered table to w.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, t.Render())
	return int64(n), err
}

// widths returns each column's display width. With limit set, columns with
// a maximum width are capped to it.
func (t *Table) widths(limit bool) []int {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}
	if limit {
		for i, m := range t.maxWidths {
			if m > 0 && i < len(widths) && widths[i] > m {
				widths[i] = max(m, utf8.RuneCountInString(t.headers[i]))
			}
		}
	}
	return widths
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// wrapText breaks text at word boundaries so no line exceeds width. Words
// longer than width are split.
func wrapText(text string, width int) []string {
	if width <= 0 || utf8.RuneCountInString(text) <= width {
		return []string{text}
	}

	var lines []string
	var line []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(line) > 0 {
				lines = append(lines, string(line))
				line = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(line) == 0:
			line = w
		case len(line)+1+len(w) <= width:
			line = append(append(line, ' '), w...)
		default:
			lines = append(lines, string(line))
			line = w
		}
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return lines
}
