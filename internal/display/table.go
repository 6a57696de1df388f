package display

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// BorderStyle defines table border characters
type BorderStyle struct {
	Corner     string
	Horizontal string
	Vertical   string
}

var (
	// ASCIIBorderStyle draws +---+ borders
	ASCIIBorderStyle = BorderStyle{Corner: "+", Horizontal: "-", Vertical: "|"}
	// NoBorderStyle separates columns with spaces only
	NoBorderStyle = BorderStyle{}
)

// Table renders rows of cells with aligned columns
type Table struct {
	headers    []string
	rows       [][]string
	alignments map[int]Alignment
	colorizers map[int]func(string) string
	border     BorderStyle
	maxWidth   int
	headerFmt  func(string) string
}

// NewTable creates an ASCII-bordered table
func NewTable(headers ...string) *Table {
	return &Table{
		headers:    headers,
		alignments: make(map[int]Alignment),
		colorizers: make(map[int]func(string) string),
		border:     ASCIIBorderStyle,
	}
}

// AddRow appends a row; missing cells render empty
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// SetColumnAlignment aligns a column
func (t *Table) SetColumnAlignment(column int, alignment Alignment) {
	t.alignments[column] = alignment
}

// SetColumnColorizer colors a column's cells after padding
func (t *Table) SetColumnColorizer(column int, fn func(string) string) {
	t.colorizers[column] = fn
}

// SetHeaderFormatter colors the header row after padding
func (t *Table) SetHeaderFormatter(fn func(string) string) {
	t.headerFmt = fn
}

// SetBorder changes the border characters
func (t *Table) SetBorder(border BorderStyle) {
	t.border = border
}

// SetMaxWidth caps the rendered width; the widest columns are truncated first
func (t *Table) SetMaxWidth(width int) {
	t.maxWidth = width
}

// Render returns the table as a string
func (t *Table) Render() string {
	widths := t.columnWidths()
	if t.maxWidth > 0 {
		widths = t.fit(widths)
	}

	var b strings.Builder
	separator := t.separator(widths)

	b.WriteString(separator)
	if len(t.headers) > 0 {
		b.WriteString(t.renderRow(t.headers, widths, true))
		b.WriteString(separator)
	}
	for _, row := range t.rows {
		b.WriteString(t.renderRow(row, widths, false))
	}
	if len(t.rows) > 0 {
		b.WriteString(separator)
	}
	return b.String()
}

// RenderTo writes the table to w, fitting it to the terminal width when w is a terminal
func (t *Table) RenderTo(w io.Writer) error {
	if t.maxWidth == 0 {
		if f, ok := w.(*os.File); ok {
			if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
				t.maxWidth = width
			}
		}
	}
	_, err := io.WriteString(w, t.Render())
	return err
}

func (t *Table) columnCount() int {
	n := len(t.headers)
	for _, row := range t.rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

func (t *Table) columnWidths() []int {
	widths := make([]int, t.columnCount())
	measure := func(row []string) {
		for i, cell := range row {
			if w := utf8.RuneCountInString(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}
	return widths
}

// fit shrinks the widest column until the table fits, keeping every column at least 4 wide
func (t *Table) fit(widths []int) []int {
	for t.totalWidth(widths) > t.maxWidth {
		widest := 0
		for i, w := range widths {
			if w > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= 4 {
			break
		}
		widths[widest]--
	}
	return widths
}

func (t *Table) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	if t.border.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (t *Table) separator(widths []int) string {
	if t.border.Horizontal == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(t.border.Corner)
	for _, w := range widths {
		b.WriteString(strings.Repeat(t.border.Horizontal, w+2))
		b.WriteString(t.border.Corner)
	}
	b.WriteString("\n")
	return b.String()
}

func (t *Table) renderRow(row []string, widths []int, header bool) string {
	var b strings.Builder
	b.WriteString(t.border.Vertical)
	for i, w := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		padded := pad(truncate(cell, w), w, t.alignments[i])

		switch {
		case header && t.headerFmt != nil:
			padded = t.headerFmt(padded)
		case !header && t.colorizers[i] != nil:
			padded = t.colorizers[i](padded)
		}

		b.WriteString(" ")
		b.WriteString(padded)
		b.WriteString(" ")
		b.WriteString(t.border.Vertical)
	}
	return strings.TrimRight(b.String(), " ") + "\n"
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= 1 {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-1]) + "…"
}

func pad(s string, width int, alignment Alignment) string {
	gap := width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	if alignment == AlignRight {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}
