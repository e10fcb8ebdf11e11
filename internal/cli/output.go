package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lacquerai/sentiment/internal/style"
)

// printTable outputs rows under a header in aligned columns
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	// Calculate column widths
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	cells := make([]string, len(headers))
	for i, header := range headers {
		cells[i] = fmt.Sprintf("%-*s", widths[i], header)
	}
	fmt.Fprintln(w, style.AccentStyle.Render(strings.TrimRight(strings.Join(cells, "  "), " ")))

	for i := range headers {
		cells[i] = strings.Repeat("-", widths[i])
	}
	fmt.Fprintln(w, style.MutedStyle.Render(strings.Join(cells, "  ")))

	for _, row := range rows {
		line := make([]string, 0, len(row))
		for i, cell := range row {
			if i < len(widths) {
				line = append(line, fmt.Sprintf("%-*s", widths[i], cell))
			}
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(line, "  "), " "))
	}
}
