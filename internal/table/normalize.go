package table

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const delimiter = "|"

// Header keywords used to locate columns when the engine reorders them.
var (
	substanceKeys     = []string{"substance", "chemical", "compound", "ingredient", "name"}
	concentrationKeys = []string{"concentration", "range", "amount", "dose", "level"}
	useCaseKeys       = []string{"use", "function", "role", "purpose", "application"}
)

// Normalize parses text into a Table. It never fails; malformed input
// degrades to a best-effort table and each degradation is logged.
func Normalize(text string) Table {
	res := Parse(text)
	for _, w := range res.Warnings {
		zap.L().Warn("table: degraded response", zap.String("detail", w))
	}
	return res.Table
}

// Parse parses text into a tagged Result without logging.
func Parse(text string) Result {
	lines := contentLines(text)
	if len(lines) == 0 {
		return Result{Kind: Empty, Table: Table{}}
	}

	var warnings []string
	if tabular := filterTabular(lines); len(tabular) > 0 && len(tabular) < len(lines) {
		warnings = append(warnings, fmt.Sprintf("dropped %d non-tabular lines", len(lines)-len(tabular)))
		lines = tabular
	}

	header := splitCells(lines[0])
	width := len(header)
	if width < len(Headers) {
		warnings = append(warnings, fmt.Sprintf("header has %d columns, expected %d", width, len(Headers)))
		width = len(Headers)
	}
	cols := columnIndexes(header)

	body := lines[1:]
	if len(body) > 0 {
		if isSeparator(body[0]) {
			body = body[1:]
		} else {
			warnings = append(warnings, "no separator line after header")
		}
	}

	rows := make(Table, 0, len(body))
	for i, line := range body {
		if isSeparator(line) {
			warnings = append(warnings, fmt.Sprintf("dropped separator artifact at data line %d", i+1))
			continue
		}
		cells := splitCells(line)
		if len(cells) != len(header) {
			warnings = append(warnings, fmt.Sprintf("data line %d has %d cells, header has %d", i+1, len(cells), len(header)))
		}
		cells = fitCells(cells, width)
		rows = append(rows, Row{
			Substance:     cells[cols[0]],
			Concentration: cells[cols[1]],
			UseCase:       cells[cols[2]],
		})
	}

	return Result{Kind: Tabular, Header: header, Table: rows, Warnings: warnings}
}

// contentLines trims text and returns its non-empty lines, without Markdown
// code fences.
func contentLines(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// filterTabular keeps only lines that contain the delimiter.
func filterTabular(lines []string) []string {
	var out []string
	for _, line := range lines {
		if strings.Contains(line, delimiter) {
			out = append(out, line)
		}
	}
	return out
}

// splitCells splits a line on unescaped delimiters, unescapes "\|" inside
// cells, trims every cell and removes the empty boundary cell produced by a
// leading or trailing delimiter.
func splitCells(line string) []string {
	line = strings.TrimSpace(line)

	var parts []string
	var cur strings.Builder
	trailing := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == '|':
			cur.WriteByte('|')
			i++
			trailing = false
		case line[i] == '|':
			parts = append(parts, cur.String())
			cur.Reset()
			trailing = true
		default:
			cur.WriteByte(line[i])
			trailing = false
		}
	}
	parts = append(parts, cur.String())

	if strings.HasPrefix(line, delimiter) && len(parts) > 0 {
		parts = parts[1:]
	}
	if trailing && len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = cleanCell(p)
	}
	return cells
}

func cleanCell(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// isSeparator reports whether line consists only of delimiter, dash, colon
// and whitespace characters and holds at least one dash.
func isSeparator(line string) bool {
	if !strings.Contains(line, "-") {
		return false
	}
	for _, r := range line {
		switch r {
		case '|', '-', ':', ' ', '\t', '+':
		default:
			return false
		}
	}
	return true
}

// fitCells pads or folds cells to exactly width entries. Missing cells become
// NotSpecified; excess non-empty cells are joined into the last column.
func fitCells(cells []string, width int) []string {
	out := make([]string, width)
	for i := 0; i < width; i++ {
		if i < len(cells) {
			out[i] = cells[i]
		}
	}
	if len(cells) > width {
		parts := []string{out[width-1]}
		for _, c := range cells[width:] {
			if c != "" {
				parts = append(parts, c)
			}
		}
		out[width-1] = joinNonEmpty(parts)
	}
	for i, c := range out {
		if c == "" {
			out[i] = NotSpecified
		}
	}
	return out
}

func joinNonEmpty(parts []string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " | ")
}

// columnIndexes maps substance, concentration and use case to header
// positions. Header keywords win when all three resolve to distinct columns;
// otherwise the fixed order 0, 1, 2 is used.
func columnIndexes(header []string) [3]int {
	positional := [3]int{0, 1, 2}
	keys := [3][]string{substanceKeys, concentrationKeys, useCaseKeys}

	var found [3]int
	used := make(map[int]bool)
	for k, words := range keys {
		idx := -1
		for i, h := range header {
			if used[i] {
				continue
			}
			if containsAny(strings.ToLower(h), words) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return positional
		}
		used[idx] = true
		found[k] = idx
	}
	return found
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
