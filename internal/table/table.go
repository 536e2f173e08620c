// Package table converts the analysis engine's pipe-delimited responses into
// strict substance rows and serializes them back to the persisted text form.
package table

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// NotSpecified fills any field the engine did not provide.
const NotSpecified = "Not specified"

// Headers are the column titles used in every persisted table and report.
var Headers = []string{"Substance Name", "Concentration Range", "Use Case"}

// Row is one extracted substance entry. All fields are non-empty.
type Row struct {
	Substance     string `json:"substance"`
	Concentration string `json:"concentration"`
	UseCase       string `json:"use_case"`
}

// Cells returns the row in column order.
func (r Row) Cells() []string {
	return []string{r.Substance, r.Concentration, r.UseCase}
}

// Table is an ordered sequence of rows. Order is the engine's output order.
type Table []Row

// Kind tags a parse result.
type Kind int

const (
	// Empty means the response held no lines at all.
	Empty Kind = iota
	// Tabular means a header line was found and rows (possibly zero) follow.
	Tabular
)

func (k Kind) String() string {
	if k == Tabular {
		return "tabular"
	}
	return "empty"
}

// Result is the tagged outcome of parsing a response.
type Result struct {
	Kind     Kind
	Header   []string
	Table    Table
	Warnings []string
}

// Format renders t in the persisted text form: a header line followed by one
// pipe-delimited line per row, no separator line and no trailing newline.
// A "|" inside a cell is written as "\|".
func Format(t Table) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(Headers, " | "))
	for _, r := range t {
		sb.WriteByte('\n')
		cells := r.Cells()
		for i, c := range cells {
			cells[i] = cellEscaper.Replace(c)
		}
		sb.WriteString(strings.Join(cells, " | "))
	}
	return sb.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`)

// WriteFile writes the persisted form of t to path, creating parent
// directories as needed.
func WriteFile(path string, t Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "table: create dir for %s", path)
	}
	if err := os.WriteFile(path, []byte(Format(t)), 0o644); err != nil {
		return eris.Wrapf(err, "table: write %s", path)
	}
	return nil
}

// ReadFile reads a persisted (or raw engine) table file and normalizes it.
func ReadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: read %s", path)
	}
	return Normalize(string(data)), nil
}
