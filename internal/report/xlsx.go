package report

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/chem-report/internal/table"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// Column widths in characters.
var workbookWidths = [3]float64{36, 24, 60}

// WorkbookPath returns the workbook path that sits beside a PDF report.
func WorkbookPath(reportPath, policy string) string {
	return strings.TrimSuffix(reportPath, filepath.Ext(reportPath)) + "_" + policy + ".xlsx"
}

// WriteWorkbook writes t to path as a single-sheet workbook named after
// sheet, with a bold header row.
func WriteWorkbook(path, sheet string, t table.Table) error {
	if sheet == "" {
		sheet = "Substances"
	}
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}

	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheet)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %q", sheet)
	}

	header := xlsx.NewStyle()
	header.Font.Bold = true
	header.Font.Color = "FFFFFFFF"
	header.Fill = *xlsx.NewFill("solid", "FF646464", "FF646464")
	header.ApplyFont = true
	header.ApplyFill = true

	row := sh.AddRow()
	for _, h := range table.Headers {
		c := row.AddCell()
		c.SetString(h)
		c.SetStyle(header)
	}
	for _, r := range t {
		row := sh.AddRow()
		for _, v := range r.Cells() {
			row.AddCell().SetString(v)
		}
	}
	for i, w := range workbookWidths {
		sh.SetColWidth(i, i, w)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create dir for %s", path)
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// ReadWorkbook reads the first sheet of a workbook written by WriteWorkbook
// back into a table. The header row is skipped; short rows are padded.
func ReadWorkbook(path string) (table.Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}

	rows := f.Sheets[0].Rows
	t := make(table.Table, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		cells := rowToStrings(row)
		if allEmpty(cells) {
			continue
		}
		for len(cells) < 3 {
			cells = append(cells, "")
		}
		t = append(t, table.Row{
			Substance:     orNotSpecified(cells[0]),
			Concentration: orNotSpecified(cells[1]),
			UseCase:       orNotSpecified(cells[2]),
		})
	}
	return t, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func allEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func orNotSpecified(s string) string {
	if s == "" {
		return table.NotSpecified
	}
	return s
}
