// Package report renders a substance table as a styled, paginated PDF and
// as an XLSX workbook.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/chem-report/internal/table"
)

// Layout constants, in millimetres unless noted.
const (
	margin      = 15.0
	titleSize   = 16.0 // pt
	metaSize    = 12.0 // pt
	headerSize  = 10.0 // pt
	bodySize    = 9.0  // pt
	footerSize  = 8.0  // pt
	lineFactor  = 1.25 // line height as a multiple of the font size
	cellPadding = 1.5  // vertical padding inside a table cell
	maxVersions = 1000
)

// Column shares of the printable width: substance, concentration, use case.
var columnShares = [3]float64{0.30, 0.20, 0.50}

type rgb struct{ r, g, b int }

var (
	headerFill = rgb{100, 100, 100}
	headerText = rgb{255, 255, 255}
	evenFill   = rgb{245, 245, 220}
	oddFill    = rgb{255, 255, 255}
	bodyText   = rgb{0, 0, 0}
	border     = rgb{160, 160, 160}
)

// DefaultFooter is the closing line printed under the table.
const DefaultFooter = "Generated using the chem-report analysis tool"

// Result describes a rendered report.
type Result struct {
	Path  string
	Pages int
}

// Renderer writes reports into a single directory.
type Renderer struct {
	dir    string
	footer string
}

// NewRenderer creates a renderer writing to <outputRoot>/reports.
func NewRenderer(outputRoot string) *Renderer {
	return &Renderer{dir: filepath.Join(outputRoot, "reports"), footer: DefaultFooter}
}

// Dir returns the directory reports are written to.
func (r *Renderer) Dir() string { return r.dir }

// ColumnWidths splits printable width between the three columns using
// fixed shares, scaling them down uniformly if their sum exceeds printable.
func ColumnWidths(printable float64) [3]float64 {
	var w [3]float64
	var sum float64
	for i, share := range columnShares {
		w[i] = printable * share
		sum += w[i]
	}
	if sum > printable && sum > 0 {
		scale := printable / sum
		for i := range w {
			w[i] *= scale
		}
	}
	return w
}

// Render writes t as a PDF report for sourceName into the renderer's
// directory, named <base>_analysis_report_<YYYYMMDD_HHMMSS>.pdf. An existing
// report is never overwritten; a numeric suffix is added instead. policyName
// is printed under the source line when non-empty.
func (r *Renderer) Render(t table.Table, sourceName, policyName string, generatedAt time.Time) (*Result, error) {
	var buf bytes.Buffer
	pages, err := r.Write(&buf, t, sourceName, policyName, generatedAt)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create dir %s", r.dir)
	}

	base := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
	stem := fmt.Sprintf("%s_analysis_report_%s", base, generatedAt.Format("20060102_150405"))
	f, path, err := createUnique(r.dir, stem, ".pdf")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "report: write %s", path)
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrapf(err, "report: close %s", path)
	}

	zap.L().Info("report: generated",
		zap.String("path", path),
		zap.String("policy", policyName),
		zap.Int("rows", len(t)),
		zap.Int("pages", pages),
	)
	return &Result{Path: path, Pages: pages}, nil
}

// Write renders the report to w and returns its page count.
func (r *Renderer) Write(w io.Writer, t table.Table, sourceName, policyName string, generatedAt time.Time) (int, error) {
	doc := newDocument(r.footer)
	doc.title(metadataLines(sourceName, policyName, generatedAt))
	doc.table(t)
	doc.closing()

	if err := doc.pdf.Output(w); err != nil {
		return 0, eris.Wrap(err, "report: render pdf")
	}
	return doc.pdf.PageCount(), nil
}

// createUnique opens dir/stem+ext exclusively, trying stem_2, stem_3, ...
// while the name is taken.
func createUnique(dir, stem, ext string) (*os.File, string, error) {
	for i := 1; i <= maxVersions; i++ {
		name := stem + ext
		if i > 1 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", eris.Wrapf(err, "report: create %s", path)
		}
	}
	return nil, "", eris.Errorf("report: too many reports named %s in %s", stem, dir)
}

// document wraps an fpdf instance with the report's layout state.
type document struct {
	pdf     *fpdf.Fpdf
	tr      func(string) string
	footer  string
	widths  [3]float64
	left    float64
	bottom  float64 // lowest y a table row may reach
	headerH float64
}

func newDocument(footer string) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetCreator("chem-report", false)
	pdf.AliasNbPages("")

	pageW, pageH := pdf.GetPageSize()
	d := &document{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		footer: footer,
		widths: ColumnWidths(pageW - 2*margin),
		left:   margin,
		bottom: pageH - margin,
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin + 3)
		pdf.SetFont("Helvetica", "I", footerSize)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return d
}

func lineHeight(pt float64) float64 {
	return pt * lineFactor * 25.4 / 72
}

// metadataLines returns the centered lines printed under the report title.
func metadataLines(sourceName, policyName string, at time.Time) []string {
	lines := []string{
		"Generated on " + at.Format("January 02, 2006 at 15:04:05"),
		"Source Document: " + filepath.Base(sourceName),
	}
	if policyName != "" {
		lines = append(lines, "Extraction Policy: "+policyName)
	}
	return lines
}

func (d *document) title(meta []string) {
	pdf := d.pdf
	pdf.SetTextColor(bodyText.r, bodyText.g, bodyText.b)

	pdf.SetFont("Helvetica", "B", titleSize)
	pdf.CellFormat(0, 10, d.tr("Chemical Analysis Report"), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Helvetica", "", metaSize)
	for i, line := range meta {
		if i > 0 {
			pdf.Ln(5)
		}
		pdf.CellFormat(0, 10, d.tr(line), "", 1, "C", false, 0, "")
	}
	pdf.Ln(10)
}

// table draws the header row and every data row, breaking pages manually
// so that the header repeats and tall rows are split.
func (d *document) table(t table.Table) {
	d.headerRow()
	for i, row := range t {
		fill := evenFill
		if i%2 == 1 {
			fill = oddFill
		}
		d.dataRow(row.Cells(), fill)
	}
}

func (d *document) headerRow() {
	d.pdf.SetFont("Helvetica", "B", headerSize)
	cells := d.wrap(table.Headers)
	lh := lineHeight(headerSize)
	h := rowHeight(cells, lh)
	if d.pdf.GetY()+h > d.bottom {
		d.newPage()
	}
	d.headerH = h
	d.drawRow(cells, lh, headerFill, headerText)
}

func (d *document) dataRow(values []string, fill rgb) {
	d.pdf.SetFont("Helvetica", "", bodySize)
	cells := d.wrap(values)
	lh := lineHeight(bodySize)

	// Move a row that does not fit to the next page, unless it would not
	// fit on an empty page either; such rows are split from here on.
	h := rowHeight(cells, lh)
	if d.pdf.GetY()+h > d.bottom && margin+d.headerH+h <= d.bottom {
		d.newPageWithHeader()
		d.pdf.SetFont("Helvetica", "", bodySize)
	}

	// Split rows taller than the remaining page into chunks.
	for {
		room := int(math.Floor((d.bottom - d.pdf.GetY() - 2*cellPadding) / lh))
		if room < 1 {
			d.newPageWithHeader()
			d.pdf.SetFont("Helvetica", "", bodySize)
			continue
		}
		chunk, rest := splitCells(cells, room)
		d.drawRow(chunk, lh, fill, bodyText)
		if rest == nil {
			return
		}
		cells = rest
		d.newPageWithHeader()
		d.pdf.SetFont("Helvetica", "", bodySize)
	}
}

func (d *document) newPage() {
	d.pdf.AddPage()
	d.pdf.SetXY(d.left, margin)
}

func (d *document) newPageWithHeader() {
	d.newPage()
	d.headerRow()
}

// wrap translates each value to the PDF code page and splits it to its
// column width using the current font.
func (d *document) wrap(values []string) [][]string {
	out := make([][]string, len(d.widths))
	for i := range d.widths {
		var v string
		if i < len(values) {
			v = d.tr(values[i])
		}
		var lines []string
		for _, l := range d.pdf.SplitLines([]byte(v), d.widths[i]) {
			lines = append(lines, string(l))
		}
		if len(lines) == 0 {
			lines = []string{""}
		}
		out[i] = lines
	}
	return out
}

func rowHeight(cells [][]string, lh float64) float64 {
	n := 1
	for _, c := range cells {
		if len(c) > n {
			n = len(c)
		}
	}
	return float64(n)*lh + 2*cellPadding
}

// splitCells keeps at most n lines per cell and returns the remainder, or
// nil when everything fit.
func splitCells(cells [][]string, n int) (head, rest [][]string) {
	head = make([][]string, len(cells))
	rest = make([][]string, len(cells))
	var more bool
	for i, c := range cells {
		if len(c) > n {
			head[i], rest[i] = c[:n], c[n:]
			more = true
		} else {
			head[i], rest[i] = c, []string{""}
		}
	}
	if !more {
		return head, nil
	}
	return head, rest
}

func (d *document) drawRow(cells [][]string, lh float64, fill, text rgb) {
	pdf := d.pdf
	y := pdf.GetY()
	h := rowHeight(cells, lh)

	pdf.SetFillColor(fill.r, fill.g, fill.b)
	pdf.SetDrawColor(border.r, border.g, border.b)
	pdf.SetTextColor(text.r, text.g, text.b)

	x := d.left
	for i, w := range d.widths {
		pdf.Rect(x, y, w, h, "FD")
		for j, line := range cells[i] {
			pdf.SetXY(x, y+cellPadding+float64(j)*lh)
			pdf.CellFormat(w, lh, line, "", 0, "L", false, 0, "")
		}
		x += w
	}
	pdf.SetXY(d.left, y+h)
}

func (d *document) closing() {
	pdf := d.pdf
	if pdf.GetY()+10+10 > d.bottom {
		d.newPage()
	} else {
		pdf.Ln(10)
	}
	pdf.SetFont("Helvetica", "I", footerSize)
	pdf.SetTextColor(bodyText.r, bodyText.g, bodyText.b)
	pdf.CellFormat(0, 10, d.tr(d.footer), "", 1, "C", false, 0, "")
}
