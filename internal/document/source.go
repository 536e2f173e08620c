// Package document reads a PDF and produces per-page text and rasters.
package document

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
)

// ErrMalformedDocument means the input is missing, unreadable or not a
// valid PDF.
var ErrMalformedDocument = eris.New("document: malformed or unreadable PDF")

// Source is a paginated document.
type Source interface {
	// Name is the file name of the document, without directories.
	Name() string
	PageCount() int
	// PageText returns the text of page (1-based).
	PageText(ctx context.Context, page int) (string, error)
	// PageRaster renders page (1-based) as PNG at dpi.
	PageRaster(ctx context.Context, page, dpi int) ([]byte, error)
	RawBytes() []byte
}

// Options configures the external tools used by a PDF source. Empty paths
// resolve through PATH.
type Options struct {
	PdfToTextPath string
	PdfToPPMPath  string
	Runner        Runner
}

// PDF is a Source backed by a file on disk, poppler-utils for text and
// rasters, and pdfcpu for validation.
type PDF struct {
	path      string
	data      []byte
	pages     int
	pdftotext string
	pdftoppm  string
	runner    Runner
}

// Open reads and validates the PDF at path. Any read or validation failure
// wraps ErrMalformedDocument.
func Open(path string, opts Options) (*PDF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedDocument, "document: read %s: %v", path, err)
	}

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedDocument, "document: validate %s: %v", path, err)
	}
	if ctx.PageCount < 1 {
		return nil, eris.Wrapf(ErrMalformedDocument, "document: %s has no pages", path)
	}

	p := &PDF{
		path:      path,
		data:      data,
		pages:     ctx.PageCount,
		pdftotext: opts.PdfToTextPath,
		pdftoppm:  opts.PdfToPPMPath,
		runner:    opts.Runner,
	}
	if p.pdftotext == "" {
		p.pdftotext = "pdftotext"
	}
	if p.pdftoppm == "" {
		p.pdftoppm = "pdftoppm"
	}
	if p.runner == nil {
		p.runner = ExecRunner{}
	}
	return p, nil
}

func (p *PDF) Name() string { return filepath.Base(p.path) }

func (p *PDF) PageCount() int { return p.pages }

func (p *PDF) RawBytes() []byte { return p.data }

// PageText runs pdftotext -layout on a single page.
func (p *PDF) PageText(ctx context.Context, page int) (string, error) {
	if err := p.checkPage(page); err != nil {
		return "", err
	}
	n := strconv.Itoa(page)
	out, stderr, err := p.runner.Run(ctx, p.pdftotext,
		"-layout", "-enc", "UTF-8", "-eol", "unix", "-f", n, "-l", n, p.path, "-")
	if err != nil {
		return "", eris.Wrapf(err, "document: pdftotext page %d: %s", page, strings.TrimSpace(string(stderr)))
	}
	return strings.TrimRight(string(out), "\f\n "), nil
}

// PageRaster runs pdftoppm on a single page and returns the PNG bytes.
func (p *PDF) PageRaster(ctx context.Context, page, dpi int) ([]byte, error) {
	if err := p.checkPage(page); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "chem-report-page-*")
	if err != nil {
		return nil, eris.Wrap(err, "document: create raster dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	root := filepath.Join(tmp, "page")
	n := strconv.Itoa(page)
	_, stderr, err := p.runner.Run(ctx, p.pdftoppm,
		"-f", n, "-l", n, "-singlefile", "-r", strconv.Itoa(dpi), "-png", p.path, root)
	if err != nil {
		return nil, eris.Wrapf(err, "document: pdftoppm page %d: %s", page, strings.TrimSpace(string(stderr)))
	}

	img, err := os.ReadFile(root + ".png")
	if err != nil {
		return nil, eris.Wrapf(err, "document: read raster page %d", page)
	}
	return img, nil
}

func (p *PDF) checkPage(page int) error {
	if page < 1 || page > p.pages {
		return eris.Errorf("document: page %d out of range 1..%d", page, p.pages)
	}
	return nil
}
