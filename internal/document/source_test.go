package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestPDF writes a valid PDF with the given number of pages.
func writeTestPDF(t *testing.T, dir string, pages int) string {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := 1; i <= pages; i++ {
		doc.AddPage()
		doc.Cell(40, 10, fmt.Sprintf("Glycerin 5%% page %d", i))
	}
	path := filepath.Join(dir, "paper.pdf")
	require.NoError(t, doc.OutputFileAndClose(path))
	return path
}

// stubRunner fakes pdftotext and pdftoppm. Pages listed in fail exit non-zero.
type stubRunner struct {
	fail map[string]bool
}

func (s stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	page := argAfter(args, "-f")
	if s.fail[page] {
		return nil, []byte("Syntax Error: broken page"), errors.New("exit status 1")
	}
	switch filepath.Base(name) {
	case "pdftotext":
		return []byte("Text of page " + page + "\n\f"), nil, nil
	case "pdftoppm":
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
			return nil, nil, err
		}
		root := args[len(args)-1]
		return nil, nil, os.WriteFile(root+".png", buf.Bytes(), 0o644)
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestOpen_Valid(t *testing.T) {
	path := writeTestPDF(t, t.TempDir(), 3)

	src, err := Open(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, src.PageCount())
	assert.Equal(t, "paper.pdf", src.Name())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, src.RawBytes())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.pdf"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestOpen_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is plain text, not a pdf"), 0o644))

	_, err := Open(path, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestPageText_OutOfRange(t *testing.T) {
	src, err := Open(writeTestPDF(t, t.TempDir(), 1), Options{Runner: stubRunner{}})
	require.NoError(t, err)

	_, err = src.PageText(context.Background(), 0)
	assert.Error(t, err)
	_, err = src.PageText(context.Background(), 2)
	assert.Error(t, err)
}

func TestPageText_FakeBinary(t *testing.T) {
	dir := t.TempDir()
	fakeBin := filepath.Join(dir, "pdftotext")
	// Arguments: -layout -enc UTF-8 -eol unix -f N -l N file -
	script := "#!/bin/sh\necho \"Text of page $7\"\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0o755))

	src, err := Open(writeTestPDF(t, dir, 2), Options{PdfToTextPath: fakeBin})
	require.NoError(t, err)

	text, err := src.PageText(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Text of page 2", text)
}

func TestPageText_BinaryNotFound(t *testing.T) {
	src, err := Open(writeTestPDF(t, t.TempDir(), 1), Options{PdfToTextPath: "/nonexistent/pdftotext"})
	require.NoError(t, err)

	_, err = src.PageText(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document: pdftotext page 1")
}

func TestPageRaster(t *testing.T) {
	src, err := Open(writeTestPDF(t, t.TempDir(), 2), Options{Runner: stubRunner{}})
	require.NoError(t, err)

	img, err := src.PageRaster(context.Background(), 2, 72)
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}
