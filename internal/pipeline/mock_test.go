package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chem-report/internal/analysis"
	"github.com/sells-group/chem-report/internal/document"
	"github.com/sells-group/chem-report/internal/evidence"
)

// --- Analyzer Mock ---

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Invoke(ctx context.Context, payload *evidence.Payload) (*analysis.Result, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.Result), args.Error(1)
}

func withPrompt(prompt string) any {
	return mock.MatchedBy(func(p *evidence.Payload) bool { return p.Instruction() == prompt })
}

// --- Document Source Fake ---

type fakeSource struct {
	name   string
	texts  []string
	raster []byte
	raw    []byte
}

func (f *fakeSource) Name() string   { return f.name }
func (f *fakeSource) PageCount() int { return len(f.texts) }
func (f *fakeSource) RawBytes() []byte {
	return f.raw
}

func (f *fakeSource) PageText(_ context.Context, page int) (string, error) {
	return f.texts[page-1], nil
}

func (f *fakeSource) PageRaster(_ context.Context, _, _ int) ([]byte, error) {
	return f.raster, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func openerFor(src document.Source) Opener {
	return func(string) (document.Source, error) { return src, nil }
}
