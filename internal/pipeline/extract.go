package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/chem-report/internal/document"
)

// ExtractResult is what Extract left on disk.
type ExtractResult struct {
	Source        string
	TextPath      string
	TextChars     int
	ScreenshotDir string
	Screenshots   []string
}

// ExtractedTextPath returns where Extract saves a document's text.
func ExtractedTextPath(outputRoot, base string, mode Mode) string {
	return filepath.Join(outputRoot, fmt.Sprintf("%s_%s_extracted.md", base, mode))
}

// Extract runs only the document stage: text and screenshots are saved
// according to the mode and the engine is never called. Screenshots are kept
// regardless of Cleanup.
func (p *Pipeline) Extract(ctx context.Context, path string) (*ExtractResult, error) {
	if p.opts.Mode == ModeDocument {
		return nil, eris.New("pipeline: extract needs text, screenshots or both mode")
	}

	src, err := p.deps.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s", path)
	}

	base := BaseName(path)
	res := &ExtractResult{Source: path}

	if p.opts.Mode.WantsText() {
		text := document.Text(ctx, src)
		res.TextPath = ExtractedTextPath(p.opts.OutputRoot, base, p.opts.Mode)
		res.TextChars = len(text)
		if err := os.MkdirAll(p.opts.OutputRoot, 0o755); err != nil {
			return nil, eris.Wrapf(err, "pipeline: create output dir %s", p.opts.OutputRoot)
		}
		if err := os.WriteFile(res.TextPath, []byte(text), 0o644); err != nil {
			return nil, eris.Wrapf(err, "pipeline: save text %s", res.TextPath)
		}
	}

	if p.opts.Mode.WantsScreenshots() {
		res.ScreenshotDir = document.ScreenshotDir(p.opts.OutputRoot, base)
		res.Screenshots, err = document.Screenshots(ctx, src, res.ScreenshotDir, document.ScreenshotOptions{
			DPI:         p.opts.DPI,
			Concurrency: p.opts.RenderConcurrency,
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: screenshots")
		}
	}

	zap.L().Info("pipeline: extraction saved",
		zap.String("document", path),
		zap.String("text", res.TextPath),
		zap.Int("screenshots", len(res.Screenshots)),
	)
	return res, nil
}
