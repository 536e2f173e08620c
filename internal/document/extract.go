package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultDPI is the screenshot resolution used when none is configured.
const DefaultDPI = 150

// Text returns the text of every page, each non-empty page preceded by a
// "--- Page N ---" marker. Pages whose extraction fails are logged and
// skipped; an empty result is not an error.
func Text(ctx context.Context, src Source) string {
	log := zap.L().With(zap.String("document", src.Name()))
	log.Info("document: extracting text", zap.Int("pages", src.PageCount()))

	var sb strings.Builder
	var failed int
	for i := 1; i <= src.PageCount(); i++ {
		text, err := src.PageText(ctx, i)
		if err != nil {
			failed++
			log.Warn("document: page text failed", zap.Int("page", i), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n%s", i, text)
	}

	out := strings.TrimSpace(sb.String())
	log.Info("document: text extraction complete",
		zap.Int("chars", len(out)),
		zap.Int("failed_pages", failed),
	)
	return out
}

// ScreenshotOptions controls Screenshots.
type ScreenshotOptions struct {
	DPI         int
	Concurrency int
}

// ScreenshotDir returns the per-document screenshot folder under outputRoot.
func ScreenshotDir(outputRoot, base string) string {
	return filepath.Join(outputRoot, base+"_screenshots")
}

// Screenshots renders every page to dir/page_NNN.png and returns the paths
// that were written, in page order. Pages that fail to render are logged and
// left out. An error is returned only when dir cannot be created or ctx is
// cancelled.
func Screenshots(ctx context.Context, src Source, dir string, opts ScreenshotOptions) ([]string, error) {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "document: create screenshot dir %s", dir)
	}

	log := zap.L().With(zap.String("document", src.Name()), zap.Int("dpi", opts.DPI))
	log.Info("document: taking screenshots", zap.Int("pages", src.PageCount()), zap.String("dir", dir))

	paths := make([]string, src.PageCount())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := 1; i <= src.PageCount(); i++ {
		page := i
		g.Go(func() error {
			img, err := src.PageRaster(gctx, page, opts.DPI)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("document: page raster failed", zap.Int("page", page), zap.Error(err))
				return nil
			}
			path := filepath.Join(dir, fmt.Sprintf("page_%03d.png", page))
			if err := os.WriteFile(path, img, 0o644); err != nil {
				log.Warn("document: write screenshot failed", zap.String("path", path), zap.Error(err))
				return nil
			}
			log.Debug("document: saved screenshot", zap.String("path", path))
			paths[page-1] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "document: screenshots")
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	log.Info("document: screenshots complete", zap.Int("saved", len(out)))
	return out, nil
}

// Cleanup removes a screenshot folder. Failures are logged, never returned.
func Cleanup(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		zap.L().Warn("document: cleanup failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	zap.L().Info("document: removed screenshots", zap.String("dir", dir))
}
