// Package pipeline runs one document through evidence assembly, both
// extraction policies, table normalization and report rendering.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/chem-report/internal/analysis"
	"github.com/sells-group/chem-report/internal/document"
	"github.com/sells-group/chem-report/internal/evidence"
	"github.com/sells-group/chem-report/internal/model"
	"github.com/sells-group/chem-report/internal/policy"
	"github.com/sells-group/chem-report/internal/report"
	"github.com/sells-group/chem-report/internal/resilience"
	"github.com/sells-group/chem-report/internal/store"
	"github.com/sells-group/chem-report/internal/table"
)

// ErrAllPoliciesFailed is returned when no policy produced a table.
var ErrAllPoliciesFailed = eris.New("pipeline: every policy failed")

// Analyzer is the engine adapter the pipeline calls once per policy.
type Analyzer interface {
	Invoke(ctx context.Context, payload *evidence.Payload) (*analysis.Result, error)
}

// Opener opens a document by path.
type Opener func(path string) (document.Source, error)

// Deps are the collaborators of a Pipeline. Store is optional.
type Deps struct {
	Open     Opener
	Analyzer Analyzer
	Renderer *report.Renderer
	Store    store.Store
	Policies []policy.Policy
	Retry    resilience.Policy
	Now      func() time.Time
}

// Options configure one Pipeline.
type Options struct {
	Mode              Mode
	DPI               int
	RenderConcurrency int
	OutputRoot        string
	Cleanup           bool
	Workbook          bool
	FailFast          bool
}

// Pipeline orchestrates a run. It is not safe for concurrent Runs that share
// an output root.
type Pipeline struct {
	deps Deps
	opts Options
}

// PolicyResult is what one policy produced within a run.
type PolicyResult struct {
	Policy       string
	Table        table.Table
	Analysis     *analysis.Result
	TablePath    string
	ReportPath   string
	ReportPages  int
	WorkbookPath string
	Err          error
}

// RunResult summarizes a run.
type RunResult struct {
	RunID    string
	Source   string
	Mode     Mode
	Status   model.RunStatus
	Policies []PolicyResult
}

// TotalCost sums the estimated cost of every successful policy.
func (r *RunResult) TotalCost() float64 {
	var c float64
	for _, p := range r.Policies {
		if p.Analysis != nil {
			c += p.Analysis.Cost.Total()
		}
	}
	return c
}

// TotalUnits sums input and output tokens of every successful policy.
func (r *RunResult) TotalUnits() (input, output int64) {
	for _, p := range r.Policies {
		if p.Analysis != nil {
			input += p.Analysis.InputUnits
			output += p.Analysis.OutputUnits
		}
	}
	return input, output
}

// New creates a Pipeline. Missing policies default to prominence and
// exhaustive; a missing retry classifier defaults to analysis.Retryable.
func New(deps Deps, opts Options) *Pipeline {
	if len(deps.Policies) == 0 {
		deps.Policies = policy.Defaults()
	}
	if deps.Retry.Retryable == nil {
		deps.Retry.Retryable = analysis.Retryable
	}
	if deps.Retry.OnRetry == nil {
		deps.Retry.OnRetry = resilience.Logger("analysis")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Open == nil {
		deps.Open = func(path string) (document.Source, error) {
			return document.Open(path, document.Options{})
		}
	}
	if opts.Mode == "" {
		opts.Mode = ModeBoth
	}
	if opts.DPI <= 0 {
		opts.DPI = document.DefaultDPI
	}
	if opts.OutputRoot == "" {
		opts.OutputRoot = "."
	}
	return &Pipeline{deps: deps, opts: opts}
}

// BaseName returns the file name of path without its extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TablePath returns where a policy's table text is written.
func TablePath(outputRoot, base string, mode Mode, policyName string) string {
	return filepath.Join(outputRoot, fmt.Sprintf("%s_%s_%s_analysis.md", base, mode, policyName))
}

// Run processes the document at path. Malformed documents, empty evidence
// and artifact write failures abort the run. An engine failure skips only
// its policy unless FailFast is set.
func (p *Pipeline) Run(ctx context.Context, path string) (*RunResult, error) {
	base := BaseName(path)
	log := zap.L().With(zap.String("document", path), zap.String("mode", string(p.opts.Mode)))
	log.Info("pipeline: starting run", zap.Int("policies", len(p.deps.Policies)))

	result := &RunResult{Source: path, Mode: p.opts.Mode, Status: model.RunStatusRunning}
	tracker := p.newTracker(ctx, path, result)

	src, err := p.deps.Open(path)
	if err != nil {
		return result, tracker.fail(eris.Wrapf(err, "pipeline: open %s", path))
	}

	payload, shotDir, err := p.collect(ctx, src, base)
	if shotDir != "" && p.opts.Cleanup {
		defer document.Cleanup(shotDir)
	}
	if err != nil {
		return result, tracker.fail(err)
	}

	var failed int
	for _, pol := range p.deps.Policies {
		pr, fatal := p.runPolicy(ctx, payload, pol, base, src.Name())
		result.Policies = append(result.Policies, pr)
		tracker.outcome(pr)

		if fatal != nil {
			return result, tracker.fail(fatal)
		}
		if pr.Err != nil {
			failed++
			if p.opts.FailFast {
				return result, tracker.fail(eris.Wrapf(pr.Err, "pipeline: policy %s", pol.Name))
			}
		}
	}

	in, out := result.TotalUnits()
	log.Info("pipeline: run complete",
		zap.Int("failed_policies", failed),
		zap.Int64("input_tokens", in),
		zap.Int64("output_tokens", out),
		zap.Float64("total_cost_usd", result.TotalCost()),
	)

	switch {
	case failed == 0:
		tracker.finish(model.RunStatusComplete, "")
		return result, nil
	case failed < len(p.deps.Policies):
		tracker.finish(model.RunStatusPartial, policyErrors(result.Policies))
		return result, nil
	default:
		return result, tracker.fail(eris.Wrap(ErrAllPoliciesFailed, policyErrors(result.Policies)))
	}
}

// collect extracts the evidence the mode asks for and assembles it once.
// The screenshot folder is returned even on error so it can be cleaned up.
func (p *Pipeline) collect(ctx context.Context, src document.Source, base string) (*evidence.Payload, string, error) {
	var in evidence.Input
	var shotDir string

	if p.opts.Mode == ModeDocument {
		in.Document = src.RawBytes()
	}
	if p.opts.Mode.WantsText() {
		in.Text = document.Text(ctx, src)
	}
	if p.opts.Mode.WantsScreenshots() {
		shotDir = document.ScreenshotDir(p.opts.OutputRoot, base)
		paths, err := document.Screenshots(ctx, src, shotDir, document.ScreenshotOptions{
			DPI:         p.opts.DPI,
			Concurrency: p.opts.RenderConcurrency,
		})
		if err != nil {
			return nil, shotDir, eris.Wrap(err, "pipeline: screenshots")
		}
		in.ImagePaths = paths
	}

	payload, err := evidence.Assemble(in)
	if err != nil {
		return nil, shotDir, eris.Wrap(err, "pipeline: assemble evidence")
	}
	return payload, shotDir, nil
}

// runPolicy invokes the engine for one policy and writes its artifacts. An
// engine failure is reported in PolicyResult.Err; an artifact failure is
// returned as fatal.
func (p *Pipeline) runPolicy(ctx context.Context, payload *evidence.Payload, pol policy.Policy, base, sourceName string) (PolicyResult, error) {
	log := zap.L().With(zap.String("policy", pol.Name))
	pr := PolicyResult{Policy: pol.Name}

	withPrompt := payload.WithInstruction(pol.Prompt)
	res, err := resilience.Do(ctx, p.deps.Retry, func(ctx context.Context) (*analysis.Result, error) {
		return p.deps.Analyzer.Invoke(ctx, withPrompt)
	})
	if err != nil {
		log.Error("pipeline: analysis failed, skipping policy", zap.Error(err))
		pr.Err = err
		return pr, nil
	}
	pr.Analysis = res

	pr.Table = table.Normalize(res.ResponseText)
	log.Info("pipeline: table normalized", zap.Int("rows", len(pr.Table)), zap.String("ordering", string(pol.Ordering)))

	pr.TablePath = TablePath(p.opts.OutputRoot, base, p.opts.Mode, pol.Name)
	if err := table.WriteFile(pr.TablePath, pr.Table); err != nil {
		pr.Err = err
		return pr, eris.Wrapf(err, "pipeline: save %s table", pol.Name)
	}

	rep, err := p.deps.Renderer.Render(pr.Table, sourceName, pol.Name, p.deps.Now())
	if err != nil {
		pr.Err = err
		return pr, eris.Wrapf(err, "pipeline: render %s report", pol.Name)
	}
	pr.ReportPath = rep.Path
	pr.ReportPages = rep.Pages

	if p.opts.Workbook {
		pr.WorkbookPath = report.WorkbookPath(rep.Path, pol.Name)
		if err := report.WriteWorkbook(pr.WorkbookPath, pol.Name, pr.Table); err != nil {
			pr.Err = err
			return pr, eris.Wrapf(err, "pipeline: write %s workbook", pol.Name)
		}
	}

	log.Info("pipeline: policy complete",
		zap.String("table", pr.TablePath),
		zap.String("report", pr.ReportPath),
		zap.Int("pages", pr.ReportPages),
	)
	return pr, nil
}

func policyErrors(results []PolicyResult) string {
	var parts []string
	for _, r := range results {
		if r.Err != nil {
			parts = append(parts, r.Policy+": "+r.Err.Error())
		}
	}
	return strings.Join(parts, "; ")
}
