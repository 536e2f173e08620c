package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chem-report/internal/analysis"
	"github.com/sells-group/chem-report/internal/cost"
	"github.com/sells-group/chem-report/internal/document"
	"github.com/sells-group/chem-report/internal/evidence"
	"github.com/sells-group/chem-report/internal/model"
	"github.com/sells-group/chem-report/internal/policy"
	"github.com/sells-group/chem-report/internal/report"
	"github.com/sells-group/chem-report/internal/resilience"
	"github.com/sells-group/chem-report/internal/store"
	"github.com/sells-group/chem-report/internal/table"
)

const prominenceResponse = "| Substance Name | Concentration Range | Use Case |\n|---|---|---|\n| Glycerin | 2% - 5% | Humectant |\n| Citric Acid | Not specified | pH Adjuster |"

const exhaustiveResponse = "Here you go:\n| Substance Name | Concentration Range | Use Case |\n|---|---|---|\n| Glycerin | 2% | Humectant |\n| Glycerin | 5% | Solvent |\n| Citric Acid | 0.1% | pH Adjuster |"

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newSource(t *testing.T) *fakeSource {
	return &fakeSource{
		name:   "paper.pdf",
		texts:  []string{"Glycerin 2-5% as humectant.", "", "Citric acid adjusts pH."},
		raster: pngBytes(t),
		raw:    []byte("%PDF-1.7 raw"),
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func result(text string, in, out int64) *analysis.Result {
	return &analysis.Result{
		ResponseText: text,
		Model:        "claude-sonnet-4-5-20250929",
		InputUnits:   in,
		OutputUnits:  out,
		Elapsed:      1500 * time.Millisecond,
		Cost:         cost.NewCalculator(cost.DefaultRates()).Estimate("claude-sonnet-4-5-20250929", in, out),
	}
}

func newPipeline(t *testing.T, src document.Source, an Analyzer, st store.Store, opts Options) *Pipeline {
	t.Helper()
	if opts.OutputRoot == "" {
		opts.OutputRoot = t.TempDir()
	}
	return New(Deps{
		Open:     openerFor(src),
		Analyzer: an,
		Renderer: report.NewRenderer(opts.OutputRoot),
		Store:    st,
		Now:      func() time.Time { return fixedNow },
	}, opts)
}

func TestRun_BothPolicies(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, withPrompt(policy.Prominence().Prompt)).
		Return(result(prominenceResponse, 1000, 200), nil).Once()
	an.On("Invoke", mock.Anything, withPrompt(policy.Exhaustive().Prompt)).
		Return(result(exhaustiveResponse, 1000, 400), nil).Once()

	st := newTestStore(t)
	root := t.TempDir()
	p := newPipeline(t, newSource(t), an, st, Options{Mode: ModeText, OutputRoot: root, Workbook: true})

	res, err := p.Run(context.Background(), "/docs/paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, res.Status)
	require.Len(t, res.Policies, 2)

	prom := res.Policies[0]
	assert.Equal(t, policy.NameProminence, prom.Policy)
	assert.Equal(t, table.Table{
		{Substance: "Glycerin", Concentration: "2% - 5%", UseCase: "Humectant"},
		{Substance: "Citric Acid", Concentration: table.NotSpecified, UseCase: "pH Adjuster"},
	}, prom.Table)
	assert.Equal(t, filepath.Join(root, "paper_text_prominence_analysis.md"), prom.TablePath)
	assert.Equal(t, filepath.Join(root, "reports", "paper_analysis_report_20260314_092653.pdf"), prom.ReportPath)
	assert.FileExists(t, prom.TablePath)
	assert.FileExists(t, prom.ReportPath)
	assert.FileExists(t, prom.WorkbookPath)
	assert.GreaterOrEqual(t, prom.ReportPages, 1)

	exh := res.Policies[1]
	assert.Len(t, exh.Table, 3)
	assert.Equal(t, filepath.Join(root, "reports", "paper_analysis_report_20260314_092653_2.pdf"), exh.ReportPath)

	saved, err := table.ReadFile(exh.TablePath)
	require.NoError(t, err)
	assert.Equal(t, exh.Table, saved)

	in, out := res.TotalUnits()
	assert.Equal(t, int64(2000), in)
	assert.Equal(t, int64(600), out)
	assert.Greater(t, res.TotalCost(), 0.0)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "text", run.Mode)
	require.Len(t, run.Outcomes, 2)
	assert.Equal(t, 2, run.Outcomes[0].Rows)
	assert.Equal(t, int64(1000), run.Outcomes[0].InputTokens)
	assert.Equal(t, int64(1500), run.Outcomes[0].ElapsedMS)

	an.AssertExpectations(t)
}

func TestRun_EvidenceBuiltOnceAndShared(t *testing.T) {
	var payloads []*evidence.Payload
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { payloads = append(payloads, args.Get(1).(*evidence.Payload)) }).
		Return(result(prominenceResponse, 1, 1), nil)

	p := newPipeline(t, newSource(t), an, nil, Options{Mode: ModeBoth})
	_, err := p.Run(context.Background(), "paper.pdf")
	require.NoError(t, err)

	require.Len(t, payloads, 2)
	assert.NotEqual(t, payloads[0].Instruction(), payloads[1].Instruction())
	assert.Equal(t, payloads[0].Segments()[1:], payloads[1].Segments()[1:])
	assert.Equal(t, 3, payloads[0].Count(evidence.KindImage))
	assert.Equal(t, 1, payloads[0].Count(evidence.KindText))
}

func TestRun_DocumentMode(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, mock.MatchedBy(func(p *evidence.Payload) bool {
		return p.Count(evidence.KindDocument) == 1 && p.Count(evidence.KindText) == 0
	})).Return(result(prominenceResponse, 1, 1), nil).Twice()

	p := newPipeline(t, newSource(t), an, nil, Options{Mode: ModeDocument})
	_, err := p.Run(context.Background(), "paper.pdf")
	require.NoError(t, err)
	an.AssertExpectations(t)
}

func TestRun_PolicyFailureContinues(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, withPrompt(policy.Prominence().Prompt)).
		Return(nil, &analysis.UnavailableError{Err: eris.New("overloaded_error")}).Once()
	an.On("Invoke", mock.Anything, withPrompt(policy.Exhaustive().Prompt)).
		Return(result(exhaustiveResponse, 10, 10), nil).Once()

	st := newTestStore(t)
	p := newPipeline(t, newSource(t), an, st, Options{Mode: ModeText})

	res, err := p.Run(context.Background(), "paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, res.Status)
	assert.ErrorIs(t, res.Policies[0].Err, analysis.ErrUnavailable)
	assert.Empty(t, res.Policies[0].ReportPath)
	assert.NotEmpty(t, res.Policies[1].ReportPath)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, run.Status)
	assert.Contains(t, run.Error, "overloaded_error")
	require.Len(t, run.Outcomes, 2)
	assert.Equal(t, model.OutcomeFailed, run.Outcomes[0].Status)
	assert.Equal(t, model.OutcomeComplete, run.Outcomes[1].Status)
}

func TestRun_FailFastStopsAfterFirstFailure(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, withPrompt(policy.Prominence().Prompt)).
		Return(nil, &analysis.UnavailableError{Err: eris.New("invalid x-api-key")}).Once()

	p := newPipeline(t, newSource(t), an, nil, Options{Mode: ModeText, FailFast: true})

	res, err := p.Run(context.Background(), "paper.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrUnavailable)
	assert.Equal(t, model.RunStatusFailed, res.Status)
	assert.Len(t, res.Policies, 1)
	an.AssertExpectations(t)
	an.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestRun_AllPoliciesFail(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, mock.Anything).
		Return(nil, &analysis.UnavailableError{Err: eris.New("quota exceeded")})

	st := newTestStore(t)
	p := newPipeline(t, newSource(t), an, st, Options{Mode: ModeText})

	res, err := p.Run(context.Background(), "paper.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllPoliciesFailed)
	assert.Equal(t, model.RunStatusFailed, res.Status)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestRun_EmptyEvidenceAbortsBeforeEngine(t *testing.T) {
	an := &mockAnalyzer{}
	src := &fakeSource{name: "blank.pdf", texts: []string{"", "  "}}

	st := newTestStore(t)
	p := newPipeline(t, src, an, st, Options{Mode: ModeText})

	res, err := p.Run(context.Background(), "blank.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, evidence.ErrEmptyEvidence)
	assert.Equal(t, model.RunStatusFailed, res.Status)
	an.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Empty(t, run.Outcomes)
}

func TestRun_MalformedDocument(t *testing.T) {
	an := &mockAnalyzer{}
	p := New(Deps{
		Open: func(string) (document.Source, error) {
			return nil, eris.Wrap(document.ErrMalformedDocument, "document: validate")
		},
		Analyzer: an,
		Renderer: report.NewRenderer(t.TempDir()),
	}, Options{Mode: ModeText, OutputRoot: t.TempDir()})

	_, err := p.Run(context.Background(), "broken.pdf")
	assert.ErrorIs(t, err, document.ErrMalformedDocument)
	an.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, withPrompt(policy.Prominence().Prompt)).
		Return(nil, &analysis.UnavailableError{Err: eris.New("read tcp: connection reset by peer")}).Once()
	an.On("Invoke", mock.Anything, mock.Anything).
		Return(result(prominenceResponse, 1, 1), nil)

	root := t.TempDir()
	p := New(Deps{
		Open:     openerFor(newSource(t)),
		Analyzer: an,
		Renderer: report.NewRenderer(root),
		Policies: []policy.Policy{policy.Prominence()},
		Retry:    resilience.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond},
	}, Options{Mode: ModeText, OutputRoot: root})

	res, err := p.Run(context.Background(), "paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, res.Status)
	an.AssertNumberOfCalls(t, "Invoke", 2)
}

func TestRun_ArtifactWriteFailureIsFatal(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, mock.Anything).Return(result(prominenceResponse, 1, 1), nil)

	root := t.TempDir()
	// A regular file where the output directory should be.
	blocked := filepath.Join(root, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	p := newPipeline(t, newSource(t), an, nil, Options{Mode: ModeText, OutputRoot: blocked})
	res, err := p.Run(context.Background(), "paper.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: save prominence table")
	assert.Equal(t, model.RunStatusFailed, res.Status)
	an.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestRun_CleanupRemovesScreenshots(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, mock.Anything).Return(result(prominenceResponse, 1, 1), nil)

	root := t.TempDir()
	p := newPipeline(t, newSource(t), an, nil, Options{Mode: ModeScreenshots, OutputRoot: root, Cleanup: true})
	_, err := p.Run(context.Background(), "paper.pdf")
	require.NoError(t, err)
	assert.NoDirExists(t, document.ScreenshotDir(root, "paper"))
}

func TestRun_ScreenshotsKeptWithoutCleanup(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Invoke", mock.Anything, mock.Anything).Return(result(prominenceResponse, 1, 1), nil)

	root := t.TempDir()
	p := newPipeline(t, newSource(t), an, nil, Options{Mode: ModeScreenshots, OutputRoot: root})
	_, err := p.Run(context.Background(), "paper.pdf")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(document.ScreenshotDir(root, "paper"), "page_003.png"))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "paper", BaseName("/a/b/paper.pdf"))
	assert.Equal(t, "my.paper", BaseName("my.paper.pdf"))
	assert.Equal(t, "noext", BaseName("noext"))
}

func TestTablePath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "paper_both_exhaustive_analysis.md"), TablePath("out", "paper", ModeBoth, "exhaustive"))
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"text", "SCREENSHOTS", " both ", "document"} {
		_, err := ParseMode(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseMode("ocr")
	assert.Error(t, err)

	assert.True(t, ModeBoth.WantsText())
	assert.True(t, ModeBoth.WantsScreenshots())
	assert.False(t, ModeDocument.WantsText())
	assert.False(t, ModeText.WantsScreenshots())
}
