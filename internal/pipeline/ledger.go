package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/chem-report/internal/model"
)

// tracker mirrors a run into the ledger. Ledger failures are warnings; they
// never change the outcome of a run.
type tracker struct {
	ctx    context.Context
	p      *Pipeline
	result *RunResult
	log    *zap.Logger
}

func (p *Pipeline) newTracker(ctx context.Context, source string, result *RunResult) *tracker {
	t := &tracker{ctx: ctx, p: p, result: result, log: zap.L().With(zap.String("document", source))}
	if p.deps.Store == nil {
		return t
	}
	run, err := p.deps.Store.CreateRun(ctx, source, string(p.opts.Mode))
	if err != nil {
		t.log.Warn("pipeline: failed to create run record", zap.Error(err))
		return t
	}
	result.RunID = run.ID
	return t
}

func (t *tracker) enabled() bool {
	return t.p.deps.Store != nil && t.result.RunID != ""
}

func (t *tracker) outcome(pr PolicyResult) {
	if !t.enabled() {
		return
	}
	o := &model.PolicyOutcome{
		RunID:        t.result.RunID,
		Policy:       pr.Policy,
		Status:       model.OutcomeComplete,
		Rows:         len(pr.Table),
		TablePath:    pr.TablePath,
		ReportPath:   pr.ReportPath,
		WorkbookPath: pr.WorkbookPath,
	}
	if a := pr.Analysis; a != nil {
		o.InputTokens = a.InputUnits
		o.OutputTokens = a.OutputUnits
		o.CostUSD = a.Cost.Total()
		o.ElapsedMS = a.Elapsed.Milliseconds()
	}
	if pr.Err != nil {
		o.Status = model.OutcomeFailed
		o.Error = pr.Err.Error()
	}
	if err := t.p.deps.Store.RecordOutcome(t.ctx, o); err != nil {
		t.log.Warn("pipeline: failed to record outcome", zap.String("policy", pr.Policy), zap.Error(err))
	}
}

func (t *tracker) finish(status model.RunStatus, errMsg string) {
	t.result.Status = status
	if !t.enabled() {
		return
	}
	// The run context may already be cancelled; the final status still lands.
	ctx := context.WithoutCancel(t.ctx)
	if err := t.p.deps.Store.UpdateRunStatus(ctx, t.result.RunID, status, errMsg); err != nil {
		t.log.Warn("pipeline: failed to update run status", zap.String("status", string(status)), zap.Error(err))
	}
}

// fail marks the run failed and returns err.
func (t *tracker) fail(err error) error {
	t.finish(model.RunStatusFailed, err.Error())
	return err
}
