// Package monitoring summarizes the run ledger and raises alerts when
// failure rates or spend cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/chem-report/internal/model"
	"github.com/sells-group/chem-report/internal/store"
)

// maxWindowRuns caps how many runs one snapshot inspects.
const maxWindowRuns = 10000

// MetricsSnapshot holds a point-in-time view of ledger health.
type MetricsSnapshot struct {
	// Runs created within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsPartial  int     `json:"runs_partial"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Policy outcomes of finished runs.
	PoliciesTotal    int     `json:"policies_total"`
	PoliciesFailed   int     `json:"policies_failed"`
	PolicyFailRate   float64 `json:"policy_fail_rate"`
	CostUSD          float64 `json:"cost_usd"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	AvgRowsPerPolicy float64 `json:"avg_rows_per_policy"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished returns the number of runs that reached a terminal status.
func (s *MetricsSnapshot) Finished() int {
	return s.RunsComplete + s.RunsPartial + s.RunsFailed
}

// Ledger is the subset of store.Store the collector reads.
type Ledger interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
}

// Collector gathers metrics from the run ledger.
type Collector struct {
	ledger Ledger
	now    func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(ledger Ledger) *Collector {
	return &Collector{ledger: ledger, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.ledger.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxWindowRuns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var rows int
	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusPartial:
			snap.RunsPartial++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsRunning++
			continue
		}

		full, err := c.ledger.GetRun(ctx, r.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: get run %s", r.ID)
		}
		for _, o := range full.Outcomes {
			snap.PoliciesTotal++
			if o.Status == model.OutcomeFailed {
				snap.PoliciesFailed++
			}
			snap.CostUSD += o.CostUSD
			snap.InputTokens += o.InputTokens
			snap.OutputTokens += o.OutputTokens
			rows += o.Rows
		}
	}

	if finished := snap.Finished(); finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.PoliciesTotal > 0 {
		snap.PolicyFailRate = float64(snap.PoliciesFailed) / float64(snap.PoliciesTotal)
		if ok := snap.PoliciesTotal - snap.PoliciesFailed; ok > 0 {
			snap.AvgRowsPerPolicy = float64(rows) / float64(ok)
		}
	}

	return snap, nil
}
