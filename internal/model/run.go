// Package model holds the ledger records shared by the pipeline and store.
package model

import "time"

// RunStatus represents the state of one document run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // at least one policy failed
	RunStatusFailed   RunStatus = "failed"
)

// OutcomeStatus is the result of one policy within a run.
type OutcomeStatus string

const (
	OutcomeComplete OutcomeStatus = "complete"
	OutcomeFailed   OutcomeStatus = "failed"
)

// Run is one invocation of the pipeline on a document.
type Run struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Mode      string          `json:"mode"`
	Status    RunStatus       `json:"status"`
	Error     string          `json:"error,omitempty"`
	Outcomes  []PolicyOutcome `json:"outcomes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TotalCost sums the estimated cost of every outcome.
func (r *Run) TotalCost() float64 {
	var c float64
	for _, o := range r.Outcomes {
		c += o.CostUSD
	}
	return c
}

// PolicyOutcome records what one extraction policy produced.
type PolicyOutcome struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id"`
	Policy       string        `json:"policy"`
	Status       OutcomeStatus `json:"status"`
	Rows         int           `json:"rows"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	ElapsedMS    int64         `json:"elapsed_ms"`
	TablePath    string        `json:"table_path,omitempty"`
	ReportPath   string        `json:"report_path,omitempty"`
	WorkbookPath string        `json:"workbook_path,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
