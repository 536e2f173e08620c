package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/chem-report/internal/analysis"
	"github.com/sells-group/chem-report/internal/config"
	"github.com/sells-group/chem-report/internal/cost"
	"github.com/sells-group/chem-report/internal/model"
	"github.com/sells-group/chem-report/internal/pipeline"
	"github.com/sells-group/chem-report/internal/table"
)

func TestFormatRunResult(t *testing.T) {
	calc := cost.NewCalculator(cost.DefaultRates())
	res := &pipeline.RunResult{
		Source: "paper.pdf",
		Mode:   pipeline.ModeBoth,
		Status: model.RunStatusPartial,
		Policies: []pipeline.PolicyResult{
			{
				Policy: "prominence",
				Table:  table.Table{{Substance: "Glycerin", Concentration: "2%", UseCase: "Humectant"}},
				Analysis: &analysis.Result{
					InputUnits:  1000000,
					OutputUnits: 100000,
					Elapsed:     time.Second,
					Cost:        calc.Estimate("claude-sonnet-4-5-20250929", 1000000, 100000),
				},
				ReportPath: "output/reports/paper_analysis_report_20260101_000000.pdf",
			},
			{Policy: "exhaustive", Err: eris.New("engine unavailable")},
		},
	}

	var buf bytes.Buffer
	formatRunResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "paper.pdf (both) partial")
	assert.Contains(t, out, "prominence")
	assert.Contains(t, out, "4.500000")
	assert.Contains(t, out, "engine unavailable")
	assert.Contains(t, out, "paper_analysis_report_20260101_000000.pdf")
}

func TestApplyDocumentFlags(t *testing.T) {
	cfg = &config.Config{}
	cfg.Document.Mode = "both"
	cfg.Document.DPI = 150
	cfg.Output.Root = "output"

	cmd := &cobra.Command{Use: "x"}
	var mode, output string
	var dpi int
	addDocumentFlags(cmd, &mode, &dpi, &output)
	assert.NoError(t, cmd.ParseFlags([]string{"--mode", "text", "--dpi", "300"}))

	applyDocumentFlags(cmd, mode, dpi, output)
	assert.Equal(t, "text", cfg.Document.Mode)
	assert.Equal(t, 300, cfg.Document.DPI)
	assert.Equal(t, "output", cfg.Output.Root, "unset flag keeps config value")
}
