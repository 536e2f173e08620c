package main

import (
	"fmt"
	"io"
	"os"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/chem-report/internal/pipeline"
	"github.com/sells-group/chem-report/internal/report"
)

var (
	analyzeMode     string
	analyzeDPI      int
	analyzeOutput   string
	analyzeCleanup  bool
	analyzeFailFast bool
	analyzePolicies []string
	analyzeNoXLSX   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <pdf> [pdf...]",
	Short: "Extract substance tables from PDFs and render reports",
	Long:  "Runs every selected extraction policy on each PDF and writes a table file, a PDF report and a workbook per policy.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyDocumentFlags(cmd, analyzeMode, analyzeDPI, analyzeOutput)
		if cmd.Flags().Changed("cleanup") {
			cfg.Output.Cleanup = analyzeCleanup
		}
		if cmd.Flags().Changed("fail-fast") {
			cfg.Analysis.FailFast = analyzeFailFast
		}
		if analyzeNoXLSX {
			cfg.Output.XLSX = false
		}
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		mode, err := pipeline.ParseMode(cfg.Document.Mode)
		if err != nil {
			return err
		}
		names := cfg.Analysis.Policies
		if len(analyzePolicies) > 0 {
			names = analyzePolicies
		}
		policies, err := initPolicies(names)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "analyze: open ledger")
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		p := pipeline.New(pipeline.Deps{
			Open:     openDocument,
			Analyzer: initAnalyzer(),
			Renderer: report.NewRenderer(cfg.Output.Root),
			Store:    st,
			Policies: policies,
			Retry:    retryPolicy(),
		}, pipeline.Options{
			Mode:              mode,
			DPI:               cfg.Document.DPI,
			RenderConcurrency: cfg.Document.RenderConcurrency,
			OutputRoot:        cfg.Output.Root,
			Cleanup:           cfg.Output.Cleanup,
			Workbook:          cfg.Output.XLSX,
			FailFast:          cfg.Analysis.FailFast,
		})

		var failed int
		for _, path := range args {
			res, err := p.Run(ctx, path)
			if res != nil {
				formatRunResult(os.Stdout, res)
			}
			if err != nil {
				failed++
				zap.L().Error("analyze: document failed", zap.String("document", path), zap.Error(err))
				if ctx.Err() != nil {
					return eris.Wrap(err, "analyze: cancelled")
				}
			}
		}
		if failed > 0 {
			return eris.Errorf("analyze: %d of %d documents failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	addDocumentFlags(analyzeCmd, &analyzeMode, &analyzeDPI, &analyzeOutput)
	analyzeCmd.Flags().BoolVar(&analyzeCleanup, "cleanup", false, "delete screenshots after both analyses")
	analyzeCmd.Flags().BoolVar(&analyzeFailFast, "fail-fast", false, "stop a document at the first failed policy")
	analyzeCmd.Flags().StringSliceVar(&analyzePolicies, "policy", nil, "policies to run (prominence, exhaustive); default all")
	analyzeCmd.Flags().BoolVar(&analyzeNoXLSX, "no-xlsx", false, "skip workbook output")
	rootCmd.AddCommand(analyzeCmd)
}

// addDocumentFlags registers the flags shared by analyze and extract.
func addDocumentFlags(cmd *cobra.Command, mode *string, dpi *int, output *string) {
	cmd.Flags().StringVar(mode, "mode", "", "input mode: text, screenshots, both or document (default from config)")
	cmd.Flags().IntVar(dpi, "dpi", 0, "screenshot resolution (default from config, 150)")
	cmd.Flags().StringVarP(output, "output", "o", "", "output directory (default from config)")
}

func applyDocumentFlags(cmd *cobra.Command, mode string, dpi int, output string) {
	if cmd.Flags().Changed("mode") {
		cfg.Document.Mode = mode
	}
	if cmd.Flags().Changed("dpi") {
		cfg.Document.DPI = dpi
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Root = output
	}
}

// formatRunResult writes the per-policy usage and cost summary of a run.
func formatRunResult(out io.Writer, res *pipeline.RunResult) {
	w := prettytable.NewWriter()
	w.SetOutputMirror(out)
	w.SetStyle(prettytable.StyleLight)
	w.SetTitle(fmt.Sprintf("%s (%s) %s", res.Source, res.Mode, res.Status))
	w.AppendHeader(prettytable.Row{"Policy", "Rows", "Input tok", "Output tok", "Cost (USD)", "Report", "Error"})

	for _, pr := range res.Policies {
		var in, outTok int64
		var cost float64
		if pr.Analysis != nil {
			in, outTok = pr.Analysis.InputUnits, pr.Analysis.OutputUnits
			cost = pr.Analysis.Cost.Total()
		}
		errMsg := ""
		if pr.Err != nil {
			errMsg = pr.Err.Error()
		}
		w.AppendRow(prettytable.Row{pr.Policy, len(pr.Table), in, outTok, fmt.Sprintf("%.6f", cost), pr.ReportPath, errMsg})
	}

	in, outTok := res.TotalUnits()
	w.AppendFooter(prettytable.Row{"Total", "", in, outTok, fmt.Sprintf("%.6f", res.TotalCost()), "", ""})
	w.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})
	w.Render()
}
