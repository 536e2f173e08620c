package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/chem-report/internal/monitoring"
)

var runsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check ledger health and send threshold alerts",
	Long: `Summarizes runs in the lookback window and evaluates run failure rate,
policy failure rate and spend against the monitoring thresholds. Alerts are
posted to monitoring.webhook_url when it is set. With --watch the check
repeats every monitoring.check_interval_secs until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mcfg := cfg.Monitoring
		if cmd.Flags().Changed("lookback") {
			mcfg.LookbackWindowHours, _ = cmd.Flags().GetInt("lookback")
		}
		if cmd.Flags().Changed("webhook") {
			mcfg.WebhookURL, _ = cmd.Flags().GetString("webhook")
		}

		checker := monitoring.NewChecker(monitoring.NewCollector(st), monitoring.NewAlerter(mcfg), mcfg)

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			checker.Run(ctx)
			return nil
		}

		rep, err := checker.Check(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "runs check")
		}
		formatHealthReport(os.Stdout, rep)

		if exitCode, _ := cmd.Flags().GetBool("exit-code"); exitCode && len(rep.Alerts) > 0 {
			return eris.Errorf("runs check: %d alert(s) triggered", len(rep.Alerts))
		}
		return nil
	},
}

func init() {
	runsCheckCmd.Flags().Int("lookback", 24, "lookback window in hours")
	runsCheckCmd.Flags().String("webhook", "", "override monitoring.webhook_url")
	runsCheckCmd.Flags().Bool("watch", false, "repeat the check on an interval until interrupted")
	runsCheckCmd.Flags().Bool("exit-code", false, "exit non-zero when any alert triggers")

	runsCmd.AddCommand(runsCheckCmd)
}

// formatHealthReport writes the snapshot and triggered alerts to out.
func formatHealthReport(out io.Writer, rep *monitoring.Report) {
	s := rep.Snapshot
	w := prettytable.NewWriter()
	w.SetOutputMirror(out)
	w.SetStyle(prettytable.StyleLight)
	w.SetTitle(fmt.Sprintf("Ledger health (last %dh)", s.LookbackHours))
	w.AppendRows([]prettytable.Row{
		{"Runs", s.RunsTotal},
		{"Complete", s.RunsComplete},
		{"Partial", s.RunsPartial},
		{"Failed", s.RunsFailed},
		{"Running", s.RunsRunning},
		{"Run failure rate", fmt.Sprintf("%.1f%%", s.RunFailRate*100)},
		{"Policy calls", s.PoliciesTotal},
		{"Policy failure rate", fmt.Sprintf("%.1f%%", s.PolicyFailRate*100)},
		{"Avg rows per policy", fmt.Sprintf("%.1f", s.AvgRowsPerPolicy)},
		{"Tokens (in/out)", fmt.Sprintf("%d/%d", s.InputTokens, s.OutputTokens)},
		{"Cost", fmt.Sprintf("$%.4f", s.CostUSD)},
	})
	w.Render()

	if len(rep.Alerts) == 0 {
		fmt.Fprintln(out, "No alerts.")
		return
	}
	aw := prettytable.NewWriter()
	aw.SetOutputMirror(out)
	aw.SetStyle(prettytable.StyleLight)
	aw.AppendHeader(prettytable.Row{"Alert", "Severity", "Message"})
	for _, a := range rep.Alerts {
		aw.AppendRow(prettytable.Row{a.Type, a.Severity, a.Message})
	}
	aw.SetColumnConfigs([]prettytable.ColumnConfig{{Number: 3, WidthMax: 80}})
	aw.Render()
	fmt.Fprintf(out, "%d alert(s), %d delivered\n", len(rep.Alerts), rep.Sent)
}
