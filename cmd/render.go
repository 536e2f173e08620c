package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/chem-report/internal/report"
	"github.com/sells-group/chem-report/internal/table"
)

var (
	renderSource string
	renderPolicy string
	renderOutput string
	renderXLSX   bool
)

var renderCmd = &cobra.Command{
	Use:   "render <table-file>",
	Short: "Render a report from a saved table (.md, .txt or .xlsx)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := args[0]
		t, err := readTable(path)
		if err != nil {
			return err
		}

		source := renderSource
		if source == "" {
			source = filepath.Base(path)
		}
		root := cfg.Output.Root
		if renderOutput != "" {
			root = renderOutput
		}

		res, err := report.NewRenderer(root).Render(t, source, renderPolicy, time.Now())
		if err != nil {
			return eris.Wrap(err, "render")
		}
		fmt.Fprintf(os.Stdout, "report: %s (%d rows, %d pages)\n", res.Path, len(t), res.Pages)

		if renderXLSX {
			wb := report.WorkbookPath(res.Path, "table")
			if err := report.WriteWorkbook(wb, "Substances", t); err != nil {
				return eris.Wrap(err, "render: workbook")
			}
			fmt.Fprintf(os.Stdout, "workbook: %s\n", wb)
		}
		return nil
	},
}

// readTable loads a table from a workbook or a pipe-delimited text file.
func readTable(path string) (table.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return report.ReadWorkbook(path)
	}
	return table.ReadFile(path)
}

func init() {
	renderCmd.Flags().StringVar(&renderSource, "source", "", "source document name shown in the report (default: table file name)")
	renderCmd.Flags().StringVar(&renderPolicy, "policy", "", "extraction policy name shown in the report")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output directory (default from config)")
	renderCmd.Flags().BoolVar(&renderXLSX, "xlsx", false, "also write a workbook beside the report")
	rootCmd.AddCommand(renderCmd)
}
