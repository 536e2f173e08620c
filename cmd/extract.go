package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/chem-report/internal/pipeline"
)

var (
	extractMode   string
	extractDPI    int
	extractOutput string
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf> [pdf...]",
	Short: "Save PDF text and page screenshots without calling the engine",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyDocumentFlags(cmd, extractMode, extractDPI, extractOutput)
		if err := cfg.Validate("extract"); err != nil {
			return err
		}
		mode, err := pipeline.ParseMode(cfg.Document.Mode)
		if err != nil {
			return err
		}

		p := pipeline.New(pipeline.Deps{Open: openDocument}, pipeline.Options{
			Mode:              mode,
			DPI:               cfg.Document.DPI,
			RenderConcurrency: cfg.Document.RenderConcurrency,
			OutputRoot:        cfg.Output.Root,
		})

		for _, path := range args {
			res, err := p.Extract(ctx, path)
			if err != nil {
				return eris.Wrapf(err, "extract %s", path)
			}
			if res.TextPath != "" {
				fmt.Fprintf(os.Stdout, "%s: text (%d chars) -> %s\n", path, res.TextChars, res.TextPath)
			}
			if res.ScreenshotDir != "" {
				fmt.Fprintf(os.Stdout, "%s: %d screenshots -> %s\n", path, len(res.Screenshots), res.ScreenshotDir)
			}
		}
		return nil
	},
}

func init() {
	addDocumentFlags(extractCmd, &extractMode, &extractDPI, &extractOutput)
	rootCmd.AddCommand(extractCmd)
}
