package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/chem-report/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "chem-report",
	Short: "Chemical substance extraction and reporting from PDFs",
	Long:  "Extracts text and page images from PDF documents, asks Claude for prominence-ranked and exhaustive substance tables, and renders them as PDF reports and workbooks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
