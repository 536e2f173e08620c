package main

import (
	"context"
	"time"

	"github.com/sells-group/chem-report/internal/analysis"
	"github.com/sells-group/chem-report/internal/cost"
	"github.com/sells-group/chem-report/internal/document"
	"github.com/sells-group/chem-report/internal/policy"
	"github.com/sells-group/chem-report/internal/resilience"
	"github.com/sells-group/chem-report/internal/store"
	"github.com/sells-group/chem-report/pkg/anthropic"
)

// initStore opens the run ledger. It returns a nil store when the ledger is
// disabled.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Disabled {
		return nil, nil
	}
	return store.Open(ctx, cfg.LedgerURL(), &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

func initAnalyzer() *analysis.Adapter {
	client := anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
	engine := analysis.NewClaudeEngine(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Anthropic.Temperature)
	return analysis.NewAdapter(engine, cost.NewCalculator(cfg.Pricing), analysis.Options{
		ReasoningBudget:   cfg.Anthropic.ThinkingBudget,
		Timeout:           time.Duration(cfg.Analysis.TimeoutSecs) * time.Second,
		RequestsPerMinute: cfg.Analysis.RequestsPerMinute,
	})
}

func initPolicies(names []string) ([]policy.Policy, error) {
	policies := policy.Defaults()
	if cfg.Analysis.PolicyFile != "" {
		loaded, err := policy.LoadFile(cfg.Analysis.PolicyFile)
		if err != nil {
			return nil, err
		}
		policies = loaded
	}
	return policy.Select(policies, names)
}

func retryPolicy() resilience.Policy {
	r := cfg.Retry
	return resilience.FromSettings(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

func openDocument(path string) (document.Source, error) {
	src, err := document.Open(path, document.Options{
		PdfToTextPath: cfg.Document.PdfToTextPath,
		PdfToPPMPath:  cfg.Document.PdfToPPMPath,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}
