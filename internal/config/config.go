package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/chem-report/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Document   DocumentConfig   `yaml:"document" mapstructure:"document"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig configures the Claude client.
type AnthropicConfig struct {
	Key         string   `yaml:"key" mapstructure:"key"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	Model       string   `yaml:"model" mapstructure:"model"`
	MaxTokens   int64    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature *float64 `yaml:"temperature" mapstructure:"temperature"`
	// ThinkingBudget is the extended-thinking token budget. 0 disables thinking.
	ThinkingBudget int64 `yaml:"thinking_budget" mapstructure:"thinking_budget"`
}

// AnalysisConfig configures how the engine is called.
type AnalysisConfig struct {
	TimeoutSecs       int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	FailFast          bool     `yaml:"fail_fast" mapstructure:"fail_fast"`
	Policies          []string `yaml:"policies" mapstructure:"policies"`
	PolicyFile        string   `yaml:"policy_file" mapstructure:"policy_file"`
}

// DocumentConfig configures text extraction and page rendering.
type DocumentConfig struct {
	Mode              string `yaml:"mode" mapstructure:"mode"`
	DPI               int    `yaml:"dpi" mapstructure:"dpi"`
	RenderConcurrency int    `yaml:"render_concurrency" mapstructure:"render_concurrency"`
	PdfToTextPath     string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPPMPath      string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
}

// OutputConfig configures where artifacts go.
type OutputConfig struct {
	Root    string `yaml:"root" mapstructure:"root"`
	Cleanup bool   `yaml:"cleanup" mapstructure:"cleanup"`
	XLSX    bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// RetryConfig configures caller-side retries of engine calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	// DatabaseURL is a postgres:// URL or a SQLite file path. Empty means
	// <output.root>/runs.db.
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	Disabled    bool   `yaml:"disabled" mapstructure:"disabled"`
}

// MonitoringConfig configures ledger health checks and alert delivery.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	PolicyFailureRate    float64 `yaml:"policy_failure_rate" mapstructure:"policy_failure_rate"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	MinFinishedRuns      int     `yaml:"min_finished_runs" mapstructure:"min_finished_runs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LedgerURL returns the configured database URL or the default SQLite path.
func (c *Config) LedgerURL() string {
	if c.Store.DatabaseURL != "" {
		return c.Store.DatabaseURL
	}
	return filepath.Join(c.Output.Root, "runs.db")
}

var validModes = map[string]bool{"text": true, "screenshots": true, "both": true, "document": true}

// Validate checks the settings a command needs. mode is the command name.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "analyze":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key (or ANTHROPIC_API_KEY)")
		}
		if c.Anthropic.Model == "" {
			missing = append(missing, "anthropic.model")
		}
		if c.Anthropic.MaxTokens <= 0 {
			return eris.Errorf("config: anthropic.max_tokens must be positive, got %d", c.Anthropic.MaxTokens)
		}
		if c.Anthropic.ThinkingBudget < 0 {
			return eris.Errorf("config: anthropic.thinking_budget must not be negative, got %d", c.Anthropic.ThinkingBudget)
		}
		if err := c.validateDocument(); err != nil {
			return err
		}
	case "extract":
		if err := c.validateDocument(); err != nil {
			return err
		}
	case "render", "runs":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required fields for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) validateDocument() error {
	if !validModes[strings.ToLower(c.Document.Mode)] {
		return eris.Errorf("config: document.mode must be text, screenshots, both or document, got %q", c.Document.Mode)
	}
	if c.Document.DPI < 36 || c.Document.DPI > 1200 {
		return eris.Errorf("config: document.dpi must be between 36 and 1200, got %d", c.Document.DPI)
	}
	if c.Document.RenderConcurrency < 1 {
		return eris.Errorf("config: document.render_concurrency must be at least 1, got %d", c.Document.RenderConcurrency)
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CHEMREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.key", "CHEMREPORT_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("anthropic.temperature")

	// Defaults
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.thinking_budget", 1024)
	v.SetDefault("analysis.timeout_secs", 300)
	v.SetDefault("analysis.requests_per_minute", 0)
	v.SetDefault("analysis.fail_fast", false)
	v.SetDefault("analysis.policies", []string{"prominence", "exhaustive"})
	v.SetDefault("analysis.policy_file", "")
	v.SetDefault("document.mode", "both")
	v.SetDefault("document.dpi", 150)
	v.SetDefault("document.render_concurrency", 4)
	v.SetDefault("document.pdftotext_path", "pdftotext")
	v.SetDefault("document.pdftoppm_path", "pdftoppm")
	v.SetDefault("output.root", "output")
	v.SetDefault("output.cleanup", false)
	v.SetDefault("output.xlsx", true)
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 2000)
	v.SetDefault("retry.max_backoff_ms", 60000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.1)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.disabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.policy_failure_rate", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.min_finished_runs", 5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Configured prices override the built-in table per model.
	defaults := cost.DefaultRates()
	if cfg.Pricing.Anthropic == nil {
		cfg.Pricing.Anthropic = defaults.Anthropic
	} else {
		for model, rate := range defaults.Anthropic {
			if _, ok := cfg.Pricing.Anthropic[model]; !ok {
				cfg.Pricing.Anthropic[model] = rate
			}
		}
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
