package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Template   TemplateConfig   `yaml:"template" mapstructure:"template"`
	Document   DocumentConfig   `yaml:"document" mapstructure:"document"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// TemplateConfig locates the disclosure template and names its columns.
type TemplateConfig struct {
	Path    string        `yaml:"path" mapstructure:"path"`
	Sheet   string        `yaml:"sheet" mapstructure:"sheet"`
	Columns ColumnsConfig `yaml:"columns" mapstructure:"columns"`
}

// ColumnsConfig holds the template header names.
type ColumnsConfig struct {
	RefNo            string `yaml:"ref_no" mapstructure:"ref_no"`
	Topic            string `yaml:"topic" mapstructure:"topic"`
	DisclosureSource string `yaml:"disclosure_source" mapstructure:"disclosure_source"`
	DataField        string `yaml:"data_field" mapstructure:"data_field"`
	DataType         string `yaml:"data_type" mapstructure:"data_type"`
}

// DocumentConfig locates the sustainability report.
type DocumentConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// OutputConfig locates the compiled report.
type OutputConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ExtractionConfig configures the extraction client and its guardrail.
type ExtractionConfig struct {
	Provider                string   `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs             int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts             int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs            int      `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RequestsPerMinute       int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	CircuitFailureThreshold int      `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int      `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
	DenyList                []string `yaml:"deny_list" mapstructure:"deny_list"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// StoreConfig configures the optional run ledger. An empty driver disables it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures ledger health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys also fall back to the variables the vendor SDKs read.
	_ = v.BindEnv("anthropic.key", "GRI_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("gemini.key", "GRI_GEMINI_KEY", "GOOGLE_API_KEY")

	// Defaults
	v.SetDefault("template.path", "gri_11_template.csv")
	v.SetDefault("template.sheet", "")
	v.SetDefault("template.columns.ref_no", "GRI 11 Ref. No.")
	v.SetDefault("template.columns.topic", "GRI 11 Topic")
	v.SetDefault("template.columns.disclosure_source", "Disclosure Source")
	v.SetDefault("template.columns.data_field", "Data Field (Quantitative / Qualitative / Metric)")
	v.SetDefault("template.columns.data_type", "Type")
	v.SetDefault("document.path", "sustainability_report.txt")
	v.SetDefault("output.path", "output/final_report.json")
	v.SetDefault("extraction.provider", "anthropic")
	v.SetDefault("extraction.timeout_secs", 60)
	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("extraction.initial_backoff_ms", 500)
	v.SetDefault("extraction.max_backoff_ms", 30000)
	v.SetDefault("extraction.requests_per_minute", 0)
	v.SetDefault("extraction.circuit_failure_threshold", 5)
	v.SetDefault("extraction.circuit_reset_secs", 30)
	v.SetDefault("extraction.deny_list", []string{"not found", "not applicable"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 0)
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("store.driver", "")
	v.SetDefault("store.database_url", "gri.db")
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
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

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: "extract",
// "batch", "serve", "ledger".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract", "batch":
		errs = append(errs, c.validateExtraction()...)
		errs = append(errs, c.validateStore(false)...)
		if mode == "batch" && (c.Batch.MaxConcurrentDocuments < 1 || c.Batch.MaxConcurrentDocuments > 50) {
			errs = append(errs, "batch.max_concurrent_documents must be between 1 and 50")
		}
	case "serve":
		errs = append(errs, c.validateExtraction()...)
		errs = append(errs, c.validateStore(true)...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "ledger":
		errs = append(errs, c.validateStore(true)...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateExtraction() []string {
	var errs []string
	switch c.Extraction.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required (GRI_ANTHROPIC_KEY or ANTHROPIC_API_KEY)")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required (GRI_GEMINI_KEY or GOOGLE_API_KEY)")
		}
	default:
		errs = append(errs, fmt.Sprintf("extraction.provider %q is not one of anthropic, gemini", c.Extraction.Provider))
	}
	if c.Extraction.MaxAttempts < 1 {
		errs = append(errs, "extraction.max_attempts must be >= 1")
	}
	if c.Extraction.TimeoutSecs < 1 {
		errs = append(errs, "extraction.timeout_secs must be >= 1")
	}
	return errs
}

func (c *Config) validateStore(required bool) []string {
	switch c.Store.Driver {
	case "":
		if required {
			return []string{"store.driver is required (sqlite or postgres)"}
		}
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver)}
	}
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
