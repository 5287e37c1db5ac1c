// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. FORMSMITH_ENGINE_CONCURRENCY.
const EnvPrefix = "FORMSMITH"

// NewEnvReplacer maps nested keys onto environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// Interface defines the contract for accessing application configuration.
// Components depend on this rather than the concrete struct so tests can hand in fakes.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Resolver() ResolverConfig
	Anomaly() AnomalyConfig
	Engine() EngineConfig
	Form() FormConfig
	Metrics() MetricsConfig

	SetBrowserHeadless(bool)
	SetEngineConcurrency(int)
	SetResolverStrictness(Strictness)
	SetFormURL(string)
	SetFormSubmit(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	ResolverCfg ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	AnomalyCfg  AnomalyConfig  `mapstructure:"anomaly" yaml:"anomaly"`
	EngineCfg   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	FormCfg     FormConfig     `mapstructure:"form" yaml:"form"`
	MetricsCfg  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

var _ Interface = (*Config)(nil)

// --- Getters ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Resolver() ResolverConfig { return c.ResolverCfg }
func (c *Config) Anomaly() AnomalyConfig   { return c.AnomalyCfg }
func (c *Config) Engine() EngineConfig     { return c.EngineCfg }
func (c *Config) Form() FormConfig         { return c.FormCfg }
func (c *Config) Metrics() MetricsConfig   { return c.MetricsCfg }

// --- Setters (CLI flag overrides) ---

func (c *Config) SetBrowserHeadless(b bool)          { c.BrowserCfg.Headless = b }
func (c *Config) SetEngineConcurrency(n int)         { c.EngineCfg.Concurrency = n }
func (c *Config) SetResolverStrictness(s Strictness) { c.ResolverCfg.Strictness = s }
func (c *Config) SetFormURL(u string)                { c.FormCfg.URL = u }
func (c *Config) SetFormSubmit(b bool)               { c.FormCfg.Submit = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color used for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// Browser drivers.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// BrowserConfig holds settings for the browser that renders the form.
type BrowserConfig struct {
	// Driver selects chromedp (system Chrome over CDP) or playwright (bundled Chromium).
	Driver            string         `mapstructure:"driver" yaml:"driver"`
	InstallDriver     bool           `mapstructure:"install_driver" yaml:"install_driver"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	StartupTimeout    time.Duration  `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// Strictness gates the positional fallback strategies that may write into unrelated fields.
type Strictness string

const (
	StrictnessStrict     Strictness = "strict"
	StrictnessBalanced   Strictness = "balanced"
	StrictnessAggressive Strictness = "aggressive"
)

// ResolverConfig tunes the field resolution heuristics.
type ResolverConfig struct {
	Strictness       Strictness    `mapstructure:"strictness" yaml:"strictness"`
	LabelTimeout     time.Duration `mapstructure:"label_timeout" yaml:"label_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	CountrySettle    time.Duration `mapstructure:"country_settle" yaml:"country_settle"`
	// Group resolver weights.
	RowTolerancePx    float64 `mapstructure:"row_tolerance_px" yaml:"row_tolerance_px"`
	PreferenceBonus   float64 `mapstructure:"preference_bonus" yaml:"preference_bonus"`
	AbovePenalty      float64 `mapstructure:"above_penalty" yaml:"above_penalty"`
	LeftPenalty       float64 `mapstructure:"left_penalty" yaml:"left_penalty"`
	SiblingProbeLimit int     `mapstructure:"sibling_probe_limit" yaml:"sibling_probe_limit"`
	// Nearest-label resolver weights.
	VerticalTolerancePx float64 `mapstructure:"vertical_tolerance_px" yaml:"vertical_tolerance_px"`
	NearestLeftPenalty  float64 `mapstructure:"nearest_left_penalty" yaml:"nearest_left_penalty"`
	HorizontalWeight    float64 `mapstructure:"horizontal_weight" yaml:"horizontal_weight"`
}

// AllowsPositional reports whether keyword-free positional scans may run.
func (r ResolverConfig) AllowsPositional() bool {
	return r.Strictness == StrictnessAggressive
}

// AllowsScan reports whether the keyword-guided document scans may run.
func (r ResolverConfig) AllowsScan() bool {
	return r.Strictness != StrictnessStrict
}

// AnomalyConfig configures the challenge-page wait.
type AnomalyConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
	Ceiling        time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
	Selectors      []string      `mapstructure:"selectors" yaml:"selectors"`
	TextIndicators []string      `mapstructure:"text_indicators" yaml:"text_indicators"`
}

// EngineConfig bounds the cross-account batch.
type EngineConfig struct {
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	RatePerMinute  float64       `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	AccountTimeout time.Duration `mapstructure:"account_timeout" yaml:"account_timeout"`
	AccountsFile   string        `mapstructure:"accounts_file" yaml:"accounts_file"`
	ReportFile     string        `mapstructure:"report_file" yaml:"report_file"`
	ReportFormat   string        `mapstructure:"report_format" yaml:"report_format"`
}

// FormConfig describes the form page and what the caller does after resolution.
type FormConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	Submit         bool          `mapstructure:"submit" yaml:"submit"`
	SubmitLabels   []string      `mapstructure:"submit_labels" yaml:"submit_labels"`
	PostSubmitWait time.Duration `mapstructure:"post_submit_wait" yaml:"post_submit_wait"`
	ErrorText      string        `mapstructure:"error_text" yaml:"error_text"`
}

// MetricsConfig controls the Prometheus endpoint served during a batch.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Namespace  string `mapstructure:"namespace" yaml:"namespace"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formsmith")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.install_driver", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})
	v.SetDefault("browser.startup_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "1500ms")

	// -- Resolver --
	v.SetDefault("resolver.strictness", string(StrictnessBalanced))
	v.SetDefault("resolver.label_timeout", "800ms")
	v.SetDefault("resolver.operation_timeout", "5s")
	v.SetDefault("resolver.country_settle", "2s")
	v.SetDefault("resolver.row_tolerance_px", 6.0)
	v.SetDefault("resolver.preference_bonus", 6.0)
	v.SetDefault("resolver.above_penalty", 6.0)
	v.SetDefault("resolver.left_penalty", 1.0)
	v.SetDefault("resolver.sibling_probe_limit", 3)
	v.SetDefault("resolver.vertical_tolerance_px", 40.0)
	v.SetDefault("resolver.nearest_left_penalty", 50.0)
	v.SetDefault("resolver.horizontal_weight", 0.02)

	// -- Anomaly --
	v.SetDefault("anomaly.enabled", true)
	v.SetDefault("anomaly.interval", "5s")
	v.SetDefault("anomaly.ceiling", "120s")
	v.SetDefault("anomaly.selectors", []string{
		`[class*="captcha"]`,
		`iframe[src*="recaptcha"]`,
		`iframe[src*="hcaptcha"]`,
		`.cf-challenge-running`,
	})
	v.SetDefault("anomaly.text_indicators", []string{
		"slide right to complete",
		"unusual activity",
		"verify you are human",
		"captcha",
	})

	// -- Engine --
	v.SetDefault("engine.concurrency", 1)
	v.SetDefault("engine.rate_per_minute", 6.0)
	v.SetDefault("engine.account_timeout", "5m")
	v.SetDefault("engine.accounts_file", "accounts.json")
	v.SetDefault("engine.report_file", "stdout")
	v.SetDefault("engine.report_format", "jsonl")

	// -- Form --
	v.SetDefault("form.url", "")
	v.SetDefault("form.submit", false)
	v.SetDefault("form.submit_labels", []string{"Save", "Continue", "Submit"})
	v.SetDefault("form.post_submit_wait", "3s")
	v.SetDefault("form.error_text", "mandatory fields")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9464")
	v.SetDefault("metrics.namespace", "formsmith")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in every file path setting.
func (c *Config) expandPaths() error {
	paths := []*string{&c.LoggerCfg.LogFile, &c.EngineCfg.AccountsFile, &c.BrowserCfg.ExecPath}
	if c.EngineCfg.ReportFile != "stdout" {
		paths = append(paths, &c.EngineCfg.ReportFile)
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("could not expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	if c.EngineCfg.RatePerMinute < 0 {
		return fmt.Errorf("engine.rate_per_minute must not be negative")
	}
	if err := c.ResolverCfg.Validate(); err != nil {
		return fmt.Errorf("resolver configuration invalid: %w", err)
	}
	if err := c.AnomalyCfg.Validate(); err != nil {
		return fmt.Errorf("anomaly configuration invalid: %w", err)
	}
	switch c.BrowserCfg.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		return fmt.Errorf("browser.driver %q is not one of chromedp, playwright", c.BrowserCfg.Driver)
	}
	if c.MetricsCfg.Enabled && c.MetricsCfg.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}
	switch strings.ToLower(c.EngineCfg.ReportFormat) {
	case "jsonl", "json", "text":
	default:
		return fmt.Errorf("engine.report_format %q is not one of jsonl, json, text", c.EngineCfg.ReportFormat)
	}
	return nil
}

// Validate checks the resolver settings.
func (r *ResolverConfig) Validate() error {
	switch r.Strictness {
	case StrictnessStrict, StrictnessBalanced, StrictnessAggressive:
	default:
		return fmt.Errorf("strictness %q is not one of strict, balanced, aggressive", r.Strictness)
	}
	if r.LabelTimeout <= 0 || r.OperationTimeout <= 0 {
		return fmt.Errorf("label_timeout and operation_timeout must be positive durations")
	}
	if r.CountrySettle < 0 {
		return fmt.Errorf("country_settle must not be negative")
	}
	if r.SiblingProbeLimit < 0 {
		return fmt.Errorf("sibling_probe_limit must not be negative")
	}
	if r.VerticalTolerancePx <= 0 {
		return fmt.Errorf("vertical_tolerance_px must be positive")
	}
	return nil
}

// Validate checks the anomaly wait settings.
func (a *AnomalyConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	if a.Interval <= 0 {
		return fmt.Errorf("interval must be a positive duration")
	}
	if a.Ceiling < a.Interval {
		return fmt.Errorf("ceiling must be at least one interval")
	}
	return nil
}
