// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Artifacts() ArtifactsConfig
	Query() QueryConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserDriverURL(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	ArtifactsCfg ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	QueryCfg     QueryConfig     `mapstructure:"query" yaml:"query"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Artifacts() ArtifactsConfig { return c.ArtifactsCfg }
func (c *Config) Query() QueryConfig         { return c.QueryCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserDriverURL(u string) { c.BrowserCfg.DriverURL = u }

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser the session factory drives.
// An empty DriverURL launches a local browser instead of attaching to one.
type BrowserConfig struct {
	DriverURL         string   `mapstructure:"driver_url" yaml:"driver_url"`
	ExecPath          string   `mapstructure:"exec_path" yaml:"exec_path"`
	Headless          bool     `mapstructure:"headless" yaml:"headless"`
	StartMaximized    bool     `mapstructure:"start_maximized" yaml:"start_maximized"`
	WindowWidth       int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int      `mapstructure:"window_height" yaml:"window_height"`
	Args              []string `mapstructure:"args" yaml:"args"`
	ConsoleBufferSize int      `mapstructure:"console_buffer_size" yaml:"console_buffer_size"`
	// SessionRate caps how many sessions are opened per second. Zero means no limit.
	SessionRate float64 `mapstructure:"session_rate" yaml:"session_rate"`
}

// ArtifactsConfig names the directories failure artifacts are written to.
// An empty directory disables that kind of artifact.
type ArtifactsConfig struct {
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`
	SourceDir      string `mapstructure:"source_dir" yaml:"source_dir"`
	ConsoleDir     string `mapstructure:"console_dir" yaml:"console_dir"`
}

// QueryConfig holds the defaults the query command loads documents with.
type QueryConfig struct {
	Mode     string `mapstructure:"mode" yaml:"mode"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
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

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "phquery")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.driver_url", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.start_maximized", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.console_buffer_size", 1000)
	v.SetDefault("browser.session_rate", 0.0)

	// -- Artifacts --
	v.SetDefault("artifacts.screenshots_dir", "")
	v.SetDefault("artifacts.source_dir", "")
	v.SetDefault("artifacts.console_dir", "")

	// -- Query --
	v.SetDefault("query.mode", "auto")
	v.SetDefault("query.encoding", "UTF-8")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
// Besides the PHQUERY_<SECTION>_<KEY> variables, the short legacy variables
// PHQUERY_DRIVER_URL, PHQUERY_HEADLESS_DISABLED and PHQUERY_START_MAXIMIZED are
// honoured.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("browser.driver_url", "PHQUERY_BROWSER_DRIVER_URL", "PHQUERY_DRIVER_URL")
	v.BindEnv("browser.start_maximized", "PHQUERY_BROWSER_START_MAXIMIZED", "PHQUERY_START_MAXIMIZED")
	v.BindEnv("legacy.headless_disabled", "PHQUERY_HEADLESS_DISABLED")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if v.GetBool("legacy.headless_disabled") {
		cfg.BrowserCfg.Headless = false
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.LoggerCfg.LogFile,
		&c.BrowserCfg.ExecPath,
		&c.ArtifactsCfg.ScreenshotsDir,
		&c.ArtifactsCfg.SourceDir,
		&c.ArtifactsCfg.ConsoleDir,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LoggerCfg.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.LoggerCfg.Format)
	}
	if c.BrowserCfg.WindowWidth < 0 || c.BrowserCfg.WindowHeight < 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must not be negative")
	}
	if c.BrowserCfg.ConsoleBufferSize <= 0 {
		return fmt.Errorf("browser.console_buffer_size must be a positive integer")
	}
	if c.BrowserCfg.SessionRate < 0 {
		return fmt.Errorf("browser.session_rate must not be negative")
	}
	switch strings.ToLower(c.QueryCfg.Mode) {
	case "auto", "html", "xml":
	default:
		return fmt.Errorf("query.mode must be one of auto, html or xml, got %q", c.QueryCfg.Mode)
	}
	if c.QueryCfg.Encoding == "" {
		return fmt.Errorf("query.encoding is a required configuration field")
	}
	return nil
}
