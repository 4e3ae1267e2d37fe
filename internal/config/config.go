// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Pool       PoolConfig       `mapstructure:"pool" yaml:"pool"`
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Lighthouse LighthouseConfig `mapstructure:"lighthouse" yaml:"lighthouse"`
	Grading    GradingConfig    `mapstructure:"grading" yaml:"grading"`
	Analysis   AnalysisConfig   `mapstructure:"analysis" yaml:"analysis"`
}

// LoggerConfig controls the structured logger and its file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// PoolConfig bounds the browser resource pool.
type PoolConfig struct {
	MaxBrowsers       int           `mapstructure:"max_browsers" yaml:"max_browsers"`
	MaxTabsPerBrowser int           `mapstructure:"max_tabs_per_browser" yaml:"max_tabs_per_browser"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	// LaunchArgs are appended to the stability flags every browser gets.
	LaunchArgs []string `mapstructure:"launch_args" yaml:"launch_args"`
}

// Viewport is a page viewport in CSS pixels.
type Viewport struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// CaptureConfig controls screenshot navigation and device emulation.
type CaptureConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	DesktopViewport   Viewport      `mapstructure:"desktop_viewport" yaml:"desktop_viewport"`
	MobileViewport    Viewport      `mapstructure:"mobile_viewport" yaml:"mobile_viewport"`
	MobileUserAgent   string        `mapstructure:"mobile_user_agent" yaml:"mobile_user_agent"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// LighthouseConfig controls the Dockerized performance audit.
type LighthouseConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Image   string `mapstructure:"image" yaml:"image"`
	// AuditTimeout caps a single container run end to end.
	AuditTimeout    time.Duration `mapstructure:"audit_timeout" yaml:"audit_timeout"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	AutoStartDocker bool          `mapstructure:"auto_start_docker" yaml:"auto_start_docker"`
	// LaunchInterval throttles container launches across concurrent analyses.
	LaunchInterval time.Duration `mapstructure:"launch_interval" yaml:"launch_interval"`
}

// GradingConfig controls the vision grading provider and the rule thresholds
// shared between the prompt and the deterministic fallback.
type GradingConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Seed        int           `mapstructure:"seed" yaml:"seed"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`

	Thresholds ThresholdConfig `mapstructure:"thresholds" yaml:"thresholds"`
}

// ThresholdConfig holds the pass/fail limits for the performance rules.
type ThresholdConfig struct {
	LoadTimeSeconds  float64 `mapstructure:"load_time_seconds" yaml:"load_time_seconds"`
	FCPSeconds       float64 `mapstructure:"fcp_seconds" yaml:"fcp_seconds"`
	PerformanceScore float64 `mapstructure:"performance_score" yaml:"performance_score"`
}

// AnalysisConfig controls the per-URL pipeline run.
type AnalysisConfig struct {
	// Timeout caps one full analysis: audit, captures, grading.
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SaveScreenshots bool          `mapstructure:"save_screenshots" yaml:"save_screenshots"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// SetDefaults registers every configuration default on the given viper
// instance. Call before reading config files or env vars so partial configs
// inherit sane values.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "lumen-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Pool --
	v.SetDefault("pool.max_browsers", 4)
	v.SetDefault("pool.max_tabs_per_browser", 8)
	v.SetDefault("pool.headless", true)
	v.SetDefault("pool.launch_timeout", "60s")

	// -- Capture --
	v.SetDefault("capture.navigation_timeout", "30s")
	v.SetDefault("capture.desktop_viewport.width", 1920)
	v.SetDefault("capture.desktop_viewport.height", 1080)
	v.SetDefault("capture.mobile_viewport.width", 375)
	v.SetDefault("capture.mobile_viewport.height", 667)
	v.SetDefault("capture.mobile_user_agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X)")
	v.SetDefault("capture.screenshot_dir", "screenshots")

	// -- Lighthouse --
	v.SetDefault("lighthouse.enabled", true)
	v.SetDefault("lighthouse.image", "femtopixel/google-lighthouse")
	v.SetDefault("lighthouse.audit_timeout", "5m")
	v.SetDefault("lighthouse.probe_timeout", "10s")
	v.SetDefault("lighthouse.auto_start_docker", true)
	v.SetDefault("lighthouse.launch_interval", "2s")

	// -- Grading --
	v.SetDefault("grading.provider", "openai")
	v.SetDefault("grading.model", "gpt-4o")
	v.SetDefault("grading.max_tokens", 1500)
	v.SetDefault("grading.temperature", 0.0)
	v.SetDefault("grading.seed", 12345)
	v.SetDefault("grading.api_timeout", "90s")
	v.SetDefault("grading.thresholds.load_time_seconds", 3.0)
	v.SetDefault("grading.thresholds.fcp_seconds", 2.5)
	v.SetDefault("grading.thresholds.performance_score", 70)

	// -- Analysis --
	v.SetDefault("analysis.timeout", "10m")
	v.SetDefault("analysis.save_screenshots", false)
	v.SetDefault("analysis.concurrency", 2)
}

// NewConfigFromViper unmarshals and validates a Config from the given viper
// instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the type system cannot express.
func (c *Config) Validate() error {
	if c.Pool.MaxBrowsers <= 0 {
		return fmt.Errorf("pool.max_browsers must be positive, got %d", c.Pool.MaxBrowsers)
	}
	if c.Pool.MaxTabsPerBrowser <= 0 {
		return fmt.Errorf("pool.max_tabs_per_browser must be positive, got %d", c.Pool.MaxTabsPerBrowser)
	}
	if c.Capture.NavigationTimeout <= 0 {
		return fmt.Errorf("capture.navigation_timeout must be positive")
	}
	if err := validateViewport("capture.desktop_viewport", c.Capture.DesktopViewport); err != nil {
		return err
	}
	if err := validateViewport("capture.mobile_viewport", c.Capture.MobileViewport); err != nil {
		return err
	}
	if c.Lighthouse.Enabled {
		if c.Lighthouse.Image == "" {
			return fmt.Errorf("lighthouse.image must be set when lighthouse is enabled")
		}
		if c.Lighthouse.AuditTimeout <= 0 {
			return fmt.Errorf("lighthouse.audit_timeout must be positive")
		}
	}
	switch c.Grading.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("grading.provider must be one of [openai gemini], got %q", c.Grading.Provider)
	}
	if c.Analysis.Concurrency <= 0 {
		return fmt.Errorf("analysis.concurrency must be positive, got %d", c.Analysis.Concurrency)
	}
	return nil
}

func validateViewport(key string, vp Viewport) error {
	if vp.Width <= 0 || vp.Height <= 0 {
		return fmt.Errorf("%s dimensions must be positive, got %dx%d", key, vp.Width, vp.Height)
	}
	return nil
}
