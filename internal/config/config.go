package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the effective compfx configuration.
type Config struct {
	// FrameRate is the default timeline rate in ticks per second.
	FrameRate uint `yaml:"frame_rate"`
	// SchedulerPriority is the main-loop priority of the effects timer
	// pool. Lower runs first.
	SchedulerPriority int    `yaml:"scheduler_priority"`
	LogLevel          string `yaml:"log_level"`
	LogFormat         string `yaml:"log_format"`
	// Display overrides $DISPLAY for the daemon.
	Display string     `yaml:"display,omitempty"`
	Fade    FadeConfig `yaml:"fade"`
}

// FadeConfig configures the window fade effect.
type FadeConfig struct {
	Enabled        bool     `yaml:"enabled"`
	DurationMS     int      `yaml:"duration_ms"`
	DelayMS        int      `yaml:"delay_ms"`
	MinOpacity     float64  `yaml:"min_opacity"`
	FadeOut        bool     `yaml:"fade_out"`
	ExcludeClasses []string `yaml:"exclude_classes"`
}

// Duration returns DurationMS as a time.Duration.
func (f FadeConfig) Duration() time.Duration {
	return time.Duration(f.DurationMS) * time.Millisecond
}

// Delay returns DelayMS as a time.Duration.
func (f FadeConfig) Delay() time.Duration {
	return time.Duration(f.DelayMS) * time.Millisecond
}

const (
	DefaultFrameRate         = 60
	DefaultSchedulerPriority = 100
	maxFrameRate             = 1000
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		FrameRate:         DefaultFrameRate,
		SchedulerPriority: DefaultSchedulerPriority,
		LogLevel:          "info",
		LogFormat:         "auto",
		Fade: FadeConfig{
			Enabled:        true,
			DurationMS:     250,
			DelayMS:        0,
			MinOpacity:     0,
			FadeOut:        true,
			ExcludeClasses: []string{},
		},
	}
}

// Save writes the configuration to the standard location.
//
// Note: this marshals the effective config and will not preserve comments or
// include structure from the original YAML.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo validates the configuration and writes it to path.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	if c.FrameRate == 0 || c.FrameRate > maxFrameRate {
		return &ValidationError{Path: "frame_rate", Err: fmt.Errorf("frame_rate must be between 1 and %d", maxFrameRate)}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}
	switch c.LogFormat {
	case "auto", "text", "json":
	default:
		return &ValidationError{Path: "log_format", Err: fmt.Errorf("log_format must be one of: auto, text, json")}
	}

	if c.Fade.DurationMS <= 0 {
		return &ValidationError{Path: "fade.duration_ms", Err: fmt.Errorf("duration_ms must be > 0")}
	}
	if c.Fade.DelayMS < 0 {
		return &ValidationError{Path: "fade.delay_ms", Err: fmt.Errorf("delay_ms must be >= 0")}
	}
	if c.Fade.MinOpacity < 0 || c.Fade.MinOpacity >= 1 {
		return &ValidationError{Path: "fade.min_opacity", Err: fmt.Errorf("min_opacity must be in [0, 1)")}
	}
	if frames := c.Fade.DurationMS * int(c.FrameRate) / 1000; frames < 1 {
		return &ValidationError{Path: "fade.duration_ms", Err: fmt.Errorf("duration_ms %d is shorter than one frame at %d fps", c.Fade.DurationMS, c.FrameRate)}
	}
	for _, class := range c.Fade.ExcludeClasses {
		if class == "" {
			return &ValidationError{Path: "fade.exclude_classes", Err: fmt.Errorf("exclude_classes contains an empty class name")}
		}
	}
	return nil
}

// ValidationError reports an invalid value and, when known, where it was set.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }
