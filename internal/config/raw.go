package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

// RawFadeConfig is the fade section as written in a file. Nil fields were
// not set.
type RawFadeConfig struct {
	Enabled        *bool    `yaml:"enabled"`
	DurationMS     *int     `yaml:"duration_ms"`
	DelayMS        *int     `yaml:"delay_ms"`
	MinOpacity     *float64 `yaml:"min_opacity"`
	FadeOut        *bool    `yaml:"fade_out"`
	ExcludeClasses []string `yaml:"exclude_classes"`
}

// RawConfig is one config file before defaults are applied.
type RawConfig struct {
	Include           IncludeList    `yaml:"include"`
	FrameRate         *uint          `yaml:"frame_rate"`
	SchedulerPriority *int           `yaml:"scheduler_priority"`
	LogLevel          *string        `yaml:"log_level"`
	LogFormat         *string        `yaml:"log_format"`
	Display           *string        `yaml:"display"`
	Fade              *RawFadeConfig `yaml:"fade"`
}

// merge returns c with every field set in overlay replacing its own.
func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	if overlay.FrameRate != nil {
		out.FrameRate = overlay.FrameRate
	}
	if overlay.SchedulerPriority != nil {
		out.SchedulerPriority = overlay.SchedulerPriority
	}
	if overlay.LogLevel != nil {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != nil {
		out.LogFormat = overlay.LogFormat
	}
	if overlay.Display != nil {
		out.Display = overlay.Display
	}
	if overlay.Fade != nil {
		base := RawFadeConfig{}
		if out.Fade != nil {
			base = *out.Fade
		}
		merged := mergeRawFade(base, *overlay.Fade)
		out.Fade = &merged
	}
	return out
}

func mergeRawFade(base RawFadeConfig, overlay RawFadeConfig) RawFadeConfig {
	out := base
	if overlay.Enabled != nil {
		out.Enabled = overlay.Enabled
	}
	if overlay.DurationMS != nil {
		out.DurationMS = overlay.DurationMS
	}
	if overlay.DelayMS != nil {
		out.DelayMS = overlay.DelayMS
	}
	if overlay.MinOpacity != nil {
		out.MinOpacity = overlay.MinOpacity
	}
	if overlay.FadeOut != nil {
		out.FadeOut = overlay.FadeOut
	}
	if overlay.ExcludeClasses != nil {
		out.ExcludeClasses = overlay.ExcludeClasses
	}
	return out
}
