package config

import "strings"

// BuildEffectiveConfig applies raw on top of DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()

	if raw.FrameRate != nil {
		cfg.FrameRate = *raw.FrameRate
	}
	if raw.SchedulerPriority != nil {
		cfg.SchedulerPriority = *raw.SchedulerPriority
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*raw.LogLevel))
	}
	if raw.LogFormat != nil {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(*raw.LogFormat))
	}
	if raw.Display != nil {
		cfg.Display = strings.TrimSpace(*raw.Display)
	}

	if f := raw.Fade; f != nil {
		if f.Enabled != nil {
			cfg.Fade.Enabled = *f.Enabled
		}
		if f.DurationMS != nil {
			cfg.Fade.DurationMS = *f.DurationMS
		}
		if f.DelayMS != nil {
			cfg.Fade.DelayMS = *f.DelayMS
		}
		if f.MinOpacity != nil {
			cfg.Fade.MinOpacity = *f.MinOpacity
		}
		if f.FadeOut != nil {
			cfg.Fade.FadeOut = *f.FadeOut
		}
		if f.ExcludeClasses != nil {
			classes := make([]string, 0, len(f.ExcludeClasses))
			for _, class := range f.ExcludeClasses {
				classes = append(classes, strings.TrimSpace(class))
			}
			cfg.Fade.ExcludeClasses = classes
		}
	}

	return cfg
}
