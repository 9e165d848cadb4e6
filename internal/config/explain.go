package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths:
//
//	frame_rate
//	scheduler_priority
//	log_level
//	log_format
//	display
//	fade
//	fade.<key>
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	parts := strings.Split(path, ".")
	if parts[0] == "fade" {
		if len(parts) == 1 {
			return cfg.Fade, nil
		}
		if len(parts) != 2 {
			return nil, fmt.Errorf("unknown path: %s", path)
		}
		switch parts[1] {
		case "enabled":
			return cfg.Fade.Enabled, nil
		case "duration_ms":
			return cfg.Fade.DurationMS, nil
		case "delay_ms":
			return cfg.Fade.DelayMS, nil
		case "min_opacity":
			return cfg.Fade.MinOpacity, nil
		case "fade_out":
			return cfg.Fade.FadeOut, nil
		case "exclude_classes":
			return cfg.Fade.ExcludeClasses, nil
		}
		return nil, fmt.Errorf("unknown path: %s", path)
	}

	if len(parts) != 1 {
		return nil, fmt.Errorf("unknown path: %s", path)
	}
	switch parts[0] {
	case "frame_rate":
		return cfg.FrameRate, nil
	case "scheduler_priority":
		return cfg.SchedulerPriority, nil
	case "log_level":
		return cfg.LogLevel, nil
	case "log_format":
		return cfg.LogFormat, nil
	case "display":
		return cfg.Display, nil
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}
