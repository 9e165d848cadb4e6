package mcp

import (
	"github.com/1broseidon/compfx/internal/effects"
	"github.com/1broseidon/compfx/internal/timerpool"
)

// SchedulerStatusInput is the input for the scheduler_status tool.
type SchedulerStatusInput struct{}

// SchedulerStatusOutput is the output for the scheduler_status tool.
type SchedulerStatusOutput struct {
	UptimeSeconds    int64    `json:"uptime_seconds"`
	FrameRate        uint     `json:"frame_rate"`
	CompositeVersion string   `json:"composite_version,omitempty"`
	Effects          []string `json:"effects"`
	Timers           int      `json:"timers"`
	ReadyTimers      int      `json:"ready_timers"`
	Dispatches       uint64   `json:"dispatches"`
	Resyncs          uint64   `json:"resyncs"`
}

// ListTimelinesInput is the input for the list_timelines tool.
type ListTimelinesInput struct {
	Window *uint32 `json:"window,omitempty" jsonschema:"Only report timelines of this X window ID"`
	Effect string  `json:"effect,omitempty" jsonschema:"Only report timelines of this effect (e.g. fade)"`
}

// ListTimelinesOutput is the output for the list_timelines tool.
type ListTimelinesOutput struct {
	Timelines []effects.TimelineInfo `json:"timelines"`
}

// ListTimersInput is the input for the list_timers tool.
type ListTimersInput struct {
	ReadyOnly bool `json:"ready_only,omitempty" jsonschema:"When true, only report timers that are due"`
}

// TimerInfo describes one timer pool entry.
type TimerInfo struct {
	ID       timerpool.ID `json:"id"`
	PeriodMS int64        `json:"period_ms"`
	Frames   int64        `json:"frames"`
	Master   bool         `json:"master"`
	Ready    bool         `json:"ready"`
}

// ListTimersOutput is the output for the list_timers tool.
type ListTimersOutput struct {
	Timers []TimerInfo `json:"timers"`
}

// ReloadConfigInput is the input for the reload_config tool.
type ReloadConfigInput struct{}

// ReloadConfigOutput is the output for the reload_config tool.
type ReloadConfigOutput struct {
	Reloaded bool `json:"reloaded"`
}
