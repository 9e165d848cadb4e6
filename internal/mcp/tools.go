package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/compfx/internal/effects"
	"github.com/1broseidon/compfx/internal/platform"
)

func (s *Server) handleSchedulerStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ SchedulerStatusInput) (*mcpsdk.CallToolResult, SchedulerStatusOutput, error) {
	status, err := s.client.GetStatus()
	if err != nil {
		return nil, SchedulerStatusOutput{}, fmt.Errorf("failed to get daemon status: %w", err)
	}

	effectNames := status.Effects
	if effectNames == nil {
		effectNames = []string{}
	}
	return nil, SchedulerStatusOutput{
		UptimeSeconds:    status.UptimeSeconds,
		FrameRate:        status.FrameRate,
		CompositeVersion: status.CompositeVersion,
		Effects:          effectNames,
		Timers:           status.Pool.Entries,
		ReadyTimers:      status.Pool.Ready,
		Dispatches:       status.Pool.Dispatches,
		Resyncs:          status.Pool.Resyncs,
	}, nil
}

func (s *Server) handleListTimelines(_ context.Context, _ *mcpsdk.CallToolRequest, args ListTimelinesInput) (*mcpsdk.CallToolResult, ListTimelinesOutput, error) {
	timelines, err := s.client.ListTimelines()
	if err != nil {
		return nil, ListTimelinesOutput{}, fmt.Errorf("failed to list timelines: %w", err)
	}

	out := make([]effects.TimelineInfo, 0, len(timelines))
	for _, tl := range timelines {
		if args.Window != nil && tl.Window != platform.WindowID(*args.Window) {
			continue
		}
		if args.Effect != "" && tl.Effect != args.Effect {
			continue
		}
		out = append(out, tl)
	}
	return nil, ListTimelinesOutput{Timelines: out}, nil
}

func (s *Server) handleListTimers(_ context.Context, _ *mcpsdk.CallToolRequest, args ListTimersInput) (*mcpsdk.CallToolResult, ListTimersOutput, error) {
	entries, err := s.client.ListTimers()
	if err != nil {
		return nil, ListTimersOutput{}, fmt.Errorf("failed to list timers: %w", err)
	}

	timers := make([]TimerInfo, 0, len(entries))
	for _, e := range entries {
		if args.ReadyOnly && !e.Ready {
			continue
		}
		timers = append(timers, TimerInfo{
			ID:       e.ID,
			PeriodMS: e.Period.Milliseconds(),
			Frames:   e.Frames,
			Master:   e.Master,
			Ready:    e.Ready,
		})
	}
	return nil, ListTimersOutput{Timers: timers}, nil
}

func (s *Server) handleReloadConfig(_ context.Context, _ *mcpsdk.CallToolRequest, _ ReloadConfigInput) (*mcpsdk.CallToolResult, ReloadConfigOutput, error) {
	if err := s.client.Reload(); err != nil {
		return nil, ReloadConfigOutput{}, fmt.Errorf("failed to reload config: %w", err)
	}
	s.logger.Info("config reload requested over mcp")
	return nil, ReloadConfigOutput{Reloaded: true}, nil
}
