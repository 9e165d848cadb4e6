package effects

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/1broseidon/compfx/internal/platform"
	"github.com/1broseidon/compfx/internal/timeline"
)

// OpacitySetter applies a composited opacity to a window.
type OpacitySetter interface {
	SetOpacity(windowID platform.WindowID, opacity float64) error
}

// FadeConfig configures the fade effect.
type FadeConfig struct {
	Duration time.Duration
	// Delay postpones fade-ins; fade-outs always start immediately.
	Delay time.Duration
	// Rate defaults to timeline.DefaultRate.
	Rate       uint
	MinOpacity float64
	// FadeOut enables fading windows out on unmap.
	FadeOut bool
	Logger  *slog.Logger
}

// TimelineInfo describes a running effect timeline.
type TimelineInfo struct {
	Window      platform.WindowID `json:"window"`
	Effect      string            `json:"effect"`
	Direction   string            `json:"direction"`
	State       string            `json:"state"`
	Frame       int               `json:"frame"`
	TotalFrames int               `json:"total_frames"`
	Progress    float64           `json:"progress"`
}

// Fade fades mapped windows in and unmapped windows out by animating
// their opacity from MinOpacity to 1 over one timeline play-through.
//
// Every window gets its own timeline cloned from a template. A fade-in
// that is interrupted by an unmap turns around and plays backward from the
// frame it reached, and the other way round, so opacity never jumps.
type Fade struct {
	sched    timeline.Scheduler
	target   OpacitySetter
	template *timeline.Timeline
	min      float64
	fadeOut  bool
	logger   *slog.Logger

	windows map[platform.WindowID]*timeline.Timeline
}

var (
	_ MapHandler     = (*Fade)(nil)
	_ UnmapHandler   = (*Fade)(nil)
	_ DestroyHandler = (*Fade)(nil)
	_ Closer         = (*Fade)(nil)
	_ Inspector      = (*Fade)(nil)
	_ Pruner         = (*Fade)(nil)
)

// NewFade creates a fade effect whose timelines run on sched.
func NewFade(sched timeline.Scheduler, target OpacitySetter, cfg FadeConfig) (*Fade, error) {
	f := &Fade{
		sched:   sched,
		target:  target,
		windows: make(map[platform.WindowID]*timeline.Timeline),
	}
	if err := f.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return f, nil
}

// Reconfigure replaces the template used for windows that start fading
// from now on. Fades already running keep their settings.
func (f *Fade) Reconfigure(cfg FadeConfig) error {
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: fade duration %v", timeline.ErrInvalidDuration, cfg.Duration)
	}
	if cfg.MinOpacity < 0 || cfg.MinOpacity >= 1 {
		return fmt.Errorf("fade min opacity must be in [0, 1), got %v", cfg.MinOpacity)
	}
	rate := cfg.Rate
	if rate == 0 {
		rate = timeline.DefaultRate
	}
	frames := int(cfg.Duration.Milliseconds() * int64(rate) / 1000)
	if frames < 1 {
		frames = 1
	}

	template, err := timeline.New(f.sched, frames, rate)
	if err != nil {
		return fmt.Errorf("failed to create fade timeline: %w", err)
	}
	template.SetDelay(cfg.Delay)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f.template = template
	f.min = cfg.MinOpacity
	f.fadeOut = cfg.FadeOut
	f.logger = logger
	return nil
}

// Name implements Effect.
func (f *Fade) Name() string { return "fade" }

// WindowMapped starts a fade-in, or turns a running fade-out around.
func (f *Fade) WindowMapped(ev platform.WindowEvent) bool {
	if tl, ok := f.windows[ev.Window]; ok {
		if tl.Direction() == timeline.Backward {
			f.turn(ev.Window, tl, timeline.Forward)
		}
		return true
	}

	tl := f.template.Clone()
	f.setOpacity(ev.Window, f.min)
	return f.start(ev.Window, tl)
}

// WindowUnmapped starts a fade-out, or turns a running fade-in around.
func (f *Fade) WindowUnmapped(ev platform.WindowEvent) bool {
	tl, ok := f.windows[ev.Window]
	if !f.fadeOut {
		if ok {
			f.drop(ev.Window)
		}
		return ok
	}

	if ok {
		if tl.State() == timeline.Delayed {
			// never became visible
			f.drop(ev.Window)
			return true
		}
		if tl.Direction() == timeline.Forward {
			f.turn(ev.Window, tl, timeline.Backward)
		}
		return true
	}

	tl = f.template.Clone()
	tl.SetDelay(0)
	tl.SetDirection(timeline.Backward)
	return f.start(ev.Window, tl)
}

// WindowDestroyed drops any fade of the window.
func (f *Fade) WindowDestroyed(ev platform.WindowEvent) bool {
	if _, ok := f.windows[ev.Window]; !ok {
		return false
	}
	f.drop(ev.Window)
	return true
}

// Close stops every running fade.
func (f *Fade) Close() {
	for win := range f.windows {
		f.drop(win)
	}
}

// Prune drops fades of windows that no longer exist, for when a destroy
// notification was missed.
func (f *Fade) Prune(alive func(platform.WindowID) bool) int {
	n := 0
	for win := range f.windows {
		if !alive(win) {
			f.drop(win)
			n++
		}
	}
	return n
}

// Timelines describes the running fades, ordered by window.
func (f *Fade) Timelines() []TimelineInfo {
	out := make([]TimelineInfo, 0, len(f.windows))
	for win, tl := range f.windows {
		out = append(out, TimelineInfo{
			Window:      win,
			Effect:      f.Name(),
			Direction:   tl.Direction().String(),
			State:       tl.State().String(),
			Frame:       tl.CurrentFrame(),
			TotalFrames: tl.TotalFrames(),
			Progress:    tl.Progress(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window < out[j].Window })
	return out
}

func (f *Fade) start(win platform.WindowID, tl *timeline.Timeline) bool {
	lo := f.min
	tl.AddListener(func(ev timeline.Event) {
		switch ev.Kind {
		case timeline.EventNewFrame:
			frac := float64(ev.Frame) / float64(tl.TotalFrames())
			f.setOpacity(win, lo+(1-lo)*frac)
		case timeline.EventCompleted:
			if f.windows[win] == tl {
				f.drop(win)
			}
		}
	})

	f.windows[win] = tl
	if err := tl.Start(); err != nil {
		f.logger.Warn("failed to start fade", "window", win, "error", err)
		f.drop(win)
		return false
	}
	f.logger.Debug("fade started", "window", win, "direction", tl.Direction().String(), "frames", tl.TotalFrames())
	return true
}

// turn reverses a fade in place. Advance keeps the reached frame, which
// SetDirection would otherwise snap to the far end when it is 0.
func (f *Fade) turn(win platform.WindowID, tl *timeline.Timeline, dir timeline.Direction) {
	frame := tl.CurrentFrame()
	tl.SetDirection(dir)
	tl.Advance(frame)
	f.logger.Debug("fade reversed", "window", win, "direction", dir.String(), "frame", frame)
}

func (f *Fade) drop(win platform.WindowID) {
	tl, ok := f.windows[win]
	if !ok {
		return
	}
	delete(f.windows, win)
	tl.Dispose()
}

func (f *Fade) setOpacity(win platform.WindowID, opacity float64) {
	if err := f.target.SetOpacity(win, opacity); err != nil {
		// windows commonly vanish mid-fade
		f.logger.Debug("failed to set opacity", "window", win, "error", err)
	}
}
