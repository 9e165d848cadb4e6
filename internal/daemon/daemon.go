// Package daemon wires the compositor effects stack together: one main
// loop, one timer pool attached to it, the effect chain fed by X window
// events, and the queries the IPC server answers.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/compfx/internal/config"
	"github.com/1broseidon/compfx/internal/effects"
	"github.com/1broseidon/compfx/internal/frameclock"
	"github.com/1broseidon/compfx/internal/ipc"
	"github.com/1broseidon/compfx/internal/mainloop"
	"github.com/1broseidon/compfx/internal/platform"
	"github.com/1broseidon/compfx/internal/timerpool"
)

// callTimeout bounds how long an IPC query waits for the main loop.
const callTimeout = 2 * time.Second

// Backend is the window system the daemon drives.
type Backend interface {
	platform.Backend
	EventGate() (before, after, quit <-chan struct{})
	CompositeVersion() string
}

// Config holds configuration for the daemon.
type Config struct {
	// ConfigPath is re-read on Reload.
	ConfigPath string
	// ReconcileInterval defaults to 10s.
	ReconcileInterval time.Duration
	// Clock defaults to the system clock.
	Clock  frameclock.Clock
	Logger *slog.Logger
}

// Daemon owns the main loop and everything scheduled on it. Apart from
// the ipc.StateProvider methods, it must only be touched from the loop
// goroutine.
type Daemon struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	backend    Backend

	loop       *mainloop.Loop
	pool       *timerpool.Pool
	filter     *effects.Filter
	fade       *effects.Fade
	chain      *effects.Chain
	reconciler *Reconciler
	metrics    *metrics
}

var _ ipc.StateProvider = (*Daemon)(nil)

// New builds a daemon for the effective configuration cfg.
func New(cfg *config.Config, backend Backend, opts Config) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon: config is nil")
	}
	if backend == nil {
		return nil, errors.New("daemon: backend is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Daemon{
		configPath: opts.ConfigPath,
		logger:     logger,
		backend:    backend,
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	d.metrics = m
	d.loop = mainloop.New(mainloop.Config{Logger: logger.With("component", "mainloop")})
	d.pool = timerpool.New(d.loop, timerpool.Config{
		Priority: cfg.SchedulerPriority,
		Clock:    opts.Clock,
		Logger:   logger.With("component", "timerpool"),
	})
	d.filter = effects.NewFilter(backend, cfg.Fade.ExcludeClasses)
	if err := d.apply(cfg); err != nil {
		return nil, err
	}

	d.reconciler = NewReconciler(ReconcilerConfig{
		Interval: opts.ReconcileInterval,
		Logger:   logger.With("component", "reconciler"),
	}, d.pool, d, d.windowAlive)

	return d, nil
}

// Loop returns the daemon's main loop.
func (d *Daemon) Loop() *mainloop.Loop { return d.loop }

// Run watches window events and runs the main loop until ctx is cancelled
// or the X event loop quits.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.backend.Watch(d.handleWindowEvent); err != nil {
		return fmt.Errorf("failed to watch windows: %w", err)
	}
	before, after, quit := d.backend.EventGate()
	d.loop.SetEventGate(before, after, quit)

	if err := d.reconciler.Start(); err != nil {
		return err
	}
	defer d.reconciler.Stop()
	defer func() { d.chain.Close() }()

	d.logger.Info("daemon started",
		"frame_rate", d.cfg.FrameRate,
		"composite", d.backend.CompositeVersion(),
		"effects", d.effectNames())
	return d.loop.Run(ctx)
}

// handleWindowEvent runs on the X event goroutine while the main loop is
// parked by the event gate.
func (d *Daemon) handleWindowEvent(ev platform.WindowEvent) {
	effect := d.chain.Handle(ev)
	if effect == "" {
		d.logger.Debug("window event ignored", "event", ev.Kind.String(), "window", ev.Window)
	}
	d.metrics.windowEvent(ev.Kind.String(), effect)
	d.metrics.observePool(d.pool.Stats())
}

// Prune implements effects.Pruner for the reconciler.
func (d *Daemon) Prune(alive func(platform.WindowID) bool) int {
	n := d.chain.Prune(alive)
	d.metrics.prunedWindows(n)
	d.metrics.observePool(d.pool.Stats())
	return n
}

func (d *Daemon) windowAlive(win platform.WindowID) bool {
	_, err := d.backend.Describe(win)
	return err == nil
}

// apply installs cfg. On error the previous configuration stays in place.
func (d *Daemon) apply(cfg *config.Config) error {
	fadeCfg := effects.FadeConfig{
		Duration:   cfg.Fade.Duration(),
		Delay:      cfg.Fade.Delay(),
		Rate:       cfg.FrameRate,
		MinOpacity: cfg.Fade.MinOpacity,
		FadeOut:    cfg.Fade.FadeOut,
		Logger:     d.logger.With("component", "fade"),
	}

	switch {
	case cfg.Fade.Enabled && d.fade == nil:
		fade, err := effects.NewFade(d.pool, d.backend, fadeCfg)
		if err != nil {
			return fmt.Errorf("failed to create fade effect: %w", err)
		}
		d.fade = fade
	case cfg.Fade.Enabled:
		if err := d.fade.Reconfigure(fadeCfg); err != nil {
			return fmt.Errorf("failed to reconfigure fade effect: %w", err)
		}
	case d.fade != nil:
		d.fade.Close()
		d.fade = nil
	}

	if d.cfg != nil && d.cfg.SchedulerPriority != cfg.SchedulerPriority {
		d.logger.Warn("scheduler_priority changes take effect after a restart",
			"current", d.cfg.SchedulerPriority, "configured", cfg.SchedulerPriority)
	}
	d.filter.SetExcludeClasses(cfg.Fade.ExcludeClasses)

	d.chain = effects.NewChain(d.logger.With("component", "effects"), d.filter)
	if d.fade != nil {
		d.chain.Append(d.fade)
	}
	d.cfg = cfg
	return nil
}

func (d *Daemon) effectNames() []string {
	var names []string
	for _, e := range d.chain.Effects() {
		names = append(names, e.Name())
	}
	return names
}

// Status implements ipc.StateProvider.
func (d *Daemon) Status() (ipc.StatusData, error) {
	return onLoop(d, func() ipc.StatusData {
		stats := d.pool.Stats()
		d.metrics.observePool(stats)
		return ipc.StatusData{
			FrameRate:        d.cfg.FrameRate,
			CompositeVersion: d.backend.CompositeVersion(),
			Effects:          d.effectNames(),
			Pool:             stats,
		}
	})
}

// Timelines implements ipc.StateProvider.
func (d *Daemon) Timelines() ([]effects.TimelineInfo, error) {
	return onLoop(d, func() []effects.TimelineInfo { return d.chain.Timelines() })
}

// Timers implements ipc.StateProvider.
func (d *Daemon) Timers() ([]timerpool.EntryInfo, error) {
	return onLoop(d, d.pool.Entries)
}

// Reload implements ipc.StateProvider. The config file is read and
// validated off the loop; only applying it runs on the loop.
func (d *Daemon) Reload() error {
	res, err := config.LoadFromPath(d.configPath)
	if err != nil {
		return err
	}
	applyErr, err := onLoop(d, func() error { return d.apply(res.Config) })
	if err != nil {
		return err
	}
	if applyErr == nil {
		d.logger.Info("config applied", "files", res.Files)
	}
	return applyErr
}

// onLoop runs fn on the main loop and returns its result.
func onLoop[T any](d *Daemon, fn func() T) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	out := make(chan T, 1)
	if err := d.loop.Call(ctx, func() { out <- fn() }); err != nil {
		var zero T
		return zero, fmt.Errorf("main loop did not respond: %w", err)
	}
	return <-out, nil
}
