package daemon

import (
	"log/slog"
	"time"

	"github.com/1broseidon/compfx/internal/effects"
	"github.com/1broseidon/compfx/internal/platform"
	"github.com/1broseidon/compfx/internal/timerpool"
)

// WindowChecker reports whether a window still exists.
type WindowChecker func(platform.WindowID) bool

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically drops effect state of windows that disappeared
// without a destroy notification reaching the daemon. It runs as a timeout
// in the timer pool, so passes happen on the main loop.
type Reconciler struct {
	interval time.Duration
	pool     *timerpool.Pool
	target   effects.Pruner
	alive    WindowChecker
	logger   *slog.Logger
	id       timerpool.ID
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, pool *timerpool.Pool, target effects.Pruner, alive WindowChecker) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Reconciler{
		interval: interval,
		pool:     pool,
		target:   target,
		alive:    alive,
		logger:   logger,
	}
}

// Start schedules reconciliation passes. Calling Start twice is a no-op.
func (r *Reconciler) Start() error {
	if r.id != 0 {
		return nil
	}
	id, err := r.pool.AddTimeout(r.interval, func(any) bool {
		r.reconcile()
		return true
	}, nil, nil)
	if err != nil {
		return err
	}
	r.id = id
	r.logger.Info("reconciler started", "interval", r.interval)
	return nil
}

// Stop cancels future passes.
func (r *Reconciler) Stop() {
	if r.id == 0 {
		return
	}
	r.pool.Remove(r.id)
	r.id = 0
	r.logger.Info("reconciler stopped")
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile() {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	if n := r.target.Prune(r.alive); n > 0 {
		r.logger.Info("reconciler: dropped effects of vanished windows", "count", n)
	}
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow() {
	r.reconcile()
}
