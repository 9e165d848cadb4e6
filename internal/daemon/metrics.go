package daemon

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/1broseidon/compfx/internal/timerpool"
)

const instrumentationName = "github.com/1broseidon/compfx/internal/daemon"

// metrics publishes scheduler counters through the global OTel meter
// (no-op unless a provider is installed).
type metrics struct {
	windowEvents metric.Int64Counter
	pruned       metric.Int64Counter
	poolEntries  metric.Int64ObservableGauge
	dispatches   metric.Int64ObservableCounter
	resyncs      metric.Int64ObservableCounter

	// Written on the loop goroutine, read by the meter callback.
	entries     atomic.Int64
	dispatchesN atomic.Int64
	resyncsN    atomic.Int64
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	mt := &metrics{}

	var err error
	mt.windowEvents, err = m.Int64Counter(
		"compfx.window.events",
		metric.WithDescription("Window events seen, by kind and handling effect"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating window events counter: %w", err)
	}

	mt.pruned, err = m.Int64Counter(
		"compfx.reconciler.pruned",
		metric.WithDescription("Effect states dropped for vanished windows"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pruned counter: %w", err)
	}

	mt.poolEntries, err = m.Int64ObservableGauge(
		"compfx.timerpool.entries",
		metric.WithDescription("Entries currently registered in the timer pool"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pool entries gauge: %w", err)
	}
	mt.dispatches, err = m.Int64ObservableCounter(
		"compfx.timerpool.dispatches",
		metric.WithDescription("Timer callbacks dispatched"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatches counter: %w", err)
	}
	mt.resyncs, err = m.Int64ObservableCounter(
		"compfx.timerpool.resyncs",
		metric.WithDescription("Interval resyncs after stalls or clock jumps"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resyncs counter: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mt.poolEntries, mt.entries.Load())
			o.ObserveInt64(mt.dispatches, mt.dispatchesN.Load())
			o.ObserveInt64(mt.resyncs, mt.resyncsN.Load())
			return nil
		},
		mt.poolEntries, mt.dispatches, mt.resyncs,
	)
	if err != nil {
		return nil, fmt.Errorf("registering pool callback: %w", err)
	}

	return mt, nil
}

func (m *metrics) windowEvent(kind, effect string) {
	if effect == "" {
		effect = "none"
	}
	m.windowEvents.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", kind),
		attribute.String("effect", effect),
	))
}

func (m *metrics) prunedWindows(n int) {
	if n > 0 {
		m.pruned.Add(context.Background(), int64(n))
	}
}

// observePool snapshots pool stats. Call it from the loop goroutine.
func (m *metrics) observePool(stats timerpool.Stats) {
	m.entries.Store(int64(stats.Entries))
	m.dispatchesN.Store(int64(stats.Dispatches))
	m.resyncsN.Store(int64(stats.Resyncs))
}
