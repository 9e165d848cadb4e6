// Package effects drives per-window visual effects from timelines.
//
// Effects are walked in order for every window event. An effect takes part
// in an event by implementing the matching handler interface; the first
// handler that reports the event as consumed ends the walk.
package effects

import (
	"log/slog"

	"github.com/1broseidon/compfx/internal/platform"
)

// Effect is anything that can sit in a Chain.
type Effect interface {
	Name() string
}

// MapHandler reacts to a window being mapped.
type MapHandler interface {
	WindowMapped(ev platform.WindowEvent) bool
}

// UnmapHandler reacts to a window being unmapped.
type UnmapHandler interface {
	WindowUnmapped(ev platform.WindowEvent) bool
}

// DestroyHandler reacts to a window being destroyed.
type DestroyHandler interface {
	WindowDestroyed(ev platform.WindowEvent) bool
}

// Closer is implemented by effects that hold resources.
type Closer interface {
	Close()
}

// Inspector is implemented by effects that run timelines.
type Inspector interface {
	Timelines() []TimelineInfo
}

// Pruner is implemented by effects that keep per-window state.
type Pruner interface {
	// Prune drops state of windows for which alive reports false and
	// returns how many were dropped.
	Prune(alive func(platform.WindowID) bool) int
}

// Chain is an ordered list of effects. It is not safe for concurrent use.
type Chain struct {
	effects []Effect
	logger  *slog.Logger
}

// NewChain creates a chain walking effects in the given order.
func NewChain(logger *slog.Logger, effects ...Effect) *Chain {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Chain{effects: effects, logger: logger}
}

// Append adds an effect to the end of the chain.
func (c *Chain) Append(e Effect) {
	c.effects = append(c.effects, e)
}

// Effects returns the effects in walk order.
func (c *Chain) Effects() []Effect {
	return append([]Effect(nil), c.effects...)
}

// Handle walks the chain for ev and returns the name of the effect that
// consumed it, or "" if none did.
func (c *Chain) Handle(ev platform.WindowEvent) string {
	for _, e := range c.effects {
		var consumed bool
		switch ev.Kind {
		case platform.WindowMapped:
			if h, ok := e.(MapHandler); ok {
				consumed = h.WindowMapped(ev)
			}
		case platform.WindowUnmapped:
			if h, ok := e.(UnmapHandler); ok {
				consumed = h.WindowUnmapped(ev)
			}
		case platform.WindowDestroyed:
			if h, ok := e.(DestroyHandler); ok {
				consumed = h.WindowDestroyed(ev)
			}
		}
		if consumed {
			c.logger.Debug("window event handled", "event", ev.Kind.String(), "window", ev.Window, "effect", e.Name())
			return e.Name()
		}
	}
	return ""
}

// Timelines collects the running timelines of every effect.
func (c *Chain) Timelines() []TimelineInfo {
	var out []TimelineInfo
	for _, e := range c.effects {
		if in, ok := e.(Inspector); ok {
			out = append(out, in.Timelines()...)
		}
	}
	return out
}

// Prune prunes every effect that keeps per-window state.
func (c *Chain) Prune(alive func(platform.WindowID) bool) int {
	n := 0
	for _, e := range c.effects {
		if p, ok := e.(Pruner); ok {
			n += p.Prune(alive)
		}
	}
	return n
}

// Close releases every effect that holds resources.
func (c *Chain) Close() {
	for _, e := range c.effects {
		if cl, ok := e.(Closer); ok {
			cl.Close()
		}
	}
}
