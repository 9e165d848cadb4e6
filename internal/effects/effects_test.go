package effects

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/1broseidon/compfx/internal/frameclock"
	"github.com/1broseidon/compfx/internal/platform"
	"github.com/1broseidon/compfx/internal/timeline"
	"github.com/1broseidon/compfx/internal/timerpool"
)

type opacityCall struct {
	win     platform.WindowID
	opacity float64
}

type fakeWindows struct {
	calls   []opacityCall
	windows map[platform.WindowID]platform.Window
}

func (w *fakeWindows) SetOpacity(win platform.WindowID, opacity float64) error {
	w.calls = append(w.calls, opacityCall{win: win, opacity: opacity})
	return nil
}

func (w *fakeWindows) Describe(win platform.WindowID) (platform.Window, error) {
	info, ok := w.windows[win]
	if !ok {
		return platform.Window{}, errors.New("no such window")
	}
	return info, nil
}

func (w *fakeWindows) opacities(win platform.WindowID) []float64 {
	var out []float64
	for _, c := range w.calls {
		if c.win == win {
			out = append(out, c.opacity)
		}
	}
	return out
}

type harness struct {
	pool  *timerpool.Pool
	clock *frameclock.FakeClock
	win   *fakeWindows
	fade  *Fade
}

// 100ms at 50Hz: five 20ms frames, opacity 0.2 -> 1.0 in steps of 0.16
func newHarness(t *testing.T, fadeOut bool) *harness {
	t.Helper()
	clock := frameclock.NewFakeClock()
	pool := timerpool.New(nil, timerpool.Config{Clock: clock})
	win := &fakeWindows{}
	fade, err := NewFade(pool, win, FadeConfig{
		Duration:   100 * time.Millisecond,
		Rate:       50,
		MinOpacity: 0.2,
		FadeOut:    fadeOut,
	})
	if err != nil {
		t.Fatalf("NewFade error: %v", err)
	}
	return &harness{pool: pool, clock: clock, win: win, fade: fade}
}

func (h *harness) step(n int) {
	for i := 0; i < n; i++ {
		h.clock.Advance(20 * time.Millisecond)
		if ready, _ := h.pool.Prepare(); ready || h.pool.Check() {
			h.pool.Dispatch()
		}
	}
}

func assertOpacities(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("opacities = %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("opacities = %v, want %v", got, want)
		}
	}
}

func mapped(win platform.WindowID) platform.WindowEvent {
	return platform.WindowEvent{Kind: platform.WindowMapped, Window: win}
}

func unmapped(win platform.WindowID) platform.WindowEvent {
	return platform.WindowEvent{Kind: platform.WindowUnmapped, Window: win}
}

func destroyed(win platform.WindowID) platform.WindowEvent {
	return platform.WindowEvent{Kind: platform.WindowDestroyed, Window: win}
}

func TestNewFade_RejectsInvalidConfig(t *testing.T) {
	pool := timerpool.New(nil, timerpool.Config{Clock: frameclock.NewFakeClock()})

	if _, err := NewFade(pool, &fakeWindows{}, FadeConfig{}); !errors.Is(err, timeline.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := NewFade(pool, &fakeWindows{}, FadeConfig{Duration: time.Second, MinOpacity: 1}); err == nil {
		t.Fatalf("expected error for min opacity 1")
	}
}

func TestFade_FadesInOnMap(t *testing.T) {
	h := newHarness(t, true)

	if !h.fade.WindowMapped(mapped(7)) {
		t.Fatalf("expected fade to consume map")
	}
	if got := h.fade.Timelines(); len(got) != 1 || got[0].Window != 7 || got[0].Direction != "forward" {
		t.Fatalf("Timelines() = %+v", got)
	}

	h.step(8)

	assertOpacities(t, h.win.opacities(7), []float64{0.2, 0.36, 0.52, 0.68, 0.84, 1.0})
	if len(h.fade.Timelines()) != 0 {
		t.Fatalf("expected finished fade to be dropped")
	}
	if h.pool.Len() != 0 {
		t.Fatalf("expected no pool entries, got %d", h.pool.Len())
	}
}

func TestFade_UnmapMidFadeInReverses(t *testing.T) {
	h := newHarness(t, true)
	h.fade.WindowMapped(mapped(7))
	h.step(2)

	if !h.fade.WindowUnmapped(unmapped(7)) {
		t.Fatalf("expected fade to consume unmap")
	}
	info := h.fade.Timelines()
	if len(info) != 1 || info[0].Direction != "backward" || info[0].Frame != 2 {
		t.Fatalf("expected reversed fade at frame 2, got %+v", info)
	}

	h.step(5)
	assertOpacities(t, h.win.opacities(7), []float64{0.2, 0.36, 0.52, 0.36, 0.2})
	if len(h.fade.Timelines()) != 0 || h.pool.Len() != 0 {
		t.Fatalf("expected fade-out to finish and unregister")
	}
}

func TestFade_RemapMidFadeOutReverses(t *testing.T) {
	h := newHarness(t, true)
	h.fade.WindowUnmapped(unmapped(3))
	h.step(2)
	h.fade.WindowMapped(mapped(3))
	h.step(5)

	assertOpacities(t, h.win.opacities(3), []float64{0.84, 0.68, 0.84, 1.0})
	if h.pool.Len() != 0 {
		t.Fatalf("expected no pool entries, got %d", h.pool.Len())
	}
}

func TestFade_FadesOutUnknownWindow(t *testing.T) {
	h := newHarness(t, true)
	if !h.fade.WindowUnmapped(unmapped(9)) {
		t.Fatalf("expected fade to consume unmap")
	}
	h.step(6)
	assertOpacities(t, h.win.opacities(9), []float64{0.84, 0.68, 0.52, 0.36, 0.2})
}

func TestFade_FadeOutDisabled(t *testing.T) {
	h := newHarness(t, false)
	if h.fade.WindowUnmapped(unmapped(9)) {
		t.Fatalf("expected unmap of an idle window to pass through")
	}

	h.fade.WindowMapped(mapped(4))
	h.step(1)
	if !h.fade.WindowUnmapped(unmapped(4)) {
		t.Fatalf("expected unmap to cancel the running fade-in")
	}
	if h.pool.Len() != 0 || len(h.fade.Timelines()) != 0 {
		t.Fatalf("expected fade-in to be dropped")
	}
	h.step(3)
	if len(h.win.opacities(9)) != 0 {
		t.Fatalf("expected no opacity changes for window 9")
	}
}

func TestFade_UnmapDuringDelayDrops(t *testing.T) {
	h := newHarness(t, true)
	if err := h.fade.Reconfigure(FadeConfig{
		Duration: 100 * time.Millisecond,
		Delay:    60 * time.Millisecond,
		Rate:     50,
		FadeOut:  true,
	}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}

	h.fade.WindowMapped(mapped(5))
	if got := h.fade.Timelines(); len(got) != 1 || got[0].State != "delayed" {
		t.Fatalf("expected delayed fade, got %+v", got)
	}
	h.fade.WindowUnmapped(unmapped(5))
	if h.pool.Len() != 0 || len(h.fade.Timelines()) != 0 {
		t.Fatalf("expected delayed fade to be dropped")
	}
}

func TestFade_DestroyDrops(t *testing.T) {
	h := newHarness(t, true)
	h.fade.WindowMapped(mapped(2))
	h.step(1)

	if !h.fade.WindowDestroyed(destroyed(2)) {
		t.Fatalf("expected destroy of a fading window to be consumed")
	}
	if h.fade.WindowDestroyed(destroyed(2)) {
		t.Fatalf("expected second destroy to pass through")
	}
	if h.pool.Len() != 0 {
		t.Fatalf("expected no pool entries, got %d", h.pool.Len())
	}
}

func TestFade_CloseStopsAll(t *testing.T) {
	h := newHarness(t, true)
	h.fade.WindowMapped(mapped(1))
	h.fade.WindowMapped(mapped(2))
	h.fade.WindowUnmapped(unmapped(3))
	if h.pool.Len() != 3 {
		t.Fatalf("expected 3 pool entries, got %d", h.pool.Len())
	}
	h.fade.Close()
	if h.pool.Len() != 0 || len(h.fade.Timelines()) != 0 {
		t.Fatalf("expected close to drop every fade")
	}
}

type recordingEffect struct {
	name    string
	consume bool
	seen    *[]string
}

func (e *recordingEffect) Name() string { return e.name }

func (e *recordingEffect) WindowMapped(platform.WindowEvent) bool {
	*e.seen = append(*e.seen, e.name)
	return e.consume
}

func TestChain_FirstConsumerWins(t *testing.T) {
	var seen []string
	chain := NewChain(nil,
		&recordingEffect{name: "a", seen: &seen},
		&recordingEffect{name: "b", consume: true, seen: &seen},
		&recordingEffect{name: "c", consume: true, seen: &seen},
	)

	if got := chain.Handle(mapped(1)); got != "b" {
		t.Fatalf("expected b to consume, got %q", got)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("walk order = %v", seen)
	}

	// none of the effects handles unmaps
	if got := chain.Handle(unmapped(1)); got != "" {
		t.Fatalf("expected unmap to go unhandled, got %q", got)
	}
}

func TestChain_FilterBeforeFade(t *testing.T) {
	h := newHarness(t, true)
	h.win.windows = map[platform.WindowID]platform.Window{
		1: {ID: 1, AppID: "XTerm", Normal: true},
		2: {ID: 2, AppID: "Polybar", Normal: false},
		3: {ID: 3, AppID: "Rofi", Normal: true},
	}
	chain := NewChain(nil, NewFilter(h.win, []string{"rofi"}), h.fade)

	tests := []struct {
		name string
		ev   platform.WindowEvent
		want string
	}{
		{name: "normal window fades", ev: mapped(1), want: "fade"},
		{name: "dock is filtered", ev: mapped(2), want: "filter"},
		{name: "excluded class is filtered", ev: mapped(3), want: "filter"},
		{name: "unknown window is filtered", ev: mapped(4), want: "filter"},
		{name: "override redirect is filtered", ev: platform.WindowEvent{Kind: platform.WindowMapped, Window: 1, OverrideRedirect: true}, want: "filter"},
		{name: "destroy reaches fade", ev: destroyed(1), want: "fade"},
		{name: "destroy of idle window is unhandled", ev: destroyed(2), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chain.Handle(tt.ev); got != tt.want {
				t.Fatalf("Handle(%+v) = %q, want %q", tt.ev, got, tt.want)
			}
		})
	}

	if len(chain.Timelines()) != 0 {
		t.Fatalf("expected no running timelines, got %+v", chain.Timelines())
	}
	chain.Close()
}

func TestFilter_SetExcludeClasses(t *testing.T) {
	win := &fakeWindows{windows: map[platform.WindowID]platform.Window{
		1: {ID: 1, AppID: "Dunst", Normal: true},
	}}
	f := NewFilter(win, nil)
	if f.WindowMapped(mapped(1)) {
		t.Fatalf("expected window to pass before exclusion")
	}
	f.SetExcludeClasses([]string{" DUNST "})
	if !f.WindowMapped(mapped(1)) || !f.WindowUnmapped(unmapped(1)) {
		t.Fatalf("expected excluded class to be filtered")
	}
}

func TestChain_PruneDropsDeadWindows(t *testing.T) {
	h := newHarness(t, true)
	chain := NewChain(nil, NewFilter(h.win, nil), h.fade)
	h.fade.WindowMapped(mapped(1))
	h.fade.WindowMapped(mapped(2))
	h.step(1)

	n := chain.Prune(func(win platform.WindowID) bool { return win == 1 })
	if n != 1 {
		t.Fatalf("expected 1 pruned fade, got %d", n)
	}
	infos := chain.Timelines()
	if len(infos) != 1 || infos[0].Window != 1 {
		t.Fatalf("expected only window 1 left, got %+v", infos)
	}
	if h.pool.Len() != 1 {
		t.Fatalf("expected pruned timeline to leave the pool, got %d entries", h.pool.Len())
	}
}
