package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/compfx/internal/config"
	"github.com/1broseidon/compfx/internal/effects"
	"github.com/1broseidon/compfx/internal/frameclock"
	"github.com/1broseidon/compfx/internal/platform"
)

type fakeBackend struct {
	mu      sync.Mutex
	windows map[platform.WindowID]platform.Window
	opacity map[platform.WindowID]float64
	watch   func(platform.WindowEvent)

	before chan struct{}
	after  chan struct{}
	quit   chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		windows: make(map[platform.WindowID]platform.Window),
		opacity: make(map[platform.WindowID]float64),
		before:  make(chan struct{}),
		after:   make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

func (b *fakeBackend) Describe(win platform.WindowID) (platform.Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.windows[win]
	if !ok {
		return platform.Window{}, errors.New("no such window")
	}
	return info, nil
}

func (b *fakeBackend) SetOpacity(win platform.WindowID, opacity float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opacity[win] = opacity
	return nil
}

func (b *fakeBackend) Watch(fn func(platform.WindowEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watch = fn
	return nil
}

func (b *fakeBackend) EventGate() (before, after, quit <-chan struct{}) {
	return b.before, b.after, b.quit
}

func (b *fakeBackend) CompositeVersion() string { return "0.4" }

func (b *fakeBackend) addWindow(win platform.WindowID, class string, normal bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows[win] = platform.Window{ID: win, AppID: class, Normal: normal}
}

func (b *fakeBackend) removeWindow(win platform.WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, win)
}

func (b *fakeBackend) opacityOf(win platform.WindowID) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.opacity[win]
	return o, ok
}

// send delivers ev the way the X event loop does: the main loop is parked
// between before and after.
func (b *fakeBackend) send(ev platform.WindowEvent) {
	b.before <- struct{}{}
	b.mu.Lock()
	fn := b.watch
	b.mu.Unlock()
	fn(ev)
	b.after <- struct{}{}
}

type testDaemon struct {
	*Daemon
	backend *fakeBackend
	clock   *frameclock.FakeClock
}

func startDaemon(t *testing.T, cfg *config.Config, configPath string) *testDaemon {
	t.Helper()
	backend := newFakeBackend()
	clock := frameclock.NewFakeClock()

	d, err := New(cfg, backend, Config{
		ConfigPath:        configPath,
		ReconcileInterval: time.Minute,
		Clock:             clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("daemon did not stop")
		}
	})

	return &testDaemon{Daemon: d, backend: backend, clock: clock}
}

func (td *testDaemon) timelines(t *testing.T) []effects.TimelineInfo {
	t.Helper()
	out, err := td.Timelines()
	if err != nil {
		t.Fatalf("Timelines: %v", err)
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func mapped(win platform.WindowID) platform.WindowEvent {
	return platform.WindowEvent{Kind: platform.WindowMapped, Window: win}
}

func TestNew_RejectsNilArguments(t *testing.T) {
	if _, err := New(nil, newFakeBackend(), Config{}); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := New(config.DefaultConfig(), nil, Config{}); err == nil {
		t.Fatalf("expected error for nil backend")
	}
}

func TestDaemon_StatusBeforeAnyWindow(t *testing.T) {
	td := startDaemon(t, config.DefaultConfig(), "")

	status, err := td.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.FrameRate != config.DefaultFrameRate || status.CompositeVersion != "0.4" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if strings.Join(status.Effects, ",") != "filter,fade" {
		t.Fatalf("unexpected effects: %v", status.Effects)
	}
	// only the reconciler is scheduled
	if status.Pool.Entries != 1 {
		t.Fatalf("expected 1 pool entry, got %+v", status.Pool)
	}
}

func TestDaemon_MappedWindowFadesIn(t *testing.T) {
	td := startDaemon(t, config.DefaultConfig(), "")
	td.backend.addWindow(1, "XTerm", true)

	td.backend.send(mapped(1))

	tls := td.timelines(t)
	if len(tls) != 1 || tls[0].Window != 1 || tls[0].Effect != "fade" {
		t.Fatalf("expected one fade for window 1, got %+v", tls)
	}
	if tls[0].State != "playing" || tls[0].Direction != "forward" {
		t.Fatalf("unexpected timeline: %+v", tls[0])
	}
	timers, err := td.Timers()
	if err != nil {
		t.Fatalf("Timers: %v", err)
	}
	if len(timers) != 2 {
		t.Fatalf("expected fade and reconciler timers, got %+v", timers)
	}

	// first tick moves one frame, the late second tick covers the rest
	td.clock.Advance(20 * time.Millisecond)
	eventually(t, "first frame", func() bool {
		tls := td.timelines(t)
		return len(tls) == 1 && tls[0].Frame >= 1
	})
	td.clock.Advance(time.Second)
	eventually(t, "fade to complete", func() bool {
		return len(td.timelines(t)) == 0
	})

	if o, ok := td.backend.opacityOf(1); !ok || o != 1 {
		t.Fatalf("expected final opacity 1, got %v (set=%v)", o, ok)
	}
}

func TestDaemon_FilteredWindowsDoNotFade(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fade.ExcludeClasses = []string{"rofi"}
	td := startDaemon(t, cfg, "")
	td.backend.addWindow(1, "Polybar", false)
	td.backend.addWindow(2, "Rofi", true)
	td.backend.addWindow(3, "XTerm", true)

	td.backend.send(mapped(1))
	td.backend.send(mapped(2))
	td.backend.send(platform.WindowEvent{Kind: platform.WindowMapped, Window: 3, OverrideRedirect: true})

	if tls := td.timelines(t); len(tls) != 0 {
		t.Fatalf("expected no fades, got %+v", tls)
	}
}

func TestDaemon_DestroyDropsFade(t *testing.T) {
	td := startDaemon(t, config.DefaultConfig(), "")
	td.backend.addWindow(5, "XTerm", true)
	td.backend.send(mapped(5))
	if len(td.timelines(t)) != 1 {
		t.Fatalf("expected a running fade")
	}

	td.backend.removeWindow(5)
	td.backend.send(platform.WindowEvent{Kind: platform.WindowDestroyed, Window: 5})

	if tls := td.timelines(t); len(tls) != 0 {
		t.Fatalf("expected fade to be dropped, got %+v", tls)
	}
}

func TestDaemon_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(data string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	td := startDaemon(t, config.DefaultConfig(), path)
	effectsNow := func() string {
		t.Helper()
		status, err := td.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		return strings.Join(status.Effects, ",")
	}

	write("fade:\n  enabled: false\n")
	if err := td.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := effectsNow(); got != "filter" {
		t.Fatalf("expected fade disabled, got %q", got)
	}

	write("frame_rate: 0\n")
	err := td.Reload()
	if err == nil || !strings.Contains(err.Error(), "frame_rate") {
		t.Fatalf("expected frame_rate validation error, got %v", err)
	}
	if got := effectsNow(); got != "filter" {
		t.Fatalf("expected previous config to stay, got %q", got)
	}

	write("frame_rate: 30\nfade:\n  duration_ms: 500\n")
	if err := td.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := effectsNow(); got != "filter,fade" {
		t.Fatalf("expected fade re-enabled, got %q", got)
	}

	td.backend.addWindow(1, "XTerm", true)
	td.backend.send(mapped(1))
	tls := td.timelines(t)
	if len(tls) != 1 || tls[0].TotalFrames != 15 {
		t.Fatalf("expected a 15 frame fade, got %+v", tls)
	}
}

func TestDaemon_RunStopsWhenEventLoopQuits(t *testing.T) {
	backend := newFakeBackend()
	d, err := New(config.DefaultConfig(), backend, Config{Clock: frameclock.NewFakeClock()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	backend.quit <- struct{}{}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after quit")
	}
}
