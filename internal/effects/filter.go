package effects

import (
	"strings"

	"github.com/1broseidon/compfx/internal/platform"
)

// Describer looks up window metadata.
type Describer interface {
	Describe(windowID platform.WindowID) (platform.Window, error)
}

// Filter swallows map and unmap events for windows no effect should touch:
// override-redirect popups, non-normal window types and excluded classes.
// It must come first in a chain. Destroy events pass through so later
// effects can drop their state.
type Filter struct {
	windows Describer
	exclude map[string]struct{}
}

// NewFilter creates a filter that also skips windows whose class matches
// one of excludeClasses, compared case-insensitively.
func NewFilter(windows Describer, excludeClasses []string) *Filter {
	f := &Filter{windows: windows}
	f.SetExcludeClasses(excludeClasses)
	return f
}

// SetExcludeClasses replaces the excluded window classes.
func (f *Filter) SetExcludeClasses(classes []string) {
	exclude := make(map[string]struct{}, len(classes))
	for _, class := range classes {
		exclude[strings.ToLower(strings.TrimSpace(class))] = struct{}{}
	}
	f.exclude = exclude
}

// Name implements Effect.
func (f *Filter) Name() string { return "filter" }

// WindowMapped implements MapHandler.
func (f *Filter) WindowMapped(ev platform.WindowEvent) bool {
	return ev.OverrideRedirect || f.skip(ev.Window)
}

// WindowUnmapped implements UnmapHandler.
func (f *Filter) WindowUnmapped(ev platform.WindowEvent) bool {
	return f.skip(ev.Window)
}

func (f *Filter) skip(win platform.WindowID) bool {
	info, err := f.windows.Describe(win)
	if err != nil {
		return true
	}
	if !info.Normal {
		return true
	}
	_, excluded := f.exclude[strings.ToLower(info.AppID)]
	return excluded
}
