// Package logging wires a *slog.Logger through the engine's components
// without any package reaching for a global logger.
//
//   - Every constructor accepts an optional *slog.Logger; nil falls back
//     to a discard logger via Default.
//   - Scoping (component name, archive path, etc) happens once, at
//     construction time, via logger.With(...).
//   - Output format, level, and destination are main()'s job alone; a
//     component never calls slog.SetDefault.
//   - Nothing logs inside the chunking or entry-reader hot loops; the
//     one log call in the engine is the lock refresher's warning when
//     it cannot read the lock state.
package logging

import (
	"context"
	"log/slog"
	"maps"
	"sync/atomic"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

// Discard returns a logger that drops everything written to it.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger unchanged if non-nil, else a discard logger.
// The standard shape for an optional constructor parameter:
//
//	func New(cfg Config) (*Repository, error) {
//	    logger := logging.Default(cfg.Logger).With("component", "repository")
//	    ...
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// ComponentFilterHandler wraps a slog.Handler and applies a per-component
// minimum level on top of it, keyed by the record's "component" attribute.
// Components without an override fall back to defaultLevel. This lets a
// CLI flag like "--log-level chunk=debug" turn up one subsystem's
// verbosity without touching the rest.
//
// levelSnapshot is an atomic pointer to the override map, swapped
// copy-on-write on every SetLevel/ClearLevel so Handle never blocks on a
// mutex in the hot path.
type ComponentFilterHandler struct {
	next         slog.Handler
	defaultLevel slog.Level

	// preAttrs are attributes attached via WithAttrs before any group was
	// opened; Handle inspects these for "component" before the record's
	// own attrs, since With("component", ...) is the common call shape.
	preAttrs []slog.Attr

	levelSnapshot *atomic.Pointer[map[string]slog.Level]
}

// NewComponentFilterHandler builds a handler that forwards to next only
// the records that clear their component's configured level (or
// defaultLevel, absent an override).
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	snapshot := &atomic.Pointer[map[string]slog.Level]{}
	empty := make(map[string]slog.Level)
	snapshot.Store(&empty)

	return &ComponentFilterHandler{
		next:          next,
		defaultLevel:  defaultLevel,
		levelSnapshot: snapshot,
	}
}

// Enabled always reports true: the component override isn't known until
// Handle inspects the record's attributes.
func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	levels := *h.levelSnapshot.Load()

	component := h.componentOf(r)
	minLevel := h.defaultLevel
	if component != "" {
		if lvl, ok := levels[component]; ok {
			minLevel = lvl
		}
	}

	if r.Level < minLevel {
		return nil
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// componentOf returns the record's "component" attribute, checking
// preAttrs first since that's where a scoped logger's With() call lands.
func (h *ComponentFilterHandler) componentOf(r slog.Record) string {
	for _, attr := range h.preAttrs {
		if attr.Key == "component" {
			if s, ok := attr.Value.Resolve().Any().(string); ok {
				return s
			}
		}
	}

	var component string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			if s, ok := a.Value.Resolve().Any().(string); ok {
				component = s
				return false
			}
		}
		return true
	})
	return component
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	merged := make([]slog.Attr, len(h.preAttrs), len(h.preAttrs)+len(attrs))
	copy(merged, h.preAttrs)
	merged = append(merged, attrs...)

	return &ComponentFilterHandler{
		next:          h.next.WithAttrs(attrs),
		defaultLevel:  h.defaultLevel,
		preAttrs:      merged,
		levelSnapshot: h.levelSnapshot,
	}
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ComponentFilterHandler{
		next:          h.next.WithGroup(name),
		defaultLevel:  h.defaultLevel,
		preAttrs:      h.preAttrs,
		levelSnapshot: h.levelSnapshot,
	}
}

// SetLevel overrides the minimum level for component. Safe to call while
// other goroutines are logging through the same handler.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	old := *h.levelSnapshot.Load()
	updated := make(map[string]slog.Level, len(old)+1)
	maps.Copy(updated, old)
	updated[component] = level
	h.levelSnapshot.Store(&updated)
}

// ClearLevel removes component's override, reverting it to defaultLevel.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	old := *h.levelSnapshot.Load()
	if _, ok := old[component]; !ok {
		return
	}

	updated := make(map[string]slog.Level, len(old))
	for k, v := range old {
		if k != component {
			updated[k] = v
		}
	}
	h.levelSnapshot.Store(&updated)
}

// Level reports component's effective minimum level: its override, or
// defaultLevel absent one.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	levels := *h.levelSnapshot.Load()
	if lvl, ok := levels[component]; ok {
		return lvl
	}
	return h.defaultLevel
}

// DefaultLevel reports the level applied to components with no override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	return h.defaultLevel
}
