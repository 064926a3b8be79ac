package pipeline

import "github.com/leonard/oxidekeys/internal/mappings"

// Feature is the single capability abstraction every transformation stage
// implements. The Pipeline owns an ordered list of Features; no Feature
// calls another directly. All coupling runs through Context and the
// Verdict a Feature returns.
type Feature interface {
	// Name identifies the feature for diagnostics.
	Name() string

	// OnEvent processes one logical input event and decides what happens
	// to it.
	OnEvent(event InputEvent, ctx *Context) (Verdict, error)

	// OnTimer handles a timer message for key, previously scheduled by
	// this feature. Returns directives to emit, or nil for a no-op.
	// Features with no timer behavior embed NoTimer for a default no-op.
	OnTimer(key mappings.KeyCode, ctx *Context) ([]OutputDirective, error)
}

// NoTimer can be embedded by features with no timer behavior.
type NoTimer struct{}

func (NoTimer) OnTimer(mappings.KeyCode, *Context) ([]OutputDirective, error) { return nil, nil }
