package pipeline

import "github.com/leonard/oxidekeys/internal/mappings"

// KeyState is the discrete state a kernel key event carries. Auto-repeat
// (value 2) is filtered out before events reach the pipeline.
type KeyState int32

const (
	Release KeyState = 0
	Press   KeyState = 1
)

// InputEvent is an immutable (key, state) pair, already translated into
// logical key-code space by the time it reaches a Feature.
type InputEvent struct {
	Key   mappings.KeyCode
	State KeyState
}

// IsPress reports whether the event is a key press.
func (e InputEvent) IsPress() bool { return e.State == Press }

// IsRelease reports whether the event is a key release.
func (e InputEvent) IsRelease() bool { return e.State == Release }

// OutputDirective is one unit of synthetic output. The batched variants
// (PressMany/ReleaseMany) carry several keys, which the Sink writes in
// order.
type OutputDirective struct {
	kind directiveKind
	keys []mappings.KeyCode
}

type directiveKind int

const (
	directivePress directiveKind = iota
	directiveRelease
	directivePressMany
	directiveReleaseMany
)

func DirPress(key mappings.KeyCode) OutputDirective {
	return OutputDirective{kind: directivePress, keys: []mappings.KeyCode{key}}
}

func DirRelease(key mappings.KeyCode) OutputDirective {
	return OutputDirective{kind: directiveRelease, keys: []mappings.KeyCode{key}}
}

func DirPressMany(keys []mappings.KeyCode) OutputDirective {
	return OutputDirective{kind: directivePressMany, keys: keys}
}

func DirReleaseMany(keys []mappings.KeyCode) OutputDirective {
	return OutputDirective{kind: directiveReleaseMany, keys: keys}
}

// Keys returns the key codes this directive carries.
func (d OutputDirective) Keys() []mappings.KeyCode { return d.keys }

// IsPress reports whether this directive is a press-family directive
// (Press or PressMany).
func (d OutputDirective) IsPress() bool {
	return d.kind == directivePress || d.kind == directivePressMany
}

// VerdictKind discriminates the three shapes a Feature can return.
type VerdictKind int

const (
	VerdictContinue VerdictKind = iota
	VerdictEmit
	VerdictConsume
)

// Verdict is what a Feature decides to do with an event: pass it to the
// next feature unchanged, emit a concrete sequence of directives, or
// consume it silently.
type Verdict struct {
	Kind       VerdictKind
	Event      InputEvent        // valid when Kind == VerdictContinue
	Directives []OutputDirective // valid when Kind == VerdictEmit
}

func Continue(e InputEvent) Verdict { return Verdict{Kind: VerdictContinue, Event: e} }

func Emit(directives ...OutputDirective) Verdict {
	return Verdict{Kind: VerdictEmit, Directives: directives}
}

func Consume() Verdict { return Verdict{Kind: VerdictConsume} }
