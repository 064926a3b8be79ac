// Package pipeline implements the ordered per-keyboard event-processing
// chain: the event vocabulary, the shared per-device context, and the
// Pipeline that threads events through a list of Features and dispatches
// the result to an output sink.
package pipeline

import (
	"fmt"

	"github.com/leonard/oxidekeys/internal/mappings"
)

// Sink is the synthetic-device writer the Pipeline dispatches to. A single
// Emit call carries the directives of one pipeline step, whose keys are
// written in order; how the writes are synchronized is up to the Sink.
type Sink interface {
	Emit(directives []OutputDirective) error
}

// Pipeline owns an ordered list of Features and a Layout for physical<->
// logical key code translation.
type Pipeline struct {
	features []Feature
	layout   mappings.Layout
	sink     Sink
}

// New builds a Pipeline with the given feature order (Overlaps, Layers,
// Terms by default) and layout translation.
func New(features []Feature, layout mappings.Layout, sink Sink) *Pipeline {
	return &Pipeline{features: features, layout: layout, sink: sink}
}

// ProcessEvent runs one raw (physical) key event through the feature chain
// and dispatches the resulting verdict.
func (p *Pipeline) ProcessEvent(ctx *Context, physicalKey mappings.KeyCode, state KeyState) error {
	logicalKey := p.layout.ToLogical(physicalKey)
	event := InputEvent{Key: logicalKey, State: state}

	verdict := Continue(event)
	for _, f := range p.features {
		if verdict.Kind != VerdictContinue {
			break
		}
		next, err := f.OnEvent(verdict.Event, ctx)
		if err != nil {
			return fmt.Errorf("feature %s: %w", f.Name(), err)
		}
		verdict = next
	}

	return p.dispatch(ctx, verdict)
}

// ProcessTimer delivers a timer message for a logical key to each feature
// in order, stopping at (and emitting) the first non-nil result.
func (p *Pipeline) ProcessTimer(ctx *Context, logicalKey mappings.KeyCode) error {
	for _, f := range p.features {
		directives, err := f.OnTimer(logicalKey, ctx)
		if err != nil {
			return fmt.Errorf("feature %s (timer): %w", f.Name(), err)
		}
		if directives != nil {
			return p.emitTranslatedCtx(ctx, directives)
		}
	}
	return nil
}

// Shutdown releases every key the Pipeline has actually pressed on the
// synthetic device and not yet released, regardless of the no-emit
// setting: a worker must never leave a key wedged down when it stops.
func (p *Pipeline) Shutdown(ctx *Context) error {
	if len(ctx.syntheticDown) == 0 {
		return nil
	}
	physical := make([]mappings.KeyCode, 0, len(ctx.syntheticDown))
	for key := range ctx.syntheticDown {
		physical = append(physical, key)
	}
	return p.sink.Emit([]OutputDirective{DirReleaseMany(physical)})
}

func (p *Pipeline) dispatch(ctx *Context, v Verdict) error {
	switch v.Kind {
	case VerdictContinue:
		physical := p.layout.ToPhysical(v.Event.Key)
		var d OutputDirective
		if v.Event.IsPress() {
			d = DirPress(physical)
		} else {
			d = DirRelease(physical)
		}
		return p.emit(ctx, []OutputDirective{d})
	case VerdictEmit:
		return p.emitTranslatedCtx(ctx, v.Directives)
	case VerdictConsume:
		return nil
	default:
		return fmt.Errorf("unknown verdict kind %d", v.Kind)
	}
}

func (p *Pipeline) emit(ctx *Context, directives []OutputDirective) error {
	if ctx.NoEmit {
		return nil
	}
	trackSyntheticState(ctx, directives)
	return p.sink.Emit(directives)
}

// trackSyntheticState updates ctx.syntheticDown from directives actually
// about to be written to the synthetic device, so Shutdown knows what is
// really held regardless of which key or feature put it there.
func trackSyntheticState(ctx *Context, directives []OutputDirective) {
	for _, d := range directives {
		for _, key := range d.Keys() {
			if d.IsPress() {
				ctx.syntheticDown[key] = struct{}{}
			} else {
				delete(ctx.syntheticDown, key)
			}
		}
	}
}

func (p *Pipeline) emitTranslatedCtx(ctx *Context, directives []OutputDirective) error {
	translated := p.translate(directives)
	return p.emit(ctx, translated)
}

func (p *Pipeline) translate(directives []OutputDirective) []OutputDirective {
	out := make([]OutputDirective, len(directives))
	for i, d := range directives {
		keys := make([]mappings.KeyCode, len(d.keys))
		for j, k := range d.keys {
			keys[j] = p.layout.ToPhysical(k)
		}
		out[i] = OutputDirective{kind: d.kind, keys: keys}
	}
	return out
}
