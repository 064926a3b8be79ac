// Package overlaps implements positional tap-hold arbitration: a key
// configured for overlap behavior defers its own emission until either it
// is released alone (tap) or another key is pressed while it is still down
// (hold), at which point the holding key's hold sequence is pressed and the
// triggering key's own press is re-emitted and swallowed on its way back
// through as a raw event.
package overlaps

import (
	"github.com/leonard/oxidekeys/internal/mappings"
	"github.com/leonard/oxidekeys/internal/pipeline"
)

type activeOverlap struct {
	tap       []mappings.KeyCode
	hold      []mappings.KeyCode
	triggered bool
}

// Feature is the overlaps stage of the pipeline.
type Feature struct {
	pipeline.NoTimer

	active    map[mappings.KeyCode]*activeOverlap
	swallowed map[mappings.KeyCode]struct{}
}

// New returns an empty overlaps feature.
func New() *Feature {
	return &Feature{
		active:    make(map[mappings.KeyCode]*activeOverlap),
		swallowed: make(map[mappings.KeyCode]struct{}),
	}
}

func (*Feature) Name() string { return "overlaps" }

func (f *Feature) OnEvent(event pipeline.InputEvent, ctx *pipeline.Context) (pipeline.Verdict, error) {
	if _, ok := f.swallowed[event.Key]; ok {
		if event.IsPress() {
			return pipeline.Consume(), nil
		}
		delete(f.swallowed, event.Key)
		return pipeline.Emit(pipeline.DirRelease(event.Key)), nil
	}

	remap, configured := ctx.DeviceConfig.Mappings[keyNameFor(event.Key)]
	if configured && remap.Overlap {
		if event.IsPress() {
			f.active[event.Key] = &activeOverlap{
				tap:  keySequence(remap.Tap),
				hold: keySequence(remap.Hold),
			}
			return pipeline.Consume(), nil
		}

		active, tracked := f.active[event.Key]
		if !tracked {
			return pipeline.Continue(event), nil
		}
		delete(f.active, event.Key)

		if active.triggered {
			if len(active.hold) == 0 {
				return pipeline.Consume(), nil
			}
			return pipeline.Emit(pipeline.DirReleaseMany(active.hold)), nil
		}
		if len(active.tap) == 0 {
			return pipeline.Consume(), nil
		}
		return pipeline.Emit(
			pipeline.DirPressMany(active.tap),
			pipeline.DirReleaseMany(active.tap),
		), nil
	}

	if event.IsPress() {
		for _, active := range f.active {
			if active.triggered {
				continue
			}
			active.triggered = true

			var directives []pipeline.OutputDirective
			if len(active.hold) != 0 {
				directives = append(directives, pipeline.DirPressMany(active.hold))
			}
			directives = append(directives, pipeline.DirPress(event.Key))
			f.swallowed[event.Key] = struct{}{}
			return pipeline.Emit(directives...), nil
		}
	}

	return pipeline.Continue(event), nil
}

func keyNameFor(key mappings.KeyCode) string {
	if name, ok := mappings.KeyCodeToName[key]; ok {
		return name
	}
	return ""
}

func keySequence(names []string) []mappings.KeyCode {
	keys := make([]mappings.KeyCode, 0, len(names))
	for _, name := range names {
		if code, ok := mappings.NameToKeyCode[name]; ok {
			keys = append(keys, code)
		}
	}
	return keys
}
