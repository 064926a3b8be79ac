// Package terms implements temporal tap-hold arbitration: a key configured
// with a hold (but not overlap) starts a term window on press. If released
// before the term elapses, its tap sequence fires; if the term elapses
// first, a timer fires the hold sequence, which is released when the key
// eventually comes up. A key with a tap but no hold is not arbitrated: its
// tap sequence is pressed on press and released on release.
package terms

import (
	"time"

	"github.com/leonard/oxidekeys/internal/config"
	"github.com/leonard/oxidekeys/internal/mappings"
	"github.com/leonard/oxidekeys/internal/pipeline"
)

// Scheduler arranges for a timer message to be delivered for key after d
// elapses, normally by running the worker's pipeline.ProcessTimer.
type Scheduler interface {
	Schedule(key mappings.KeyCode, d time.Duration)
}

type activeTerm struct {
	tap, hold   []mappings.KeyCode
	holdEmitted bool
}

// Feature is the terms stage of the pipeline.
type Feature struct {
	scheduler Scheduler
	active    map[mappings.KeyCode]*activeTerm
}

// New returns a terms feature that uses scheduler to arrange hold timers.
func New(scheduler Scheduler) *Feature {
	return &Feature{scheduler: scheduler, active: make(map[mappings.KeyCode]*activeTerm)}
}

func (*Feature) Name() string { return "terms" }

func (f *Feature) OnEvent(event pipeline.InputEvent, ctx *pipeline.Context) (pipeline.Verdict, error) {
	remap, configured := ctx.DeviceConfig.Mappings[keyNameFor(event.Key)]
	if configured && remap.HasTapOrHold() && !remap.Overlap {
		if event.IsPress() {
			term := termDuration(remap, ctx.GlobalTerm)
			hold := keySequence(remap.Hold)
			tap := keySequence(remap.Tap)

			if len(hold) == 0 {
				// Tap-only: no timer, the tap goes down now and is
				// released through the hold-release path on key up.
				f.active[event.Key] = &activeTerm{hold: tap, holdEmitted: true}
				ctx.MarkDown(event.Key)
				if len(tap) == 0 {
					return pipeline.Consume(), nil
				}
				return pipeline.Emit(pipeline.DirPressMany(tap)), nil
			}
			f.scheduler.Schedule(event.Key, term)

			f.active[event.Key] = &activeTerm{tap: tap, hold: hold}
			ctx.MarkDown(event.Key)
			return pipeline.Consume(), nil
		}

		active, tracked := f.active[event.Key]
		if !tracked {
			return pipeline.Continue(event), nil
		}
		delete(f.active, event.Key)
		ctx.MarkUp(event.Key)

		if active.holdEmitted {
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

	return pipeline.Continue(event), nil
}

func (f *Feature) OnTimer(key mappings.KeyCode, _ *pipeline.Context) ([]pipeline.OutputDirective, error) {
	active, ok := f.active[key]
	if !ok {
		return nil, nil
	}
	if len(active.hold) == 0 {
		return nil, nil
	}
	active.holdEmitted = true
	return []pipeline.OutputDirective{pipeline.DirPressMany(active.hold)}, nil
}

func keyNameFor(key mappings.KeyCode) string {
	if name, ok := mappings.KeyCodeToName[key]; ok {
		return name
	}
	return ""
}

func termDuration(remap config.RemapAction, globalTerm uint) time.Duration {
	if remap.Term != nil {
		return time.Duration(*remap.Term) * time.Millisecond
	}
	return time.Duration(globalTerm) * time.Millisecond
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
