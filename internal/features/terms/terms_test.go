package terms

import (
	"testing"
	"time"

	"github.com/leonard/oxidekeys/internal/config"
	"github.com/leonard/oxidekeys/internal/mappings"
	"github.com/leonard/oxidekeys/internal/pipeline"
)

// fakeScheduler records scheduled timers without actually arranging delivery;
// tests drive OnTimer directly once they decide a term has elapsed.
type fakeScheduler struct {
	scheduled []mappings.KeyCode
	durations []time.Duration
}

func (s *fakeScheduler) Schedule(key mappings.KeyCode, d time.Duration) {
	s.scheduled = append(s.scheduled, key)
	s.durations = append(s.durations, d)
}

func newTestContext(mappingsCfg map[string]config.RemapAction, globalTerm uint) *pipeline.Context {
	kb := &config.KeyboardConfig{Layout: "qwerty", Mappings: mappingsCfg}
	return pipeline.NewContext(kb, &config.Globals{Term: globalTerm})
}

func press(key mappings.KeyCode) pipeline.InputEvent {
	return pipeline.InputEvent{Key: key, State: pipeline.Press}
}

func release(key mappings.KeyCode) pipeline.InputEvent {
	return pipeline.InputEvent{Key: key, State: pipeline.Release}
}

func TestQuickTapEmitsTapSequence(t *testing.T) {
	sched := &fakeScheduler{}
	f := New(sched)
	ctx := newTestContext(map[string]config.RemapAction{
		"a": {Tap: []string{"a"}, Hold: []string{"leftctrl"}},
	}, 200)

	if _, err := f.OnEvent(press(mappings.KEY_A), ctx); err != nil {
		t.Fatalf("press: %v", err)
	}
	if len(sched.scheduled) != 1 || sched.scheduled[0] != mappings.KEY_A {
		t.Fatalf("scheduled = %v, want a single timer for KEY_A", sched.scheduled)
	}

	// Release immediately, well inside the term window.
	v, err := f.OnEvent(release(mappings.KEY_A), ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if v.Kind != pipeline.VerdictEmit || len(v.Directives) != 2 {
		t.Fatalf("verdict = %+v, want tap press + release", v)
	}
	if v.Directives[0].Keys()[0] != mappings.KEY_A || !v.Directives[0].IsPress() {
		t.Errorf("first directive = %+v, want press of a", v.Directives[0])
	}
	if v.Directives[1].Keys()[0] != mappings.KEY_A || v.Directives[1].IsPress() {
		t.Errorf("second directive = %+v, want release of a", v.Directives[1])
	}
}

func TestElapsedTermReleasesHold(t *testing.T) {
	sched := &fakeScheduler{}
	f := New(sched)
	ctx := newTestContext(map[string]config.RemapAction{
		"a": {Tap: []string{"a"}, Hold: []string{"leftctrl"}},
	}, 200)

	if _, err := f.OnEvent(press(mappings.KEY_A), ctx); err != nil {
		t.Fatalf("press: %v", err)
	}

	// The scheduler only calls OnTimer once the term has actually elapsed;
	// the feature doesn't re-check wall-clock time, it trusts the timer.
	directives, err := f.OnTimer(mappings.KEY_A, ctx)
	if err != nil {
		t.Fatalf("OnTimer: %v", err)
	}
	if len(directives) != 1 || directives[0].Keys()[0] != mappings.KEY_LEFTCTRL || !directives[0].IsPress() {
		t.Fatalf("directives = %+v, want press of leftctrl", directives)
	}
	if !f.active[mappings.KEY_A].holdEmitted {
		t.Fatal("expected holdEmitted to be set after the timer fires the hold")
	}

	v, err := f.OnEvent(release(mappings.KEY_A), ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if v.Kind != pipeline.VerdictEmit || len(v.Directives) != 1 {
		t.Fatalf("verdict = %+v, want a single release directive", v)
	}
	if v.Directives[0].Keys()[0] != mappings.KEY_LEFTCTRL || v.Directives[0].IsPress() {
		t.Errorf("directive = %+v, want release of leftctrl", v.Directives[0])
	}
}

// TestReleaseBeforeTimerDequeueChoosesTap exercises the race the worker's
// randomized channel select can produce: a release that logically arrives
// after the term deadline but is dequeued before the timer message must
// still choose tap, and the timer message that follows must be a no-op.
func TestReleaseBeforeTimerDequeueChoosesTap(t *testing.T) {
	sched := &fakeScheduler{}
	f := New(sched)
	ctx := newTestContext(map[string]config.RemapAction{
		"a": {Tap: []string{"a"}, Hold: []string{"leftctrl"}},
	}, 200)

	if _, err := f.OnEvent(press(mappings.KEY_A), ctx); err != nil {
		t.Fatalf("press: %v", err)
	}

	v, err := f.OnEvent(release(mappings.KEY_A), ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if v.Kind != pipeline.VerdictEmit || len(v.Directives) != 2 {
		t.Fatalf("verdict = %+v, want tap press + release", v)
	}
	if v.Directives[0].Keys()[0] != mappings.KEY_A || !v.Directives[0].IsPress() {
		t.Errorf("first directive = %+v, want press of a", v.Directives[0])
	}

	// The timer message, dequeued after the release, must no-op: active[k]
	// is already gone.
	directives, err := f.OnTimer(mappings.KEY_A, ctx)
	if err != nil {
		t.Fatalf("OnTimer: %v", err)
	}
	if directives != nil {
		t.Errorf("late timer emitted %+v, want a no-op", directives)
	}
}

func TestPressAndReleaseTrackKeysDown(t *testing.T) {
	sched := &fakeScheduler{}
	f := New(sched)
	ctx := newTestContext(map[string]config.RemapAction{
		"a": {Tap: []string{"a"}, Hold: []string{"leftctrl"}},
	}, 200)

	if _, err := f.OnEvent(press(mappings.KEY_A), ctx); err != nil {
		t.Fatalf("press: %v", err)
	}
	if !ctx.IsDown(mappings.KEY_A) {
		t.Fatal("expected KEY_A in keys_down after press")
	}

	if _, err := f.OnEvent(release(mappings.KEY_A), ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ctx.IsDown(mappings.KEY_A) {
		t.Fatal("expected KEY_A removed from keys_down after release")
	}
}

func TestPerMappingTermOverridesGlobal(t *testing.T) {
	sched := &fakeScheduler{}
	f := New(sched)
	term := uint(10)
	ctx := newTestContext(map[string]config.RemapAction{
		"a": {Tap: []string{"a"}, Hold: []string{"leftctrl"}, Term: &term},
	}, 5000)

	if _, err := f.OnEvent(press(mappings.KEY_A), ctx); err != nil {
		t.Fatalf("press: %v", err)
	}
	if len(sched.durations) != 1 || sched.durations[0] != 10*time.Millisecond {
		t.Errorf("scheduled duration = %v, want the per-mapping override (10ms), not the global term (5s)", sched.durations)
	}
}

func TestOverlapConfiguredKeysAreIgnored(t *testing.T) {
	sched := &fakeScheduler{}
	f := New(sched)
	ctx := newTestContext(map[string]config.RemapAction{
		"a": {Tap: []string{"a"}, Hold: []string{"leftctrl"}, Overlap: true},
	}, 200)

	v, err := f.OnEvent(press(mappings.KEY_A), ctx)
	if err != nil {
		t.Fatalf("press: %v", err)
	}
	if v.Kind != pipeline.VerdictContinue {
		t.Fatalf("verdict = %v, want Continue: overlap-configured keys belong to the overlaps feature", v.Kind)
	}
	if len(sched.scheduled) != 0 {
		t.Errorf("scheduled a timer for an overlap key: %v", sched.scheduled)
	}
}

func TestEmptyTapSequenceConsumesSilentlyOnQuickRelease(t *testing.T) {
	sched := &fakeScheduler{}
	f := New(sched)
	ctx := newTestContext(map[string]config.RemapAction{
		"d": {Hold: []string{"leftalt"}},
	}, 200)

	if _, err := f.OnEvent(press(mappings.KEY_D), ctx); err != nil {
		t.Fatalf("press: %v", err)
	}
	v, err := f.OnEvent(release(mappings.KEY_D), ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if v.Kind != pipeline.VerdictConsume {
		t.Fatalf("verdict = %v, want Consume for a tap-less mapping released before its term", v.Kind)
	}
}

func TestUnconfiguredKeyPassesThrough(t *testing.T) {
	sched := &fakeScheduler{}
	f := New(sched)
	ctx := newTestContext(nil, 200)

	v, err := f.OnEvent(press(mappings.KEY_J), ctx)
	if err != nil {
		t.Fatalf("press: %v", err)
	}
	if v.Kind != pipeline.VerdictContinue {
		t.Fatalf("verdict = %v, want Continue", v.Kind)
	}
}
