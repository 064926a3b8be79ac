package pipeline

import (
	"testing"

	"github.com/leonard/oxidekeys/internal/config"
	"github.com/leonard/oxidekeys/internal/mappings"
)

// recordingSink captures every batch of directives handed to Emit, in order.
type recordingSink struct {
	batches [][]OutputDirective
}

func (s *recordingSink) Emit(directives []OutputDirective) error {
	s.batches = append(s.batches, directives)
	return nil
}

// passthroughFeature always continues the event unchanged.
type passthroughFeature struct{ NoTimer }

func (passthroughFeature) Name() string { return "passthrough" }
func (passthroughFeature) OnEvent(e InputEvent, _ *Context) (Verdict, error) {
	return Continue(e), nil
}

// consumeAFeature swallows presses/releases of KEY_A and nothing else.
type consumeAFeature struct{ NoTimer }

func (consumeAFeature) Name() string { return "consume-a" }
func (consumeAFeature) OnEvent(e InputEvent, _ *Context) (Verdict, error) {
	if e.Key == mappings.KEY_A {
		return Consume(), nil
	}
	return Continue(e), nil
}

func newTestContext() *Context {
	kb := &config.KeyboardConfig{Layout: "qwerty"}
	return NewContext(kb, &config.Globals{})
}

func TestProcessEventContinuesThroughToSink(t *testing.T) {
	sink := &recordingSink{}
	p := New([]Feature{passthroughFeature{}}, identityLayout{}, sink)
	ctx := newTestContext()

	if err := p.ProcessEvent(ctx, mappings.KEY_A, Press); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("got %d emitted batches, want 1", len(sink.batches))
	}
	got := sink.batches[0]
	if len(got) != 1 || got[0].Keys()[0] != mappings.KEY_A || !got[0].IsPress() {
		t.Errorf("unexpected directive: %+v", got)
	}
}

func TestProcessEventStopsAtFirstNonContinue(t *testing.T) {
	sink := &recordingSink{}
	p := New([]Feature{consumeAFeature{}, passthroughFeature{}}, identityLayout{}, sink)
	ctx := newTestContext()

	if err := p.ProcessEvent(ctx, mappings.KEY_A, Press); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("consumed event reached the sink: %+v", sink.batches)
	}

	if err := p.ProcessEvent(ctx, mappings.KEY_B, Press); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("got %d emitted batches, want 1 for an uninvolved key", len(sink.batches))
	}
}

func TestProcessEventHonorsNoEmit(t *testing.T) {
	sink := &recordingSink{}
	p := New([]Feature{passthroughFeature{}}, identityLayout{}, sink)
	ctx := newTestContext()
	ctx.NoEmit = true

	if err := p.ProcessEvent(ctx, mappings.KEY_A, Press); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("NoEmit set but sink saw %d batches", len(sink.batches))
	}
}

func TestProcessEventTranslatesThroughLayout(t *testing.T) {
	sink := &recordingSink{}
	p := New([]Feature{passthroughFeature{}}, dvorakLayoutForTest{}, sink)
	ctx := newTestContext()

	// Physical KEY_Q under the test layout logically reads as KEY_APOSTROPHE;
	// passthroughFeature leaves it alone, so the emitted directive should be
	// translated back to the original physical key.
	if err := p.ProcessEvent(ctx, mappings.KEY_Q, Press); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(sink.batches) != 1 || sink.batches[0][0].Keys()[0] != mappings.KEY_Q {
		t.Fatalf("expected translation back to physical KEY_Q, got %+v", sink.batches)
	}
}

// dvorakLayoutForTest stands in for the dvorak layout with a single pair
// of its permutation (Q <-> apostrophe), since the mappings package's own
// layout type is unexported.
type dvorakLayoutForTest struct{}

func (dvorakLayoutForTest) ToLogical(physical mappings.KeyCode) mappings.KeyCode {
	if physical == mappings.KEY_Q {
		return mappings.KEY_APOSTROPHE
	}
	return physical
}

func (dvorakLayoutForTest) ToPhysical(logical mappings.KeyCode) mappings.KeyCode {
	if logical == mappings.KEY_APOSTROPHE {
		return mappings.KEY_Q
	}
	return logical
}

func TestShutdownReleasesHeldKeysAndBypassesNoEmit(t *testing.T) {
	sink := &recordingSink{}
	p := New([]Feature{passthroughFeature{}}, identityLayout{}, sink)
	ctx := newTestContext()

	// A plain passthrough press reaches the synthetic device with no
	// feature ever touching ctx.KeysDown; Shutdown must still know it's
	// down.
	if err := p.ProcessEvent(ctx, mappings.KEY_LEFTSHIFT, Press); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	ctx.NoEmit = true
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(sink.batches) != 2 {
		t.Fatalf("got %d batches, want the original press plus one release batch despite NoEmit", len(sink.batches))
	}
	keys := sink.batches[1][0].Keys()
	if len(keys) != 1 || keys[0] != mappings.KEY_LEFTSHIFT {
		t.Errorf("unexpected released keys: %+v", keys)
	}
}

func TestShutdownDoesNotReleaseConsumedTriggerKeys(t *testing.T) {
	sink := &recordingSink{}
	p := New([]Feature{consumeAFeature{}}, identityLayout{}, sink)
	ctx := newTestContext()

	// consumeAFeature swallows KEY_A entirely; nothing ever reaches the
	// synthetic device for it, so Shutdown must not invent a release.
	if err := p.ProcessEvent(ctx, mappings.KEY_A, Press); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	ctx.MarkDown(mappings.KEY_A)

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("got %d batches, want no phantom release for a consumed trigger key: %+v", len(sink.batches), sink.batches)
	}
}

func TestShutdownNoopWhenNothingHeld(t *testing.T) {
	sink := &recordingSink{}
	p := New([]Feature{passthroughFeature{}}, identityLayout{}, sink)
	ctx := newTestContext()

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(sink.batches) != 0 {
		t.Errorf("expected no emission when nothing was held, got %+v", sink.batches)
	}
}

// identityLayout mirrors the unexported mappings.identityLayout behavior so
// this package's tests don't need an exported test-only layout.
type identityLayout struct{}

func (identityLayout) ToLogical(k mappings.KeyCode) mappings.KeyCode { return k }
func (identityLayout) ToPhysical(k mappings.KeyCode) mappings.KeyCode { return k }
