// Package syn drives the uinput synthetic keyboard: a virtual device the
// kernel treats as a real keyboard, onto which the pipeline's directives
// are replayed.
package syn

import (
	"fmt"

	"github.com/bendahl/uinput"

	"github.com/leonard/oxidekeys/internal/pipeline"
)

// Keyboard is a synthetic output device backing one physical device's
// worker. It implements pipeline.Sink.
type Keyboard struct {
	dev uinput.Keyboard
}

// New creates a synthetic keyboard named after the physical device it
// shadows, suffixed so it is never mistaken for (or re-grabbed as) a real
// one.
func New(physicalName string) (*Keyboard, error) {
	name := physicalName + " OxideKeys"
	dev, err := uinput.CreateKeyboard("/dev/uinput", []byte(name))
	if err != nil {
		return nil, fmt.Errorf("creating virtual keyboard %q: %w", name, err)
	}
	return &Keyboard{dev: dev}, nil
}

// Close releases the synthetic device.
func (k *Keyboard) Close() error {
	return k.dev.Close()
}

// Emit writes every directive's keys to the device in order. Each key goes
// out through its own KeyDown/KeyUp call, which bendahl/uinput follows with
// its own synchronization report; a batch is not flushed as one transaction.
func (k *Keyboard) Emit(directives []pipeline.OutputDirective) error {
	for _, d := range directives {
		if err := k.write(d); err != nil {
			return err
		}
	}
	return nil
}

func (k *Keyboard) write(d pipeline.OutputDirective) error {
	if d.IsPress() {
		for _, key := range d.Keys() {
			if err := k.dev.KeyDown(int(key)); err != nil {
				return fmt.Errorf("key down %d: %w", key, err)
			}
		}
		return nil
	}
	for _, key := range d.Keys() {
		if err := k.dev.KeyUp(int(key)); err != nil {
			return fmt.Errorf("key up %d: %w", key, err)
		}
	}
	return nil
}
