// Package worker runs one physical device's read-process-write loop: a
// producer goroutine blocks on evdev reads, a single consumer goroutine
// owns the pipeline's Context and drives every feature, keeping all
// mutable per-device state on one goroutine.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leonard/oxidekeys/internal/config"
	"github.com/leonard/oxidekeys/internal/device"
	"github.com/leonard/oxidekeys/internal/mappings"
	"github.com/leonard/oxidekeys/internal/pipeline"
	"github.com/leonard/oxidekeys/internal/syn"
)

// timerMsg is posted by a Scheduler when a previously armed term expires.
type timerMsg struct {
	key mappings.KeyCode
}

// Worker owns one physical device, its synthetic counterpart, and the
// pipeline context threading events between them.
type Worker struct {
	dev    *device.Device
	sink   *syn.Keyboard
	pl     *pipeline.Pipeline
	ctx    *pipeline.Context
	logger *slog.Logger

	timers chan timerMsg

	mu      sync.RWMutex
	enabled bool
}

// New builds a Worker without its pipeline wired up yet. kbCfg describes
// dev's configuration; globals carries the process-wide term and no-emit
// settings. Call SetPipeline once the feature chain (which may itself
// need this Worker as a terms.Scheduler) has been constructed.
func New(dev *device.Device, sink *syn.Keyboard, kbCfg *config.KeyboardConfig, globals *config.Globals, logger *slog.Logger) *Worker {
	return &Worker{
		dev:     dev,
		sink:    sink,
		ctx:     pipeline.NewContext(kbCfg, globals),
		logger:  logger,
		timers:  make(chan timerMsg, 64),
		enabled: true,
	}
}

// SetPipeline wires the worker's pipeline. Must be called once, before Run.
func (w *Worker) SetPipeline(features []pipeline.Feature, layout mappings.Layout) {
	w.pl = pipeline.New(features, layout, w.sink)
}

// Schedule implements terms.Scheduler: it posts a timer message for key
// after d elapses. A stale message for a key no longer pending is a safe
// no-op once it reaches ProcessTimer.
func (w *Worker) Schedule(key mappings.KeyCode, d time.Duration) {
	time.AfterFunc(d, func() {
		select {
		case w.timers <- timerMsg{key: key}:
		default:
			w.logger.Warn("timer channel full, dropping timeout", "key", key)
		}
	})
}

// SetEnabled toggles whether raw input is forwarded at all; while
// disabled, events are read (to avoid backpressure on the kernel) but
// passed straight through untouched.
func (w *Worker) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = enabled
}

func (w *Worker) isEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// Run starts the producer and consumer goroutines and blocks until ctx is
// canceled or the device errors. Before it returns, every key still held
// down on the synthetic device is released.
func (w *Worker) Run(ctx context.Context) error {
	events := make(chan pipeline.InputEvent, 256)

	// While disabled, events skip every feature and go straight to the
	// synthetic device through a featureless pipeline sharing w.ctx, so
	// no-emit and the Shutdown bookkeeping still apply to them.
	identity, _ := mappings.ParseLayoutName("")
	passthrough := pipeline.New(nil, identity, w.sink)

	var readErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		readErr = device.ReadEvents(ctx, w.dev, events)
	}()

	defer func() {
		if err := w.pl.Shutdown(w.ctx); err != nil {
			w.logger.Error("releasing held keys", "device", w.dev.Name(), "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return ctx.Err()

		case <-done:
			return readErr

		case ev := <-events:
			if !w.isEnabled() {
				if err := passthrough.ProcessEvent(w.ctx, ev.Key, ev.State); err != nil {
					w.logger.Error("passing event through", "device", w.dev.Name(), "key", ev.Key, "error", err)
				}
				continue
			}
			if err := w.pl.ProcessEvent(w.ctx, ev.Key, ev.State); err != nil {
				w.logger.Error("processing event", "device", w.dev.Name(), "key", ev.Key, "error", err)
			}

		case t := <-w.timers:
			if err := w.pl.ProcessTimer(w.ctx, t.key); err != nil {
				w.logger.Error("processing timer", "device", w.dev.Name(), "key", t.key, "error", err)
			}
		}
	}
}
