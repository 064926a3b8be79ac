// Package device discovers and grabs evdev keyboard devices and turns
// their raw event stream into the pipeline's key events.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	evdev "github.com/holoplot/go-evdev"

	"github.com/leonard/oxidekeys/internal/mappings"
	"github.com/leonard/oxidekeys/internal/pipeline"
)

// Device wraps one grabbed evdev input device.
type Device struct {
	path   string
	handle *evdev.InputDevice
	name   string
}

func (d *Device) Path() string { return d.path }
func (d *Device) Name() string { return d.name }

// Grab takes exclusive control so the kernel stops delivering this
// device's events to anyone else.
func (d *Device) Grab() error {
	if err := d.handle.Grab(); err != nil {
		return fmt.Errorf("grabbing device %s: %w", d.path, err)
	}
	return nil
}

// Ungrab releases exclusive control.
func (d *Device) Ungrab() error {
	if err := d.handle.Ungrab(); err != nil {
		return fmt.Errorf("releasing device %s: %w", d.path, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (d *Device) Close() error {
	return d.handle.Close()
}

// Manager discovers and tracks matched keyboard devices.
type Manager struct {
	mu      sync.Mutex
	devices map[string]*Device
	logger  *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{devices: make(map[string]*Device), logger: logger}
}

// FindMatching scans /dev/input for keyboard-capable devices whose
// reported name matches one of the configured keyboard names exactly.
// Unlike a "grab everything" discovery pass, matching narrows capture to
// devices the configuration actually names.
func (m *Manager) FindMatching(names map[string]struct{}) ([]*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("globbing input devices: %w", err)
	}

	var matched []*Device
	for _, path := range paths {
		handle, err := evdev.Open(path)
		if err != nil {
			m.logger.Debug("cannot open device", "path", path, "error", err)
			continue
		}

		name, err := handle.Name()
		if err != nil {
			handle.Close()
			continue
		}

		if strings.Contains(strings.ToLower(name), "oxidekeys") {
			handle.Close()
			continue
		}

		if _, wanted := names[name]; !wanted || !isKeyboard(handle) {
			handle.Close()
			continue
		}

		dev := &Device{path: path, handle: handle, name: name}
		m.devices[path] = dev
		matched = append(matched, dev)
		m.logger.Info("matched keyboard", "name", name, "path", path)
	}

	return matched, nil
}

func isKeyboard(handle *evdev.InputDevice) bool {
	for _, t := range handle.CapableTypes() {
		if t != evdev.EV_KEY {
			continue
		}
		for _, code := range handle.CapableEvents(evdev.EV_KEY) {
			// Codes 30..52 (KEY_A through KEY_DOT, the home and bottom
			// letter rows): require real typing keys, not just a handful of
			// media or power buttons that also carry EV_KEY capability.
			if code >= 30 && code <= 52 {
				return true
			}
		}
	}
	return false
}

// Close closes every tracked device.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dev := range m.devices {
		dev.handle.Close()
	}
	m.devices = make(map[string]*Device)
}

// ReadEvents blocks reading raw EV_KEY events from dev, discarding
// auto-repeat, and forwarding the rest to out until ctx is canceled or the
// device errors.
func ReadEvents(ctx context.Context, dev *Device, out chan<- pipeline.InputEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev, err := dev.handle.ReadOne()
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("device disconnected: %s", dev.path)
			}
			return fmt.Errorf("reading event from %s: %w", dev.path, err)
		}

		if ev.Type != evdev.EV_KEY || ev.Value == 2 {
			continue
		}

		out <- pipeline.InputEvent{
			Key:   mappings.KeyCode(ev.Code),
			State: pipeline.KeyState(ev.Value),
		}
	}
}
