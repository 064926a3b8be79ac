package pipeline

import (
	"github.com/leonard/oxidekeys/internal/config"
	"github.com/leonard/oxidekeys/internal/mappings"
)

// Context is the per-device mutable state threaded through every pipeline
// step. It is owned exclusively by one device's consumer goroutine; no
// other goroutine may touch it.
type Context struct {
	DeviceConfig *config.KeyboardConfig
	Globals      *config.Globals

	// KeysDown is the set of physical keys currently held, maintained by
	// Features (layers' trigger keys, terms' arbitrated keys) for their own
	// decisions. It reflects physical input, not synthetic output, and is
	// not what Shutdown releases.
	KeysDown     map[mappings.KeyCode]struct{}
	ActiveLayers map[string]struct{}

	// syntheticDown tracks keys actually written Press-without-matching-
	// Release to the synthetic device. The Pipeline maintains it itself as
	// directives are emitted; no Feature touches it directly. Shutdown
	// reads it to release exactly what is really held on the output
	// device, independent of which physical keys or features caused it.
	syntheticDown map[mappings.KeyCode]struct{}

	NoEmit     bool
	GlobalTerm uint
}

// NewContext builds a fresh Context for one device worker.
func NewContext(kbCfg *config.KeyboardConfig, globals *config.Globals) *Context {
	return &Context{
		DeviceConfig:  kbCfg,
		Globals:       globals,
		KeysDown:      make(map[mappings.KeyCode]struct{}),
		ActiveLayers:  make(map[string]struct{}),
		syntheticDown: make(map[mappings.KeyCode]struct{}),
		NoEmit:        globals.NoEmit,
		GlobalTerm:    globals.Term,
	}
}

// MarkDown records that the physical key is currently held.
func (c *Context) MarkDown(key mappings.KeyCode) { c.KeysDown[key] = struct{}{} }

// MarkUp records that the physical key is no longer held.
func (c *Context) MarkUp(key mappings.KeyCode) { delete(c.KeysDown, key) }

// IsDown reports whether the physical key is currently held.
func (c *Context) IsDown(key mappings.KeyCode) bool {
	_, ok := c.KeysDown[key]
	return ok
}
