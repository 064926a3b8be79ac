// Package config handles application configuration loading, defaults, and
// persistence for oxidekeys.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/leonard/oxidekeys/internal/mappings"
)

const defaultTermMs = 144

// RemapAction is per-key configuration: what to emit on tap, what to emit
// on hold, and which tap-or-hold strategy (if any) arbitrates between them.
type RemapAction struct {
	Tap     []string `yaml:"tap,omitempty"`
	Hold    []string `yaml:"hold,omitempty"`
	Overlap bool     `yaml:"overlap,omitempty"`
	Term    *uint    `yaml:"term,omitempty"`
}

// HasTapOrHold reports whether the action is meaningful (at least one of
// tap/hold must be present).
func (r RemapAction) HasTapOrHold() bool {
	return r.Tap != nil || r.Hold != nil
}

// Layer is a named mapping: trigger key -> (source key -> target sequence).
type Layer map[string]map[string][]string

// KeyboardConfig is the per-device configuration: physical layout, remap
// table, and layers.
type KeyboardConfig struct {
	Layout   string                 `yaml:"layout"`
	Mappings map[string]RemapAction `yaml:"mappings"`
	Layers   map[string]Layer       `yaml:"layers"`
}

// Globals holds process-wide settings.
type Globals struct {
	NoEmit bool `yaml:"no_emit"`
	Term   uint `yaml:"term"`
}

// Config is the top-level configuration document.
type Config struct {
	Globals   Globals                   `yaml:"globals"`
	Features  map[string]bool           `yaml:"features"`
	Keyboards map[string]KeyboardConfig `yaml:"keyboards"`

	path string
}

// Default returns the built-in configuration: a homerow-mod/overlap
// tap-hold example on the most common laptop keyboard name, plus
// navigation and symbols layers under Right/Left Alt.
func Default() *Config {
	term := uint(50)
	return &Config{
		Globals: Globals{
			NoEmit: false,
			Term:   defaultTermMs,
		},
		Features: map[string]bool{
			"layers":   true,
			"overlaps": true,
			"terms":    true,
		},
		Keyboards: map[string]KeyboardConfig{
			"AT Translated Set 2 keyboard": {
				Layout: "qwerty",
				Mappings: map[string]RemapAction{
					"space": {
						Tap:     []string{"space"},
						Hold:    []string{"leftshift"},
						Overlap: true,
					},
					"leftshift": {
						Tap: []string{"esc"},
					},
					"capslock": {
						Tap: []string{"backspace"},
					},
					"a": {
						Tap:  []string{"a"},
						Hold: []string{"leftctrl"},
					},
					"semicolon": {
						Tap:  []string{"semicolon"},
						Hold: []string{"rightctrl"},
					},
					"s": {
						Tap:  []string{"s"},
						Hold: []string{"leftmeta"},
					},
					"l": {
						Tap:  []string{"l"},
						Hold: []string{"rightmeta"},
					},
					"d": {
						Tap:  []string{"d"},
						Hold: []string{"leftalt"},
						Term: &term,
					},
					"k": {
						Tap:  []string{"k"},
						Hold: []string{"rightalt"},
						Term: &term,
					},
				},
				Layers: map[string]Layer{
					"Navigation": {
						"rightalt": {
							"j": {"left"},
							"c": {"down"},
							"v": {"up"},
							"p": {"right"},
						},
					},
					"Symbols": {
						"leftalt": {
							"f":         {"rightshift", "9"},
							"j":         {"rightshift", "0"},
							"d":         {"rightshift", "minus"},
							"k":         {"rightshift", "equal"},
							"s":         {"minus"},
							"l":         {"equal"},
							"a":         {"rightshift", "w"},
							"semicolon": {"rightshift", "e"},
							"g":         {"leftbrace"},
							"h":         {"backslash"},
						},
					},
				},
			},
		},
	}
}

// Load reads the configuration from path, or from the default per-user
// location when path is empty, writing built-in defaults there first if
// nothing exists yet.
func Load(path string) (*Config, error) {
	resolved := path
	if resolved == "" {
		var err error
		resolved, err = defaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving default config path: %w", err)
		}
	}

	data, err := os.ReadFile(resolved)
	if os.IsNotExist(err) {
		cfg := Default()
		cfg.path = resolved
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", resolved, err)
	}
	cfg.path = resolved

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", resolved, err)
	}

	return cfg, nil
}

// Save writes the configuration back to the path it was loaded from (or
// will be loaded from), creating the parent directory if needed.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", c.path, err)
	}

	return nil
}

func defaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "oxidekeys", "config.yml"), nil
}

// validate checks that every key name referenced anywhere in the
// configuration is a known KEY_* name, and that every remap action defines
// at least a tap or a hold.
func (c *Config) validate() error {
	checkKey := func(name string) error {
		if _, ok := mappings.NameToKeyCode[name]; !ok {
			return fmt.Errorf("unknown key name %q", name)
		}
		return nil
	}

	for devName, kb := range c.Keyboards {
		if _, err := mappings.ParseLayoutName(kb.Layout); err != nil {
			return fmt.Errorf("keyboard %q: %w", devName, err)
		}
		for key, remap := range kb.Mappings {
			if err := checkKey(key); err != nil {
				return fmt.Errorf("keyboard %q: %w", devName, err)
			}
			if !remap.HasTapOrHold() {
				return fmt.Errorf("keyboard %q: mapping %q defines neither tap nor hold", devName, key)
			}
			for _, seq := range [][]string{remap.Tap, remap.Hold} {
				for _, k := range seq {
					if err := checkKey(k); err != nil {
						return fmt.Errorf("keyboard %q: mapping %q: %w", devName, key, err)
					}
				}
			}
		}
		for layerName, layer := range kb.Layers {
			for trigger, inner := range layer {
				if err := checkKey(trigger); err != nil {
					return fmt.Errorf("keyboard %q: layer %q: %w", devName, layerName, err)
				}
				for src, targets := range inner {
					if err := checkKey(src); err != nil {
						return fmt.Errorf("keyboard %q: layer %q: %w", devName, layerName, err)
					}
					for _, t := range targets {
						if err := checkKey(t); err != nil {
							return fmt.Errorf("keyboard %q: layer %q: %w", devName, layerName, err)
						}
					}
				}
			}
		}
	}

	return nil
}

// FeatureEnabled reports whether the named feature is enabled, defaulting
// to true when the features map doesn't mention it.
func (c *Config) FeatureEnabled(name string) bool {
	enabled, ok := c.Features[name]
	if !ok {
		return true
	}
	return enabled
}
