// Package layers implements trigger-gated alternative key maps: holding a
// trigger key activates a named layer, and while the layer is active,
// non-trigger keys covered by it resolve to the layer's substitute key
// sequence instead of their own code.
package layers

import (
	"sort"

	"github.com/leonard/oxidekeys/internal/config"
	"github.com/leonard/oxidekeys/internal/mappings"
	"github.com/leonard/oxidekeys/internal/pipeline"
)

// Feature is the layers stage of the pipeline.
type Feature struct {
	pipeline.NoTimer
}

// New returns the layers feature. It holds no per-device state of its
// own; all state lives on the Context so a single instance can serve
// every device.
func New() *Feature { return &Feature{} }

func (*Feature) Name() string { return "layers" }

func (*Feature) OnEvent(event pipeline.InputEvent, ctx *pipeline.Context) (pipeline.Verdict, error) {
	if layerName, isTrigger := findTrigger(ctx, event.Key); isTrigger {
		if event.IsPress() {
			ctx.ActiveLayers[layerName] = struct{}{}
			ctx.MarkDown(event.Key)
		} else {
			delete(ctx.ActiveLayers, layerName)
			ctx.MarkUp(event.Key)
		}
		return pipeline.Consume(), nil
	}

	remapped := resolve(ctx, event.Key)
	if len(remapped) == 1 && remapped[0] == event.Key {
		return pipeline.Continue(event), nil
	}

	if event.IsPress() {
		return pipeline.Emit(pipeline.DirPressMany(remapped)), nil
	}
	return pipeline.Emit(pipeline.DirReleaseMany(remapped)), nil
}

// findTrigger reports the first layer (in deterministic, name-sorted
// order) whose definition names key as a trigger.
func findTrigger(ctx *pipeline.Context, key mappings.KeyCode) (string, bool) {
	name := keyNameFor(key)
	for _, layerName := range sortedLayerNames(ctx.DeviceConfig.Layers) {
		if _, ok := ctx.DeviceConfig.Layers[layerName][name]; ok {
			return layerName, true
		}
	}
	return "", false
}

// resolve looks up key against every active layer, in deterministic
// name-sorted order, and returns the first substitute sequence found, or
// key unchanged if none of the active layers cover it.
func resolve(ctx *pipeline.Context, key mappings.KeyCode) []mappings.KeyCode {
	for _, layerName := range sortedLayerNames(ctx.DeviceConfig.Layers) {
		if _, active := ctx.ActiveLayers[layerName]; !active {
			continue
		}
		layerDef := ctx.DeviceConfig.Layers[layerName]
		for _, keyMap := range layerDef {
			if seq, ok := keyMap[keyNameFor(key)]; ok {
				return namesToCodes(seq)
			}
		}
	}
	return []mappings.KeyCode{key}
}

func sortedLayerNames(layers map[string]config.Layer) []string {
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func keyNameFor(key mappings.KeyCode) string {
	if name, ok := mappings.KeyCodeToName[key]; ok {
		return name
	}
	return ""
}

func namesToCodes(names []string) []mappings.KeyCode {
	codes := make([]mappings.KeyCode, 0, len(names))
	for _, name := range names {
		if code, ok := mappings.NameToKeyCode[name]; ok {
			codes = append(codes, code)
		}
	}
	return codes
}
