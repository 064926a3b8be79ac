package mappings

import "fmt"

// Layout translates key codes between the physical positions the kernel
// reports and the logical codes the rest of the pipeline operates on. Both
// directions are total on the set of key codes the kernel may deliver: keys
// the permutation doesn't cover pass through unchanged.
type Layout interface {
	// ToLogical translates a physical key code into logical space.
	ToLogical(physical KeyCode) KeyCode
	// ToPhysical translates a logical key code back to the physical code the
	// synthetic device should emit.
	ToPhysical(logical KeyCode) KeyCode
}

// ParseLayoutName resolves a configuration string to a Layout. "qwerty" and
// the empty string both mean identity; "dvorak" selects the standard
// QWERTY<->Dvorak permutation.
func ParseLayoutName(name string) (Layout, error) {
	switch name {
	case "", "qwerty":
		return identityLayout{}, nil
	case "dvorak":
		return dvorakLayout{}, nil
	default:
		return nil, fmt.Errorf("unknown layout %q", name)
	}
}

// identityLayout is the QWERTY case: the kernel's own numbering already
// matches the codes the configuration speaks in.
type identityLayout struct{}

func (identityLayout) ToLogical(physical KeyCode) KeyCode { return physical }
func (identityLayout) ToPhysical(logical KeyCode) KeyCode { return logical }

// dvorakLayout implements the standard QWERTY<->Dvorak letter/symbol
// permutation. Physical key positions (where the kernel thinks KEY_Q lives)
// map to the logical letter printed on a Dvorak keycap in that position.
type dvorakLayout struct{}

// dvorakToQwerty maps each physical (QWERTY-numbered) key position to the
// logical key code the Dvorak layout prints at that position. Keys not
// present here (digits, modifiers, punctuation outside the letter row
// shuffle) are identity and omitted.
var dvorakToQwerty = map[KeyCode]KeyCode{
	KEY_Q: KEY_APOSTROPHE, KEY_W: KEY_COMMA, KEY_E: KEY_DOT, KEY_R: KEY_P, KEY_T: KEY_Y,
	KEY_Y: KEY_F, KEY_U: KEY_G, KEY_I: KEY_C, KEY_O: KEY_R, KEY_P: KEY_L,
	KEY_LEFTBRACE: KEY_SLASH, KEY_RIGHTBRACE: KEY_EQUAL,

	KEY_A: KEY_A, KEY_S: KEY_O, KEY_D: KEY_E, KEY_F: KEY_U, KEY_G: KEY_I,
	KEY_H: KEY_D, KEY_J: KEY_H, KEY_K: KEY_T, KEY_L: KEY_N, KEY_SEMICOLON: KEY_S,
	KEY_APOSTROPHE: KEY_MINUS,

	KEY_Z: KEY_SEMICOLON, KEY_X: KEY_Q, KEY_C: KEY_J, KEY_V: KEY_K, KEY_B: KEY_X,
	KEY_N: KEY_B, KEY_M: KEY_M, KEY_COMMA: KEY_W, KEY_DOT: KEY_V, KEY_SLASH: KEY_Z,

	KEY_MINUS: KEY_LEFTBRACE, KEY_EQUAL: KEY_RIGHTBRACE,
}

var qwertyToDvorak map[KeyCode]KeyCode

func init() {
	qwertyToDvorak = make(map[KeyCode]KeyCode, len(dvorakToQwerty))
	for physical, logical := range dvorakToQwerty {
		qwertyToDvorak[logical] = physical
	}
}

func (dvorakLayout) ToLogical(physical KeyCode) KeyCode {
	if logical, ok := dvorakToQwerty[physical]; ok {
		return logical
	}
	return physical
}

func (dvorakLayout) ToPhysical(logical KeyCode) KeyCode {
	if physical, ok := qwertyToDvorak[logical]; ok {
		return physical
	}
	return logical
}
