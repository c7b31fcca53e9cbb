package policy

import (
	"fmt"
	"strings"
)

// Mode is the three-state activation setting. The integer values are the
// external contract: settings files and UIs store 0, 1, or 2.
type Mode int

const (
	// ModePaused suspends watching entirely.
	ModePaused Mode = 0
	// ModeTrayOnly accepts only explicitly token-armed captures.
	ModeTrayOnly Mode = 1
	// ModeAlwaysOn accepts token-armed and process-correlated captures.
	ModeAlwaysOn Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModePaused:
		return "paused"
	case ModeTrayOnly:
		return "tray-only"
	case ModeAlwaysOn:
		return "always-on"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the three defined states.
func (m Mode) Valid() bool {
	return m >= ModePaused && m <= ModeAlwaysOn
}

// ParseMode accepts the numeric external form and common spellings.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "pause", "paused", "off":
		return ModePaused, nil
	case "1", "tray", "tray-only", "trayonly":
		return ModeTrayOnly, nil
	case "2", "always", "always-on", "alwayson", "on":
		return ModeAlwaysOn, nil
	default:
		return ModeAlwaysOn, fmt.Errorf("unknown mode %q", s)
	}
}
