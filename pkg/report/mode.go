package report

import (
	"fmt"
	"strings"
)

// Mode selects which document the Renderer produces.
type Mode int

const (
	// ModeHistorical renders the cumulative, collapsible multi-run view.
	ModeHistorical Mode = iota
	// ModeTable renders a single run as one flat table.
	ModeTable
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeHistorical:
		return "historical"
	case ModeTable:
		return "table"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a configuration mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "historical":
		return ModeHistorical, nil
	case "table":
		return ModeTable, nil
	default:
		return 0, fmt.Errorf("unknown report mode %q", s)
	}
}
