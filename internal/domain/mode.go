package domain

import (
	"fmt"
	"strings"
)

// Mode is the transport mode of a single step
type Mode string

const (
	ModeWait     Mode = "Waiting"
	ModeTransfer Mode = "Transfer"
	ModeWalk     Mode = "Walking"
	ModeBike     Mode = "Bike"
	ModeCar      Mode = "Car"
	ModeBus      Mode = "Bus"
	ModeCoach    Mode = "Coach"
	ModeTram     Mode = "Tram"
	ModeMetro    Mode = "Metro"
	ModeTrain    Mode = "Train"
	ModePlane    Mode = "Plane"
	ModeFerry    Mode = "Ferry"
	ModeCarpool  Mode = "Carpooling"
)

var modeAliases = map[string]Mode{
	"waiting":    ModeWait,
	"wait":       ModeWait,
	"transfer":   ModeTransfer,
	"walking":    ModeWalk,
	"walk":       ModeWalk,
	"bike":       ModeBike,
	"car":        ModeCar,
	"automobile": ModeCar,
	"bus":        ModeBus,
	"coach":      ModeCoach,
	"tram":       ModeTram,
	"metro":      ModeMetro,
	"train":      ModeTrain,
	"plane":      ModePlane,
	"ferry":      ModeFerry,
	"carpooling": ModeCarpool,
	"carpool":    ModeCarpool,
}

// ParseMode accepts the wire names and their common short forms, ignoring case.
func ParseMode(s string) (Mode, error) {
	if m, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// IsConnector reports whether the mode only links two travelling steps.
func (m Mode) IsConnector() bool {
	return m == ModeWait || m == ModeTransfer
}

// IsUrban reports whether the mode is typically used for last-mile legs.
func (m Mode) IsUrban() bool {
	switch m {
	case ModeWalk, ModeBike, ModeBus, ModeTram, ModeMetro:
		return true
	default:
		return false
	}
}

func (m Mode) String() string {
	return string(m)
}
