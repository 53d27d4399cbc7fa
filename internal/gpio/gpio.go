// Package gpio provides sense-input reading and relay outputs with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import "github.com/sweeney/generator-ats/internal/logic"

// Reader reads the grid and generator sense loops.
type Reader interface {
	// Read returns the logical sense states.
	// The raw GPIO values are inverted: raw low = present/running.
	// Returns (gridPresent, generatorRunning, error).
	Read() (bool, bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Relays drives the four controller relays.
type Relays interface {
	// Set drives relay r to level l. Setting the current level again is allowed.
	Set(r logic.Relay, l logic.Level) error

	// Close de-energizes every relay and releases resources.
	Close() error
}

// SensePins are the BCM offsets of the two sense loops. Each loop is driven
// from an output pin held high and read back on a pulled-up input.
type SensePins struct {
	GridOut int
	GridIn  int
	GenOut  int
	GenIn   int
}

// Pin definitions (BCM numbering)
const (
	PinPowerOn = 17
	PinChoke   = 27
	PinStarter = 22
	PinATS     = 23

	PinGridSenseOut = 5
	PinGridSenseIn  = 6
	PinGenSenseOut  = 13
	PinGenSenseIn   = 19
)

// DefaultSensePins returns the standard sense wiring.
func DefaultSensePins() SensePins {
	return SensePins{
		GridOut: PinGridSenseOut,
		GridIn:  PinGridSenseIn,
		GenOut:  PinGenSenseOut,
		GenIn:   PinGenSenseIn,
	}
}

// DefaultRelayPins returns the standard relay wiring, indexed by logic.Relay.
func DefaultRelayPins() [logic.NumRelays]int {
	return [logic.NumRelays]int{
		logic.RelayPowerOn: PinPowerOn,
		logic.RelayChoke:   PinChoke,
		logic.RelayStarter: PinStarter,
		logic.RelayATS:     PinATS,
	}
}

// PinValue converts a relay level to the raw line value for the given polarity.
func PinValue(l logic.Level, activeLow bool) int {
	if bool(l) != activeLow {
		return 1
	}
	return 0
}
