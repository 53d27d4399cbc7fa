// Package logic contains the pure control logic of the generator/ATS controller.
// This package has NO external dependencies (no GPIO, I2C, MQTT, OS, or time.Sleep).
// Time is always injected as a Millis counter.
package logic

// Millis is a free-running 32-bit millisecond counter. It wraps roughly every
// 49.7 days; differences are computed with modular arithmetic so intervals
// shorter than the wrap period are always correct.
type Millis uint32

// Sub returns the time elapsed from then to m, tolerating counter wraparound.
func (m Millis) Sub(then Millis) Millis {
	return m - then
}

// State is the controller's current phase.
type State int

// The ordinal values are reported in the heartbeat log line.
const (
	StateIdle State = iota
	StateGridLossDetected
	StateStartPowerOn
	StateStartChokeOn
	StateStartCranking
	StateStartChokeOff
	StateCheckRunning
	StateRunningWaitATS
	StateRunningWithATS
	StateGridRestoredWait
	StateCoolingDown
	StateShuttingDown
)

var stateNames = [...]string{
	StateIdle:             "IDLE",
	StateGridLossDetected: "GRID_LOSS_DETECTED",
	StateStartPowerOn:     "START_POWER_ON",
	StateStartChokeOn:     "START_CHOKE_ON",
	StateStartCranking:    "START_CRANKING",
	StateStartChokeOff:    "START_CHOKE_OFF",
	StateCheckRunning:     "CHECK_RUNNING",
	StateRunningWaitATS:   "RUNNING_WAIT_ATS",
	StateRunningWithATS:   "RUNNING_WITH_ATS",
	StateGridRestoredWait: "GRID_RESTORED_WAIT",
	StateCoolingDown:      "COOLING_DOWN",
	StateShuttingDown:     "SHUTTING_DOWN",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// States lists every state in ordinal order.
func States() []State {
	out := make([]State, len(stateNames))
	for i := range out {
		out[i] = State(i)
	}
	return out
}

// Relay identifies one of the four output relays.
type Relay int

const (
	RelayPowerOn Relay = iota
	RelayChoke
	RelayStarter
	RelayATS

	NumRelays = 4
)

var relayNames = [...]string{
	RelayPowerOn: "POWER_ON",
	RelayChoke:   "CHOKE",
	RelayStarter: "STARTER",
	RelayATS:     "ATS",
}

func (r Relay) String() string {
	if r < 0 || int(r) >= len(relayNames) {
		return "UNKNOWN"
	}
	return relayNames[r]
}

// Relays lists every relay in output order.
func Relays() []Relay {
	return []Relay{RelayPowerOn, RelayChoke, RelayStarter, RelayATS}
}

// Level is a relay output level.
type Level bool

const (
	Off Level = false
	On  Level = true
)

func (l Level) String() string {
	if l {
		return "ON"
	}
	return "OFF"
}

// Input is one polling tick's worth of raw readings.
type Input struct {
	Now     Millis
	GridRaw bool // true = grid sense loop reports present
	GenRaw  bool // true = generator sense loop reports running
	GridADC int  // raw grid voltage counts, nominally [0,1023]
	GenADC  int  // raw generator voltage counts, nominally [0,1023]
}

// EffectKind discriminates Effect.
type EffectKind int

const (
	EffectRelay EffectKind = iota
	EffectLog
	EffectTransition
)

// Effect is a side effect requested by the controller. The caller applies
// effects in order; the controller itself never touches hardware.
type Effect struct {
	Kind EffectKind

	// EffectRelay
	Relay Relay
	Level Level

	// EffectLog
	Text string

	// EffectTransition
	From State
	To   State
}

// Status is a point-in-time copy of controller state for display and telemetry.
type Status struct {
	State              State
	StateSince         Millis
	Elapsed            Millis
	GridPresent        bool
	GeneratorConfirmed bool
	GridBaselined      bool
	GenBaselined       bool
	GridVoltage        float32
	GenVoltage         float32
	StartAttempts      int
	ATSEngaged         bool
	GeneratorRunning   bool
	GridWasLost        bool
	GridRestorePending bool
	Relays             [NumRelays]Level
	Transitions        int
}
