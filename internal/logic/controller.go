package logic

import "fmt"

// Sequencing constants. None of these are configurable.
const (
	GridLossWait      Millis = 5 * 60 * 1000      // grid must stay lost this long before starting
	PowerOnHold       Millis = 1000               // power-on relay settles before choke
	ChokeOnHold       Millis = 3000               // choke engaged before cranking
	CrankTime         Millis = 3000               // starter engaged
	ChokeOffDelay     Millis = 3500               // choke held after cranking stops
	StartCheckDelay   Millis = 5000               // wait before checking the engine caught
	StartRetryDelay   Millis = 5000               // extra wait after a failed check
	ATSDelay          Millis = 2 * 60 * 1000      // warm-up before transferring load
	ATSVoltageTimeout Millis = 60 * 1000          // extra time allowed for voltage to come up
	MaxRunTime        Millis = 4 * 60 * 60 * 1000 // scheduled maintenance shutdown
	GridRestoreDelay  Millis = 2 * 60 * 1000      // grid must hold this long before switching back
	CooldownTime      Millis = 2 * 60 * 1000      // unloaded run before stopping
	StatusLogInterval Millis = 60 * 1000          // heartbeat line in the event log
)

const (
	MaxStartAttempts = 3

	// MinGeneratorVolts is the lowest generator voltage at which the ATS may engage.
	MinGeneratorVolts float32 = 210.0
)

// Controller is the generator/ATS state machine. It owns every control
// variable and is only mutated by Tick.
type Controller struct {
	state      State
	stateStart Millis
	now        Millis

	gridLossTime       Millis
	gridRestoreTime    Millis
	gridRestorePending bool

	startAttempts int
	checkFailed   bool // attempt already counted for this CheckRunning visit
	lowVoltLogged bool // low-voltage warning already logged this RunningWaitATS visit

	atsEngaged       bool
	generatorRunning bool
	gridWasLost      bool

	grid *Debouncer
	gen  *Debouncer

	gridPresent        bool
	generatorConfirmed bool

	sampler       Sampler
	gridVoltage   float32
	genVoltage    float32
	gridClamped   bool
	genClamped    bool
	lastStatusLog Millis

	relays      [NumRelays]Level
	transitions int

	out []Effect
}

// NewController creates a controller in StateIdle at time now.
func NewController(now Millis) *Controller {
	return &Controller{
		state:         StateIdle,
		stateStart:    now,
		now:           now,
		grid:          NewDebouncer(now),
		gen:           NewDebouncer(now),
		sampler:       NewSampler(),
		lastStatusLog: now,
	}
}

// Boot returns the effects that put the outputs into a known safe state.
// Call it once before the first Tick.
func (c *Controller) Boot() []Effect {
	c.out = nil
	for _, r := range Relays() {
		c.setRelay(r, Off)
	}
	c.logf("System initialized. State: %s", c.state)
	return c.out
}

// Tick refreshes the sensors from in and advances the state machine by one step.
// The returned effects must be applied in order.
func (c *Controller) Tick(in Input) []Effect {
	c.out = nil
	c.now = in.Now

	if c.grid.Observe(in.GridRaw, in.Now) {
		c.logf("Grid state changed to: %s", presentAbsent(c.grid.Value()))
	}
	if c.gen.Observe(in.GenRaw, in.Now) {
		c.logf("Generator state changed to: %s", runningStopped(c.gen.Value()))
	}
	c.gridPresent = c.grid.Value()
	c.generatorConfirmed = c.gen.Value()

	c.sampleVoltages(in.GridADC, in.GenADC)

	if c.now.Sub(c.lastStatusLog) >= StatusLogInterval {
		c.lastStatusLog = c.now
		c.logf("State: %d, Grid: %d, Gen: %d, V: %.1f",
			int(c.state), boolInt(c.gridPresent), boolInt(c.generatorConfirmed), c.genVoltage)
	}

	c.step()
	return c.out
}

func (c *Controller) sampleVoltages(gridADC, genADC int) {
	var gridClamped, genClamped bool
	c.gridVoltage, gridClamped = c.sampler.Sample(gridADC)
	c.genVoltage, genClamped = c.sampler.Sample(genADC)

	if gridClamped && !c.gridClamped {
		c.logf("Grid voltage reading out of range: %d", gridADC)
	}
	if genClamped && !c.genClamped {
		c.logf("Gen voltage reading out of range: %d", genADC)
	}
	c.gridClamped = gridClamped
	c.genClamped = genClamped
}

func (c *Controller) elapsed() Millis {
	return c.now.Sub(c.stateStart)
}

func (c *Controller) step() {
	switch c.state {
	case StateIdle:
		if c.grid.Baselined() && !c.gridPresent && !c.gridWasLost {
			c.logf("Grid power lost. Starting timer...")
			c.gridLossTime = c.now
			c.gridWasLost = true
			c.enter(StateGridLossDetected)
		}

	case StateGridLossDetected:
		if c.now.Sub(c.gridLossTime) >= GridLossWait {
			c.startAttempts = 0
			c.enter(StateStartPowerOn)
		} else if c.gridPresent {
			c.logf("Grid restored during wait. Returning to IDLE.")
			c.gridWasLost = false
			c.enter(StateIdle)
		}

	case StateStartPowerOn:
		c.setRelay(RelayPowerOn, On)
		if c.elapsed() >= PowerOnHold {
			c.enter(StateStartChokeOn)
		}

	case StateStartChokeOn:
		c.setRelay(RelayChoke, On)
		if c.elapsed() >= ChokeOnHold {
			c.enter(StateStartCranking)
		}

	case StateStartCranking:
		if c.elapsed() >= CrankTime {
			c.setRelay(RelayStarter, Off)
			c.enter(StateStartChokeOff)
			return
		}
		c.setRelay(RelayStarter, On)

	case StateStartChokeOff:
		if c.elapsed() >= ChokeOffDelay {
			c.setRelay(RelayChoke, Off)
			c.enter(StateCheckRunning)
		}

	case StateCheckRunning:
		c.checkRunning()

	case StateRunningWaitATS:
		c.runningWaitATS()

	case StateRunningWithATS:
		c.runningWithATS()

	case StateGridRestoredWait:
		if c.elapsed() >= GridRestoreDelay {
			c.enter(StateCoolingDown)
		}

	case StateCoolingDown:
		c.setRelay(RelayATS, Off)
		c.atsEngaged = false
		if c.elapsed() >= CooldownTime {
			c.enter(StateShuttingDown)
		}

	case StateShuttingDown:
		c.enter(StateIdle)
	}
}

func (c *Controller) checkRunning() {
	if c.elapsed() < StartCheckDelay {
		return
	}

	if c.generatorConfirmed {
		c.logf("Generator started successfully!")
		c.generatorRunning = true
		c.enter(StateRunningWaitATS)
		return
	}

	if !c.checkFailed {
		c.checkFailed = true
		c.startAttempts++
		if c.startAttempts >= MaxStartAttempts {
			c.logf("Start failed after %d attempts. Shutting down", c.startAttempts)
			c.enter(StateShuttingDown)
			return
		}
		c.logf("Generator failed to start (%d/%d), retrying", c.startAttempts, MaxStartAttempts)
	}

	if c.elapsed() >= StartCheckDelay+StartRetryDelay {
		c.enter(StateStartPowerOn)
	}
}

func (c *Controller) runningWaitATS() {
	if !c.generatorConfirmed {
		c.logf("Generator stopped unexpectedly during wait!")
		c.enter(StateShuttingDown)
		return
	}

	if c.elapsed() < ATSDelay {
		return
	}

	if c.genVoltage >= MinGeneratorVolts {
		c.logf("Generator voltage OK (%.1f). Engaging ATS...", c.genVoltage)
		c.setRelay(RelayATS, On)
		c.atsEngaged = true
		c.enter(StateRunningWithATS)
		return
	}

	if !c.lowVoltLogged {
		c.lowVoltLogged = true
		c.logf("Generator voltage too low (%.1f)! ATS held.", c.genVoltage)
	}
	if c.elapsed() >= ATSDelay+ATSVoltageTimeout {
		c.logf("Generator voltage unstable. Shutting down.")
		c.enter(StateShuttingDown)
	}
}

func (c *Controller) runningWithATS() {
	if !c.generatorConfirmed {
		c.logf("Generator stopped unexpectedly while running!")
		c.enter(StateShuttingDown)
		return
	}

	c.setRelay(RelayATS, On)

	if c.elapsed() >= MaxRunTime {
		c.logf("Scheduled shutdown after 4 hours runtime...")
		c.enter(StateCoolingDown)
		return
	}

	if !c.gridPresent {
		if c.gridRestorePending {
			c.gridRestorePending = false
			c.logf("Grid lost again. Restore timer reset.")
		}
		return
	}

	if !c.gridRestorePending {
		c.gridRestorePending = true
		c.gridRestoreTime = c.now
		c.logf("Grid restored. Waiting 2 min to switch back")
	}
	if c.now.Sub(c.gridRestoreTime) >= GridRestoreDelay {
		c.logf("Grid stable. Initiating generator shutdown...")
		c.enter(StateCoolingDown)
	}
}

// enter switches to next, restarts the state timer and runs its entry actions.
func (c *Controller) enter(next State) {
	from := c.state
	c.state = next
	c.stateStart = c.now
	c.transitions++

	c.out = append(c.out, Effect{Kind: EffectTransition, From: from, To: next})
	c.logf("Changed to state: %s", next)

	switch next {
	case StateStartPowerOn:
		c.logf("Powering on generator (attempt %d/%d)", c.startAttempts+1, MaxStartAttempts)
		c.setRelay(RelayPowerOn, On)
	case StateStartChokeOn:
		c.setRelay(RelayChoke, On)
	case StateStartCranking:
		c.setRelay(RelayStarter, On)
	case StateCheckRunning:
		c.checkFailed = false
	case StateRunningWaitATS:
		c.lowVoltLogged = false
	case StateCoolingDown:
		c.setRelay(RelayATS, Off)
		c.atsEngaged = false
	case StateShuttingDown:
		for _, r := range Relays() {
			c.setRelay(r, Off)
		}
		c.atsEngaged = false
		c.generatorRunning = false
		c.gridWasLost = false
		c.gridRestorePending = false
		c.gridRestoreTime = 0
		c.logf("Generator shut down. Returning to IDLE.")
	}
}

func (c *Controller) setRelay(r Relay, l Level) {
	c.relays[r] = l
	c.out = append(c.out, Effect{Kind: EffectRelay, Relay: r, Level: l})
}

func (c *Controller) logf(format string, args ...any) {
	c.out = append(c.out, Effect{Kind: EffectLog, Text: fmt.Sprintf(format, args...)})
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// StartAttempts returns the number of failed start checks in the current sequence.
func (c *Controller) StartAttempts() int {
	return c.startAttempts
}

// Status returns a snapshot of the controller's state.
func (c *Controller) Status() Status {
	return Status{
		State:              c.state,
		StateSince:         c.stateStart,
		Elapsed:            c.elapsed(),
		GridPresent:        c.gridPresent,
		GeneratorConfirmed: c.generatorConfirmed,
		GridBaselined:      c.grid.Baselined(),
		GenBaselined:       c.gen.Baselined(),
		GridVoltage:        c.gridVoltage,
		GenVoltage:         c.genVoltage,
		StartAttempts:      c.startAttempts,
		ATSEngaged:         c.atsEngaged,
		GeneratorRunning:   c.generatorRunning,
		GridWasLost:        c.gridWasLost,
		GridRestorePending: c.gridRestorePending,
		Relays:             c.relays,
		Transitions:        c.transitions,
	}
}

func presentAbsent(b bool) string {
	if b {
		return "PRESENT"
	}
	return "ABSENT"
}

func runningStopped(b bool) string {
	if b {
		return "RUNNING"
	}
	return "STOPPED"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
