// Package expander drives the controller relays through a PCF8575 16-bit
// I2C port expander.
//
// The PCF8575 has no registers. Every write is 2 bytes (LSB first) setting
// the latch for all 16 pins: bit=1 releases the pin high, bit=0 drives it low.
package expander

import (
	"fmt"
	"log"
	"sync"

	"github.com/sweeney/generator-ats/internal/i2cbus"
	"github.com/sweeney/generator-ats/internal/logic"
)

// DefaultAddress is the PCF8575 address with A0-A2 tied low.
const DefaultAddress = 0x20

// DefaultPins maps each relay to an expander bit.
func DefaultPins() [logic.NumRelays]int {
	return [logic.NumRelays]int{
		logic.RelayPowerOn: 0,
		logic.RelayChoke:   1,
		logic.RelayStarter: 2,
		logic.RelayATS:     3,
	}
}

// Relays is a relay bank on one expander.
type Relays struct {
	bus  i2cbus.Bus
	addr byte
	pins [logic.NumRelays]int

	// activeLow relays energize when their pin is driven low.
	activeLow bool

	mu sync.Mutex
	// shadow holds the last latch written to the chip.
	shadow uint16
}

// New validates the pin map and writes a latch with every relay off.
func New(bus i2cbus.Bus, addr byte, pins [logic.NumRelays]int, activeLow bool) (*Relays, error) {
	seen := map[int]logic.Relay{}
	for _, r := range logic.Relays() {
		p := pins[r]
		if p < 0 || p > 15 {
			return nil, fmt.Errorf("pcf8575 addr=0x%02X: invalid pin %d for %s relay", addr, p, r)
		}
		if other, ok := seen[p]; ok {
			return nil, fmt.Errorf("pcf8575 addr=0x%02X: pin %d shared by %s and %s", addr, p, other, r)
		}
		seen[p] = r
	}

	e := &Relays{bus: bus, addr: addr, pins: pins, activeLow: activeLow, shadow: 0xFFFF}
	for _, r := range logic.Relays() {
		e.shadow = e.latch(e.shadow, r, logic.Off)
	}
	if err := e.write(e.shadow); err != nil {
		return nil, err
	}
	return e, nil
}

// latch returns shadow with relay r's bit set for level l.
func (e *Relays) latch(shadow uint16, r logic.Relay, l logic.Level) uint16 {
	mask := uint16(1) << e.pins[r]
	released := bool(l) != e.activeLow
	if released {
		return shadow | mask
	}
	return shadow &^ mask
}

func (e *Relays) write(v uint16) error {
	b := []byte{byte(v & 0xFF), byte(v >> 8)}
	if err := e.bus.WriteBytes(e.addr, b); err != nil {
		return fmt.Errorf("pcf8575 addr=0x%02X: write latch=0x%04X: %w", e.addr, v, err)
	}
	return nil
}

// Set drives relay r to l. The chip is only written when the latch changes.
func (e *Relays) Set(r logic.Relay, l logic.Level) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.latch(e.shadow, r, l)
	if next == e.shadow {
		return nil
	}
	if err := e.write(next); err != nil {
		return err
	}
	e.shadow = next
	return nil
}

// Latch returns the last value written to the chip.
func (e *Relays) Latch() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shadow
}

// Close switches every relay off and releases the remaining pins.
func (e *Relays) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := uint16(0xFFFF)
	for _, r := range logic.Relays() {
		v = e.latch(v, r, logic.Off)
	}
	if err := e.write(v); err != nil {
		log.Printf("expander: close: %v", err)
		return err
	}
	e.shadow = v
	return nil
}
