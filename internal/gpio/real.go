//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/generator-ats/internal/logic"
)

const chipName = "gpiochip0"

// RealReader reads the sense loops from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip    *gpiocdev.Chip
	gridOut *gpiocdev.Line
	gridIn  *gpiocdev.Line
	genOut  *gpiocdev.Line
	genIn   *gpiocdev.Line
}

// NewRealReader requests the sense lines on actual Raspberry Pi hardware.
// The drive pins are set high and the inputs pulled up, so a closed loop
// reads low.
func NewRealReader(pins SensePins) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealReader{chip: chip}

	if r.gridOut, err = chip.RequestLine(pins.GridOut, gpiocdev.AsOutput(1)); err != nil {
		r.Close()
		return nil, fmt.Errorf("request grid sense out pin %d: %w", pins.GridOut, err)
	}
	if r.genOut, err = chip.RequestLine(pins.GenOut, gpiocdev.AsOutput(1)); err != nil {
		r.Close()
		return nil, fmt.Errorf("request gen sense out pin %d: %w", pins.GenOut, err)
	}
	if r.gridIn, err = chip.RequestLine(pins.GridIn, gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
		r.Close()
		return nil, fmt.Errorf("request grid sense in pin %d: %w", pins.GridIn, err)
	}
	if r.genIn, err = chip.RequestLine(pins.GenIn, gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
		r.Close()
		return nil, fmt.Errorf("request gen sense in pin %d: %w", pins.GenIn, err)
	}

	return r, nil
}

// Read returns the logical sense states.
// Inverts raw GPIO: raw low (0) = present/running, raw high (1) = absent/stopped.
func (r *RealReader) Read() (bool, bool, error) {
	gridRaw, err := r.gridIn.Value()
	if err != nil {
		return false, false, fmt.Errorf("read grid sense pin: %w", err)
	}

	genRaw, err := r.genIn.Value()
	if err != nil {
		return false, false, fmt.Errorf("read gen sense pin: %w", err)
	}

	return gridRaw == 0, genRaw == 0, nil
}

// Close releases GPIO resources.
// Drive pins are returned to inputs with pull-down (matching Pi boot defaults)
// before closing.
func (r *RealReader) Close() error {
	var errs []error

	for _, l := range []struct {
		name string
		line *gpiocdev.Line
	}{
		{"grid sense out", r.gridOut},
		{"gen sense out", r.genOut},
		{"grid sense in", r.gridIn},
		{"gen sense in", r.genIn},
	} {
		if l.line == nil {
			continue
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l.name, err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l.name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealRelays drives relay outputs on GPIO lines.
type RealRelays struct {
	chip      *gpiocdev.Chip
	lines     [logic.NumRelays]*gpiocdev.Line
	activeLow bool
}

// NewRealRelays requests every relay line as an output, initially off.
func NewRealRelays(pins [logic.NumRelays]int, activeLow bool) (*RealRelays, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	rr := &RealRelays{chip: chip, activeLow: activeLow}
	off := PinValue(logic.Off, activeLow)
	for _, relay := range logic.Relays() {
		line, err := chip.RequestLine(pins[relay], gpiocdev.AsOutput(off))
		if err != nil {
			rr.Close()
			return nil, fmt.Errorf("request %s relay pin %d: %w", relay, pins[relay], err)
		}
		rr.lines[relay] = line
	}
	return rr, nil
}

// Set drives relay r to level l.
func (rr *RealRelays) Set(r logic.Relay, l logic.Level) error {
	if err := rr.lines[r].SetValue(PinValue(l, rr.activeLow)); err != nil {
		return fmt.Errorf("set %s relay %s: %w", r, l, err)
	}
	return nil
}

// Close turns every relay off and releases the lines.
func (rr *RealRelays) Close() error {
	var errs []error
	off := PinValue(logic.Off, rr.activeLow)

	for relay, line := range rr.lines {
		if line == nil {
			continue
		}
		if err := line.SetValue(off); err != nil {
			errs = append(errs, fmt.Errorf("switch off %s relay: %w", logic.Relay(relay), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s relay pin: %w", logic.Relay(relay), err))
		}
	}
	if rr.chip != nil {
		if err := rr.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
