// Package analog reads the grid and generator voltage channels from an
// ADS1115 ADC and reports them as 10-bit equivalent counts.
package analog

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sweeney/generator-ats/internal/i2cbus"
)

// Reader reads both voltage channels.
type Reader interface {
	// Read returns the raw grid and generator counts, nominally [0,1023].
	// Values outside that range are passed through for the caller to clamp.
	Read() (gridRaw, genRaw int, err error)
}

// DefaultAddress is the ADS1115 address with ADDR tied to GND.
const DefaultAddress = 0x48

// Default channel assignment
const (
	DefaultGenChannel  = 0
	DefaultGridChannel = 1
)

const (
	regConversion = 0x00
	regConfig     = 0x01

	configOsSingle      uint16 = 0x8000
	configMuxSingle0    uint16 = 0x4000 // AIN0 vs GND; AINn adds n<<12
	configGainTwoThirds uint16 = 0x0000 // +/- 6.144V
	configModeSingle    uint16 = 0x0100
	configDataRate860   uint16 = 0x00E0
	configCompQueueNone uint16 = 0x0003

	fullScaleMillivolts = 6144
	refMillivolts       = 5000
	tenBitMax           = 1023

	// conversion poll limits (860SPS is ~1.2ms). A stuck converter must
	// give up well inside one 10ms control tick.
	convTimeout  = 4 * time.Millisecond
	convPollWait = 200 * time.Microsecond
)

// ADS1115 reads two single-ended channels in single-shot mode.
type ADS1115 struct {
	bus     i2cbus.Bus
	addr    byte
	gridCh  int
	genCh   int
	timeout time.Duration
}

// New creates a reader for the ADC at addr.
func New(bus i2cbus.Bus, addr byte, gridCh, genCh int) (*ADS1115, error) {
	for _, ch := range []int{gridCh, genCh} {
		if ch < 0 || ch > 3 {
			return nil, fmt.Errorf("ads1115: no analog input channel %d", ch)
		}
	}
	if gridCh == genCh {
		return nil, fmt.Errorf("ads1115: grid and generator share channel %d", gridCh)
	}
	return &ADS1115{
		bus:     bus,
		addr:    addr,
		gridCh:  gridCh,
		genCh:   genCh,
		timeout: convTimeout,
	}, nil
}

// Read converts both channels.
func (a *ADS1115) Read() (int, int, error) {
	grid, err := a.ReadChannel(a.gridCh)
	if err != nil {
		return 0, 0, fmt.Errorf("grid channel: %w", err)
	}
	gen, err := a.ReadChannel(a.genCh)
	if err != nil {
		return 0, 0, fmt.Errorf("gen channel: %w", err)
	}
	return ToTenBit(grid), ToTenBit(gen), nil
}

// ReadChannel performs one single-shot conversion and returns raw ADC counts.
func (a *ADS1115) ReadChannel(ch int) (int16, error) {
	config := configOsSingle |
		(configMuxSingle0 + uint16(ch)<<12) |
		configGainTwoThirds |
		configModeSingle |
		configDataRate860 |
		configCompQueueNone

	buf := []byte{byte(config >> 8), byte(config)}
	if err := a.bus.WriteToReg(a.addr, regConfig, buf); err != nil {
		return 0, fmt.Errorf("ads1115: write config: %w", err)
	}

	deadline := time.Now().Add(a.timeout)
	cfg := make([]byte, 2)
	for {
		if err := a.bus.ReadFromReg(a.addr, regConfig, cfg); err != nil {
			return 0, fmt.Errorf("ads1115: read config: %w", err)
		}
		last := binary.BigEndian.Uint16(cfg)
		if last&configOsSingle != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("ads1115: conversion timeout (last cfg=0x%04X)", last)
		}
		time.Sleep(convPollWait)
	}

	b := make([]byte, 2)
	if err := a.bus.ReadFromReg(a.addr, regConversion, b); err != nil {
		return 0, fmt.Errorf("ads1115: read conversion: %w", err)
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// ToTenBit rescales raw counts at the 6.144V range to the 0-1023 scale of a
// 5V 10-bit converter. The result is not clamped.
func ToTenBit(raw int16) int {
	return int(int64(raw) * fullScaleMillivolts * tenBitMax / (32768 * refMillivolts))
}
