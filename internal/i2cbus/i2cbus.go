// Package i2cbus opens the I2C bus shared by the ADC and the relay expander.
package i2cbus

import (
	"fmt"
	"sync"

	"github.com/reef-pi/rpi/i2c"
)

// Bus is the subset of reef-pi's i2c.Bus used by the device drivers.
type Bus interface {
	ReadBytes(addr byte, num int) ([]byte, error)
	WriteBytes(addr byte, value []byte) error
	ReadFromReg(addr, reg byte, value []byte) error
	WriteToReg(addr, reg byte, value []byte) error
	Close() error
}

// Open opens the system I2C bus. The returned bus serializes transactions so
// the ADC and expander can share it.
func Open() (Bus, error) {
	b, err := i2c.New()
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}
	return Locked(b), nil
}

// Locked wraps b so that each call holds a mutex.
func Locked(b Bus) Bus {
	return &lockedBus{bus: b}
}

type lockedBus struct {
	mu  sync.Mutex
	bus Bus
}

func (l *lockedBus) ReadBytes(addr byte, num int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bus.ReadBytes(addr, num)
}

func (l *lockedBus) WriteBytes(addr byte, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bus.WriteBytes(addr, value)
}

func (l *lockedBus) ReadFromReg(addr, reg byte, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bus.ReadFromReg(addr, reg, value)
}

func (l *lockedBus) WriteToReg(addr, reg byte, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bus.WriteToReg(addr, reg, value)
}

func (l *lockedBus) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bus.Close()
}
