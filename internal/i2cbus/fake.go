package i2cbus

import (
	"fmt"
	"sync"
)

// Write is one recorded bus write.
type Write struct {
	Addr   byte
	Reg    byte // only meaningful when HasReg
	Data   []byte
	HasReg bool
}

// FakeBus is an in-memory bus for driver tests. Register reads are served
// from Regs; plain reads from Reads.
type FakeBus struct {
	mu sync.Mutex

	// Regs holds register contents keyed by device address then register.
	Regs map[byte]map[byte][]byte

	// Reads holds the bytes returned by ReadBytes keyed by device address.
	Reads map[byte][]byte

	// OnWriteReg, if set, is called after every register write with the
	// lock released. Tests use it to emulate device side effects.
	OnWriteReg func(addr, reg byte, data []byte)

	// Err, if set, fails every call.
	Err error

	writes []Write
	closed bool
}

// NewFakeBus returns an empty fake bus.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		Regs:  map[byte]map[byte][]byte{},
		Reads: map[byte][]byte{},
	}
}

// SetReg stores the contents of a device register.
func (f *FakeBus) SetReg(addr, reg byte, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Regs[addr] == nil {
		f.Regs[addr] = map[byte][]byte{}
	}
	f.Regs[addr][reg] = append([]byte(nil), data...)
}

func (f *FakeBus) ReadBytes(addr byte, num int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	b, ok := f.Reads[addr]
	if !ok {
		return nil, fmt.Errorf("fake i2c: no device at 0x%02X", addr)
	}
	if len(b) > num {
		b = b[:num]
	}
	return append([]byte(nil), b...), nil
}

func (f *FakeBus) WriteBytes(addr byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.writes = append(f.writes, Write{Addr: addr, Data: append([]byte(nil), value...)})
	return nil
}

func (f *FakeBus) ReadFromReg(addr, reg byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	b, ok := f.Regs[addr][reg]
	if !ok {
		return fmt.Errorf("fake i2c: no register 0x%02X at 0x%02X", reg, addr)
	}
	copy(value, b)
	return nil
}

func (f *FakeBus) WriteToReg(addr, reg byte, value []byte) error {
	f.mu.Lock()
	if f.Err != nil {
		f.mu.Unlock()
		return f.Err
	}
	data := append([]byte(nil), value...)
	f.writes = append(f.writes, Write{Addr: addr, Reg: reg, Data: data, HasReg: true})
	hook := f.OnWriteReg
	f.mu.Unlock()

	if hook != nil {
		hook(addr, reg, data)
	}
	return nil
}

func (f *FakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Writes returns every recorded write.
func (f *FakeBus) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Closed reports whether Close was called.
func (f *FakeBus) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
