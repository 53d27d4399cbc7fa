package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/generator-ats/internal/logic"
)

// FakeReader is a test double that returns scripted sense values.
type FakeReader struct {
	// Samples contains scripted (grid, gen) values to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample represents a single sense reading (already in logical form).
type Sample struct {
	Grid bool // true = grid present
	Gen  bool // true = generator running
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, bool, error) {
	if f.ReadError != nil {
		return false, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.Grid, sample.Gen, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// RelayWrite is one recorded Set call.
type RelayWrite struct {
	Relay logic.Relay
	Level logic.Level
}

// FakeRelays records relay writes.
type FakeRelays struct {
	mu     sync.Mutex
	levels [logic.NumRelays]logic.Level
	writes []RelayWrite
	closed bool

	// SetError, if set, is returned by Set and the write is not applied.
	SetError error
}

// NewFakeRelays creates a relay bank with every relay off.
func NewFakeRelays() *FakeRelays {
	return &FakeRelays{}
}

// Set records the write and updates the relay level.
func (f *FakeRelays) Set(r logic.Relay, l logic.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.levels[r] = l
	f.writes = append(f.writes, RelayWrite{Relay: r, Level: l})
	return nil
}

// Close turns every relay off and marks the bank closed.
func (f *FakeRelays) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.levels {
		f.levels[i] = logic.Off
	}
	f.closed = true
	return nil
}

// Level returns the current level of r.
func (f *FakeRelays) Level(r logic.Relay) logic.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[r]
}

// Levels returns every relay level.
func (f *FakeRelays) Levels() [logic.NumRelays]logic.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels
}

// Writes returns a copy of every recorded write.
func (f *FakeRelays) Writes() []RelayWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RelayWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

// Closed reports whether Close was called.
func (f *FakeRelays) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
