//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/generator-ats/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(SensePins) (*RealReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read() (bool, bool, error) {
	return false, false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}

// RealRelays is not available on non-Linux platforms.
type RealRelays struct{}

// NewRealRelays returns an error on non-Linux platforms.
func NewRealRelays([logic.NumRelays]int, bool) (*RealRelays, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (rr *RealRelays) Set(logic.Relay, logic.Level) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (rr *RealRelays) Close() error {
	return nil
}
