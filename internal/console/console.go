// Package console provides event-log sinks for the process log and a serial
// console.
package console

import (
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the controller's historical console speed.
const DefaultBaudRate = 9600

// StdLog writes event lines to a standard logger.
type StdLog struct {
	// Logger defaults to the standard logger when nil.
	Logger *log.Logger
}

// WriteLine logs line with an "event:" prefix.
func (s StdLog) WriteLine(line string) error {
	if s.Logger != nil {
		s.Logger.Printf("event: %s", line)
		return nil
	}
	log.Printf("event: %s", line)
	return nil
}

// Serial writes CRLF-terminated lines to a serial port or any other writer.
type Serial struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewSerial wraps w. If w is also an io.Closer, Close closes it.
func NewSerial(w io.Writer) *Serial {
	s := &Serial{w: w}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// OpenSerial opens the named port at baud (8N1).
func OpenSerial(name string, baud int) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return NewSerial(port), nil
}

// WriteLine writes line followed by CRLF.
func (s *Serial) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return fmt.Errorf("serial console closed")
	}
	if _, err := io.WriteString(s.w, line+"\r\n"); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Close closes the underlying port. Later writes fail.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = nil
	if s.c == nil {
		return nil
	}
	err := s.c.Close()
	s.c = nil
	return err
}
