package console

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (c *closingBuffer) Close() error {
	c.closed = true
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("port unplugged")
}

func TestStdLogWritesPrefixedLine(t *testing.T) {
	var buf bytes.Buffer
	s := StdLog{Logger: log.New(&buf, "", 0)}

	require.NoError(t, s.WriteLine("0:00:01 - Changed to state: IDLE"))
	assert.Equal(t, "event: 0:00:01 - Changed to state: IDLE\n", buf.String())
}

func TestSerialWritesCRLF(t *testing.T) {
	var buf closingBuffer
	s := NewSerial(&buf)

	require.NoError(t, s.WriteLine("a"))
	require.NoError(t, s.WriteLine("b"))
	assert.Equal(t, "a\r\nb\r\n", buf.String())

	require.NoError(t, s.Close())
	assert.True(t, buf.closed)
	assert.Error(t, s.WriteLine("c"))
}

func TestSerialWithoutCloser(t *testing.T) {
	var buf bytes.Buffer
	s := NewSerial(&buf)
	require.NoError(t, s.WriteLine("x"))
	assert.NoError(t, s.Close())
}

func TestSerialWriteError(t *testing.T) {
	s := NewSerial(failingWriter{})
	err := s.WriteLine("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port unplugged")
}

func TestOpenSerialMissingPort(t *testing.T) {
	_, err := OpenSerial("/dev/does-not-exist-ats", 0)
	assert.Error(t, err)
}
