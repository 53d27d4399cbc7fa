// Package eventlog keeps the last few controller events in memory and echoes
// each one to a set of line sinks.
package eventlog

import (
	"fmt"
	"log"
	"sync"

	"github.com/sweeney/generator-ats/internal/logic"
)

const (
	// Capacity is the number of entries retained. Older entries are overwritten.
	Capacity = 10

	// MaxTextLen is the longest event text kept, in characters.
	MaxTextLen = 49
)

// Sink receives every recorded line. Writes are best-effort.
type Sink interface {
	WriteLine(line string) error
}

// Entry is one recorded event.
type Entry struct {
	// Slot is the entry's age position in a dump: Capacity-1 is the newest.
	Slot int
	At   logic.Millis
	Text string
}

// Line renders the entry the way sinks receive it.
func (e Entry) Line() string {
	return FormatClock(e.At) + " - " + e.Text
}

// Log is a fixed-size circular event log. Record is expected from a single
// writer; Dump and Len may be called concurrently with it.
type Log struct {
	mu    sync.RWMutex
	slots [Capacity]Entry
	used  [Capacity]bool
	next  int
	total int

	sinks []Sink
}

// New creates an empty log writing to the given sinks.
func New(sinks ...Sink) *Log {
	return &Log{sinks: sinks}
}

// Record truncates text, stamps it with now, stores it in the next slot and
// writes it to every sink. A failing sink is logged and skipped.
func (l *Log) Record(now logic.Millis, text string) Entry {
	e := Entry{Slot: Capacity - 1, At: now, Text: truncate(text)}

	l.mu.Lock()
	l.slots[l.next] = e
	l.used[l.next] = true
	l.next = (l.next + 1) % Capacity
	l.total++
	l.mu.Unlock()

	line := e.Line()
	for _, s := range l.sinks {
		if err := s.WriteLine(line); err != nil {
			log.Printf("eventlog: sink write failed: %v", err)
		}
	}
	return e
}

// Dump returns the populated entries oldest first. Each entry's Slot is its
// position counted from the oldest possible slot, so a partly filled log
// numbers its entries from Capacity-Len.
func (l *Log) Dump() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, Capacity)
	for i := 0; i < Capacity; i++ {
		idx := (l.next + i) % Capacity
		if !l.used[idx] {
			continue
		}
		e := l.slots[idx]
		e.Slot = i
		out = append(out, e)
	}
	return out
}

// Len returns the number of populated slots.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.total > Capacity {
		return Capacity
	}
	return l.total
}

// Total returns the number of entries ever recorded.
func (l *Log) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// FormatClock renders a millisecond counter as H:MM:SS, wrapping every 24 hours.
func FormatClock(m logic.Millis) string {
	secs := uint32(m) / 1000
	return fmt.Sprintf("%d:%02d:%02d", (secs/3600)%24, (secs/60)%60, secs%60)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxTextLen {
		return s
	}
	return string(r[:MaxTextLen])
}
