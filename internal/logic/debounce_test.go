package logic

import (
	"math/rand"
	"testing"
)

func TestNewDebouncer(t *testing.T) {
	d := NewDebouncer(1000)
	if d.Value() {
		t.Error("new debouncer should report false")
	}
	if d.Baselined() {
		t.Error("new debouncer should not be baselined")
	}
	if d.Stable() {
		t.Error("new debouncer should not be stable")
	}
}

func TestDebouncerRequiresStrictlyLongerThanDelay(t *testing.T) {
	d := NewDebouncer(0)

	if d.Observe(true, 0) {
		t.Error("t=0: unexpected change")
	}
	if d.Observe(true, 50) {
		t.Error("t=50: change after exactly the debounce delay, want strictly longer")
	}
	if d.Value() {
		t.Error("t=50: value adopted too early")
	}
	if !d.Observe(true, 51) {
		t.Error("t=51: expected change")
	}
	if !d.Value() {
		t.Error("t=51: expected value true")
	}
	if !d.Baselined() {
		t.Error("t=51: expected baselined")
	}
}

func TestDebouncerReportsChangeOnce(t *testing.T) {
	d := NewDebouncer(0)
	changes := 0
	for now := Millis(0); now <= 1000; now += 10 {
		if d.Observe(true, now) {
			changes++
		}
	}
	if changes != 1 {
		t.Errorf("changes: got %d, want 1", changes)
	}
}

func TestDebouncerSettlingOnInitialValueIsNotAChange(t *testing.T) {
	d := NewDebouncer(0)
	for now := Millis(0); now <= 200; now += 10 {
		if d.Observe(false, now) {
			t.Fatalf("t=%d: unexpected change event", now)
		}
	}
	if !d.Baselined() {
		t.Error("expected baselined after holding false")
	}
	if d.Value() {
		t.Error("expected value false")
	}
}

func TestDebouncerFlappingNeverChanges(t *testing.T) {
	d := NewDebouncer(0)
	raw := false
	for now := Millis(0); now <= 2000; now += 30 {
		raw = !raw
		if d.Observe(raw, now) {
			t.Fatalf("t=%d: value changed while input flapping every 30ms", now)
		}
	}
	if d.Baselined() {
		t.Error("should never baseline while flapping")
	}
}

func TestDebouncerRetainsValueWhileUnstable(t *testing.T) {
	d := NewDebouncer(0)
	d.Observe(true, 0)
	d.Observe(true, 60)
	if !d.Value() {
		t.Fatal("setup: expected value true")
	}

	// Glitch low for 40ms
	d.Observe(false, 100)
	if !d.Value() {
		t.Error("t=100: stable value lost during glitch")
	}
	if d.Stable() {
		t.Error("t=100: expected unstable during glitch")
	}
	d.Observe(false, 140)
	if !d.Value() {
		t.Error("t=140: stable value lost during glitch")
	}

	// Back high; settling on the old value is not a change
	if d.Observe(true, 140+10) {
		t.Error("t=150: unexpected change")
	}
	for now := Millis(160); now <= 400; now += 10 {
		if d.Observe(true, now) {
			t.Fatalf("t=%d: glitch produced a change event", now)
		}
	}
	if !d.Value() {
		t.Error("expected value true after glitch")
	}
}

func TestDebouncerAcrossCounterWrap(t *testing.T) {
	start := Millis(0xFFFFFFFF - 20)
	d := NewDebouncer(start)
	d.Observe(true, start)
	if d.Observe(true, start+40) {
		t.Error("changed before debounce window elapsed across wrap")
	}
	if !d.Observe(true, start+60) {
		t.Error("expected change 60ms after start across wrap")
	}
}

// TestDebouncerChangesOnlyAfterQuietWindow feeds a pseudo-random input and
// checks that every reported change follows more than DebounceDelay of
// constant raw input ending in the new value.
func TestDebouncerChangesOnlyAfterQuietWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	d := NewDebouncer(0)

	raw := false
	lastRawChange := Millis(0)
	prev := d.Value()

	for now := Millis(0); now < 60000; now += 10 {
		if rng.Intn(8) == 0 {
			raw = !raw
		}
		if raw != d.reading {
			lastRawChange = now
		}

		changed := d.Observe(raw, now)
		if changed {
			if now.Sub(lastRawChange) <= DebounceDelay {
				t.Fatalf("t=%d: changed only %dms after raw change", now, now.Sub(lastRawChange))
			}
			if d.Value() != raw {
				t.Fatalf("t=%d: adopted %v, raw is %v", now, d.Value(), raw)
			}
			if d.Value() == prev {
				t.Fatalf("t=%d: change reported without value change", now)
			}
		} else if d.Value() != prev {
			t.Fatalf("t=%d: value changed without change event", now)
		}
		prev = d.Value()
	}
}
