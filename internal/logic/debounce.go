package logic

// DebounceDelay is how long a raw reading must hold before it is trusted.
// The reading must persist strictly longer than this.
const DebounceDelay Millis = 50

// Debouncer filters a noisy binary input into a stable value.
type Debouncer struct {
	// Last raw reading seen
	reading bool
	// Time the raw reading last changed
	lastChange Millis
	// Whether reading has held for the debounce window since it last changed
	stable bool
	// Last stabilized value; authoritative while unstable
	value bool
	// Whether any value has stabilized yet
	baselined bool
}

// NewDebouncer creates a debouncer whose raw reading is assumed false as of now.
func NewDebouncer(now Millis) *Debouncer {
	return &Debouncer{lastChange: now}
}

// Observe feeds a raw reading taken at now. It returns true when the
// stabilized value changed as a result of this reading.
func (d *Debouncer) Observe(raw bool, now Millis) bool {
	if raw != d.reading {
		d.reading = raw
		d.lastChange = now
		d.stable = false
	}

	if d.stable || now.Sub(d.lastChange) <= DebounceDelay {
		return false
	}

	d.stable = true
	changed := d.reading != d.value
	d.value = d.reading
	d.baselined = true
	return changed
}

// Value returns the last stabilized value.
func (d *Debouncer) Value() bool {
	return d.value
}

// Stable reports whether the raw reading currently matches a settled value.
func (d *Debouncer) Stable() bool {
	return d.stable
}

// Baselined reports whether any reading has stabilized since creation.
func (d *Debouncer) Baselined() bool {
	return d.baselined
}
