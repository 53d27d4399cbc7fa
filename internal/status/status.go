// Package status provides a thread-safe status tracker for the generator-ats
// daemon. It is written by the control loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/generator-ats/internal/eventlog"
	"github.com/sweeney/generator-ats/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs       int64
	HeartbeatMs  int64
	Broker       string
	HTTPPort     string
	WSBroker     string // Websocket broker URL for browser MQTT (empty = disabled)
	RelayBackend string
	SerialPort   string // empty = no serial console
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Controller    logic.Status
	Log           []eventlog.Entry
	Updated       bool // at least one controller update has been received
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether both sense inputs have settled since startup.
func (s Snapshot) Ready() bool {
	return s.Updated && s.Controller.GridBaselined && s.Controller.GenBaselined
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update sets the controller status and event log contents.
// Called from runLoop on every tick.
func (t *Tracker) Update(st logic.Status, log []eventlog.Entry) {
	t.mu.Lock()
	t.snap.Controller = st
	t.snap.Log = log
	t.snap.Updated = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Log = append([]eventlog.Entry(nil), t.snap.Log...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
