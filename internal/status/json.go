package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/generator-ats/internal/eventlog"
	"github.com/sweeney/generator-ats/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string            `json:"event,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	State         string            `json:"state"`
	StateSeconds  int64             `json:"state_seconds"`
	Ready         bool              `json:"ready"`
	Grid          string            `json:"grid"`
	Generator     string            `json:"generator"`
	GridVoltage   float32           `json:"grid_voltage"`
	GenVoltage    float32           `json:"gen_voltage"`
	ATSEngaged    bool              `json:"ats_engaged"`
	StartAttempts int               `json:"start_attempts"`
	Transitions   int               `json:"transitions"`
	Relays        map[string]string `json:"relays"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Network       *NetworkJSON      `json:"network,omitempty"`
	Config        ConfigJSON        `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs       int64  `json:"poll_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	HTTPPort     string `json:"http_port"`
	WSBroker     string `json:"ws_broker,omitempty"`
	RelayBackend string `json:"relay_backend"`
	SerialPort   string `json:"serial_port,omitempty"`
}

// LogJSON is the JSON envelope for the event log.
type LogJSON struct {
	Log []LogEntryJSON `json:"log"`
}

// LogEntryJSON is one event-log entry.
type LogEntryJSON struct {
	Slot  int    `json:"slot"`
	Clock string `json:"clock"`
	Text  string `json:"text"`
}

// GridLabel renders the grid sense state, or UNKNOWN before it has settled.
func GridLabel(snap Snapshot) string {
	if !snap.Updated || !snap.Controller.GridBaselined {
		return "UNKNOWN"
	}
	if snap.Controller.GridPresent {
		return "PRESENT"
	}
	return "ABSENT"
}

// GeneratorLabel renders the generator sense state, or UNKNOWN before it has settled.
func GeneratorLabel(snap Snapshot) string {
	if !snap.Updated || !snap.Controller.GenBaselined {
		return "UNKNOWN"
	}
	if snap.Controller.GeneratorConfirmed {
		return "RUNNING"
	}
	return "STOPPED"
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.Controller

	relays := make(map[string]string, logic.NumRelays)
	for _, r := range logic.Relays() {
		relays[r.String()] = st.Relays[r].String()
	}

	return StatusInner{
		State:         st.State.String(),
		StateSeconds:  int64(st.Elapsed / 1000),
		Ready:         snap.Ready(),
		Grid:          GridLabel(snap),
		Generator:     GeneratorLabel(snap),
		GridVoltage:   logic.RoundVolts(st.GridVoltage),
		GenVoltage:    logic.RoundVolts(st.GenVoltage),
		ATSEngaged:    st.ATSEngaged,
		StartAttempts: st.StartAttempts,
		Transitions:   st.Transitions,
		Relays:        relays,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:       snap.Config.PollMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPPort:     snap.Config.HTTPPort,
			WSBroker:     snap.Config.WSBroker,
			RelayBackend: snap.Config.RelayBackend,
			SerialPort:   snap.Config.SerialPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatLogJSON returns the event log, oldest first.
func FormatLogJSON(entries []eventlog.Entry) []byte {
	out := LogJSON{Log: make([]LogEntryJSON, 0, len(entries))}
	for _, e := range entries {
		out.Log = append(out.Log, LogEntryJSON{
			Slot:  e.Slot,
			Clock: eventlog.FormatClock(e.At),
			Text:  e.Text,
		})
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return data
}
