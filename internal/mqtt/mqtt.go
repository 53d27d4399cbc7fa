// Package mqtt publishes controller telemetry to MQTT, with an abstraction
// for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/generator-ats/internal/logic"
)

// Topics
const (
	// TopicEvents carries state transitions.
	TopicEvents = "energy/generator/ats/events"

	// TopicLog carries every event-log line.
	TopicLog = "energy/generator/ats/log"

	// TopicSystem carries process lifecycle events.
	TopicSystem = "energy/generator/ats/system"
)

// Publisher publishes telemetry to MQTT. Publishing never blocks the control
// loop; failures are returned or logged and must not crash the process.
type Publisher interface {
	// Publish sends a state transition.
	Publish(event StateEvent) error

	// PublishLog sends one event-log line.
	PublishLog(line LogLine) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StateEvent is a controller state transition with the readings that caused it.
type StateEvent struct {
	Timestamp time.Time
	From      logic.State
	To        logic.State
	Status    logic.Status
}

// LogLine is one event-log entry.
type LogLine struct {
	Timestamp time.Time
	Clock     string // controller clock, H:MM:SS
	Text      string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the state event message payload.
type Payload struct {
	Generator GeneratorPayload `json:"generator"`
}

// GeneratorPayload contains the transition details.
type GeneratorPayload struct {
	Timestamp     string  `json:"timestamp"`
	Event         string  `json:"event"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Grid          string  `json:"grid"`
	Generator     string  `json:"generator"`
	GenVoltage    float32 `json:"gen_voltage"`
	GridVoltage   float32 `json:"grid_voltage"`
	ATS           string  `json:"ats"`
	StartAttempts int     `json:"start_attempts"`
}

// FormatPayload creates the JSON payload for a state transition.
func FormatPayload(event StateEvent) ([]byte, error) {
	st := event.Status
	payload := Payload{
		Generator: GeneratorPayload{
			Timestamp:     event.Timestamp.UTC().Format(time.RFC3339),
			Event:         "TRANSITION",
			From:          event.From.String(),
			To:            event.To.String(),
			Grid:          presence(st.GridPresent, "PRESENT", "ABSENT"),
			Generator:     presence(st.GeneratorConfirmed, "RUNNING", "STOPPED"),
			GenVoltage:    logic.RoundVolts(st.GenVoltage),
			GridVoltage:   logic.RoundVolts(st.GridVoltage),
			ATS:           presence(st.ATSEngaged, "ENGAGED", "RELEASED"),
			StartAttempts: st.StartAttempts,
		},
	}
	return json.Marshal(payload)
}

func presence(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

// LogPayload represents the message payload for an event-log line.
type LogPayload struct {
	Log LogPayloadInner `json:"log"`
}

// LogPayloadInner contains the log line details.
type LogPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Clock     string `json:"clock"`
	Text      string `json:"text"`
}

// FormatLogPayload creates the JSON payload for an event-log line.
func FormatLogPayload(line LogLine) ([]byte, error) {
	return json.Marshal(LogPayload{
		Log: LogPayloadInner{
			Timestamp: line.Timestamp.UTC().Format(time.RFC3339),
			Clock:     line.Clock,
			Text:      line.Text,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
