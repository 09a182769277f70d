// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/bathfan/internal/logic"
)

// Topic is the MQTT topic for fan transitions.
const Topic = "home/bathroom/fan/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/bathroom/fan/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventSensorError = "SENSOR_ERROR"
	EventOffline     = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a fan transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "SENSOR_ERROR"
	Reason     string // e.g., "SIGTERM", "TIMEOUT"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Fan FanPayload `json:"fan"`
}

// FanPayload contains the fan transition details.
type FanPayload struct {
	Timestamp      string  `json:"timestamp"`
	Event          string  `json:"event"`
	Reason         string  `json:"reason,omitempty"`
	ShortAvg       float64 `json:"short_avg"`
	LongAvg        float64 `json:"long_avg"`
	Trigger        float64 `json:"trigger"`
	ReturnBaseline float64 `json:"return_baseline"`
	ActiveSeconds  int64   `json:"active_seconds,omitempty"`
}

// FormatPayload creates the JSON payload for a fan event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Fan: FanPayload{
			Timestamp:      event.Timestamp.UTC().Format(time.RFC3339),
			Event:          string(event.Type),
			Reason:         string(event.Reason),
			ShortAvg:       round2(event.ShortAvg),
			LongAvg:        round2(event.LongAvg),
			Trigger:        round2(event.Trigger),
			ReturnBaseline: round2(event.ReturnBaseline),
			ActiveSeconds:  int64(event.ActiveFor.Truncate(time.Second).Seconds()),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, SENSOR_ERROR) that don't carry a full status snapshot.
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

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
