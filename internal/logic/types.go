// Package logic contains the pure decision engine for the bathroom fan.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time, the humidity sensor and the alert sink are injected at construction.
package logic

import (
	"errors"
	"time"
)

// State represents the activation state of the fan.
type State string

const (
	StateIdle   State = "IDLE"
	StateActive State = "ACTIVE"
)

// EventType represents a fan state transition.
type EventType string

const (
	EventFanOn  EventType = "FAN_ON"
	EventFanOff EventType = "FAN_OFF"
)

// OffReason explains why an active fan was switched off.
type OffReason string

const (
	ReasonRecovered     OffReason = "RECOVERED"
	ReasonSafetyCeiling OffReason = "SAFETY_CEILING"
)

// SensorError classifies a failed humidity read.
type SensorError int

const (
	SensorUnknown SensorError = iota
	SensorChecksumMismatch
	SensorTimeout
)

func (e SensorError) Error() string {
	return "sensor: " + e.String()
}

// String returns the upper-case name used in logs and payloads.
func (e SensorError) String() string {
	switch e {
	case SensorChecksumMismatch:
		return "CHECKSUM_MISMATCH"
	case SensorTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// ClassifySensorError maps an arbitrary read error onto a SensorError.
// Errors that do not wrap a SensorError are reported as SensorUnknown.
func ClassifySensorError(err error) SensorError {
	var se SensorError
	if errors.As(err, &se) {
		return se
	}
	return SensorUnknown
}

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function such as time.Now to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// Sensor yields a single relative humidity reading in percent.
type Sensor interface {
	Read() (float64, error)
}

// Alerter is notified of sensor failures. Calls are fire-and-forget.
type Alerter interface {
	Notify(err SensorError)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(err SensorError)

// Notify calls f.
func (f AlerterFunc) Notify(err SensorError) { f(err) }

// Event represents a fan transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Reason    OffReason // FAN_OFF only

	ShortAvg       float64
	LongAvg        float64
	Trigger        float64
	ReturnBaseline float64
	ActiveFor      time.Duration // FAN_OFF only
}

// EventCounts tracks activity since startup.
type EventCounts struct {
	FanOn         int
	Recovered     int
	SafetyCeiling int
	Samples       int
	SensorErrors  int
}

// Status is a point-in-time view of the controller.
// It is a value type and safe to hand to other goroutines.
type Status struct {
	State          State
	Humidity       float64
	ShortAvg       float64
	LongAvg        float64
	Trigger        float64
	ReturnBaseline float64
	ActivatedAt    time.Time
	LastSampleAt   time.Time
	Sampled        bool
	Filled         int
	Capacity       int
	LastError      *SensorError
	Counts         EventCounts
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Status    Status
}
