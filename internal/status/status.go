// Package status provides a thread-safe status tracker for the bathfan daemon.
// It is written by the control loop and read by HTTP handlers and MQTT events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/bathfan/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	SamplingPeriod time.Duration
	MaxRun         time.Duration
	Capacity       int
	ShortWindow    int
	LongWindow     int
	HeartbeatMs    int64
	Sensor         string
	Broker         string
	HTTPAddr       string
	BootID         string // changes on every start
}

// ConfigFrom copies the controller tuning into a display Config.
func ConfigFrom(cfg logic.Config) Config {
	return Config{
		SamplingPeriod: cfg.SamplingPeriod,
		MaxRun:         cfg.MaxRunDuration,
		Capacity:       cfg.Capacity,
		ShortWindow:    cfg.ShortWindow,
		LongWindow:     cfg.LongWindow,
	}
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Controller    logic.Status
	FanOn         bool // level last written to the relay
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
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
			StartTime:  startTime,
			Config:     cfg,
			Controller: logic.Status{State: logic.StateIdle},
		},
		now: time.Now,
	}
}

// Update records the controller status and the relay level.
// Called from the control loop after every evaluation.
func (t *Tracker) Update(s logic.Status, fanOn bool) {
	t.mu.Lock()
	t.snap.Controller = s
	t.snap.FanOn = fanOn
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
