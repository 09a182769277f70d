package logic

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Defaults for Config. One reading every 30s; the long window covers an
// hour and the short window two minutes.
const (
	DefaultCapacity       = 120
	DefaultShortWindow    = 4
	DefaultLongWindow     = 120
	DefaultSamplingPeriod = 30 * time.Second
	DefaultMaxRunDuration = 7200 * time.Second
)

// Config holds controller tuning. All values are fixed for the controller's lifetime.
type Config struct {
	Capacity       int           // readings kept in history
	ShortWindow    int           // readings in the fast-moving average
	LongWindow     int           // readings in the baseline average
	SamplingPeriod time.Duration // minimum time between sensor reads
	MaxRunDuration time.Duration // safety ceiling on continuous running
	Threshold      ThresholdPolicy
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity,
		ShortWindow:    DefaultShortWindow,
		LongWindow:     DefaultLongWindow,
		SamplingPeriod: DefaultSamplingPeriod,
		MaxRunDuration: DefaultMaxRunDuration,
		Threshold:      DefaultThresholdPolicy(),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Capacity < 1:
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	case c.ShortWindow < 1:
		return fmt.Errorf("short window must be positive, got %d", c.ShortWindow)
	case c.LongWindow < 1:
		return fmt.Errorf("long window must be positive, got %d", c.LongWindow)
	case c.SamplingPeriod < 0:
		return fmt.Errorf("sampling period must not be negative, got %v", c.SamplingPeriod)
	case c.MaxRunDuration <= 0:
		return fmt.Errorf("max run duration must be positive, got %v", c.MaxRunDuration)
	}
	return nil
}

// Result describes one call to Step.
type Result struct {
	Active   bool // fan decision
	Sampled  bool // a reading was taken and processed
	Reading  float64
	ShortAvg float64
	LongAvg  float64
	Trigger  float64
	Event    *Event // non-nil when the state changed
	Err      error  // sensor failure, if any
}

// Controller decides whether the fan should run.
// Not safe for concurrent use; one goroutine must own it.
type Controller struct {
	cfg     Config
	clock   Clock
	sensor  Sensor
	alerter Alerter
	history *History

	state          State
	returnBaseline float64
	activatedAt    time.Time

	sampled      bool
	lastSampleAt time.Time

	lastReading float64
	shortAvg    float64
	longAvg     float64
	trigger     float64
	lastError   *SensorError
	counts      EventCounts
}

// NewController creates an idle controller with empty history.
// A nil alerter discards notifications.
func NewController(cfg Config, clock Clock, sensor Sensor, alerter Alerter) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if clock == nil {
		return nil, errors.New("nil clock")
	}
	if sensor == nil {
		return nil, errors.New("nil sensor")
	}
	if alerter == nil {
		alerter = AlerterFunc(func(SensorError) {})
	}
	return &Controller{
		cfg:     cfg,
		clock:   clock,
		sensor:  sensor,
		alerter: alerter,
		history: NewHistory(cfg.Capacity),
		state:   StateIdle,
	}, nil
}

// Evaluate returns true if the fan should run. It may be called at any
// frequency; sensor reads happen at most once per sampling period.
func (c *Controller) Evaluate() bool {
	return c.Step().Active
}

// Step runs one evaluation and reports what happened.
func (c *Controller) Step() Result {
	now := c.clock.Now()
	if c.sampled && now.Sub(c.lastSampleAt) < c.cfg.SamplingPeriod {
		return Result{Active: c.Active()}
	}

	v, err := c.sensor.Read()
	if err == nil && (math.IsNaN(v) || v < 0 || v > 100) {
		err = fmt.Errorf("humidity %v out of range: %w", v, SensorUnknown)
	}
	if err != nil {
		kind := ClassifySensorError(err)
		c.lastError = &kind
		c.counts.SensorErrors++
		c.alerter.Notify(kind)
		return Result{Active: c.Active(), Err: err}
	}

	c.sampled = true
	c.lastSampleAt = now
	c.lastReading = v
	c.lastError = nil
	c.counts.Samples++
	c.history.Push(v)
	c.shortAvg = c.history.Average(c.cfg.ShortWindow)
	c.longAvg = c.history.Average(c.cfg.LongWindow)
	c.trigger = c.cfg.Threshold.TriggerLevel(c.longAvg)

	event := c.transition(now)
	return Result{
		Active:   c.Active(),
		Sampled:  true,
		Reading:  v,
		ShortAvg: c.shortAvg,
		LongAvg:  c.longAvg,
		Trigger:  c.trigger,
		Event:    event,
	}
}

// transition runs the hysteresis state machine against the current averages.
func (c *Controller) transition(now time.Time) *Event {
	switch c.state {
	case StateIdle:
		if c.shortAvg > c.trigger {
			c.state = StateActive
			c.returnBaseline = c.longAvg
			c.activatedAt = now
			c.counts.FanOn++
			return c.event(now, EventFanOn, "")
		}
	case StateActive:
		if c.shortAvg < c.returnBaseline {
			c.counts.Recovered++
			return c.deactivate(now, ReasonRecovered)
		}
		if now.Sub(c.activatedAt) > c.cfg.MaxRunDuration {
			c.counts.SafetyCeiling++
			return c.deactivate(now, ReasonSafetyCeiling)
		}
	}
	return nil
}

func (c *Controller) deactivate(now time.Time, reason OffReason) *Event {
	e := c.event(now, EventFanOff, reason)
	e.ActiveFor = now.Sub(c.activatedAt)
	c.state = StateIdle
	return e
}

func (c *Controller) event(now time.Time, typ EventType, reason OffReason) *Event {
	return &Event{
		Timestamp:      now,
		Type:           typ,
		Reason:         reason,
		ShortAvg:       c.shortAvg,
		LongAvg:        c.longAvg,
		Trigger:        c.trigger,
		ReturnBaseline: c.returnBaseline,
	}
}

// Active reports whether the fan should currently run.
func (c *Controller) Active() bool {
	return c.state == StateActive
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Status returns a copy of the controller's current state.
func (c *Controller) Status() Status {
	s := Status{
		State:        c.state,
		Humidity:     c.lastReading,
		ShortAvg:     c.shortAvg,
		LongAvg:      c.longAvg,
		Trigger:      c.trigger,
		LastSampleAt: c.lastSampleAt,
		Sampled:      c.sampled,
		Filled:       c.history.Len(),
		Capacity:     c.history.Cap(),
		Counts:       c.counts,
	}
	if c.state == StateActive {
		s.ReturnBaseline = c.returnBaseline
		s.ActivatedAt = c.activatedAt
	}
	if c.lastError != nil {
		kind := *c.lastError
		s.LastError = &kind
	}
	return s
}
