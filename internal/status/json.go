package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/bathfan/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string      `json:"event,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	State          string      `json:"state"`
	Fan            string      `json:"fan"`
	Ready          bool        `json:"ready"`
	Humidity       *float64    `json:"humidity,omitempty"`
	ShortAvg       float64     `json:"short_avg"`
	LongAvg        float64     `json:"long_avg"`
	Trigger        float64     `json:"trigger"`
	ReturnBaseline *float64    `json:"return_baseline,omitempty"`
	ActiveSince    string      `json:"active_since,omitempty"`
	LastSample     string      `json:"last_sample,omitempty"`
	SensorError    string      `json:"sensor_error,omitempty"`
	History        HistoryJSON `json:"history"`
	UptimeSeconds  int64       `json:"uptime_seconds"`
	StartTime      string      `json:"start_time"`
	BootID         string      `json:"boot_id,omitempty"`
	Timestamp      string      `json:"timestamp"`
	MQTT           MQTTStatus  `json:"mqtt"`
	Counts         CountsJSON  `json:"event_counts"`
	Config         ConfigJSON  `json:"config"`
}

// HistoryJSON reports how full the reading buffer is.
type HistoryJSON struct {
	Filled   int `json:"filled"`
	Capacity int `json:"capacity"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	FanOn         int `json:"fan_on"`
	Recovered     int `json:"recovered"`
	SafetyCeiling int `json:"safety_ceiling"`
	Samples       int `json:"samples"`
	SensorErrors  int `json:"sensor_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SamplingPeriodS int64  `json:"sampling_period_s"`
	MaxRunS         int64  `json:"max_run_s"`
	Capacity        int    `json:"capacity"`
	ShortWindow     int    `json:"short_window"`
	LongWindow      int    `json:"long_window"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Sensor          string `json:"sensor"`
	Broker          string `json:"broker,omitempty"`
	HTTPAddr        string `json:"http_addr,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Controller
	state := string(c.State)
	if state == "" {
		state = "UNKNOWN"
	}
	fan := "OFF"
	if snap.FanOn {
		fan = "ON"
	}

	inner := StatusInner{
		State:         state,
		Fan:           fan,
		Ready:         c.Sampled,
		ShortAvg:      round2(c.ShortAvg),
		LongAvg:       round2(c.LongAvg),
		Trigger:       round2(c.Trigger),
		History:       HistoryJSON{Filled: c.Filled, Capacity: c.Capacity},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		BootID:        snap.Config.BootID,
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			FanOn:         c.Counts.FanOn,
			Recovered:     c.Counts.Recovered,
			SafetyCeiling: c.Counts.SafetyCeiling,
			Samples:       c.Counts.Samples,
			SensorErrors:  c.Counts.SensorErrors,
		},
		Config: ConfigJSON{
			SamplingPeriodS: int64(snap.Config.SamplingPeriod.Seconds()),
			MaxRunS:         int64(snap.Config.MaxRun.Seconds()),
			Capacity:        snap.Config.Capacity,
			ShortWindow:     snap.Config.ShortWindow,
			LongWindow:      snap.Config.LongWindow,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			Sensor:          snap.Config.Sensor,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}

	if c.Sampled {
		h := c.Humidity
		inner.Humidity = &h
		inner.LastSample = c.LastSampleAt.UTC().Format(time.RFC3339)
	}
	if c.State == logic.StateActive {
		rb := round2(c.ReturnBaseline)
		inner.ReturnBaseline = &rb
		inner.ActiveSince = c.ActivatedAt.UTC().Format(time.RFC3339)
	}
	if c.LastError != nil {
		inner.SensorError = c.LastError.String()
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
