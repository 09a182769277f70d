package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/bathfan/internal/gpio"
	"github.com/sweeney/bathfan/internal/logic"
	"github.com/sweeney/bathfan/internal/mqtt"
	"github.com/sweeney/bathfan/internal/sensor"
	"github.com/sweeney/bathfan/internal/status"
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// repeat returns n copies of v.
func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// shower is a dry baseline followed by a spike that trips the fan and a
// fall that switches it off again.
func shower() []float64 {
	return append(repeat(38.5, 8), 46, 46, 38, 36)
}

func loopConfig() logic.Config {
	return logic.Config{
		Capacity:       10,
		ShortWindow:    2,
		LongWindow:     10,
		SamplingPeriod: 30 * time.Second,
		MaxRunDuration: 7200 * time.Second,
		Threshold:      logic.DefaultThresholdPolicy(),
	}
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// recordingAlerter records every notification.
type recordingAlerter struct {
	got []logic.SensorError
}

func (a *recordingAlerter) Notify(kind logic.SensorError) { a.got = append(a.got, kind) }

// flakyOutput fails the first failures calls to Set, then delegates.
type flakyOutput struct {
	inner    *gpio.FakeOutput
	failures int
	calls    int
}

func (o *flakyOutput) Set(on bool) error {
	o.calls++
	if o.calls <= o.failures {
		return errors.New("relay fault")
	}
	return o.inner.Set(on)
}

func (o *flakyOutput) Close() error { return o.inner.Close() }

// runRunLoop drives runLoop for nTicks ticks and then delivers signal.
func runRunLoop(t *testing.T, cfg logic.Config, d loopDeps, heartbeat time.Duration, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(cfg, d, heartbeat, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func newDeps(samples []sensor.Sample) (loopDeps, *sensor.FakeReader, *gpio.FakeOutput, *mqtt.FakePublisher) {
	reader := sensor.NewFakeReader(samples)
	fan := gpio.NewFakeOutput()
	pub := mqtt.NewFakePublisher()
	return loopDeps{sensor: reader, fan: fan, publisher: pub}, reader, fan, pub
}

func TestRunLoopSteadyHumidityNoEvents(t *testing.T) {
	d, _, fan, pub := newDeps(sensor.Humidities(repeat(40, 6)...))

	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 30*time.Second), 6, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 0 {
		t.Errorf("expected 0 fan events, got %d", len(pub.Events))
	}
	if h := fan.History(); len(h) != 0 {
		t.Errorf("expected fan untouched, got writes %v", h)
	}
	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	if pub.SystemEvents[0].Event != mqtt.EventShutdown {
		t.Errorf("expected SHUTDOWN event, got %q", pub.SystemEvents[0].Event)
	}
}

func TestRunLoopShowerCycle(t *testing.T) {
	samples := shower()
	d, _, fan, pub := newDeps(sensor.Humidities(samples...))

	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 30*time.Second), len(samples), syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 2 {
		t.Fatalf("expected 2 fan events, got %d", len(pub.Events))
	}
	on, off := pub.Events[0], pub.Events[1]
	if on.Type != logic.EventFanOn {
		t.Errorf("event 0: expected FAN_ON, got %s", on.Type)
	}
	if on.ReturnBaseline != 40 {
		t.Errorf("event 0: return baseline got %v, want 40", on.ReturnBaseline)
	}
	if off.Type != logic.EventFanOff || off.Reason != logic.ReasonRecovered {
		t.Errorf("event 1: expected FAN_OFF/RECOVERED, got %s/%s", off.Type, off.Reason)
	}
	if off.ActiveFor != time.Minute {
		t.Errorf("event 1: active for got %v, want 1m", off.ActiveFor)
	}

	var parsed mqtt.Payload
	if err := json.Unmarshal(pub.Payloads[1], &parsed); err != nil {
		t.Fatalf("payload 1: invalid JSON: %v", err)
	}
	if parsed.Fan.ActiveSeconds != 60 {
		t.Errorf("payload 1: active_seconds got %d, want 60", parsed.Fan.ActiveSeconds)
	}

	want := []bool{true, false}
	got := fan.History()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("fan writes: got %v, want %v", got, want)
	}
}

func TestRunLoopShutdownSwitchesFanOff(t *testing.T) {
	samples := append(repeat(38.5, 8), 46, 46)
	d, _, fan, pub := newDeps(sensor.Humidities(samples...))

	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 30*time.Second), len(samples), syscall.SIGINT)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 1 || pub.Events[0].Type != logic.EventFanOn {
		t.Fatalf("expected a single FAN_ON, got %+v", pub.Events)
	}
	if fan.On() {
		t.Error("expected fan off after shutdown")
	}
	if got := fan.History(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("fan writes: got %v, want [true false]", got)
	}

	se := pub.SystemEvents[len(pub.SystemEvents)-1]
	if se.Event != mqtt.EventShutdown {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGINT" {
		t.Errorf("expected reason SIGINT, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	d, _, _, pub := newDeps(sensor.Humidities(40))

	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 30*time.Second), 2, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	if pub.SystemEvents[0].Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", pub.SystemEvents[0].Reason)
	}
}

func TestRunLoopSafetyCeiling(t *testing.T) {
	cfg := loopConfig()
	cfg.MaxRunDuration = time.Minute
	samples := append(repeat(38.5, 8), 46, 46, 60, 60, 60)
	d, _, fan, pub := newDeps(sensor.Humidities(samples...))

	err := runRunLoop(t, cfg, d, 0, fakeClock(epoch, 30*time.Second), len(samples), syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 2 {
		t.Fatalf("expected 2 fan events, got %d", len(pub.Events))
	}
	off := pub.Events[1]
	if off.Type != logic.EventFanOff || off.Reason != logic.ReasonSafetyCeiling {
		t.Errorf("event 1: expected FAN_OFF/SAFETY_CEILING, got %s/%s", off.Type, off.Reason)
	}
	if fan.On() {
		t.Error("expected fan off after safety ceiling")
	}
}

func TestRunLoopSensorErrors(t *testing.T) {
	samples := []sensor.Sample{
		{Humidity: 40},
		{Err: fmt.Errorf("dht11: %w", logic.SensorTimeout)},
		{Err: fmt.Errorf("dht11: %w", logic.SensorChecksumMismatch)},
		{Humidity: 41},
	}
	d, reader, fan, pub := newDeps(samples)
	buzzer := &recordingAlerter{}
	d.buzzer = buzzer

	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 30*time.Second), len(samples), syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if reader.Calls != len(samples) {
		t.Errorf("sensor reads: got %d, want %d", reader.Calls, len(samples))
	}

	wantKinds := []logic.SensorError{logic.SensorTimeout, logic.SensorChecksumMismatch}
	if len(buzzer.got) != len(wantKinds) {
		t.Fatalf("buzzer alerts: got %v, want %v", buzzer.got, wantKinds)
	}
	for i, want := range wantKinds {
		if buzzer.got[i] != want {
			t.Errorf("buzzer alert %d: got %v, want %v", i, buzzer.got[i], want)
		}
	}

	var reasons []string
	for _, se := range pub.SystemEvents {
		if se.Event == mqtt.EventSensorError {
			reasons = append(reasons, se.Reason)
		}
	}
	if len(reasons) != 2 || reasons[0] != "TIMEOUT" || reasons[1] != "CHECKSUM_MISMATCH" {
		t.Errorf("SENSOR_ERROR reasons: got %v, want [TIMEOUT CHECKSUM_MISMATCH]", reasons)
	}

	if len(fan.History()) != 0 {
		t.Errorf("sensor errors should not touch the fan, got %v", fan.History())
	}
}

func TestRunLoopRateGate(t *testing.T) {
	d, reader, _, _ := newDeps(sensor.Humidities(40))

	// Ticks every 10s against a 30s sampling period: reads at 10s, 40s, 70s.
	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 10*time.Second), 7, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if reader.Calls != 3 {
		t.Errorf("sensor reads: got %d, want 3", reader.Calls)
	}
}

func TestRunLoopFanWriteRetried(t *testing.T) {
	samples := append(repeat(38.5, 8), 46, 46, 46)
	d, _, _, pub := newDeps(sensor.Humidities(samples...))
	inner := gpio.NewFakeOutput()
	out := &flakyOutput{inner: inner, failures: 1}
	d.fan = out

	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 30*time.Second), len(samples), syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 1 {
		t.Fatalf("expected 1 fan event, got %d", len(pub.Events))
	}
	// First write fails, next tick retries, shutdown switches off.
	if out.calls != 3 {
		t.Errorf("fan Set calls: got %d, want 3", out.calls)
	}
	if got := inner.History(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("fan writes: got %v, want [true false]", got)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// 5-minute ticks against a 15-minute heartbeat: fires on the third tick.
	d, _, _, pub := newDeps(sensor.Humidities(40))
	d.tracker = status.NewTracker(epoch, status.ConfigFrom(loopConfig()))

	err := runRunLoop(t, loopConfig(), d, 15*time.Minute, fakeClock(epoch, 5*time.Minute), 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats, shutdowns int
	for i, se := range pub.SystemEvents {
		switch se.Event {
		case mqtt.EventHeartbeat:
			heartbeats++
			if se.RawPayload == nil {
				t.Fatal("HEARTBEAT event missing status payload")
			}
			var parsed status.StatusJSON
			if err := json.Unmarshal(pub.SystemPayloads[i], &parsed); err != nil {
				t.Fatalf("heartbeat payload: invalid JSON: %v", err)
			}
			if parsed.Status.Event != mqtt.EventHeartbeat {
				t.Errorf("payload event: got %q, want HEARTBEAT", parsed.Status.Event)
			}
			if parsed.Status.Counts.Samples != 3 {
				t.Errorf("payload samples: got %d, want 3", parsed.Status.Counts.Samples)
			}
			if !se.Timestamp.Equal(epoch.Add(15 * time.Minute)) {
				t.Errorf("heartbeat timestamp: got %v", se.Timestamp)
			}
		case mqtt.EventShutdown:
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	samples := shower()
	d, _, fan, pub := newDeps(sensor.Humidities(samples...))
	pub.PublishError = errors.New("broker unavailable")

	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 30*time.Second), len(samples), syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(pub.Events))
	}
	// The fan is driven regardless of MQTT.
	if got := fan.History(); len(got) != 2 {
		t.Errorf("fan writes: got %v, want [true false]", got)
	}
	found := false
	for _, se := range pub.SystemEvents {
		if se.Event == mqtt.EventShutdown {
			found = true
		}
	}
	if !found {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestRunLoopUpdatesTracker(t *testing.T) {
	samples := append(repeat(38.5, 8), 46, 46)
	d, _, _, pub := newDeps(sensor.Humidities(samples...))
	pub.Connected = true
	d.mqttStatus = pub
	d.tracker = status.NewTracker(epoch, status.ConfigFrom(loopConfig()))

	err := runRunLoop(t, loopConfig(), d, 0, fakeClock(epoch, 30*time.Second), len(samples), syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := d.tracker.Snapshot()
	if snap.Controller.State != logic.StateActive {
		t.Errorf("tracked state: got %s, want ACTIVE", snap.Controller.State)
	}
	if snap.Controller.Counts.FanOn != 1 {
		t.Errorf("tracked fan-on count: got %d, want 1", snap.Controller.Counts.FanOn)
	}
	if snap.FanOn {
		t.Error("expected tracked fan off after shutdown")
	}
	if !snap.MQTTConnected {
		t.Error("expected tracked MQTT connected")
	}
}

func TestRunLoopInvalidConfig(t *testing.T) {
	cfg := loopConfig()
	cfg.ShortWindow = 0
	d, _, _, _ := newDeps(sensor.Humidities(40))

	err := runLoop(cfg, d, 0, fakeClock(epoch, time.Second), nil, nil)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestOpenSensorUnknownKind(t *testing.T) {
	_, err := openSensor(options{sensorKind: "bme280"})
	if err == nil {
		t.Fatal("expected error for unknown sensor kind")
	}
}

func TestDiscardPublisher(t *testing.T) {
	var p mqtt.Publisher = discardPublisher{}
	if err := p.Publish(logic.Event{Type: logic.EventFanOn}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := p.PublishSystem(mqtt.SystemEvent{Event: mqtt.EventStartup}); err != nil {
		t.Errorf("PublishSystem: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
