// Command bathfan runs a bathroom exhaust fan from a humidity sensor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/bathfan/internal/alert"
	"github.com/sweeney/bathfan/internal/gpio"
	"github.com/sweeney/bathfan/internal/logic"
	"github.com/sweeney/bathfan/internal/mqtt"
	"github.com/sweeney/bathfan/internal/sensor"
	"github.com/sweeney/bathfan/internal/status"
	"github.com/sweeney/bathfan/internal/web"
)

// options holds parsed command-line flags.
type options struct {
	cfg          logic.Config
	poll         time.Duration
	sensorKind   string
	pinSensor    int
	pinFan       int
	pinBuzzer    int
	fanActiveLow bool
	serialPort   string
	serialBaud   int
	broker       string
	heartbeat    time.Duration
	httpAddr     string
	printReading bool
}

func main() {
	def := logic.DefaultConfig()
	var o options
	flag.DurationVar(&o.cfg.SamplingPeriod, "period", def.SamplingPeriod, "Minimum time between sensor reads")
	flag.IntVar(&o.cfg.Capacity, "capacity", def.Capacity, "Readings kept in history")
	flag.IntVar(&o.cfg.ShortWindow, "short", def.ShortWindow, "Readings in the short average")
	flag.IntVar(&o.cfg.LongWindow, "long", def.LongWindow, "Readings in the long (baseline) average")
	flag.DurationVar(&o.cfg.MaxRunDuration, "max-run", def.MaxRunDuration, "Longest the fan may run continuously")
	flag.DurationVar(&o.poll, "poll", time.Second, "Control loop interval")
	flag.StringVar(&o.sensorKind, "sensor", "dht11", `Humidity source: "dht11" or "serial"`)
	flag.IntVar(&o.pinSensor, "pin-sensor", gpio.DefaultPinSensor, "BCM pin number for the DHT11 data line")
	flag.IntVar(&o.pinFan, "pin-fan", gpio.DefaultPinFan, "BCM pin number for the fan relay")
	flag.IntVar(&o.pinBuzzer, "pin-buzzer", gpio.DefaultPinBuzzer, "BCM pin number for the alert buzzer (-1 to disable)")
	flag.BoolVar(&o.fanActiveLow, "fan-active-low", false, "Drive the fan relay active low")
	flag.StringVar(&o.serialPort, "serial-port", "/dev/ttyUSB0", "Serial device for -sensor=serial")
	flag.IntVar(&o.serialBaud, "serial-baud", 9600, "Serial baud rate for -sensor=serial")
	flag.StringVar(&o.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.httpAddr, "http", "", "HTTP status address (empty to disable)")
	flag.BoolVar(&o.printReading, "print-reading", false, "Print one humidity reading and exit")

	envFile := os.Getenv(envPrefix + "ENV_FILE")
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := loadEnvFile(envFile); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := applyEnv(flag.CommandLine, os.LookupEnv); err != nil {
		log.Fatalf("fatal: environment: %v", err)
	}
	flag.Parse()
	o.cfg.Threshold = def.Threshold

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func openSensor(o options) (sensor.Reader, error) {
	switch o.sensorKind {
	case "dht11":
		return sensor.NewDHT11(o.pinSensor)
	case "serial":
		return sensor.OpenSerial(o.serialPort, o.serialBaud)
	default:
		return nil, fmt.Errorf("unknown sensor %q", o.sensorKind)
	}
}

func run(o options) error {
	if err := o.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	reader, err := openSensor(o)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer reader.Close()

	// Print reading mode
	if o.printReading {
		h, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Printf("humidity: %.1f%%\n", h)
		if d, ok := reader.(*sensor.DHT11); ok {
			fmt.Printf("temperature: %.1fC\n", d.LastTemperature())
		}
		return nil
	}

	fan, err := gpio.NewRealOutput(o.pinFan, "bathfan-fan", o.fanActiveLow)
	if err != nil {
		return fmt.Errorf("init fan output: %w", err)
	}
	defer fan.Close()

	var buzzer logic.Alerter
	if o.pinBuzzer >= 0 {
		out, err := gpio.NewRealOutput(o.pinBuzzer, "bathfan-buzzer", false)
		if err != nil {
			return fmt.Errorf("init buzzer output: %w", err)
		}
		defer out.Close()
		b := alert.NewBuzzer(out, alert.DefaultPulse)
		defer b.Wait()
		buzzer = b
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if o.broker != "" {
		p := mqtt.NewRealPublisher(o.broker)
		defer p.Close()
		publisher = p
		mqttStatus = p
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	cfg := status.ConfigFrom(o.cfg)
	cfg.HeartbeatMs = o.heartbeat.Milliseconds()
	cfg.Sensor = o.sensorKind
	cfg.Broker = o.broker
	cfg.HTTPAddr = o.httpAddr
	cfg.BootID = uuid.NewString()
	tracker := status.NewTracker(time.Now(), cfg)

	if o.broker != "" {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      mqtt.EventStartup,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("mqtt: publish startup: %v", err)
		} else {
			log.Printf("mqtt: published startup event")
		}
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("web: server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("web: listening on %s", o.httpAddr)
	}

	log.Printf("started: boot=%s sensor=%s period=%v short=%d long=%d max-run=%v broker=%q heartbeat=%v",
		cfg.BootID, o.sensorKind, o.cfg.SamplingPeriod, o.cfg.ShortWindow, o.cfg.LongWindow, o.cfg.MaxRunDuration, o.broker, o.heartbeat)

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	deps := loopDeps{
		sensor:     reader,
		buzzer:     buzzer,
		fan:        fan,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
	}
	return runLoop(o.cfg, deps, o.heartbeat, time.Now, ticker.C, sigCh)
}

// loopDeps are the collaborators driven by runLoop. Only sensor, fan and
// publisher are required.
type loopDeps struct {
	sensor     logic.Sensor
	buzzer     logic.Alerter
	fan        gpio.Output
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
}

func runLoop(cfg logic.Config, d loopDeps, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	// The controller reads time through current so each tick sees one
	// consistent instant.
	current := now()
	startTime := current
	clock := logic.ClockFunc(func() time.Time { return current })

	sensorAlert := logic.AlerterFunc(func(kind logic.SensorError) {
		event := mqtt.SystemEvent{
			Timestamp: current,
			Event:     mqtt.EventSensorError,
			Reason:    kind.String(),
		}
		if err := d.publisher.PublishSystem(event); err != nil {
			log.Printf("mqtt: publish sensor error: %v", err)
		}
	})

	ctrl, err := logic.NewController(cfg, clock, d.sensor, alert.Multi{d.buzzer, sensorAlert})
	if err != nil {
		return err
	}
	hb := logic.NewHeartbeat(startTime)
	fanOn := false

	updateTracker := func() {
		if d.tracker == nil {
			return
		}
		d.tracker.Update(ctrl.Status(), fanOn)
		if d.mqttStatus != nil {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}
	}
	updateTracker()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			if fanOn {
				if err := d.fan.Set(false); err != nil {
					log.Printf("fan: switch off: %v", err)
				} else {
					fanOn = false
				}
			}

			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     mqtt.EventShutdown,
				Reason:    signalName,
				Retained:  true,
			}
			if d.tracker != nil {
				updateTracker()
				snap := d.tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, mqtt.EventShutdown, signalName)
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("mqtt: publish shutdown: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			current = now()
			res := ctrl.Step()

			if res.Err != nil {
				log.Printf("sensor: read failed (%s): %v", logic.ClassifySensorError(res.Err).String(), res.Err)
			}
			if res.Sampled {
				log.Printf("sample: humidity=%.1f short=%.2f long=%.2f trigger=%.2f state=%s",
					res.Reading, res.ShortAvg, res.LongAvg, res.Trigger, ctrl.Status().State)
			}

			if e := res.Event; e != nil {
				log.Printf("event: %s %s short=%.2f long=%.2f trigger=%.2f baseline=%.2f",
					e.Type, e.Reason, e.ShortAvg, e.LongAvg, e.Trigger, e.ReturnBaseline)
				if err := d.publisher.Publish(*e); err != nil {
					log.Printf("mqtt: publish error: %v", err)
					// Don't crash on publish failure
				}
			}

			// A failed write is retried on the next tick.
			if res.Active != fanOn {
				if err := d.fan.Set(res.Active); err != nil {
					log.Printf("fan: set %v: %v", res.Active, err)
				} else {
					fanOn = res.Active
				}
			}

			if hbData := hb.Check(current, heartbeat, ctrl.Status()); hbData != nil {
				c := hbData.Status.Counts
				log.Printf("heartbeat: uptime=%v state=%s fan_on=%d recovered=%d ceiling=%d samples=%d errors=%d",
					hbData.Uptime, hbData.Status.State, c.FanOn, c.Recovered, c.SafetyCeiling, c.Samples, c.SensorErrors)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     mqtt.EventHeartbeat,
				}
				if d.tracker != nil {
					updateTracker()
					snap := d.tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, mqtt.EventHeartbeat, "")
				}
				if err := d.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("mqtt: heartbeat publish error: %v", err)
				}
			}

			updateTracker()
		}
	}
}

// discardPublisher stands in when MQTT is disabled.
type discardPublisher struct{}

func (discardPublisher) Publish(logic.Event) error            { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }
