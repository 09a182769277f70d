//go:build linux

package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/bathfan/internal/gpio"
)

// DHT11 reads a DHT11 sensor over a single GPIO data line using the Linux
// GPIO character device. Edge timestamps come from the kernel, so user-space
// scheduling jitter does not affect bit decoding.
type DHT11 struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	events chan gpiocdev.LineEvent

	lastTemperature float64
}

// NewDHT11 requests pin as an input with pull-up, the idle state of the bus.
func NewDHT11(pin int) (*DHT11, error) {
	chip, err := gpiocdev.NewChip(gpio.Chip, gpiocdev.WithConsumer("bathfan-dht11"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	d := &DHT11{
		chip:   chip,
		events: make(chan gpiocdev.LineEvent, 2*dhtFrameBits+16),
	}

	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithEventHandler(d.handleEvent),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", pin, err)
	}
	d.line = line

	return d, nil
}

func (d *DHT11) handleEvent(e gpiocdev.LineEvent) {
	select {
	case d.events <- e:
	default:
		// Buffer full: the frame is already longer than any valid one.
	}
}

// Read triggers a measurement and returns the relative humidity.
func (d *DHT11) Read() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.drain()

	// Start signal: pull the line low, then release it and listen.
	if err := d.line.Reconfigure(gpiocdev.WithoutEdges, gpiocdev.AsOutput(0)); err != nil {
		return 0, fmt.Errorf("dht11: start signal: %w", err)
	}
	time.Sleep(dhtStartPulse)
	if err := d.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithBothEdges); err != nil {
		return 0, fmt.Errorf("dht11: release line: %w", err)
	}

	time.Sleep(dhtFrameWindow)

	if err := d.line.Reconfigure(gpiocdev.WithoutEdges); err != nil {
		return 0, fmt.Errorf("dht11: stop capture: %w", err)
	}

	f, err := decodeFrame(d.collect())
	if err != nil {
		return 0, err
	}
	d.lastTemperature = f.Temperature
	return f.Humidity, nil
}

// LastTemperature returns the temperature from the most recent good frame.
func (d *DHT11) LastTemperature() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTemperature
}

func (d *DHT11) collect() []edge {
	var edges []edge
	for {
		select {
		case e := <-d.events:
			edges = append(edges, edge{
				rising: e.Type == gpiocdev.LineEventRisingEdge,
				at:     e.Timestamp,
			})
		default:
			return edges
		}
	}
}

func (d *DHT11) drain() {
	for {
		select {
		case <-d.events:
		default:
			return
		}
	}
}

// Close releases GPIO resources.
func (d *DHT11) Close() error {
	var errs []error

	if d.line != nil {
		if err := d.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor pin: %w", err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
