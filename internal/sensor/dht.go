package sensor

import (
	"fmt"
	"time"

	"github.com/sweeney/bathfan/internal/logic"
)

// DHT11 protocol timing.
const (
	dhtStartPulse  = 20 * time.Millisecond // host holds the line low for at least 18ms
	dhtFrameWindow = 10 * time.Millisecond // response plus 40 bits fits in ~5ms
	dhtBitCutoff   = 50 * time.Microsecond // high pulse ~27us = 0, ~70us = 1
	dhtFrameBits   = 40
)

// edge is a single level change observed on the data line.
type edge struct {
	rising bool
	at     time.Duration
}

// frame is a decoded DHT11 measurement.
type frame struct {
	Humidity    float64
	Temperature float64
}

// decodeFrame turns the edges captured after the start signal into a frame.
// The last 40 high pulses carry the data bits, MSB first; anything before
// them is the sensor's response preamble.
func decodeFrame(edges []edge) (frame, error) {
	var widths []time.Duration
	var riseAt time.Duration
	rose := false
	for _, e := range edges {
		if e.rising {
			riseAt = e.at
			rose = true
			continue
		}
		if rose {
			widths = append(widths, e.at-riseAt)
			rose = false
		}
	}

	if len(widths) < dhtFrameBits {
		return frame{}, fmt.Errorf("dht11: got %d of %d bits: %w", len(widths), dhtFrameBits, logic.SensorTimeout)
	}
	widths = widths[len(widths)-dhtFrameBits:]

	var b [5]byte
	for i, w := range widths {
		b[i/8] <<= 1
		if w > dhtBitCutoff {
			b[i/8] |= 1
		}
	}

	if sum := b[0] + b[1] + b[2] + b[3]; sum != b[4] {
		return frame{}, fmt.Errorf("dht11: checksum %#02x, want %#02x: %w", b[4], sum, logic.SensorChecksumMismatch)
	}

	return frame{
		Humidity:    float64(b[0]) + float64(b[1])/10,
		Temperature: float64(b[2]) + float64(b[3])/10,
	}, nil
}
