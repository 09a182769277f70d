//go:build !linux

package sensor

import "errors"

// DHT11 is not available on non-Linux platforms.
type DHT11 struct{}

// NewDHT11 returns an error on non-Linux platforms.
func NewDHT11(pin int) (*DHT11, error) {
	return nil, errors.New("sensor: dht11 not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (d *DHT11) Read() (float64, error) {
	return 0, errors.New("sensor: dht11 not supported")
}

// LastTemperature is not implemented on non-Linux platforms.
func (d *DHT11) LastTemperature() float64 {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (d *DHT11) Close() error {
	return nil
}
