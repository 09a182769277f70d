// Package sensor provides humidity readers with hardware abstraction.
// DHT11 talks to the sensor directly over a GPIO line; SerialReader polls a
// sensor hub over a serial port. FakeReader allows testing without hardware.
//
// Read errors wrap a logic.SensorError so the controller can classify them.
package sensor

import "github.com/sweeney/bathfan/internal/logic"

// Reader reads relative humidity in percent.
type Reader interface {
	logic.Sensor

	// Close releases hardware resources.
	Close() error
}
