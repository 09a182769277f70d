// Package gpio provides GPIO outputs (fan relay, alert buzzer) with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Output drives a single digital output line.
type Output interface {
	// Set drives the line to its logical on or off level.
	Set(on bool) error

	// Close releases GPIO resources, leaving the line off.
	Close() error
}

// Default pin definitions (BCM numbering)
const (
	DefaultPinSensor = 4  // DHT11 data line
	DefaultPinFan    = 17 // Fan relay
	DefaultPinBuzzer = 27 // Alert buzzer
)

// Chip is the GPIO character device used on a Raspberry Pi.
const Chip = "gpiochip0"
