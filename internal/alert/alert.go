// Package alert provides sinks for sensor failure notifications.
package alert

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/bathfan/internal/gpio"
	"github.com/sweeney/bathfan/internal/logic"
)

// DefaultPulse is how long the buzzer sounds per alert.
const DefaultPulse = 200 * time.Millisecond

// Buzzer sounds a short beep on a GPIO output for every sensor failure.
// Notify never blocks; alerts arriving while a beep is in progress are dropped.
type Buzzer struct {
	out   gpio.Output
	pulse time.Duration
	sleep func(time.Duration)

	busy atomic.Bool
	wg   sync.WaitGroup
}

// NewBuzzer creates a Buzzer driving out for pulse per alert.
func NewBuzzer(out gpio.Output, pulse time.Duration) *Buzzer {
	return &Buzzer{out: out, pulse: pulse, sleep: time.Sleep}
}

// Notify starts a beep in the background.
func (b *Buzzer) Notify(kind logic.SensorError) {
	if !b.busy.CompareAndSwap(false, true) {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.busy.Store(false)

		if err := b.out.Set(true); err != nil {
			log.Printf("alert: buzzer on: %v", err)
			return
		}
		b.sleep(b.pulse)
		if err := b.out.Set(false); err != nil {
			log.Printf("alert: buzzer off: %v", err)
		}
	}()
}

// Wait blocks until any beep in progress has finished.
func (b *Buzzer) Wait() {
	b.wg.Wait()
}

// Multi fans a notification out to every alerter in order.
type Multi []logic.Alerter

// Notify forwards kind to each alerter.
func (m Multi) Notify(kind logic.SensorError) {
	for _, a := range m {
		if a != nil {
			a.Notify(kind)
		}
	}
}
