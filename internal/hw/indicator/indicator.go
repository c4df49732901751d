package indicator

import (
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
)

// Indicator signals capture activity to the operator.
type Indicator interface {
	// Busy is called right before the capture tool starts.
	Busy()
	// Done is called once the capture tool has exited.
	Done(ok bool)
}

// Nop is used when no LED is wired.
type Nop struct{}

func (Nop) Busy()     {}
func (Nop) Done(bool) {}

// LED drives a single status LED (active HIGH):
// - ON while the camera is capturing
// - OFF on success
// - blinkCount short blinks on failure, then OFF
type LED struct {
	gpio       gpio.Driver
	pin        int
	blinkCount int
	blinkDelay time.Duration
	sleep      func(time.Duration)
}

// NewLED configures pin as an output and switches the LED off.
func NewLED(g gpio.Driver, pin, blinkCount int, blinkDelay time.Duration) *LED {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		debug.Error(err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		debug.Error(err)
	}

	return &LED{
		gpio:       g,
		pin:        pin,
		blinkCount: blinkCount,
		blinkDelay: blinkDelay,
		sleep:      time.Sleep,
	}
}

// New returns an LED on pin, or Nop when pin is 0.
func New(g gpio.Driver, pin, blinkCount int, blinkDelay time.Duration) Indicator {
	if pin == 0 || g == nil {
		return Nop{}
	}
	return NewLED(g, pin, blinkCount, blinkDelay)
}

func (l *LED) Busy() {
	debug.Trace("Indicator: LED on (pin %d)", l.pin)
	if err := l.gpio.WritePin(l.pin, gpio.High); err != nil {
		debug.Error(err)
	}
}

func (l *LED) Done(ok bool) {
	if err := l.gpio.WritePin(l.pin, gpio.Low); err != nil {
		debug.Error(err)
		return
	}
	if ok {
		debug.Trace("Indicator: LED off (pin %d)", l.pin)
		return
	}

	debug.Trace("Indicator: blinking %d times (pin %d)", l.blinkCount, l.pin)
	for i := 0; i < l.blinkCount; i++ {
		l.sleep(l.blinkDelay)
		if err := l.gpio.WritePin(l.pin, gpio.High); err != nil {
			debug.Error(err)
			return
		}
		l.sleep(l.blinkDelay)
		if err := l.gpio.WritePin(l.pin, gpio.Low); err != nil {
			debug.Error(err)
			return
		}
	}
}
