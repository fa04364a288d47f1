package power

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// ClockGenerator drives the low frequency clock line the host uses while it
// is powered. In pwm mode the pin's waveform generator does all the work. In
// toggle mode the pin is flipped from the tick, which only approximates the
// target frequency and needs calibrating against the tick rate.
type ClockGenerator struct {
	pin       gpio.PinOut
	mode      string
	frequency physic.Frequency
	divisor   uint16

	enabled    bool
	level      gpio.Level
	TodCounter uint16
}

func NewClockGenerator(pin gpio.PinOut, conf Config) *ClockGenerator {
	return &ClockGenerator{
		pin:       pin,
		mode:      conf.ClockMode,
		frequency: conf.clockFrequency(),
		divisor:   conf.ToggleDivisor(),
	}
}

// Enable starts the clock output.
func (g *ClockGenerator) Enable() error {
	g.enabled = true
	g.TodCounter = 0
	if g.mode == ClockModePWM {
		if err := g.pin.PWM(gpio.DutyHalf, g.frequency); err != nil {
			return fmt.Errorf("failed to start clock pwm on %s: %v", g.pin, err)
		}
		return nil
	}
	g.level = gpio.Low
	return g.pin.Out(g.level)
}

// Disable stops the clock and drives the pin inactive.
func (g *ClockGenerator) Disable() error {
	g.enabled = false
	g.TodCounter = 0
	g.level = gpio.Low
	if err := g.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to disable clock on %s: %v", g.pin, err)
	}
	return nil
}

// Tick advances the software clock. It does nothing in pwm mode or when disabled.
func (g *ClockGenerator) Tick() error {
	if !g.enabled || g.mode != ClockModeToggle {
		return nil
	}
	g.TodCounter++
	if g.TodCounter < g.divisor {
		return nil
	}
	g.TodCounter = 0
	g.level = !g.level
	return g.pin.Out(g.level)
}

func (g *ClockGenerator) Enabled() bool {
	return g.enabled
}
