package power

import "math"

// Classifier turns one button sample per tick into press events.
//
// PressTimer counts ticks the button has been held, IdleTimer counts ticks it
// has been released. Only one of them advances on any tick and both saturate
// at MaxUint16.
type Classifier struct {
	Thresholds

	PressTimer uint16
	IdleTimer  uint16
}

func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{Thresholds: t}
}

// Sample feeds the button level for this tick. The press is only evaluated
// on release, against the power state at the time of release.
func (c *Classifier) Sample(pressed bool, state PowerState) Event {
	if pressed {
		c.PressTimer = inc(c.PressTimer)
		c.IdleTimer = 0
		return EventNone
	}

	event := EventNone
	switch {
	case state == On && c.PressTimer > c.Long:
		event = EventPowerDown
	case state == Off && c.PressTimer > c.Short:
		event = EventPowerUp
	}
	c.PressTimer = 0
	c.IdleTimer = inc(c.IdleTimer)
	return event
}

// Idle reports whether the button has been left alone past the idle threshold.
func (c *Classifier) Idle() bool {
	return c.IdleTimer > c.Thresholds.Idle
}

func (c *Classifier) Reset() {
	c.PressTimer = 0
	c.IdleTimer = 0
}

func inc(v uint16) uint16 {
	if v == math.MaxUint16 {
		return v
	}
	return v + 1
}
