package power

import "fmt"

// PowerState is whether the host is powered.
type PowerState uint8

const (
	Off PowerState = iota
	On
)

func (s PowerState) String() string {
	switch s {
	case Off:
		return "off"
	case On:
		return "on"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// RomBank selects which ROM image the host boots from.
type RomBank uint8

const (
	RomLow RomBank = iota
	RomHigh
)

func (b RomBank) String() string {
	switch b {
	case RomLow:
		return "low"
	case RomHigh:
		return "high"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(b))
	}
}

// Event is the outcome of classifying one tick of button samples.
type Event uint8

const (
	EventNone Event = iota
	EventPowerUp
	EventPowerDown
	EventHibernate
	EventWake
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventPowerUp:
		return "power-up"
	case EventPowerDown:
		return "power-down"
	case EventHibernate:
		return "hibernate"
	case EventWake:
		return "wake"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// Action tells the tick source what to do after a tick.
type Action uint8

const (
	ActionContinue Action = iota
	ActionHibernate
)

// RunState tracks whether the tick source is running or suspended.
type RunState uint8

const (
	Running RunState = iota
	Sleeping
)

func (s RunState) String() string {
	if s == Sleeping {
		return "sleeping"
	}
	return "running"
}
