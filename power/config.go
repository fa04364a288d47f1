package power

import (
	"errors"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/physic"
)

const (
	ClockModePWM    = "pwm"
	ClockModeToggle = "toggle"
)

// Config holds the timing parameters of the button and clock state machine.
type Config struct {
	TickRate       int           `mapstructure:"tick-rate"`
	ShortPress     time.Duration `mapstructure:"short-press"`
	LongPress      time.Duration `mapstructure:"long-press"`
	IdleTimeout    time.Duration `mapstructure:"idle-timeout"`
	Hibernate      bool          `mapstructure:"hibernate"`
	ClockFrequency int           `mapstructure:"clock-frequency"`
	ClockMode      string        `mapstructure:"clock-mode"`
}

func DefaultConfig() Config {
	return Config{
		TickRate:       30,
		ShortPress:     100 * time.Millisecond,
		LongPress:      2 * time.Second,
		IdleTimeout:    100 * time.Second,
		Hibernate:      true,
		ClockFrequency: 60,
		ClockMode:      ClockModePWM,
	}
}

var (
	errNoTickRate     = errors.New("tick rate must be greater than zero")
	errPressOrder     = errors.New("short press must be shorter than long press")
	errClockFrequency = errors.New("clock frequency must be greater than zero")
)

// Validate checks that the config can be converted into tick thresholds.
func (c Config) Validate() error {
	if c.TickRate <= 0 {
		return errNoTickRate
	}
	if c.ShortPress < 0 || c.LongPress < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("durations can not be negative")
	}
	if c.ShortPress >= c.LongPress {
		return errPressOrder
	}
	if c.ClockFrequency <= 0 {
		return errClockFrequency
	}
	if c.ClockMode != ClockModePWM && c.ClockMode != ClockModeToggle {
		return fmt.Errorf("unknown clock mode '%s', should be '%s' or '%s'", c.ClockMode, ClockModePWM, ClockModeToggle)
	}
	// Timers saturate at MaxUint16 so every threshold has to sit below it.
	limits := []struct {
		name string
		d    time.Duration
	}{
		{"short press", c.ShortPress},
		{"long press", c.LongPress},
		{"idle timeout", c.IdleTimeout},
	}
	for _, l := range limits {
		if c.ticksFloat(l.d) >= math.MaxUint16 {
			return fmt.Errorf("%s of %s is too long for a %d Hz tick", l.name, l.d, c.TickRate)
		}
	}
	return nil
}

// TickPeriod is the time between ticks.
func (c Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func (c Config) ticksFloat(d time.Duration) float64 {
	return d.Seconds() * float64(c.TickRate)
}

func (c Config) ticks(d time.Duration) uint16 {
	return uint16(math.Round(c.ticksFloat(d)))
}

// Thresholds are the tick counts the classifier and idle monitor compare against.
type Thresholds struct {
	Short uint16
	Long  uint16
	Idle  uint16
}

func (c Config) Thresholds() Thresholds {
	return Thresholds{
		Short: c.ticks(c.ShortPress),
		Long:  c.ticks(c.LongPress),
		Idle:  c.ticks(c.IdleTimeout),
	}
}

// ToggleDivisor is how many ticks pass between toggles of the clock pin when
// the clock is generated in software. Anything above half the tick rate can't
// be reached and is clamped to a toggle every tick.
func (c Config) ToggleDivisor() uint16 {
	d := math.Round(float64(c.TickRate) / float64(2*c.ClockFrequency))
	if d < 1 {
		return 1
	}
	return uint16(d)
}

func (c Config) clockFrequency() physic.Frequency {
	return physic.Frequency(c.ClockFrequency) * physic.Hertz
}
