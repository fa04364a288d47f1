package power

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TheCacophonyProject/powerswitch-controller/logging"
	"periph.io/x/conn/v3/gpio"
)

var log = logging.NewLogger("info")

// Pins are the lines the controller drives.
//   - Button: active-low input with pull-up.
//   - PowerEnable: active-low, low powers the host.
//   - RomSelect: active-high, high selects the high ROM bank.
//   - Clock: clock output for the host while powered.
type Pins struct {
	Button      gpio.PinIn
	PowerEnable gpio.PinOut
	RomSelect   gpio.PinOut
	Clock       gpio.PinOut
}

// DefaultRom persists the ROM bank selected at startup.
type DefaultRom interface {
	Load() (RomBank, error)
	Save(RomBank) error
}

// Controller owns all state shared between the tick and the command loop.
// mu stands in for masking the tick: Tick holds it for its whole body and
// every foreground mutation takes it, so no tick ever sees a half applied
// change.
type Controller struct {
	mu         sync.Mutex
	pins       Pins
	classifier *Classifier
	clock      *ClockGenerator
	defaults   DefaultRom
	hibernate  bool

	state PowerState
	rom   RomBank
	run   RunState

	listenersMu sync.Mutex
	listeners   []func(Event)
}

// New sets up the pins and leaves the host powered off with the default ROM
// bank loaded. defaults can be nil, in which case the low bank is used.
func New(pins Pins, conf Config, defaults DefaultRom) (*Controller, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if pins.Button == nil || pins.PowerEnable == nil || pins.RomSelect == nil || pins.Clock == nil {
		return nil, errors.New("all pins must be set")
	}
	if err := pins.Button.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to set button pin %s as input: %v", pins.Button, err)
	}
	c := &Controller{
		pins:       pins,
		classifier: NewClassifier(conf.Thresholds()),
		clock:      NewClockGenerator(pins.Clock, conf),
		defaults:   defaults,
		hibernate:  conf.Hibernate,
		state:      Off,
		rom:        loadDefaultRom(defaults),
	}
	log.Debugf("Thresholds in ticks: %+v, clock divisor %d", c.classifier.Thresholds, conf.ToggleDivisor())
	if err := c.Reinit(); err != nil {
		return nil, err
	}
	return c, nil
}

// OnEvent registers f to be called after every power, hibernate and wake
// event. f is called without the controller locked.
func (c *Controller) OnEvent(f func(Event)) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, f)
	c.listenersMu.Unlock()
}

func (c *Controller) notify(e Event) {
	if e == EventNone {
		return
	}
	c.listenersMu.Lock()
	listeners := c.listeners
	c.listenersMu.Unlock()
	for _, f := range listeners {
		f(e)
	}
}

// Tick runs one period of the button classifier, idle monitor and software
// clock. It returns ActionHibernate when the host is off and the button has
// been idle for long enough.
func (c *Controller) Tick() Action {
	c.mu.Lock()
	pressed := c.pins.Button.Read() == gpio.Low
	event := c.classifier.Sample(pressed, c.state)
	var err error
	switch event {
	case EventPowerUp:
		err = c.powerUp()
	case EventPowerDown:
		err = c.powerDown()
	}
	if err != nil {
		log.Errorf("Failed to apply %s: %v", event, err)
	}
	if err := c.clock.Tick(); err != nil {
		log.Errorf("Clock tick failed: %v", err)
	}
	action := ActionContinue
	if c.hibernate && c.state == Off && c.run == Running && c.classifier.Idle() {
		action = ActionHibernate
	}
	c.mu.Unlock()

	c.notify(event)
	return action
}

// PowerUp powers the host. Outputs are applied again even when already on.
func (c *Controller) PowerUp() error {
	c.mu.Lock()
	was := c.state
	err := c.powerUp()
	c.mu.Unlock()
	if was != On {
		c.notify(EventPowerUp)
	}
	return err
}

// PowerDown removes power from the host and the ROM selector.
func (c *Controller) PowerDown() error {
	c.mu.Lock()
	was := c.state
	err := c.powerDown()
	c.mu.Unlock()
	if was != Off {
		c.notify(EventPowerDown)
	}
	return err
}

func (c *Controller) powerUp() error {
	c.state = On
	if err := c.pins.PowerEnable.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to assert power enable: %v", err)
	}
	if err := c.pins.RomSelect.Out(romLevel(c.rom)); err != nil {
		return fmt.Errorf("failed to restore ROM select: %v", err)
	}
	return c.clock.Enable()
}

// powerDown applies every output even if an earlier one fails so the ROM
// select line is never left asserted.
func (c *Controller) powerDown() error {
	c.state = Off
	var errs []error
	if err := c.pins.PowerEnable.Out(gpio.High); err != nil {
		errs = append(errs, fmt.Errorf("failed to deassert power enable: %v", err))
	}
	if err := c.pins.RomSelect.Out(gpio.Low); err != nil {
		errs = append(errs, fmt.Errorf("failed to deassert ROM select: %v", err))
	}
	if err := c.clock.Disable(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SelectRom stores the bank. The pin only follows it while the host is on.
func (c *Controller) SelectRom(b RomBank) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rom = b
	if c.state != On {
		return nil
	}
	if err := c.pins.RomSelect.Out(romLevel(b)); err != nil {
		return fmt.Errorf("failed to select ROM bank %s: %v", b, err)
	}
	return nil
}

// SaveDefaultRom persists b as the bank loaded on startup. It does
// not change the current selection.
func (c *Controller) SaveDefaultRom(b RomBank) error {
	if c.defaults == nil {
		return errors.New("no default ROM store configured")
	}
	return c.defaults.Save(b)
}

// Reinit is the warm restart entry point: counters are cleared and the
// outputs are applied again for the current power state. The selected ROM
// bank is kept, the stored default is only read by New.
func (c *Controller) Reinit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classifier.Reset()
	c.run = Running
	if c.state == On {
		return c.powerUp()
	}
	return c.powerDown()
}

func loadDefaultRom(defaults DefaultRom) RomBank {
	if defaults == nil {
		return RomLow
	}
	b, err := defaults.Load()
	if err != nil {
		log.Warnf("Failed to load default ROM bank, using %s: %v", RomLow, err)
		return RomLow
	}
	return b
}

// Sleep marks the controller as hibernating. It refuses while the host is on.
func (c *Controller) Sleep() error {
	c.mu.Lock()
	if c.state == On {
		c.mu.Unlock()
		return errors.New("can not hibernate while the host is powered on")
	}
	c.run = Sleeping
	c.mu.Unlock()
	c.notify(EventHibernate)
	return nil
}

// setRunning leaves hibernation without touching the outputs.
func (c *Controller) setRunning() {
	c.mu.Lock()
	c.run = Running
	c.mu.Unlock()
}

// Wake leaves hibernation through Reinit.
func (c *Controller) Wake() error {
	err := c.Reinit()
	c.notify(EventWake)
	return err
}

func (c *Controller) State() PowerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Rom() RomBank {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rom
}

func (c *Controller) RunState() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run
}

// Timers returns the press and idle tick counters.
func (c *Controller) Timers() (press, idle uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.PressTimer, c.classifier.IdleTimer
}

func romLevel(b RomBank) gpio.Level {
	return b == RomHigh
}
