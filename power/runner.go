package power

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Ticker is the periodic tick source. Stop disables it, Reset enables it again.
type Ticker interface {
	C() <-chan time.Time
	Stop()
	Reset()
}

type timeTicker struct {
	t      *time.Ticker
	period time.Duration
}

func NewTicker(period time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(period), period: period}
}

func (t *timeTicker) C() <-chan time.Time { return t.t.C }
func (t *timeTicker) Stop()               { t.t.Stop() }
func (t *timeTicker) Reset()              { t.t.Reset(t.period) }

// wakePollInterval bounds how long a hibernating runner takes to notice a
// cancelled context or the host being powered up over the command link.
const wakePollInterval = 500 * time.Millisecond

// Runner calls Tick on every tick and puts the controller into hibernation
// when it asks for it.
type Runner struct {
	controller *Controller
	button     gpio.PinIn
	ticker     Ticker
}

func NewRunner(c *Controller, ticker Ticker) *Runner {
	return &Runner{
		controller: c,
		button:     c.pins.Button,
		ticker:     ticker,
	}
}

// Run ticks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	defer r.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.ticker.C():
		}
		if r.controller.Tick() != ActionHibernate {
			continue
		}
		if err := r.hibernate(ctx); err != nil {
			return err
		}
	}
}

// hibernate stops the tick and sleeps until the button changes level. Waking
// goes through Controller.Wake which reinitialises the counters and outputs
// before the tick is started again.
func (r *Runner) hibernate(ctx context.Context) error {
	if err := r.controller.Sleep(); err != nil {
		log.Debugf("Not hibernating: %v", err)
		return nil
	}
	log.Info("Button idle with host off, hibernating")
	r.ticker.Stop()

	if err := r.button.In(gpio.PullUp, gpio.BothEdges); err != nil {
		r.controller.setRunning()
		return fmt.Errorf("failed to arm wake on button %s: %v", r.button, err)
	}
	if err := r.waitForWake(ctx); err != nil {
		if derr := r.disarm(); derr != nil {
			log.Error(derr)
		}
		r.controller.setRunning()
		return err
	}
	if err := r.disarm(); err != nil {
		return err
	}

	log.Info("Waking from hibernation")
	if err := r.controller.Wake(); err != nil {
		log.Errorf("Reinitialising after wake: %v", err)
	}
	r.ticker.Reset()
	return nil
}

// waitForWake blocks until a button edge, the host being powered on over the
// command link, or ctx being done.
func (r *Runner) waitForWake(ctx context.Context) error {
	for !r.button.WaitForEdge(wakePollInterval) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.controller.State() == On {
			log.Info("Host powered on while hibernating")
			return nil
		}
	}
	return nil
}

func (r *Runner) disarm() error {
	if err := r.button.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("failed to disarm wake on button %s: %v", r.button, err)
	}
	return nil
}
