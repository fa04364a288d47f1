package power

import (
	"context"
	"sync"
)

// Dispatcher delivers events to listeners from its own goroutine. Register
// Notify with Controller.OnEvent so listeners that block, like DBus calls,
// never hold up the tick.
type Dispatcher struct {
	events chan Event

	mu        sync.Mutex
	listeners []func(Event)
}

func NewDispatcher(size int) *Dispatcher {
	return &Dispatcher{events: make(chan Event, size)}
}

func (d *Dispatcher) Listen(f func(Event)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, f)
	d.mu.Unlock()
}

// Notify queues e without blocking. The event is dropped when the queue is full.
func (d *Dispatcher) Notify(e Event) {
	select {
	case d.events <- e:
	default:
		log.Warnf("Event queue full, dropping '%s'", e)
	}
}

// Run delivers queued events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.events:
			d.mu.Lock()
			listeners := d.listeners
			d.mu.Unlock()
			for _, f := range listeners {
				f(e)
			}
		}
	}
}
