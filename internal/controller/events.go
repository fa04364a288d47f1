package controller

import (
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/powerswitch-controller/power"
)

var addEvent = eventclient.AddEvent

var eventTypes = map[power.Event]string{
	power.EventPowerUp:   "powerSwitchOn",
	power.EventPowerDown: "powerSwitchOff",
	power.EventHibernate: "powerSwitchHibernate",
	power.EventWake:      "powerSwitchWake",
}

// eventReporter returns a listener that records power transitions with the
// event reporter.
func eventReporter(c *power.Controller) func(power.Event) {
	return func(e power.Event) {
		eventType, ok := eventTypes[e]
		if !ok {
			return
		}
		// Events are delivered late so the state comes from the event itself.
		state := c.State()
		switch e {
		case power.EventPowerUp:
			state = power.On
		case power.EventPowerDown, power.EventHibernate:
			state = power.Off
		}
		err := addEvent(eventclient.Event{
			Timestamp: time.Now(),
			Type:      eventType,
			Details: map[string]interface{}{
				"power": state.String(),
				"rom":   c.Rom().String(),
			},
		})
		if err != nil {
			log.Error("Error sending event:", err)
		}
	}
}
