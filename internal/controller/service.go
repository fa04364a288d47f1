package controller

import (
	"errors"

	"github.com/TheCacophonyProject/powerswitch-controller/power"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.PowerSwitch"
	dbusPath = "/org/cacophony/PowerSwitch"

	powerStateChanged = "PowerStateChanged"
)

type service struct {
	conn       *dbus.Conn
	controller *power.Controller
}

func startService(c *power.Controller) (*service, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}

	s := &service{
		conn:       conn,
		controller: c,
	}
	if err := conn.Export(s, dbusPath, dbusName); err != nil {
		return nil, err
	}
	if err := conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, err
	}
	return s, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
			Signals: []introspect.Signal{{
				Name: powerStateChanged,
				Args: []introspect.Arg{{Name: "on", Type: "b"}},
			}},
		}},
	}
	return introspect.NewIntrospectable(node)
}

func (s *service) PowerUp() *dbus.Error {
	log.Info("Power up requested over DBus.")
	if err := s.controller.PowerUp(); err != nil {
		return makeDbusError(".PowerUp", err)
	}
	return nil
}

func (s *service) PowerDown() *dbus.Error {
	log.Info("Power down requested over DBus.")
	if err := s.controller.PowerDown(); err != nil {
		return makeDbusError(".PowerDown", err)
	}
	return nil
}

// SelectRom selects the high bank when high is true, otherwise the low bank.
func (s *service) SelectRom(high bool) *dbus.Error {
	if err := s.controller.SelectRom(romBank(high)); err != nil {
		return makeDbusError(".SelectRom", err)
	}
	return nil
}

// SaveDefaultRom stores the bank used after a reset or wake.
func (s *service) SaveDefaultRom(high bool) *dbus.Error {
	if err := s.controller.SaveDefaultRom(romBank(high)); err != nil {
		return makeDbusError(".SaveDefaultRom", err)
	}
	return nil
}

// State returns whether the host is powered and whether the high ROM bank
// is selected.
func (s *service) State() (bool, bool, *dbus.Error) {
	return s.controller.State() == power.On, s.controller.Rom() == power.RomHigh, nil
}

func (s *service) emitPowerState(e power.Event) {
	if e != power.EventPowerUp && e != power.EventPowerDown {
		return
	}
	if err := s.conn.Emit(dbusPath, dbusName+"."+powerStateChanged, e == power.EventPowerUp); err != nil {
		log.Error("Failed to emit power state:", err)
	}
}

func romBank(high bool) power.RomBank {
	if high {
		return power.RomHigh
	}
	return power.RomLow
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}
