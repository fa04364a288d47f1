/*
powerswitch-controller - Power switch and ROM selector for a retro host
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/powerswitch-controller/command"
	"github.com/TheCacophonyProject/powerswitch-controller/eeprom"
	"github.com/TheCacophonyProject/powerswitch-controller/logging"
	"github.com/TheCacophonyProject/powerswitch-controller/power"
	"github.com/TheCacophonyProject/powerswitch-controller/serialhelper"
	"github.com/alexflint/go-arg"
	"github.com/google/go-cmp/cmp"
	"github.com/rjeczalik/notify"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	// How often the foreground loop checks the serial link for input.
	pollInterval = 5 * time.Millisecond

	eventQueueSize = 16
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	ConfigDir string `arg:"-c,--config" help:"configuration folder"`
	SkipDbus  bool   `arg:"--skip-dbus" help:"Don't start the DBus service."`
	logging.LogArgs
}

func (Args) Version() string {
	return version
}

var defaultArgs = Args{
	ConfigDir: goconfig.DefaultConfigDir,
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

// checkConfigChanges will compare the config from when first loaded to a new config each time
// the config file is modified.
// If there is a difference then the program will exit and systemd will restart the service, causing
// the new config to be loaded.
func checkConfigChanges(conf *Config, configDir string) error {
	configFilePath := filepath.Join(configDir, goconfig.ConfigFileName)
	fsEvents := make(chan notify.EventInfo, 1)
	if err := notify.Watch(configFilePath, fsEvents, notify.InCloseWrite, notify.InMovedTo); err != nil {
		return err
	}
	defer notify.Stop(fsEvents)

	for {
		<-fsEvents
		newConfig, err := ParseConfig(configDir)
		if err != nil {
			log.Error("error reloading config:", err)
			continue
		}
		diff := cmp.Diff(conf, newConfig)
		log.Debug("Config diff:", diff)
		if diff != "" {
			log.Info("Config changed. Exiting to allow systemctl to restart service.")
			os.Exit(0)
		} else {
			log.Info("No relevant changes detected in config file.")
		}
	}
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	logging.SetLevel(args.LogLevel)

	log.Printf("Running version: %s", version)

	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	log.Debugf("Config: %+v", conf)

	go func() {
		if err := checkConfigChanges(conf, args.ConfigDir); err != nil {
			log.Warn("Not watching config for changes: ", err)
		}
	}()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %v", err)
	}

	pins, err := openPins(conf.Pins)
	if err != nil {
		return err
	}

	controller, err := power.New(pins, conf.Power, openDefaultRom(conf.EEPROM))
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := power.NewDispatcher(eventQueueSize)
	controller.OnEvent(dispatcher.Notify)
	dispatcher.Listen(func(e power.Event) {
		log.Infof("Event '%s', power %s, ROM %s", e, controller.State(), controller.Rom())
	})
	dispatcher.Listen(eventReporter(controller))

	if !args.SkipDbus {
		log.Info("Starting DBus service.")
		svc, err := startService(controller)
		if err != nil {
			return err
		}
		dispatcher.Listen(svc.emitPowerState)
	}
	go dispatcher.Run(ctx)

	log.Info("Get lock on serial port")
	port, err := serialhelper.Open(conf.Serial)
	if err != nil {
		return err
	}
	defer port.Close()
	interpreter := command.NewInterpreter(port, command.NewTable(controller, version), conf.Echo)

	runner := power.NewRunner(controller, power.NewTicker(conf.Power.TickPeriod()))
	errs := make(chan error, 2)
	go func() {
		errs <- runner.Run(ctx)
	}()
	go func() {
		errs <- pollCommands(ctx, interpreter, pollInterval)
	}()

	err = <-errs
	stop()
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		log.Info("Shutting down.")
		return nil
	}
	return err
}

// pollCommands feeds serial input to the interpreter until ctx is done.
func pollCommands(ctx context.Context, interpreter *command.Interpreter, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := interpreter.Poll(); err != nil {
				return fmt.Errorf("serial link failed: %v", err)
			}
		}
	}
}

func openPins(names PinNames) (power.Pins, error) {
	lookup := func(name string) (gpio.PinIO, error) {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("failed to find pin %s", name)
		}
		return pin, nil
	}

	var pins power.Pins
	button, err := lookup(names.Button)
	if err != nil {
		return pins, err
	}
	powerEnable, err := lookup(names.PowerEnable)
	if err != nil {
		return pins, err
	}
	romSelect, err := lookup(names.RomSelect)
	if err != nil {
		return pins, err
	}
	clock, err := lookup(names.Clock)
	if err != nil {
		return pins, err
	}
	return power.Pins{
		Button:      button,
		PowerEnable: powerEnable,
		RomSelect:   romSelect,
		Clock:       clock,
	}, nil
}

func openDefaultRom(conf EEPROMConfig) power.DefaultRom {
	switch conf.Backend {
	case EEPROMChip:
		return eeprom.NewSelector(eeprom.NewChipStore())
	case EEPROMFile:
		return eeprom.NewSelector(eeprom.NewFileStore(conf.File))
	}
	chip := eeprom.NewChipStore()
	if chip.Present() {
		log.Info("Using EEPROM chip for the default ROM bank.")
		return eeprom.NewSelector(chip)
	}
	log.Infof("No EEPROM chip found, keeping the default ROM bank in %s", conf.File)
	return eeprom.NewSelector(eeprom.NewFileStore(conf.File))
}
