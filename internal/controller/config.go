package controller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/powerswitch-controller/eeprom"
	"github.com/TheCacophonyProject/powerswitch-controller/power"
	"github.com/TheCacophonyProject/powerswitch-controller/serialhelper"
)

const configKey = "power-switch"

const (
	EEPROMAuto = "auto"
	EEPROMChip = "chip"
	EEPROMFile = "file"
)

type PinNames struct {
	Button      string `mapstructure:"button"`
	PowerEnable string `mapstructure:"power-enable"`
	RomSelect   string `mapstructure:"rom-select"`
	Clock       string `mapstructure:"clock"`
}

type EEPROMConfig struct {
	Backend string `mapstructure:"backend"`
	File    string `mapstructure:"file"`
}

type Config struct {
	Pins   PinNames            `mapstructure:"pins"`
	Serial serialhelper.Config `mapstructure:"serial"`
	Echo   bool                `mapstructure:"echo"`
	EEPROM EEPROMConfig        `mapstructure:"eeprom"`
	Power  power.Config        `mapstructure:"power"`
}

func DefaultConfig() Config {
	return Config{
		Pins: PinNames{
			Button:      "GPIO17",
			PowerEnable: "GPIO27",
			RomSelect:   "GPIO22",
			Clock:       "GPIO18",
		},
		Serial: serialhelper.DefaultConfig(),
		EEPROM: EEPROMConfig{
			Backend: EEPROMAuto,
			File:    eeprom.EEPROM_FILE,
		},
		Power: power.DefaultConfig(),
	}
}

// ParseConfig reads the power-switch section of the config file in configDir.
// A missing file gives the defaults.
func ParseConfig(configDir string) (*Config, error) {
	conf := DefaultConfig()

	_, err := os.Stat(filepath.Join(configDir, goconfig.ConfigFileName))
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("No config file found in %s, using defaults.", configDir)
		return &conf, conf.Validate()
	}

	c, err := goconfig.New(configDir)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("No config file found in %s, using defaults.", configDir)
		return &conf, conf.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %v", err)
	}
	if err := c.Unmarshal(configKey, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %v", configKey, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c Config) Validate() error {
	if err := c.Power.Validate(); err != nil {
		return err
	}
	names := map[string]string{}
	for _, p := range []struct{ role, name string }{
		{"button", c.Pins.Button},
		{"power-enable", c.Pins.PowerEnable},
		{"rom-select", c.Pins.RomSelect},
		{"clock", c.Pins.Clock},
	} {
		if p.name == "" {
			return fmt.Errorf("no pin set for %s", p.role)
		}
		if other, ok := names[p.name]; ok {
			return fmt.Errorf("pin %s used for both %s and %s", p.name, other, p.role)
		}
		names[p.name] = p.role
	}
	if c.Serial.Device == "" {
		return errors.New("no serial device set")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.Baud)
	}
	switch c.EEPROM.Backend {
	case EEPROMAuto, EEPROMChip:
	case EEPROMFile:
		if c.EEPROM.File == "" {
			return errors.New("eeprom backend 'file' needs a file path")
		}
	default:
		return fmt.Errorf("unknown eeprom backend '%s'", c.EEPROM.Backend)
	}
	return nil
}
