package controller

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/powerswitch-controller/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, goconfig.ConfigFileName), []byte(content), 0644))
	return dir
}

func TestParseConfigMissingFile(t *testing.T) {
	conf, err := ParseConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *conf)
}

func TestParseConfig(t *testing.T) {
	dir := writeConfig(t, `
[power-switch]
echo = true

[power-switch.pins]
button = "GPIO5"

[power-switch.serial]
device = "/dev/ttyAMA0"
baud = 115200

[power-switch.eeprom]
backend = "file"
file = "/tmp/rom.json"

[power-switch.power]
tick-rate = 50
long-press = "3s"
clock-mode = "toggle"
hibernate = false
`)
	conf, err := ParseConfig(dir)
	require.NoError(t, err)

	expected := DefaultConfig()
	expected.Echo = true
	expected.Pins.Button = "GPIO5"
	expected.Serial.Device = "/dev/ttyAMA0"
	expected.Serial.Baud = 115200
	expected.EEPROM = EEPROMConfig{Backend: EEPROMFile, File: "/tmp/rom.json"}
	expected.Power.TickRate = 50
	expected.Power.LongPress = 3 * time.Second
	expected.Power.ClockMode = power.ClockModeToggle
	expected.Power.Hibernate = false
	assert.Equal(t, expected, *conf)
}

func TestParseConfigOtherSections(t *testing.T) {
	dir := writeConfig(t, `
[comms]
enable = true
`)
	conf, err := ParseConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *conf)
}

func TestParseConfigInvalid(t *testing.T) {
	dir := writeConfig(t, `
[power-switch.power]
short-press = "5s"
long-press = "1s"
`)
	_, err := ParseConfig(dir)
	assert.Error(t, err)

	dir = writeConfig(t, "[power-switch\n")
	_, err = ParseConfig(dir)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"missing pin", func(c *Config) { c.Pins.Clock = "" }},
		{"shared pin", func(c *Config) { c.Pins.RomSelect = c.Pins.Button }},
		{"no serial device", func(c *Config) { c.Serial.Device = "" }},
		{"bad baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"unknown eeprom backend", func(c *Config) { c.EEPROM.Backend = "flash" }},
		{"file backend without path", func(c *Config) {
			c.EEPROM = EEPROMConfig{Backend: EEPROMFile}
		}},
		{"bad power config", func(c *Config) { c.Power.TickRate = 0 }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestProcArgsConfigDir(t *testing.T) {
	args, err := procArgs([]string{})
	require.NoError(t, err)
	assert.Equal(t, goconfig.DefaultConfigDir, args.ConfigDir)

	args, err = procArgs([]string{"--config", "/tmp/cacophony", "--skip-dbus"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cacophony", args.ConfigDir)
	assert.True(t, args.SkipDbus)
}
