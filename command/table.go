package command

import (
	"fmt"
	"io"

	"github.com/TheCacophonyProject/powerswitch-controller/power"
)

// Target is what the serial commands act on.
type Target interface {
	PowerUp() error
	PowerDown() error
	SelectRom(power.RomBank) error
	SaveDefaultRom(power.RomBank) error
}

// NewTable returns the commands served over the serial link.
func NewTable(target Target, version string) Table {
	selectRom := func(b power.RomBank) func(io.Writer) error {
		return func(io.Writer) error { return target.SelectRom(b) }
	}
	saveRom := func(b power.RomBank) func(io.Writer) error {
		return func(io.Writer) error { return target.SaveDefaultRom(b) }
	}

	t := Table{
		{Name: "powerdown", Help: "Power off the host", Reply: true, Action: func(io.Writer) error { return target.PowerDown() }},
		{Name: "powerup", Help: "Power on the host", Reply: true, Action: func(io.Writer) error { return target.PowerUp() }},
		{Name: "roml", Help: "Select the low ROM bank", Reply: true, Action: selectRom(power.RomLow)},
		{Name: "romlow", Help: "Select the low ROM bank", Reply: true, Action: selectRom(power.RomLow)},
		{Name: "romh", Help: "Select the high ROM bank", Reply: true, Action: selectRom(power.RomHigh)},
		{Name: "romhigh", Help: "Select the high ROM bank", Reply: true, Action: selectRom(power.RomHigh)},
		{Name: "defroml", Help: "Make the low ROM bank the default", Reply: true, Action: saveRom(power.RomLow)},
		{Name: "defromh", Help: "Make the high ROM bank the default", Reply: true, Action: saveRom(power.RomHigh)},
		{Name: "version", Help: "Show the firmware version", Action: func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "powerswitch-controller %s\r\n", version)
			return err
		}},
	}
	help := Command{Name: "help", Help: "List the commands"}
	help.Action = func(w io.Writer) error {
		for _, c := range append(t, help) {
			if _, err := fmt.Fprintf(w, "%-10s%s\r\n", c.Name, c.Help); err != nil {
				return err
			}
		}
		return nil
	}
	return append(t, help)
}
