package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatReply(t *testing.T) {
	assert.Equal(t, "ok\n", formatReply([]byte("ok\r\n")))
	assert.Equal(t, "!!error\n", formatReply([]byte("\a\aerror\r\n")))
	assert.Equal(t, "partial\n", formatReply([]byte("partial")))
	assert.Equal(t, "", formatReply(nil))
}

func TestFormatState(t *testing.T) {
	assert.Equal(t, "power: on\nrom:   high\n", formatState(true, true))
	assert.Equal(t, "power: off\nrom:   low\n", formatState(false, false))
}

func TestProcArgs(t *testing.T) {
	args, err := procArgs([]string{"send", "romh", "--baud", "115200", "--wait", "1s"})
	require.NoError(t, err)
	require.NotNil(t, args.Send)
	assert.Equal(t, "romh", args.Send.Line)
	assert.Equal(t, 115200, args.Send.Baud)
	assert.Equal(t, "/dev/ttyUSB0", args.Send.Device)
	assert.Equal(t, "1s", args.Send.Wait.String())

	args, err = procArgs([]string{"power", "on"})
	require.NoError(t, err)
	require.NotNil(t, args.Power)
	assert.Equal(t, "on", args.Power.State)

	_, err = procArgs([]string{})
	assert.Error(t, err)
}

func TestSetPowerUnknownState(t *testing.T) {
	assert.Error(t, setPower("sideways"))
}
