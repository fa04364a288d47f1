package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/TheCacophonyProject/powerswitch-controller/logging"
	"github.com/TheCacophonyProject/powerswitch-controller/serialhelper"
	"github.com/alexflint/go-arg"
	"github.com/godbus/dbus/v5"
)

const (
	dbusName = "org.cacophony.PowerSwitch"
	dbusPath = "/org/cacophony/PowerSwitch"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	Send  *SendCmd  `arg:"subcommand:send" help:"Send a command line over the serial link and print the reply."`
	State *StateCmd `arg:"subcommand:state" help:"Show the power and ROM state from the controller service."`
	Power *PowerCmd `arg:"subcommand:power" help:"Power the host on or off through the controller service."`
	logging.LogArgs
}

type SendCmd struct {
	Line   string        `arg:"positional,required" help:"The command line, e.g. 'romh'."`
	Device string        `arg:"--device" default:"/dev/ttyUSB0" help:"Serial device connected to the power switch."`
	Baud   int           `arg:"--baud" default:"9600" help:"Serial baud rate."`
	Wait   time.Duration `arg:"--wait" default:"300ms" help:"How long to wait for more reply bytes."`
}

type StateCmd struct{}

type PowerCmd struct {
	State string `arg:"positional,required" help:"'on' or 'off'."`
}

func (Args) Version() string {
	return version
}

func procArgs(input []string) (Args, error) {
	args := Args{}

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
	if err == nil && parser.Subcommand() == nil {
		parser.WriteHelp(os.Stdout)
		return args, errors.New("no command given")
	}
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	logging.SetLevel(args.LogLevel)

	switch {
	case args.Send != nil:
		return send(os.Stdout, args.Send)
	case args.State != nil:
		return printState(os.Stdout)
	case args.Power != nil:
		return setPower(args.Power.State)
	}
	return nil
}

func send(w io.Writer, cmd *SendCmd) error {
	conf := serialhelper.DefaultConfig()
	conf.Device = cmd.Device
	conf.Baud = cmd.Baud
	log.Debugf("Sending '%s' to %s", cmd.Line, conf.Device)
	reply, err := serialhelper.SerialSendReceive(conf, []byte(cmd.Line+"\r"), cmd.Wait)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, formatReply(reply))
	return err
}

// formatReply turns the raw reply into printable lines. Alert bytes from a
// full command buffer are shown as '!'.
func formatReply(reply []byte) string {
	s := strings.ReplaceAll(string(reply), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\a", "!")
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}

func callService(method string, args ...interface{}) (*dbus.Call, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	obj := conn.Object(dbusName, dbusPath)
	call := obj.Call(dbusName+"."+method, 0, args...)
	return call, call.Err
}

func printState(w io.Writer) error {
	call, err := callService("State")
	if err != nil {
		return err
	}
	var on, high bool
	if err := call.Store(&on, &high); err != nil {
		return err
	}
	_, err = fmt.Fprint(w, formatState(on, high))
	return err
}

func formatState(on, high bool) string {
	power, rom := "off", "low"
	if on {
		power = "on"
	}
	if high {
		rom = "high"
	}
	return fmt.Sprintf("power: %s\nrom:   %s\n", power, rom)
}

func setPower(state string) error {
	switch strings.ToLower(state) {
	case "on":
		_, err := callService("PowerUp")
		return err
	case "off":
		_, err := callService("PowerDown")
		return err
	}
	return fmt.Errorf("unknown power state '%s', should be 'on' or 'off'", state)
}
