package command

import (
	"io"
	"strings"

	"github.com/TheCacophonyProject/powerswitch-controller/logging"
)

var log = logging.NewLogger("info")

const (
	// LineCapacity is the size of the line buffer including the terminator.
	LineCapacity = 10

	alert = 0x07
)

var (
	replyOK    = []byte("ok\r\n")
	replyError = []byte("error\r\n")
)

// Transport is the serial link the interpreter reads commands from.
type Transport interface {
	io.Writer
	Available() bool
	ReadByte() (byte, error)
}

// Command is a named zero argument action. When Reply is set the interpreter
// answers ok or error after running it, otherwise the action writes its own
// output.
type Command struct {
	Name   string
	Help   string
	Reply  bool
	Action func(w io.Writer) error
}

// Table is searched in order, the first case-insensitive exact match wins.
type Table []Command

func (t Table) Lookup(name string) (Command, bool) {
	for _, c := range t {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Command{}, false
}

// Interpreter buffers a line from the transport and dispatches it on CR or
// LF. It never blocks: Poll only reads bytes that are already available.
type Interpreter struct {
	transport Transport
	table     Table
	echo      bool

	buf    [LineCapacity]byte
	cursor int
}

func NewInterpreter(transport Transport, table Table, echo bool) *Interpreter {
	return &Interpreter{
		transport: transport,
		table:     table,
		echo:      echo,
	}
}

// Poll handles every byte the transport has ready.
func (in *Interpreter) Poll() error {
	for in.transport.Available() {
		b, err := in.transport.ReadByte()
		if err != nil {
			return err
		}
		if err := in.Feed(b); err != nil {
			return err
		}
	}
	return nil
}

// Feed handles a single byte. The returned error is only from writing to the
// transport, command failures are reported over the link.
func (in *Interpreter) Feed(b byte) error {
	switch {
	case b == '\r' || b == '\n':
		return in.dispatch()
	case b < ' ' || b > '~':
		return nil
	case in.cursor >= LineCapacity:
		_, err := in.transport.Write([]byte{alert})
		return err
	}
	in.buf[in.cursor] = b
	in.cursor++
	if in.echo {
		_, err := in.transport.Write([]byte{b})
		return err
	}
	return nil
}

// Line returns what a terminator would dispatch right now. The last slot of
// the buffer belongs to the terminator so a full buffer loses its last byte.
func (in *Interpreter) Line() string {
	end := in.cursor
	if end > LineCapacity-1 {
		end = LineCapacity - 1
	}
	return string(in.buf[:end])
}

func (in *Interpreter) dispatch() error {
	line := in.Line()
	in.cursor = 0
	if in.echo {
		if _, err := in.transport.Write([]byte("\r\n")); err != nil {
			return err
		}
	}
	if line == "" {
		return nil
	}

	cmd, ok := in.table.Lookup(line)
	if !ok {
		log.Debugf("Unknown command '%s'", line)
		_, err := in.transport.Write(replyError)
		return err
	}
	log.Debugf("Running command '%s'", cmd.Name)
	err := cmd.Action(in.transport)
	if err != nil {
		log.Errorf("Command '%s' failed: %v", cmd.Name, err)
	}
	if !cmd.Reply {
		return nil
	}
	if err != nil {
		_, werr := in.transport.Write(replyError)
		return werr
	}
	_, werr := in.transport.Write(replyOK)
	return werr
}
