package serialhelper

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/powerswitch-controller/logging"
	"github.com/tarm/serial"
)

var log = logging.NewLogger("info")

const cmdlineFile = "/boot/firmware/cmdline.txt"

type Config struct {
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	LockRetries int           `mapstructure:"lock-retries"`
	LockWait    time.Duration `mapstructure:"lock-wait"`
}

func DefaultConfig() Config {
	return Config{
		Device:      "/dev/serial0",
		Baud:        9600,
		LockRetries: 3,
		LockWait:    time.Second,
	}
}

type SerialUnavailableError struct {
	msg string
}

func (e *SerialUnavailableError) Error() string {
	return e.msg
}

func NewSerialUnavailableError(msg string) error {
	return &SerialUnavailableError{msg: msg}
}

func SerialInUseFromTerminal() bool {
	b, err := os.ReadFile(cmdlineFile)
	if err != nil {
		log.Printf("Error when reading %s: %s", cmdlineFile, err)
		return false
	}
	return strings.Contains(string(b), "console=serial0")
}

// GetSerial will try to get a file lock on the serial device.
// defer ReleaseSerial(serialFile) should be called to release the lock and close the file.
func GetSerial(device string, retries int, wait time.Duration) (*os.File, error) {
	// Check if serial is in use by the terminal console.
	if device == "/dev/serial0" && SerialInUseFromTerminal() {
		return nil, NewSerialUnavailableError("serial is in use by the terminal console")
	}

	serialFile, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	lockAcquired := false
	defer func() {
		if !lockAcquired {
			serialFile.Close()
		}
	}()

	i := retries
	for {
		err = syscall.Flock(int(serialFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			lockAcquired = true
			break
		}

		if errno, ok := err.(syscall.Errno); ok && errno == syscall.EWOULDBLOCK {
			log.Printf("Serial port is locked. Checking locking process...")
			process, err := getLockingProcess(device)
			if err != nil {
				log.Printf("Error checking locking process: %v", err)
			} else if process == "" {
				log.Printf("No active process found holding the lock. Forcing lock acquisition...")
				if err := syscall.Flock(int(serialFile.Fd()), syscall.LOCK_UN); err != nil {
					return nil, fmt.Errorf("failed to force unlock: %v", err)
				}
				continue
			} else {
				log.Printf("Serial port is locked by process: %s", process)
			}

			if i > 0 {
				log.Printf("Serial port is locked by another process. Retrying %d more times in %s...", i, wait)
				time.Sleep(wait)
				i--
			} else {
				return nil, NewSerialUnavailableError("failed to get lock on serial, might be in use by other process")
			}
		} else {
			return nil, err
		}
	}

	return serialFile, nil
}

func getLockingProcess(serialPath string) (string, error) {
	cmd := exec.Command("fuser", serialPath)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok && exitError.ExitCode() == 1 {
			// Exit code 1 from `fuser` means no process is using the file
			return "", nil
		}
		return "", fmt.Errorf("failed to execute fuser: %v", err)
	}
	return strings.TrimSpace(output.String()), nil
}

func ReleaseSerial(serialFile *os.File) error {
	err := syscall.Flock(int(serialFile.Fd()), syscall.LOCK_UN)
	serialFile.Close()
	return err
}

var errPortClosed = errors.New("serial port closed")

// Port is an open serial link. A background reader keeps received bytes in a
// buffer so callers can poll without blocking.
type Port struct {
	lock *os.File
	port io.ReadWriteCloser

	rx        chan byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	errMu   sync.Mutex
	readErr error
	stopped bool
}

// Open locks the device and opens it with the configured baud rate.
func Open(conf Config) (*Port, error) {
	lock, err := GetSerial(conf.Device, conf.LockRetries, conf.LockWait)
	if err != nil {
		return nil, err
	}
	c := &serial.Config{Name: conf.Device, Baud: conf.Baud, ReadTimeout: 100 * time.Millisecond}
	serialPort, err := serial.OpenPort(c)
	if err != nil {
		ReleaseSerial(lock)
		return nil, err
	}
	p := newPort(serialPort)
	p.lock = lock
	return p, nil
}

func newPort(rw io.ReadWriteCloser) *Port {
	p := &Port{
		port: rw,
		rx:   make(chan byte, 256),
		done: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.readLoop()
	return p
}

func (p *Port) readLoop() {
	defer p.wg.Done()
	buf := make([]byte, 64)
	for {
		n, err := p.port.Read(buf)
		for _, b := range buf[:n] {
			select {
			case p.rx <- b:
			case <-p.done:
				return
			}
		}
		select {
		case <-p.done:
			return
		default:
		}
		// A read timeout with nothing received shows up as EOF.
		if err != nil && err != io.EOF {
			log.Errorf("Serial read failed: %v", err)
			p.errMu.Lock()
			p.readErr = err
			p.stopped = true
			p.errMu.Unlock()
			close(p.rx)
			return
		}
	}
}

// Available reports whether ReadByte will return without blocking. Once the
// reader has failed it stays true so ReadByte can report the error.
func (p *Port) Available() bool {
	if len(p.rx) > 0 {
		return true
	}
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.stopped
}

// ReadByte blocks until a byte is received.
func (p *Port) ReadByte() (byte, error) {
	select {
	case b, ok := <-p.rx:
		if !ok {
			return 0, p.err()
		}
		return b, nil
	case <-p.done:
		return 0, errPortClosed
	}
}

// ReadTimeout is like ReadByte but gives up after timeout.
func (p *Port) ReadTimeout(timeout time.Duration) (byte, bool, error) {
	select {
	case b, ok := <-p.rx:
		if !ok {
			return 0, false, p.err()
		}
		return b, true, nil
	case <-p.done:
		return 0, false, errPortClosed
	case <-time.After(timeout):
		return 0, false, nil
	}
}

func (p *Port) err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.readErr == nil {
		return errPortClosed
	}
	return p.readErr
}

func (p *Port) Write(data []byte) (int, error) {
	n, err := p.port.Write(data)
	if err != nil {
		return n, err
	}
	if n != len(data) {
		return n, fmt.Errorf("wrote %d bytes, expected %d", n, len(data))
	}
	return n, nil
}

func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.port.Close()
		p.wg.Wait()
		if p.lock != nil {
			if lerr := ReleaseSerial(p.lock); err == nil {
				err = lerr
			}
		}
	})
	return err
}

// SerialSendReceive writes data and collects the reply until nothing more
// arrives for quiet.
func SerialSendReceive(conf Config, data []byte, quiet time.Duration) ([]byte, error) {
	p, err := Open(conf)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	start := time.Now()
	if _, err := p.Write(data); err != nil {
		return nil, err
	}
	response := []byte{}
	for {
		b, ok, err := p.ReadTimeout(quiet)
		if err != nil {
			return response, err
		}
		if !ok {
			break
		}
		response = append(response, b)
	}
	log.Debugf("Received %d bytes in %s", len(response), time.Since(start))
	return response, nil
}
