package eeprom

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerswitch-controller/i2crequest"
	"github.com/TheCacophonyProject/powerswitch-controller/logging"
)

const (
	EEPROM_ADDRESS = 0x50
	EEPROM_FILE    = "/etc/cacophony/powerswitch-eeprom.json"

	txTimeout = 1000
	// Time the chip needs to finish an internal write cycle.
	writeCycle = 5 * time.Millisecond
)

var log = logging.NewLogger("info")

var sleepFn = time.Sleep

// Store reads and writes single bytes that survive a power cycle.
type Store interface {
	ReadByte(addr byte) (byte, error)
	WriteByte(addr, val byte) error
}

// ChipStore is an I2C EEPROM reached through the I2C service.
type ChipStore struct {
	address byte
}

func NewChipStore() *ChipStore {
	return &ChipStore{address: EEPROM_ADDRESS}
}

// Present checks that the chip answers on the bus.
func (c *ChipStore) Present() bool {
	found, err := i2crequest.CheckAddress(c.address, txTimeout)
	if err != nil {
		log.Debugf("EEPROM chip not found: %v", err)
	}
	return found
}

func (c *ChipStore) ReadByte(addr byte) (byte, error) {
	data, err := i2crequest.Tx(c.address, []byte{addr}, 1, txTimeout)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("expected 1 byte from eeprom, got %d", len(data))
	}
	return data[0], nil
}

// WriteByte writes val and reads it back once the write cycle is done.
func (c *ChipStore) WriteByte(addr, val byte) error {
	if _, err := i2crequest.Tx(c.address, []byte{addr, val}, 0, txTimeout); err != nil {
		return err
	}
	sleepFn(writeCycle)
	readBack, err := c.ReadByte(addr)
	if err != nil {
		return err
	}
	if readBack != val {
		return fmt.Errorf("eeprom write to %#02X failed, wrote %#02X read back %#02X", addr, val, readBack)
	}
	return nil
}

// FileStore keeps the bytes in a JSON file, for boards without an EEPROM chip.
// Unwritten addresses read as 0xFF like an erased chip.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) ReadByte(addr byte) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return 0, err
	}
	val, ok := data[addr]
	if !ok {
		return 0xFF, nil
	}
	return val, nil
}

func (f *FileStore) WriteByte(addr, val byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return err
	}
	data[addr] = val
	return f.write(data)
}

func (f *FileStore) read() (map[byte]byte, error) {
	data := map[byte]byte{}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read eeprom data from file: %v", err)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal eeprom data: %v", err)
	}
	return data, nil
}

// write replaces the file in one rename so a power cut leaves either the old
// or the new contents.
func (f *FileStore) write(data map[byte]byte) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal eeprom data: %v", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp")
	if err != nil {
		return fmt.Errorf("failed to write eeprom data to file: %v", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write eeprom data to file: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
