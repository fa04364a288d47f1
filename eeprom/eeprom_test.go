package eeprom

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheCacophonyProject/powerswitch-controller/i2crequest"
	"github.com/TheCacophonyProject/powerswitch-controller/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noSleepFn = func(d time.Duration) {}

// mockChip emulates the EEPROM behind the I2C service.
func mockChip() map[byte]byte {
	mem := map[byte]byte{}
	i2crequest.MockTx(func(address byte, write []byte, readLen, timeout int) ([]byte, error) {
		if address != EEPROM_ADDRESS {
			return nil, errors.New("no device")
		}
		addr := write[0]
		for i, b := range write[1:] {
			mem[addr+byte(i)] = b
		}
		out := make([]byte, readLen)
		for i := range out {
			v, ok := mem[addr+byte(i)]
			if !ok {
				v = 0xFF
			}
			out[i] = v
		}
		return out, nil
	})
	return mem
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.json")
	s := NewFileStore(path)

	b, err := s.ReadByte(4)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), b)

	require.NoError(t, s.WriteByte(4, 0x12))
	require.NoError(t, s.WriteByte(5, 0x34))

	reopened := NewFileStore(path)
	b, err = reopened.ReadByte(4)
	require.NoError(t, err)
	assert.Equal(t, byte(0x12), b)
	b, err = reopened.ReadByte(5)
	require.NoError(t, err)
	assert.Equal(t, byte(0x34), b)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	_, err := NewFileStore(path).ReadByte(0)
	assert.Error(t, err)
}

func TestSelectorEmpty(t *testing.T) {
	s := NewSelector(NewFileStore(filepath.Join(t.TempDir(), "eeprom.json")))
	bank, err := s.Load()
	assert.Equal(t, ErrEmpty, err)
	assert.Equal(t, power.RomLow, bank)
}

func TestSelectorRoundTrip(t *testing.T) {
	s := NewSelector(NewFileStore(filepath.Join(t.TempDir(), "eeprom.json")))
	for _, b := range []power.RomBank{power.RomHigh, power.RomLow, power.RomHigh} {
		require.NoError(t, s.Save(b))
		bank, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, b, bank)
	}
}

func TestSelectorBadCRC(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "eeprom.json"))
	s := NewSelector(store)
	require.NoError(t, s.Save(power.RomHigh))
	crc, err := store.ReadByte(selectorAddress + 2)
	require.NoError(t, err)
	require.NoError(t, store.WriteByte(selectorAddress+2, crc^0x01))

	bank, err := s.Load()
	assert.Equal(t, ErrCRC, err)
	assert.Equal(t, power.RomLow, bank)
}

func TestSelectorBadMagic(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "eeprom.json"))
	require.NoError(t, store.WriteByte(selectorAddress, 0x00))
	_, err := NewSelector(store).Load()
	assert.Error(t, err)
}

func TestChipStore(t *testing.T) {
	sleepFn = noSleepFn
	mem := mockChip()
	chip := NewChipStore()
	assert.True(t, chip.Present())

	s := NewSelector(chip)
	_, err := s.Load()
	assert.Equal(t, ErrEmpty, err)

	require.NoError(t, s.Save(power.RomHigh))
	assert.Equal(t, byte(EEPROM_FIRST_BYTE), mem[selectorAddress])
	bank, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, power.RomHigh, bank)
}

func TestChipStoreReadBackMismatch(t *testing.T) {
	sleepFn = noSleepFn
	i2crequest.MockTxResponses([]i2crequest.TxResponse{
		{Response: []byte{}, Err: nil},
		{Response: []byte{0x00}, Err: nil},
	})
	err := NewChipStore().WriteByte(0x00, 0xCA)
	assert.Error(t, err)
}

func TestChipStoreMissing(t *testing.T) {
	i2crequest.MockTxResponses([]i2crequest.TxResponse{
		{Response: nil, Err: errors.New("no device")},
	})
	assert.False(t, NewChipStore().Present())
}
