package eeprom

import (
	"errors"
	"fmt"

	"github.com/TheCacophonyProject/powerswitch-controller/power"
	"github.com/sigurn/crc8"
)

const (
	EEPROM_FIRST_BYTE = 0xCA

	// The selector record is magic byte, bank, CRC.
	selectorAddress = 0x00
	selectorLength  = 3
)

var (
	ErrEmpty = errors.New("eeprom no data found")
	ErrCRC   = errors.New("eeprom CRC check failed")
)

var crcTable = crc8.MakeTable(crc8.CRC8)

// Selector persists the default ROM bank.
type Selector struct {
	store Store
}

func NewSelector(store Store) *Selector {
	return &Selector{store: store}
}

func (s *Selector) Load() (power.RomBank, error) {
	data := make([]byte, selectorLength)
	for i := range data {
		b, err := s.store.ReadByte(selectorAddress + byte(i))
		if err != nil {
			return power.RomLow, err
		}
		data[i] = b
	}

	all0xFF := true
	for _, b := range data {
		if b != 0xFF {
			all0xFF = false
			break
		}
	}
	if all0xFF {
		return power.RomLow, ErrEmpty
	}
	if data[0] != EEPROM_FIRST_BYTE {
		return power.RomLow, fmt.Errorf("invalid first byte: %#02X, expecting %#02X", data[0], EEPROM_FIRST_BYTE)
	}
	if crc := crc8.Checksum(data[:2], crcTable); crc != data[2] {
		log.Infof("Calculated CRC for ROM selector: %#02X, received CRC: %#02X", crc, data[2])
		return power.RomLow, ErrCRC
	}
	bank := power.RomBank(data[1])
	if bank != power.RomLow && bank != power.RomHigh {
		return power.RomLow, fmt.Errorf("invalid ROM bank %d", data[1])
	}
	return bank, nil
}

// Save writes the record, CRC last.
func (s *Selector) Save(bank power.RomBank) error {
	data := []byte{EEPROM_FIRST_BYTE, byte(bank)}
	data = append(data, crc8.Checksum(data, crcTable))
	for i, b := range data {
		if err := s.store.WriteByte(selectorAddress+byte(i), b); err != nil {
			return fmt.Errorf("failed to save ROM bank: %v", err)
		}
	}
	log.Infof("Saved default ROM bank %s", bank)
	return nil
}
