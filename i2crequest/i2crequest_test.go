package i2crequest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTxResponses(t *testing.T) {
	MockTxResponses([]TxResponse{
		{Response: []byte{0x01}},
		{Err: errors.New("nack")},
	})

	data, err := Tx(0x50, []byte{0x00}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, data)

	_, err = Tx(0x50, []byte{0x00}, 1, 100)
	assert.EqualError(t, err, "nack")

	_, err = Tx(0x50, []byte{0x00}, 1, 100)
	assert.Error(t, err)
}

func TestCheckAddress(t *testing.T) {
	var gotAddress byte
	MockTx(func(address byte, write []byte, readLen, timeout int) ([]byte, error) {
		gotAddress = address
		if address != 0x50 {
			return nil, errors.New("no device")
		}
		return make([]byte, readLen), nil
	})

	found, err := CheckAddress(0x50, 100)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, byte(0x50), gotAddress)

	found, err = CheckAddress(0x51, 100)
	assert.Error(t, err)
	assert.False(t, found)
}
