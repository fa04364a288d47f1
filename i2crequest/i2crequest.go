package i2crequest

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"
)

type TxFunc func(address byte, write []byte, readLen, timeout int) ([]byte, error)

var (
	txMu sync.Mutex
	txFn TxFunc = dbusTx
)

// Tx writes to and then reads from the device at address through the I2C
// service, which serialises access to the bus.
func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	txMu.Lock()
	f := txFn
	txMu.Unlock()
	return f(address, write, readLen, timeout)
}

func dbusTx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}
	if len(response) != readLen {
		return nil, fmt.Errorf("expected %d bytes from 0x%02X, got %d", readLen, address, len(response))
	}
	return response, nil
}

// CheckAddress reports whether a device answers at address.
func CheckAddress(address byte, timeout int) (bool, error) {
	_, err := Tx(address, []byte{0x00}, 1, timeout)
	if err != nil {
		return false, err
	}
	return true, nil
}

// MockTx replaces the bus with f. Used for testing.
func MockTx(f TxFunc) {
	txMu.Lock()
	txFn = f
	txMu.Unlock()
}

type TxResponse struct {
	Response []byte
	Err      error
}

// MockTxResponses makes each Tx call return the next response in order.
// Running out of responses is reported as an error.
func MockTxResponses(responses []TxResponse) {
	var mu sync.Mutex
	MockTx(func(address byte, write []byte, readLen, timeout int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(responses) == 0 {
			return nil, fmt.Errorf("no mock response left for tx to 0x%02X", address)
		}
		r := responses[0]
		responses = responses[1:]
		return r.Response, r.Err
	})
}
