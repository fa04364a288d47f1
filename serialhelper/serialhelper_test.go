package serialhelper

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/TheCacophonyProject/powerswitch-controller/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSerial struct {
	*io.PipeReader
	mu      sync.Mutex
	written bytes.Buffer
}

func (f *fakeSerial) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(b)
}

func (f *fakeSerial) Close() error {
	return f.PipeReader.Close()
}

func newFakePort() (*Port, *fakeSerial, *io.PipeWriter) {
	r, w := io.Pipe()
	f := &fakeSerial{PipeReader: r}
	return newPort(f), f, w
}

func TestPortReceive(t *testing.T) {
	p, _, w := newFakePort()
	defer p.Close()

	assert.False(t, p.Available())
	go w.Write([]byte("ok\r\n"))

	assert.Eventually(t, p.Available, time.Second, time.Millisecond)
	got := []byte{}
	for i := 0; i < 4; i++ {
		b, err := p.ReadByte()
		require.NoError(t, err)
		got = append(got, b)
	}
	assert.Equal(t, "ok\r\n", string(got))
}

func TestPortWrite(t *testing.T) {
	p, f, _ := newFakePort()
	defer p.Close()

	n, err := p.Write([]byte("romh\r"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "romh\r", f.written.String())
}

func TestPortReadError(t *testing.T) {
	p, _, w := newFakePort()
	defer p.Close()

	boom := errors.New("boom")
	w.CloseWithError(boom)
	_, err := p.ReadByte()
	assert.Equal(t, boom, err)
}

func TestPortReadTimeout(t *testing.T) {
	p, _, _ := newFakePort()
	defer p.Close()

	_, ok, err := p.ReadTimeout(10 * time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestPortClose(t *testing.T) {
	p, _, _ := newFakePort()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.ReadByte()
	assert.Error(t, err)
}

func TestPollReportsReadError(t *testing.T) {
	p, _, w := newFakePort()
	defer p.Close()

	interpreter := command.NewInterpreter(p, command.Table{}, false)
	require.NoError(t, interpreter.Poll())

	boom := errors.New("boom")
	w.CloseWithError(boom)
	assert.Eventually(t, p.Available, time.Second, time.Millisecond)
	assert.Equal(t, boom, interpreter.Poll())
}
