package radio

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rtl_tcp command codes.
const (
	cmdCenterFreq     = 1
	cmdSampleRate     = 2
	cmdFreqCorrection = 5
	cmdRTLXtal        = 11
	cmdTunerXtal      = 12
)

type tcpCmd struct {
	Op    uint8
	Param uint32
}

// fakeRTLTCP speaks the server side of rtl_tcp: a 12 byte dongle header,
// then payload, while decoding 5 byte big endian commands.
type fakeRTLTCP struct {
	ln      net.Listener
	addr    string
	payload []byte
	hangup  bool
	cmds    chan tcpCmd
	accepts atomic.Int32

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns []net.Conn
}

func newFakeRTLTCP(t *testing.T, addr string, payload []byte, hangup bool) *fakeRTLTCP {
	ln, err := net.Listen("tcp4", addr)
	require.NoError(t, err)
	f := &fakeRTLTCP{
		ln:      ln,
		addr:    ln.Addr().String(),
		payload: payload,
		hangup:  hangup,
		cmds:    make(chan tcpCmd, 64),
	}
	f.wg.Add(1)
	go f.serve()
	t.Cleanup(f.Close)
	return f
}

func (f *fakeRTLTCP) serve() {
	defer f.wg.Done()
	for {
		c, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.accepts.Add(1)
		f.mu.Lock()
		f.conns = append(f.conns, c)
		f.mu.Unlock()
		f.wg.Add(1)
		go f.handle(c)
	}
}

func (f *fakeRTLTCP) handle(c net.Conn) {
	defer f.wg.Done()
	defer c.Close()
	// R820T tuner, 29 gains.
	msg := []byte{'R', 'T', 'L', '0', 0, 0, 0, 5, 0, 0, 0, 29}
	if _, err := c.Write(append(msg, f.payload...)); err != nil || f.hangup {
		return
	}
	var cmd [5]byte
	for {
		if _, err := io.ReadFull(c, cmd[:]); err != nil {
			return
		}
		f.cmds <- tcpCmd{Op: cmd[0], Param: binary.BigEndian.Uint32(cmd[1:])}
	}
}

func (f *fakeRTLTCP) Close() {
	f.ln.Close()
	f.mu.Lock()
	for _, c := range f.conns {
		c.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

func (f *fakeRTLTCP) commands(t *testing.T, n int) []tcpCmd {
	t.Helper()
	var got []tcpCmd
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case c := <-f.cmds:
			got = append(got, c)
		case <-timeout:
			t.Fatalf("received %d of %d commands: %v", len(got), n, got)
		}
	}
	return got
}

func ramp(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestRTLTCPConfigureAndRead(t *testing.T) {
	srv := newFakeRTLTCP(t, "127.0.0.1:0", ramp(64), false)
	dev, err := OpenRTLTCP(context.Background(), RTLTCPConfig{Address: srv.addr})
	require.NoError(t, err)
	defer dev.Close()

	rtlHz, tunerHz, err := dev.XtalFreq()
	require.NoError(t, err)
	assert.EqualValues(t, defaultXtalHz, rtlHz)
	assert.EqualValues(t, defaultXtalHz, tunerHz)

	require.NoError(t, dev.SetXtalFreq(28800100, 28800200))
	require.NoError(t, dev.SetFreqCorrection(-3))
	require.NoError(t, dev.SetCenterFreq(103500000))
	assert.ErrorIs(t, dev.SetSampleRate(500000), ErrRateOutOfRange)
	require.NoError(t, dev.SetSampleRate(250000))

	rtlHz, tunerHz, err = dev.XtalFreq()
	require.NoError(t, err)
	assert.EqualValues(t, 28800100, rtlHz)
	assert.EqualValues(t, 28800200, tunerHz)
	assert.Equal(t, -3, dev.FreqCorrection())
	assert.Equal(t, []tcpCmd{
		{cmdRTLXtal, 28800100},
		{cmdTunerXtal, 28800200},
		{cmdFreqCorrection, 0xfffffffd},
		{cmdCenterFreq, 103500000},
		{cmdSampleRate, 250000},
	}, srv.commands(t, 5))

	_, err = dev.TunerGains()
	assert.ErrorIs(t, err, ErrUnsupported)

	buf, err := dev.ReadSync(16)
	require.NoError(t, err)
	assert.Equal(t, ramp(16), buf)

	// A reset reconnects, so the stream restarts from the server's first byte.
	require.NoError(t, dev.ResetBuffer())
	buf, err = dev.ReadSync(16)
	require.NoError(t, err)
	assert.Equal(t, ramp(16), buf)
	assert.EqualValues(t, 2, srv.accepts.Load())

	require.NoError(t, dev.SetCenterFreq(162400000))
	assert.Equal(t, []tcpCmd{{cmdCenterFreq, 162400000}}, srv.commands(t, 1))
}

func TestRTLTCPShortRead(t *testing.T) {
	srv := newFakeRTLTCP(t, "127.0.0.1:0", ramp(10), true)
	dev, err := OpenRTLTCP(context.Background(), RTLTCPConfig{Address: srv.addr})
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.ReadSync(16)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestRTLTCPOpenRefused(t *testing.T) {
	defer func(n int) { connectAttempts = n }(connectAttempts)
	connectAttempts = 2

	srv := newFakeRTLTCP(t, "127.0.0.1:0", nil, false)
	srv.Close()
	_, err := OpenRTLTCP(context.Background(), RTLTCPConfig{Address: srv.addr})
	assert.Error(t, err)
}

func TestRTLTCPFailedResetThenRetune(t *testing.T) {
	defer func(n int) { connectAttempts = n }(connectAttempts)
	connectAttempts = 2

	srv := newFakeRTLTCP(t, "127.0.0.1:0", ramp(64), false)
	dev, err := OpenRTLTCP(context.Background(), RTLTCPConfig{Address: srv.addr})
	require.NoError(t, err)
	defer dev.Close()

	srv.Close()
	require.Error(t, dev.ResetBuffer())
	// No connection left; every call fails instead of dereferencing it.
	require.Error(t, dev.SetCenterFreq(103500000))
	require.Error(t, dev.SetSampleRate(250000))
	require.Error(t, dev.SetFreqCorrection(2))
	_, err = dev.ReadSync(16)
	require.Error(t, err)
	assert.Equal(t, 0, dev.FreqCorrection(), "failed write is not tracked")

	// The server comes back; the next Tune step redials.
	srv2 := newFakeRTLTCP(t, srv.addr, ramp(64), false)
	require.NoError(t, dev.SetCenterFreq(103500000))
	require.NoError(t, dev.SetSampleRate(250000))
	require.NoError(t, dev.ResetBuffer())
	buf, err := dev.ReadSync(16)
	require.NoError(t, err)
	assert.Equal(t, ramp(16), buf)
	assert.Equal(t, []tcpCmd{
		{cmdCenterFreq, 103500000},
		{cmdSampleRate, 250000},
	}, srv2.commands(t, 2))

	require.NoError(t, dev.Close())
	assert.ErrorIs(t, dev.SetCenterFreq(103500000), net.ErrClosed)
}
