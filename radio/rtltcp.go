package radio

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/bemasher/rtltcp"
	"github.com/kr/pty"
)

// Reference clock librtlsdr assumes for both the RTL2832 and the tuner.
const defaultXtalHz = 28800000

// RTLTCPConfig selects an rtl_tcp server, optionally starting one locally.
type RTLTCPConfig struct {
	Address string
	// Spawn starts "rtl_tcp" on Address for DeviceIndex and stops it on Close.
	Spawn       bool
	DeviceIndex int
}

type rtlTCP struct {
	conn *rtltcp.SDR
	addr *net.TCPAddr

	cmd    *exec.Cmd
	fpty   *os.File
	cancel context.CancelFunc
	closed bool

	// rtl_tcp has no getters; track what was last written.
	rtlXtal   uint32
	tunerXtal uint32
	ppm       int
}

// OpenRTLTCP connects to an rtl_tcp server.
func OpenRTLTCP(ctx context.Context, cfg RTLTCPConfig) (Device, error) {
	addr, err := net.ResolveTCPAddr("tcp4", cfg.Address)
	if err != nil {
		return nil, err
	}
	s := &rtlTCP{addr: addr, rtlXtal: defaultXtalHz, tunerXtal: defaultXtalHz}
	if cfg.Spawn {
		if err := s.spawn(ctx, cfg.DeviceIndex); err != nil {
			return nil, err
		}
	}
	if s.conn, err = connect(ctx, addr); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *rtlTCP) spawn(ctx context.Context, index int) error {
	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, "rtl_tcp",
		"-a", s.addr.IP.String(),
		"-p", strconv.Itoa(s.addr.Port),
		"-d", strconv.Itoa(index))
	fpty, err := pty.Start(cmd)
	if err != nil {
		cancel()
		return err
	}
	// stdout carries samples; keep rtl_tcp chatter on stderr.
	go io.Copy(os.Stderr, fpty)
	s.cmd, s.fpty, s.cancel = cmd, fpty, cancel
	// TODO: would like to wait for 'listening...' but need tty to line-buffer
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
	return nil
}

// Dial attempts, 100ms apart, before giving up on the server.
var connectAttempts = 10

func connect(ctx context.Context, addr *net.TCPAddr) (*rtltcp.SDR, error) {
	var err error
	for i := 0; i < connectAttempts; i++ {
		sdr := &rtltcp.SDR{}
		if err = sdr.Connect(addr); err == nil {
			return sdr, nil
		}
		time.Sleep(100 * time.Millisecond)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, err
}

// sdr returns the server connection, redialing when a failed reset left none.
func (s *rtlTCP) sdr() (*rtltcp.SDR, error) {
	if s.closed {
		return nil, net.ErrClosed
	}
	if s.conn == nil {
		conn, err := connect(context.TODO(), s.addr)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}
	return s.conn, nil
}

func (s *rtlTCP) XtalFreq() (uint32, uint32, error) { return s.rtlXtal, s.tunerXtal, nil }

func (s *rtlTCP) SetXtalFreq(rtlHz, tunerHz uint32) error {
	conn, err := s.sdr()
	if err != nil {
		return err
	}
	if err := conn.SetRTLXtalFreq(rtlHz); err != nil {
		return err
	}
	if err := conn.SetTunerXtalFreq(tunerHz); err != nil {
		return err
	}
	s.rtlXtal, s.tunerXtal = rtlHz, tunerHz
	return nil
}

func (s *rtlTCP) SetCenterFreq(hz uint32) error {
	conn, err := s.sdr()
	if err != nil {
		return err
	}
	return conn.SetCenterFreq(hz)
}

// The server applies the rate without reporting failure, so reject
// unsupported rates here.
func (s *rtlTCP) SetSampleRate(rate uint32) error {
	if !ValidSampleRate(rate) {
		return fmt.Errorf("%w: %d", ErrRateOutOfRange, rate)
	}
	conn, err := s.sdr()
	if err != nil {
		return err
	}
	return conn.SetSampleRate(rate)
}

func (s *rtlTCP) FreqCorrection() int { return s.ppm }

func (s *rtlTCP) SetFreqCorrection(ppm int) error {
	conn, err := s.sdr()
	if err != nil {
		return err
	}
	// rtl_tcp reinterprets the parameter as a signed int.
	if err := conn.SetFreqCorrection(uint32(int32(ppm))); err != nil {
		return err
	}
	s.ppm = ppm
	return nil
}

// The protocol only reports the gain count, not the values.
func (s *rtlTCP) TunerGains() ([]int, error) { return nil, ErrUnsupported }

// ResetBuffer reconnects; the server flushes the dongle buffer on every accept.
func (s *rtlTCP) ResetBuffer() error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	_, err := s.sdr()
	return err
}

func (s *rtlTCP) ReadSync(n int) ([]byte, error) {
	conn, err := s.sdr()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
		}
		return nil, err
	}
	return buf, nil
}

func (s *rtlTCP) Close() error {
	var err error
	s.closed = true
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	if s.cmd != nil {
		s.cancel()
		s.fpty.Close()
		// Killed by the cancelled context; the exit status is expected.
		s.cmd.Wait()
		s.cmd = nil
	}
	return err
}
