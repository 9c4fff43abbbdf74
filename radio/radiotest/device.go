// Package radiotest provides an in-memory radio.Device for tests.
package radiotest

import (
	"errors"
	"sync"

	"github.com/chzchzchz/rtlstream/radio"
)

type Op string

const (
	OpOpen              Op = "open"
	OpXtalFreq          Op = "xtal_freq"
	OpSetXtalFreq       Op = "set_xtal_freq"
	OpSetCenterFreq     Op = "set_center_freq"
	OpSetSampleRate     Op = "set_sample_rate"
	OpSetFreqCorrection Op = "set_freq_correction"
	OpTunerGains        Op = "tuner_gains"
	OpResetBuffer       Op = "reset_buffer"
	OpReadSync          Op = "read_sync"
	OpClose             Op = "close"
)

var ErrInjected = errors.New("radiotest: injected failure")

// Device records every call and fails the operations listed in Fail.
type Device struct {
	mu sync.Mutex

	RTLXtal, TunerXtal   uint32
	CenterHz, SampleRate uint32
	PPM                  int
	Gains                []int

	Fail map[Op]error
	// ReadLimit makes reads fail with ErrInjected once this many have
	// succeeded; zero never fails.
	ReadLimit int
	// Pattern fills each read buffer; the default writes a byte ramp.
	Pattern func(read int, buf []byte)

	Calls  []Op
	Reads  int
	Opens  int
	Closed bool
}

func New() *Device {
	return &Device{
		RTLXtal:   28800000,
		TunerXtal: 28800000,
		Gains:     []int{0, 9, 14, 27, 37, 77, 87, 125, 144, 157, 166, 197, 207, 229, 254, 280, 297, 328, 338, 364, 372, 386, 402, 421, 434, 439, 445, 480, 496},
		Fail:      make(map[Op]error),
	}
}

// Opener hands out d itself.
func (d *Device) Opener() radio.Opener {
	return func(int) (radio.Device, error) {
		if err := d.record(OpOpen); err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.Opens++
		d.Closed = false
		d.mu.Unlock()
		return d, nil
	}
}

// Ops returns a copy of the recorded calls.
func (d *Device) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Op(nil), d.Calls...)
}

func (d *Device) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Closed
}

func (d *Device) record(op Op) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, op)
	return d.Fail[op]
}

func (d *Device) XtalFreq() (uint32, uint32, error) {
	if err := d.record(OpXtalFreq); err != nil {
		return 0, 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.RTLXtal, d.TunerXtal, nil
}

func (d *Device) SetXtalFreq(rtlHz, tunerHz uint32) error {
	if err := d.record(OpSetXtalFreq); err != nil {
		return err
	}
	d.mu.Lock()
	d.RTLXtal, d.TunerXtal = rtlHz, tunerHz
	d.mu.Unlock()
	return nil
}

func (d *Device) SetCenterFreq(hz uint32) error {
	if err := d.record(OpSetCenterFreq); err != nil {
		return err
	}
	d.mu.Lock()
	d.CenterHz = hz
	d.mu.Unlock()
	return nil
}

func (d *Device) SetSampleRate(rate uint32) error {
	if err := d.record(OpSetSampleRate); err != nil {
		return err
	}
	d.mu.Lock()
	d.SampleRate = rate
	d.mu.Unlock()
	return nil
}

func (d *Device) FreqCorrection() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PPM
}

func (d *Device) SetFreqCorrection(ppm int) error {
	if err := d.record(OpSetFreqCorrection); err != nil {
		return err
	}
	d.mu.Lock()
	d.PPM = ppm
	d.mu.Unlock()
	return nil
}

func (d *Device) TunerGains() ([]int, error) {
	if err := d.record(OpTunerGains); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.Gains...), nil
}

func (d *Device) ResetBuffer() error { return d.record(OpResetBuffer) }

func (d *Device) ReadSync(n int) ([]byte, error) {
	if err := d.record(OpReadSync); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ReadLimit > 0 && d.Reads >= d.ReadLimit {
		return nil, ErrInjected
	}
	buf := make([]byte, n)
	if d.Pattern != nil {
		d.Pattern(d.Reads, buf)
	} else {
		for i := range buf {
			buf[i] = byte(i + d.Reads)
		}
	}
	d.Reads++
	return buf, nil
}

func (d *Device) Close() error {
	err := d.record(OpClose)
	d.mu.Lock()
	d.Closed = true
	d.mu.Unlock()
	return err
}
