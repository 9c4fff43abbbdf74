package radio

import (
	"errors"
)

var (
	ErrRateOutOfRange = errors.New("sample rate out of range")
	ErrNoDevices      = errors.New("no rtl-sdr devices found")
	ErrShortRead      = errors.New("short read")
	ErrUnsupported    = errors.New("operation not supported by device")
)

// Device is a single opened RTL2832U tuner. Implementations are not safe for
// concurrent use; the owner serializes every call.
type Device interface {
	// XtalFreq reports the RTL2832 and tuner reference clocks in Hz.
	XtalFreq() (rtlHz, tunerHz uint32, err error)
	SetXtalFreq(rtlHz, tunerHz uint32) error

	SetCenterFreq(hz uint32) error
	SetSampleRate(rate uint32) error

	// FreqCorrection is the correction currently in effect, in ppm.
	FreqCorrection() int
	SetFreqCorrection(ppm int) error

	// TunerGains lists the supported gains in tenths of a dB.
	TunerGains() ([]int, error)

	ResetBuffer() error

	// ReadSync blocks until n bytes of interleaved u8 I/Q are available.
	ReadSync(n int) ([]byte, error)

	Close() error
}

// Opener acquires the device at index.
type Opener func(index int) (Device, error)

// DeviceInfo describes an attached dongle.
type DeviceInfo struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	Serial       string `json:"serial"`
}

// ValidSampleRate mirrors the librtlsdr resampler limits.
func ValidSampleRate(rate uint32) bool {
	return !((rate <= 225000) || (rate > 3200000) ||
		((rate > 300000) && (rate <= 900000)))
}
