package radio

import (
	"fmt"

	rtl "github.com/jpoirier/gortlsdr"
)

type rtlSDR struct {
	dev   *rtl.Context
	index int
}

// OpenRTLSDR opens a USB dongle through librtlsdr.
func OpenRTLSDR(index int) (Device, error) {
	if rtl.GetDeviceCount() == 0 {
		return nil, ErrNoDevices
	}
	dev, err := rtl.Open(index)
	if err != nil {
		return nil, fmt.Errorf("open device %d: %w", index, err)
	}
	return &rtlSDR{dev: dev, index: index}, nil
}

// IndexBySerial resolves a dongle's USB serial string to a device index.
func IndexBySerial(serial string) (int, error) {
	idx, err := rtl.GetIndexBySerial(serial)
	if err != nil {
		return 0, fmt.Errorf("serial %q: %w", serial, err)
	}
	return idx, nil
}

// List enumerates attached dongles.
func List() ([]DeviceInfo, error) {
	n := rtl.GetDeviceCount()
	if n == 0 {
		return nil, ErrNoDevices
	}
	ret := make([]DeviceInfo, 0, n)
	for i := 0; i < n; i++ {
		m, p, s, err := rtl.GetDeviceUsbStrings(i)
		if err != nil {
			return nil, fmt.Errorf("usb strings for device %d: %w", i, err)
		}
		ret = append(ret, DeviceInfo{
			Index:        i,
			Name:         rtl.GetDeviceName(i),
			Manufacturer: m,
			Product:      p,
			Serial:       s,
		})
	}
	return ret, nil
}

func (s *rtlSDR) XtalFreq() (uint32, uint32, error) {
	rtlHz, tunerHz, err := s.dev.GetXtalFreq()
	if err != nil {
		return 0, 0, err
	}
	return uint32(rtlHz), uint32(tunerHz), nil
}

func (s *rtlSDR) SetXtalFreq(rtlHz, tunerHz uint32) error {
	return s.dev.SetXtalFreq(int(rtlHz), int(tunerHz))
}

func (s *rtlSDR) SetCenterFreq(hz uint32) error { return s.dev.SetCenterFreq(int(hz)) }

func (s *rtlSDR) SetSampleRate(rate uint32) error { return s.dev.SetSampleRate(int(rate)) }

func (s *rtlSDR) FreqCorrection() int { return s.dev.GetFreqCorrection() }

func (s *rtlSDR) SetFreqCorrection(ppm int) error { return s.dev.SetFreqCorrection(ppm) }

func (s *rtlSDR) TunerGains() ([]int, error) { return s.dev.GetTunerGains() }

func (s *rtlSDR) ResetBuffer() error { return s.dev.ResetBuffer() }

func (s *rtlSDR) ReadSync(n int) ([]byte, error) {
	buf := make([]byte, n)
	nread, err := s.dev.ReadSync(buf, n)
	if err != nil {
		return nil, err
	}
	if nread != n {
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrShortRead, nread, n)
	}
	return buf, nil
}

func (s *rtlSDR) Close() error { return s.dev.Close() }
