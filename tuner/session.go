// Package tuner owns an opened radio.Device and turns its reads into
// calibrated, optionally resampled and demodulated sample buffers.
package tuner

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/chzchzchz/rtlstream/dsp"
	"github.com/chzchzchz/rtlstream/radio"
)

const (
	DefaultBufferSamples = 8192
	DefaultPPM           = 1
	// BufferQuantum keeps reads on whole 512-byte USB transfers.
	BufferQuantum = 256
)

type State int

const (
	StateClosed State = iota
	StateOpened
	StateConfigured
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpened:
		return "opened"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config is the tuning in effect.
type Config struct {
	CenterHz   uint32 `json:"center_hz"`
	SampleRate uint32 `json:"sample_rate"`
	PPM        int    `json:"ppm"`
}

type Options struct {
	PPM           int
	BufferSamples int
	// Resampler is applied to every converted buffer when set.
	Resampler dsp.Resampler
	// Demodulator backs PCM; nil uses a native discriminator with kf=1.
	Demodulator dsp.Demodulator
	Logger      *log.Logger
}

// DefaultOptions is what Open uses for zero fields other than PPM.
func DefaultOptions() Options {
	return Options{PPM: DefaultPPM, BufferSamples: DefaultBufferSamples}
}

// Info is a snapshot of the session for status reporting.
type Info struct {
	Device        int    `json:"device"`
	State         string `json:"state"`
	Config        Config `json:"config"`
	BufferSamples int    `json:"buffer_samples"`
	RTLXtalHz     uint32 `json:"rtl_xtal_hz"`
	TunerXtalHz   uint32 `json:"tuner_xtal_hz"`
	Gains         []int  `json:"gains,omitempty"`
	Buffers       uint64 `json:"buffers"`
}

// Session is the single owner of a device. Reads, Tune and Close must come
// from one goroutine; Info and State may be called from anywhere.
type Session struct {
	dev        radio.Device
	index      int
	bufSamples int
	resamp     dsp.Resampler
	demod      dsp.Demodulator
	log        *log.Logger

	rwmu      sync.RWMutex
	state     State
	cfg       Config
	gains     []int
	rtlXtal   uint32
	tunerXtal uint32
	buffers   uint64
}

// Open acquires device index through open and brings it to the Opened state.
func Open(open radio.Opener, index int, opts Options) (*Session, error) {
	if opts.BufferSamples == 0 {
		opts.BufferSamples = DefaultBufferSamples
	}
	if opts.BufferSamples < 0 || opts.BufferSamples%BufferQuantum != 0 {
		return nil, fmt.Errorf("%w: %d samples, want a multiple of %d", ErrBufferSize, opts.BufferSamples, BufferQuantum)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Demodulator == nil {
		opts.Demodulator = dsp.NewDiscriminator(1)
	}

	dev, err := open(index)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %w", ErrDeviceUnavailable, index, err)
	}
	s := &Session{
		dev:        dev,
		index:      index,
		bufSamples: opts.BufferSamples,
		resamp:     opts.Resampler,
		demod:      opts.Demodulator,
		log:        opts.Logger,
	}
	if err := s.init(opts.PPM); err != nil {
		dev.Close()
		return nil, err
	}
	s.state = StateOpened
	return s, nil
}

func (s *Session) init(ppm int) error {
	rtlHz, tunerHz, err := s.dev.XtalFreq()
	if err != nil {
		return &HardwareConfigError{Step: StepXtal, Err: err}
	}
	if err := s.dev.SetXtalFreq(rtlHz, tunerHz); err != nil {
		return &HardwareConfigError{Step: StepXtal, Err: err}
	}
	s.rtlXtal, s.tunerXtal = rtlHz, tunerHz

	// librtlsdr refuses to set the correction already in effect.
	if s.dev.FreqCorrection() != ppm {
		if err := s.dev.SetFreqCorrection(ppm); err != nil {
			return &HardwareConfigError{Step: StepPPM, Err: err}
		}
	}
	s.cfg.PPM = ppm

	if gains, err := s.dev.TunerGains(); err != nil {
		s.log.Warn("tuner gains unavailable", "err", err)
	} else {
		s.gains = gains
	}
	s.log.Debug("opened", "device", s.index, "rtl_xtal", rtlHz, "tuner_xtal", tunerHz, "ppm", ppm, "gains", len(s.gains))
	return nil
}

// Tune sets the centre frequency and sample rate then resets the device
// buffer. A failed Tune leaves the session Opened.
func (s *Session) Tune(centerHz, sampleRate uint32) error {
	s.rwmu.Lock()
	if s.state == StateClosed {
		s.rwmu.Unlock()
		return ErrClosed
	}
	s.state = StateOpened
	s.rwmu.Unlock()

	if err := s.dev.SetCenterFreq(centerHz); err != nil {
		return &HardwareConfigError{Step: StepFrequency, Err: err}
	}
	if err := s.dev.SetSampleRate(sampleRate); err != nil {
		return &HardwareConfigError{Step: StepSampleRate, Err: err}
	}
	if err := s.dev.ResetBuffer(); err != nil {
		return &HardwareConfigError{Step: StepReset, Err: err}
	}

	s.rwmu.Lock()
	s.cfg.CenterHz, s.cfg.SampleRate = centerHz, sampleRate
	s.state = StateConfigured
	s.rwmu.Unlock()
	s.log.Info("tuned", "hz", centerHz, "rate", sampleRate)
	return nil
}

// BufferSize is the number of complex samples fetched per read.
func (s *Session) BufferSize() int { return s.bufSamples }

func (s *Session) State() State {
	s.rwmu.RLock()
	defer s.rwmu.RUnlock()
	return s.state
}

func (s *Session) Config() Config {
	s.rwmu.RLock()
	defer s.rwmu.RUnlock()
	return s.cfg
}

func (s *Session) Info() Info {
	s.rwmu.RLock()
	defer s.rwmu.RUnlock()
	return Info{
		Device:        s.index,
		State:         s.state.String(),
		Config:        s.cfg,
		BufferSamples: s.bufSamples,
		RTLXtalHz:     s.rtlXtal,
		TunerXtalHz:   s.tunerXtal,
		Gains:         append([]int(nil), s.gains...),
		Buffers:       s.buffers,
	}
}

func (s *Session) read() ([]byte, error) {
	s.rwmu.RLock()
	st := s.state
	s.rwmu.RUnlock()
	switch st {
	case StateClosed:
		return nil, ErrClosed
	case StateOpened:
		return nil, ErrNotConfigured
	}

	n := 2 * s.bufSamples
	buf, err := s.dev.ReadSync(n)
	if err == nil && len(buf) != n {
		err = fmt.Errorf("%w: %d of %d bytes", radio.ErrShortRead, len(buf), n)
	}
	if err != nil {
		return nil, &ReadError{Stage: "read", Err: err}
	}

	s.rwmu.Lock()
	s.state = StateStreaming
	s.buffers++
	s.rwmu.Unlock()
	return buf, nil
}

// RawIQ returns one unconverted buffer of interleaved u8 I/Q.
func (s *Session) RawIQ() ([]byte, error) { return s.read() }

// ComplexIQ returns one calibrated buffer, resampled if configured.
func (s *Session) ComplexIQ() ([]complex64, error) {
	buf, err := s.read()
	if err != nil {
		return nil, err
	}
	samps := radio.ConvertIQ(buf)
	if s.resamp == nil {
		return samps, nil
	}
	out, err := s.resamp.Resample(samps)
	if err != nil {
		return nil, &ReadError{Stage: "resample", Err: err}
	}
	return out, nil
}

// PCM returns one demodulated buffer.
func (s *Session) PCM() ([]float32, error) {
	samps, err := s.ComplexIQ()
	if err != nil {
		return nil, err
	}
	return s.demod.DemodulateBlock(samps), nil
}

// Close releases the device. Calling it again is a no-op.
func (s *Session) Close() error {
	s.rwmu.Lock()
	if s.state == StateClosed {
		s.rwmu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.rwmu.Unlock()

	err := s.dev.Close()
	dsp.Close(s.resamp)
	dsp.Close(s.demod)
	s.log.Debug("closed", "device", s.index, "buffers", s.buffers)
	return err
}
