// Package dsp holds the resampler and FM discriminator stages of the
// acquisition pipeline. Both are stateful: filter and phase history carry
// across calls so consecutive buffers form one continuous stream.
package dsp

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrUnknownBackend     = errors.New("unknown dsp backend")
	ErrBackendUnavailable = errors.New("dsp backend not built in")
	ErrBadParameter       = errors.New("bad dsp parameter")
)

// Backend selects the implementation behind the stage interfaces.
type Backend string

const (
	// Native is pure Go.
	Native Backend = "native"
	// Liquid uses liquid-dsp through cgo; build with -tags liquid.
	Liquid Backend = "liquid"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case Native, Liquid:
		return b, nil
	case "":
		return Native, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Resampler converts a complex stream by a fixed fractional ratio.
type Resampler interface {
	Resample(samps []complex64) ([]complex64, error)
}

// Demodulator is a frequency discriminator. Output is the phase step between
// consecutive samples scaled by 1/(2*pi*kf), kf being the modulation index.
type Demodulator interface {
	DemodulateBlock(samps []complex64) []float32
}

// NewDemodulator builds a discriminator with modulation index kf.
func NewDemodulator(b Backend, kf float64) (Demodulator, error) {
	if kf <= 0 {
		return nil, fmt.Errorf("%w: modulation index %v", ErrBadParameter, kf)
	}
	switch b {
	case Native:
		return NewDiscriminator(kf), nil
	case Liquid:
		return newLiquidDemodulator(kf)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, b)
}

// NewResampler builds a resampler for ratio (output/input rate) with the
// given stop-band attenuation in dB.
func NewResampler(b Backend, ratio, stopBandDB float64) (Resampler, error) {
	if ratio <= 0 || ratio > 256 {
		return nil, fmt.Errorf("%w: ratio %v", ErrBadParameter, ratio)
	}
	if stopBandDB <= 0 {
		return nil, fmt.Errorf("%w: attenuation %v dB", ErrBadParameter, stopBandDB)
	}
	switch b {
	case Native:
		return newNativeResampler(ratio, stopBandDB)
	case Liquid:
		return newLiquidResampler(ratio, stopBandDB)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, b)
}

// Close releases stage resources held outside the Go heap, if any.
func Close(stage any) error {
	if c, ok := stage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
