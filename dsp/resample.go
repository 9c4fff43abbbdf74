package dsp

import (
	"fmt"

	resampler "github.com/tphakala/go-audio-resampler"
)

// Nominal input rate handed to the polyphase engines. Only the ratio matters.
const engineBaseHz = 1e6

type process func([]float32) ([]float32, error)

// complexResampler runs one real engine per rail so I and Q see identical
// filters and history.
type complexResampler struct {
	re, im process
	ibuf   []float32
	qbuf   []float32
}

func newEngine(ratio, stopBandDB float64) (process, error) {
	quality := resampler.QualityQuick
	switch {
	case stopBandDB > 126:
		quality = resampler.QualityVeryHigh
	case stopBandDB > 102:
		quality = resampler.QualityHigh
	case stopBandDB > 54:
		quality = resampler.QualityMedium
	}
	e, err := resampler.NewEngineFloat32(engineBaseHz, engineBaseHz*ratio, quality)
	if err != nil {
		return nil, err
	}
	return e.Process, nil
}

func newNativeResampler(ratio, stopBandDB float64) (Resampler, error) {
	re, err := newEngine(ratio, stopBandDB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadParameter, err)
	}
	im, err := newEngine(ratio, stopBandDB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadParameter, err)
	}
	return &complexResampler{re: re, im: im}, nil
}

func (r *complexResampler) Resample(samps []complex64) ([]complex64, error) {
	r.ibuf, r.qbuf = r.ibuf[:0], r.qbuf[:0]
	for _, s := range samps {
		r.ibuf = append(r.ibuf, real(s))
		r.qbuf = append(r.qbuf, imag(s))
	}
	iout, err := r.re(r.ibuf)
	if err != nil {
		return nil, err
	}
	qout, err := r.im(r.qbuf)
	if err != nil {
		return nil, err
	}
	n := min(len(iout), len(qout))
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(iout[i], qout[i])
	}
	return out, nil
}
