//go:build liquid

package dsp

/*
#cgo LDFLAGS: -lliquid
#include <liquid/liquid.h>
*/
import "C"

import (
	"errors"
	"math"
	"unsafe"
)

// Filter semi-length and filter bank size for resamp_crcf.
const (
	liquidResampM    = 13
	liquidResampNPFB = 64
	liquidResampFc   = 0.45
)

type liquidDemod struct {
	q C.freqdem
}

func newLiquidDemodulator(kf float64) (Demodulator, error) {
	// kf = modulation index = (delta f)/(delta modulation)
	q := C.freqdem_create(C.float(kf))
	if q == nil {
		return nil, errors.New("freqdem_create failed")
	}
	return &liquidDemod{q: q}, nil
}

func (d *liquidDemod) DemodulateBlock(samps []complex64) []float32 {
	out := make([]float32, len(samps))
	if len(samps) == 0 {
		return out
	}
	C.freqdem_demodulate_block(
		d.q,
		(*C.complexfloat)(unsafe.Pointer(&samps[0])),
		C.uint(len(samps)),
		(*C.float)(unsafe.Pointer(&out[0])))
	return out
}

func (d *liquidDemod) Close() error {
	if d.q != nil {
		C.freqdem_destroy(d.q)
		d.q = nil
	}
	return nil
}

type liquidResamp struct {
	q     C.resamp_crcf
	ratio float64
}

func newLiquidResampler(ratio, stopBandDB float64) (Resampler, error) {
	q := C.resamp_crcf_create(
		C.float(ratio),
		C.uint(liquidResampM),
		C.float(liquidResampFc*math.Min(ratio, 1)),
		C.float(stopBandDB),
		C.uint(liquidResampNPFB))
	if q == nil {
		return nil, ErrBadParameter
	}
	return &liquidResamp{q: q, ratio: ratio}, nil
}

func (r *liquidResamp) Resample(samps []complex64) ([]complex64, error) {
	if len(samps) == 0 {
		return []complex64{}, nil
	}
	out := make([]complex64, int(math.Ceil((r.ratio+1.0)*float64(len(samps)))))
	var outlen C.uint
	C.resamp_crcf_execute_block(r.q,
		(*C.complexfloat)(unsafe.Pointer(&samps[0])),
		C.uint(len(samps)),
		(*C.complexfloat)(unsafe.Pointer(&out[0])),
		&outlen)
	return out[:outlen], nil
}

func (r *liquidResamp) Close() error {
	if r.q != nil {
		C.resamp_crcf_destroy(r.q)
		r.q = nil
	}
	return nil
}
