package dsp

import (
	"math"

	"github.com/racerxdl/segdsp/dsp"
)

// Discriminator is the pure Go FM demodulator.
type Discriminator struct {
	ref     float32
	history []complex64
}

func NewDiscriminator(kf float64) *Discriminator {
	return &Discriminator{
		ref:     float32(1.0 / (2.0 * math.Pi * kf)),
		history: make([]complex64, 1),
	}
}

func (d *Discriminator) DemodulateBlock(samps []complex64) []float32 {
	out := make([]float32, len(samps))
	if len(samps) == 0 {
		return out
	}
	joined := append(d.history[:1:1], samps...)
	prod := dsp.MultiplyConjugate(joined[1:], joined, len(samps))
	for i, v := range prod {
		out[i] = d.ref * float32(math.Atan2(float64(imag(v)), float64(real(v))))
	}
	d.history[0] = samps[len(samps)-1]
	return out
}

// Reset forgets the phase history.
func (d *Discriminator) Reset() { d.history[0] = 0 }
