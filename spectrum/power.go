// Package spectrum measures the power spectrum of a captured complex stream.
package spectrum

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"sort"

	"github.com/runningwild/go-fftw/fftw32"

	"github.com/chzchzchz/rtlstream/radio"
)

const DefaultBins = 4096

var ErrNoSamples = errors.New("not enough samples for one fft")

// Magnitudes are floored here so empty bins stay finite in dB.
const minMagnitude = 1e-9

// Power is an fft-shifted spectrum averaged over Frames ffts, in dB.
type Power struct {
	Band   radio.HzBand
	Avg    []float64
	Frames int
}

// FrameReader yields complex samples; *radio.IQReader satisfies it.
type FrameReader interface {
	ReadComplex64(n int) ([]complex64, error)
}

// Measure averages ffts of consecutive bins-sample frames read from r until
// EOF or maxFrames frames; maxFrames <= 0 reads everything.
func Measure(r FrameReader, band radio.HzBand, bins, maxFrames int) (*Power, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("bad fft size %d", bins)
	}
	sum := make([]float64, bins)
	frames := 0
	arr := &fftw32.Array{}
	for maxFrames <= 0 || frames < maxFrames {
		samps, err := r.ReadComplex64(bins)
		if err == io.EOF || (err == nil && len(samps) < bins) {
			break
		} else if err != nil {
			return nil, err
		}
		arr.Elems = samps
		for i, v := range fftw32.FFT(arr).Elems {
			sum[shift(i, bins)] += 20 * math.Log10(max(cmplx.Abs(complex128(v)), minMagnitude))
		}
		frames++
	}
	if frames == 0 {
		return nil, ErrNoSamples
	}
	for i := range sum {
		sum[i] /= float64(frames)
	}
	return &Power{Band: band, Avg: sum, Frames: frames}, nil
}

// shift moves bin i so the lowest frequency comes first.
func shift(i, bins int) int {
	if i >= bins/2 {
		return i - bins/2
	}
	return i + bins/2
}

func (p *Power) Freq(i int) float64 { return p.Band.BinFreq(i, len(p.Avg)) }

// NoiseFloor is the median bin power.
func (p *Power) NoiseFloor() float64 {
	med := make([]float64, len(p.Avg))
	copy(med, p.Avg)
	sort.Float64s(med)
	return med[len(med)/2]
}

func (p *Power) Stddev() float64 {
	if len(p.Avg) < 2 {
		return 0
	}
	nf, sdev := p.NoiseFloor(), 0.0
	for _, v := range p.Avg {
		sdev += (v - nf) * (v - nf)
	}
	sdev /= float64(len(p.Avg) - 1)
	return math.Sqrt(sdev)
}

// Peak returns the strongest bin.
func (p *Power) Peak() (hz, db float64) {
	best := 0
	for i, v := range p.Avg {
		if v > p.Avg[best] {
			best = i
		}
	}
	return p.Freq(best), p.Avg[best]
}

// Spurs are single bins standing more than two deviations above both
// neighbours.
func (p *Power) Spurs() (ret []radio.HzBand) {
	nf, sdev := p.NoiseFloor(), p.Stddev()
	for i := 1; i < len(p.Avg)-1; i++ {
		left, mid, right := p.Avg[i-1]-nf, p.Avg[i]-nf, p.Avg[i+1]-nf
		if mid < 0 {
			continue
		}
		if mid-left > 2.0*sdev && mid-right > 2.0*sdev {
			ret = append(ret, p.binBand(i, i))
		}
	}
	return ret
}

// Bands finds runs of bins more than 1.5 deviations above the noise floor.
func (p *Power) Bands() (ret []radio.HzBand) {
	nf, sdev := p.NoiseFloor(), p.Stddev()
	begin, end := -1, -1
	for i, avg := range p.Avg {
		if avg-nf >= 1.5*sdev {
			if begin == -1 {
				if i == 0 || p.Avg[i-1]-nf > (avg-nf)/2.0 {
					continue
				}
				begin = i
			}
			end = i
		} else if begin != -1 {
			ret = append(ret, p.binBand(begin, end))
			begin = -1
		}
	}
	if begin != -1 {
		ret = append(ret, p.binBand(begin, end))
	}
	return ret
}

// binBand spans bins [begin, end].
func (p *Power) binBand(begin, end int) radio.HzBand {
	binHz := p.Band.BinHz(len(p.Avg))
	w := float64(end-begin+1) * binHz
	return radio.HzBand{Center: uint64(p.Freq(begin) + w/2), Width: uint64(w)}
}

// WriteTable writes "frequency_hz db" rows, one per bin.
func (p *Power) WriteTable(w io.Writer) error {
	for i, v := range p.Avg {
		if _, err := fmt.Fprintf(w, "%.1f %.3f\n", p.Freq(i), v); err != nil {
			return err
		}
	}
	return nil
}
