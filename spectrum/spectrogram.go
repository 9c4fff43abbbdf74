package spectrum

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math/cmplx"

	"github.com/runningwild/go-fftw/fftw32"
)

// black, green, yellow, white
var colorScale = []color.NRGBA{
	{0, 0, 0, 255},
	{0, 255, 0, 255},
	{255, 255, 0, 255},
	{255, 255, 255, 255},
}

func interpolate(t float64, a, b uint8) uint8 { return uint8(float64(a)*(1-t) + float64(b)*t) }

// binColor maps v in [0, 1) onto colorScale.
func binColor(v float64) color.NRGBA {
	idx := float64(len(colorScale)-1) * v
	if idx < 0 {
		idx = 0
	}
	if int(idx)+1 >= len(colorScale) {
		return colorScale[len(colorScale)-1]
	}
	t := idx - float64(int(idx))
	prev, next := colorScale[int(idx)], colorScale[int(idx)+1]
	return color.NRGBA{
		interpolate(t, prev.R, next.R),
		interpolate(t, prev.G, next.G),
		interpolate(t, prev.B, next.B),
		255,
	}
}

// Rows returns one fft-shifted magnitude row per bins-sample frame.
func Rows(r FrameReader, bins int) ([][]float64, error) {
	var rows [][]float64
	arr := &fftw32.Array{}
	for {
		samps, err := r.ReadComplex64(bins)
		if err == io.EOF || (err == nil && len(samps) < bins) {
			break
		} else if err != nil {
			return nil, err
		}
		arr.Elems = samps
		row := make([]float64, bins)
		for i, v := range fftw32.FFT(arr).Elems {
			row[shift(i, bins)] = cmplx.Abs(complex128(v))
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoSamples
	}
	return rows, nil
}

// Image renders rows top to bottom, each scaled to its own range.
func Image(rows [][]float64) *image.NRGBA {
	bins := len(rows[0])
	img := image.NewNRGBA(image.Rect(0, 0, bins, len(rows)))
	for y, row := range rows {
		lo, hi := row[0], row[0]
		for _, v := range row {
			lo, hi = min(lo, v), max(hi, v)
		}
		// scale to [0, 1)
		scale := 1.0 / ((hi - lo) + 0.001)
		for x, v := range row {
			val := scale * (v - lo)
			img.SetNRGBA(x, y, binColor(val*val))
		}
	}
	return img
}

// WriteSpectrogram encodes a jpeg spectrogram of the stream in r.
func WriteSpectrogram(r FrameReader, w io.Writer, bins int) error {
	rows, err := Rows(r, bins)
	if err != nil {
		return err
	}
	return jpeg.Encode(w, Image(rows), nil)
}
