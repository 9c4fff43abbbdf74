package spectrum

import (
	"errors"
	"math"

	"github.com/chzchzchz/rtlstream/radio"
)

// Reference capture for frequency correction: the NOAA weather radio band.
const (
	PPMCenterHz   = 162000000
	PPMSampleRate = 2048000
	PPMBins       = 8192
	PPMFrames     = 100
)

// NOAAChannelsHz are the seven NOAA weather radio carriers.
var NOAAChannelsHz = []float64{
	162400000, 162425000, 162450000, 162475000,
	162500000, 162525000, 162550000,
}

var ErrNoReference = errors.New("no reference carrier")

// PPMBand is the band EstimatePPM expects its Power to cover.
func PPMBand() radio.HzBand {
	return radio.HzBand{Center: PPMCenterHz, Width: PPMSampleRate}
}

// EstimatePPM finds the strongest bin above the centre and returns its
// offset from the nearest reference carrier in parts per million, signed so
// that a positive value means the tuner reads high.
func EstimatePPM(p *Power, refs []float64) (ppm float64, carrierHz float64, err error) {
	if len(refs) == 0 {
		return 0, 0, ErrNoReference
	}
	// Skip DC and its neighbour.
	start := len(p.Avg)/2 + 2
	if start >= len(p.Avg) {
		return 0, 0, ErrNoSamples
	}
	top := start
	for i := start; i < len(p.Avg); i++ {
		if p.Avg[i] > p.Avg[top] {
			top = i
		}
	}
	topHz := p.Freq(top) + p.Band.BinHz(len(p.Avg))/2
	target, df := refs[0], math.Inf(1)
	for _, f := range refs {
		if diff := math.Abs(topHz - f); diff < df {
			target, df = f, diff
		}
	}
	return 1e6 * (topHz - target) / target, topHz, nil
}
