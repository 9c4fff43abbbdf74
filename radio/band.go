package radio

// HzBand is the span of spectrum captured at a centre frequency and sample rate.
type HzBand struct {
	Center uint64 `json:"center_hz"`
	Width  uint64 `json:"width_hz"`
}

func (hzb HzBand) BeginHz() float64 { return float64(hzb.Center) - float64(hzb.Width)/2.0 }
func (hzb HzBand) EndHz() float64   { return float64(hzb.Center) + float64(hzb.Width)/2.0 }

// BinHz is the width of one bin when the band is split into n FFT bins.
func (hzb HzBand) BinHz(n int) float64 { return float64(hzb.Width) / float64(n) }

// BinFreq is the centre frequency of bin i of an fft-shifted spectrum.
func (hzb HzBand) BinFreq(i, n int) float64 { return hzb.BeginHz() + float64(i)*hzb.BinHz(n) }
