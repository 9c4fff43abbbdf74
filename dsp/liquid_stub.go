//go:build !liquid

package dsp

func newLiquidDemodulator(float64) (Demodulator, error) {
	return nil, ErrBackendUnavailable
}

func newLiquidResampler(float64, float64) (Resampler, error) {
	return nil, ErrBackendUnavailable
}
