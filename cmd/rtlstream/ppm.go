package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlstream/spectrum"
	"github.com/chzchzchz/rtlstream/tuner"
)

// sessionFrames reads whole session buffers; n must match the buffer size.
type sessionFrames struct {
	s *tuner.Session
}

func (sf sessionFrames) ReadComplex64(n int) ([]complex64, error) {
	if n != sf.s.BufferSize() {
		return nil, fmt.Errorf("frame of %d samples from %d sample buffers", n, sf.s.BufferSize())
	}
	return sf.s.ComplexIQ()
}

func (a *app) ppmCmd() *cobra.Command {
	var frames int
	cmd := &cobra.Command{
		Use:   "ppm",
		Short: "Estimate frequency correction from NOAA weather radio carriers",
		Long: `Tunes to 162MHz at 2.048MS/s, finds the strongest NOAA weather radio
carrier and prints its offset from the nominal channel in ppm. The correction
given with --ppm is applied while measuring, so the result is the residual.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ppm(cmd.Context(), frames)
		},
	}
	addDeviceFlags(cmd)
	cmd.Flags().IntVar(&frames, "frames", spectrum.PPMFrames, "FFTs to average")
	return cmd
}

func (a *app) ppm(ctx context.Context, frames int) error {
	c := *a.cfg
	c.Tuner.BufferSamples = spectrum.PPMBins
	c.Resample.Enabled, c.Demod.Disable = false, true
	a.cfg = &c

	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Tune(spectrum.PPMCenterHz, spectrum.PPMSampleRate); err != nil {
		return err
	}
	p, err := spectrum.Measure(sessionFrames{sess}, spectrum.PPMBand(), spectrum.PPMBins, frames)
	if err != nil {
		return err
	}
	ppm, carrier, err := spectrum.EstimatePPM(p, spectrum.NOAAChannelsHz)
	if err != nil {
		return err
	}
	a.log.Info("measured", "carrier_hz", carrier, "frames", p.Frames, "applied_ppm", c.Tuner.PPM)
	_, err = fmt.Fprintf(a.stdout, "%.2f\n", ppm)
	return err
}
