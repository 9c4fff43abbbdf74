package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlstream/radio"
	"github.com/chzchzchz/rtlstream/spectrum"
)

func (a *app) spectrumCmd() *cobra.Command {
	var (
		bins    int
		frames  int
		jpegOut string
	)
	cmd := &cobra.Command{
		Use:   "spectrum [flags] capture.f32",
		Short: "Print the power spectrum of a captured I/Q file",
		Long: `Reads interleaved float32 I/Q as written with --no-demod and prints one
"frequency_hz db" row per fft bin. The frequency axis comes from --frequency
and the output sample rate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.spectrum(args[0], bins, frames, jpegOut)
		},
	}
	cmd.Flags().IntVarP(&bins, "bins", "b", spectrum.DefaultBins, "FFT size")
	cmd.Flags().IntVar(&frames, "frames", 0, "FFTs to average; 0 averages the whole file")
	cmd.Flags().StringVar(&jpegOut, "jpeg", "", "Also write a spectrogram jpeg")
	return cmd
}

func (a *app) spectrum(inf string, bins, frames int, jpegOut string) error {
	order, err := radio.ParseByteOrder(a.cfg.Output.ByteOrder)
	if err != nil {
		return err
	}
	band := radio.HzBand{Center: uint64(a.cfg.Tuner.Frequency), Width: uint64(a.cfg.OutputRate())}

	f, err := os.Open(inf)
	if err != nil {
		return err
	}
	defer f.Close()
	p, err := spectrum.Measure(radio.NewIQReader(f, order), band, bins, frames)
	if err != nil {
		return fmt.Errorf("%s: %w", inf, err)
	}
	peakHz, peakDB := p.Peak()
	a.log.Info("spectrum",
		"frames", p.Frames,
		"noise_floor_db", p.NoiseFloor(),
		"peak_hz", peakHz,
		"peak_db", peakDB,
		"spurs", len(p.Spurs()),
		"bands", len(p.Bands()))
	if err := p.WriteTable(a.stdout); err != nil {
		return err
	}
	if jpegOut == "" {
		return nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	outf, err := os.OpenFile(jpegOut, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if err := spectrum.WriteSpectrogram(radio.NewIQReader(f, order), outf, bins); err != nil {
		outf.Close()
		return err
	}
	return outf.Close()
}
