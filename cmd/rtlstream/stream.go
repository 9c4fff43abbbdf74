package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chzchzchz/rtlstream/acquire"
	"github.com/chzchzchz/rtlstream/config"
	"github.com/chzchzchz/rtlstream/dsp"
	rxhttp "github.com/chzchzchz/rtlstream/http"
	"github.com/chzchzchz/rtlstream/metrics"
	"github.com/chzchzchz/rtlstream/radio"
	"github.com/chzchzchz/rtlstream/tuner"
)

// openOutput opens the sample sink; "-" is stdout. The returned close func
// may be called more than once and always reports the first close error.
func openOutput(outf string, stdout io.Writer) (io.Writer, func() error, error) {
	if outf == "-" {
		return stdout, func() error { return nil }, nil
	}
	fout, err := os.OpenFile(outf, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, err
	}
	return fout, sync.OnceValue(fout.Close), nil
}

// openerFor picks the device backend and resolves the device index.
func openerFor(ctx context.Context, c *config.Config) (radio.Opener, int, error) {
	if c.Device.Backend == config.BackendRTLTCP {
		open := func(idx int) (radio.Device, error) {
			return radio.OpenRTLTCP(ctx, radio.RTLTCPConfig{
				Address:     c.Device.Address,
				Spawn:       c.Device.Spawn,
				DeviceIndex: idx,
			})
		}
		return open, c.Device.Index, nil
	}
	if c.Device.Serial == "" {
		return radio.OpenRTLSDR, c.Device.Index, nil
	}
	idx, err := radio.IndexBySerial(c.Device.Serial)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", tuner.ErrDeviceUnavailable, err)
	}
	return radio.OpenRTLSDR, idx, nil
}

// sessionOptions builds the dsp stages named by c.
func sessionOptions(c *config.Config) (opts tuner.Options, err error) {
	opts = tuner.Options{PPM: c.Tuner.PPM, BufferSamples: c.Tuner.BufferSamples}
	backend, err := dsp.ParseBackend(c.DSP.Backend)
	if err != nil {
		return opts, err
	}
	if c.Resample.Enabled {
		if opts.Resampler, err = dsp.NewResampler(backend, c.Resample.Ratio, c.Resample.AttenuationDB); err != nil {
			return opts, err
		}
	}
	if !c.Demod.Disable {
		if opts.Demodulator, err = dsp.NewDemodulator(backend, c.Demod.ModulationIndex); err != nil {
			dsp.Close(opts.Resampler)
			return opts, err
		}
	}
	return opts, nil
}

func (a *app) openSession(ctx context.Context) (*tuner.Session, error) {
	c := a.cfg
	opts, err := sessionOptions(c)
	if err != nil {
		return nil, err
	}
	opts.Logger = a.log.WithPrefix("tuner")
	open, idx, err := openerFor(ctx, c)
	if err == nil {
		var s *tuner.Session
		if s, err = tuner.Open(open, idx, opts); err == nil {
			return s, nil
		}
	}
	dsp.Close(opts.Resampler)
	dsp.Close(opts.Demodulator)
	return nil, err
}

func (a *app) stream(ctx context.Context) error {
	c := a.cfg
	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Tune(c.Tuner.Frequency, c.Tuner.SampleRate); err != nil {
		return err
	}

	out, closeOut, err := openOutput(c.Output.Path, a.stdout)
	if err != nil {
		return &acquire.IoError{Err: err}
	}
	defer closeOut()
	order, err := radio.ParseByteOrder(c.Output.ByteOrder)
	if err != nil {
		return err
	}

	loop := &acquire.Loop{
		Source:       sess,
		SampleRate:   c.Tuner.SampleRate,
		Seconds:      c.Duration,
		DisableDemod: c.Demod.Disable,
		Sink:         out,
		ByteOrder:    order,
		Logger:       a.log.WithPrefix("acquire"),
	}
	if c.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		loop.Observer = m
		sctx, cancel := context.WithCancel(ctx)
		donec := make(chan struct{})
		defer func() {
			cancel()
			<-donec
		}()
		go func() {
			defer close(donec)
			a.log.Info("status listener", "addr", c.Metrics.Listen)
			if err := rxhttp.ServeHttp(sctx, rxhttp.NewHandler(sess, reg), c.Metrics.Listen); err != nil {
				a.log.Error("status listener", "err", err)
			}
		}()
	}

	a.log.Info("streaming",
		"hz", c.Tuner.Frequency,
		"rate", c.Tuner.SampleRate,
		"output_rate", c.OutputRate(),
		"demod", !c.Demod.Disable,
		"output", c.Output.Path)
	st, err := loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.log.Info("interrupted", "iterations", st.Iterations, "bytes", st.Bytes)
		return nil
	}
	if err != nil {
		return err
	}
	if err := closeOut(); err != nil {
		return &acquire.IoError{Err: err}
	}
	return nil
}
