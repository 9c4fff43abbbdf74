package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chzchzchz/rtlstream/acquire"
	"github.com/chzchzchz/rtlstream/config"
	"github.com/chzchzchz/rtlstream/radio"
	"github.com/chzchzchz/rtlstream/radio/radiotest"
	"github.com/chzchzchz/rtlstream/spectrum"
	"github.com/chzchzchz/rtlstream/tuner"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{context.Canceled, exitOK},
		{errors.New("boom"), exitFailure},
		{fmt.Errorf("%w: device 0: %w", tuner.ErrDeviceUnavailable, radio.ErrNoDevices), exitDeviceUnavailable},
		{radio.ErrNoDevices, exitDeviceUnavailable},
		{&tuner.HardwareConfigError{Step: tuner.StepSampleRate, Err: errors.New("-22")}, exitHardwareConfig},
		{&tuner.ReadError{Stage: "read", Err: errors.New("lost")}, exitRead},
		{&acquire.IoError{Err: errors.New("broken pipe")}, exitOutput},
		{fmt.Errorf("%w: x", config.ErrInvalid), exitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	lg, err := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	lg.Info("hidden")
	lg.Warn("shown", "k", 1)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	_, err = newLogger(&buf, config.LogConfig{Level: "loud"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--sample-rate", "600000"}, &stdout, &stderr)
	assert.Equal(t, exitFailure, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "sample rate")
}

func TestRunUnknownDSPBackend(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"stream", "--dsp", "gpu"}, &stdout, &stderr)
	assert.Equal(t, exitFailure, code)
}

func TestSessionOptions(t *testing.T) {
	v := config.New()
	v.Set("resample.enabled", true)
	c, err := config.Load(v, "")
	require.NoError(t, err)
	opts, err := sessionOptions(c)
	require.NoError(t, err)
	assert.NotNil(t, opts.Resampler)
	assert.NotNil(t, opts.Demodulator)
	assert.Equal(t, 8192, opts.BufferSamples)

	c.Demod.Disable, c.Resample.Enabled = true, false
	opts, err = sessionOptions(c)
	require.NoError(t, err)
	assert.Nil(t, opts.Resampler)
	assert.Nil(t, opts.Demodulator)
}

func TestSpectrumCommand(t *testing.T) {
	const bins = 64
	samps := make([]complex64, 4*bins)
	for n := range samps {
		samps[n] = complex64(cmplx.Rect(1, 2*math.Pi*float64(4*n)/bins))
	}
	var raw bytes.Buffer
	_, err := radio.NewIQWriter(&raw, binary.LittleEndian).WriteComplex64(samps)
	require.NoError(t, err)
	dir := t.TempDir()
	capture := filepath.Join(dir, "capture.f32")
	require.NoError(t, os.WriteFile(capture, raw.Bytes(), 0o644))
	jpg := filepath.Join(dir, "capture.jpg")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"spectrum", "-b", "64", "-f", "100000000", "-s", "256000",
		"--byte-order", "little", "--jpeg", jpg, capture,
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, bins)
	assert.True(t, strings.HasPrefix(lines[0], "99872000.0 "), lines[0])
	fi, err := os.Stat(jpg)
	require.NoError(t, err)
	assert.Positive(t, fi.Size())
}

func TestWriteDeviceTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDeviceTable(&buf, []radio.DeviceInfo{
		{Index: 0, Name: "Generic RTL2832U OEM", Manufacturer: "Realtek", Product: "RTL2838UHIDIR", Serial: "00000001"},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "INDEX"))
	assert.Contains(t, lines[1], "00000001")
}

func TestSessionFrames(t *testing.T) {
	dev := radiotest.New()
	s, err := tuner.Open(dev.Opener(), 0, tuner.Options{PPM: 1, BufferSamples: 512})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Tune(spectrum.PPMCenterHz, spectrum.PPMSampleRate))

	p, err := spectrum.Measure(sessionFrames{s}, spectrum.PPMBand(), 512, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Frames)
	assert.Equal(t, uint64(4), s.Info().Buffers)

	_, err = sessionFrames{s}.ReadComplex64(256)
	assert.Error(t, err)
}
