package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chzchzchz/rtlstream/acquire"
	"github.com/chzchzchz/rtlstream/config"
	"github.com/chzchzchz/rtlstream/radio"
	"github.com/chzchzchz/rtlstream/tuner"
)

const (
	exitOK = iota
	exitFailure
	exitDeviceUnavailable
	exitHardwareConfig
	exitRead
	exitOutput
)

// exitCode maps the error that ended a command to the process status.
func exitCode(err error) int {
	var (
		hwErr   *tuner.HardwareConfigError
		readErr *tuner.ReadError
		ioErr   *acquire.IoError
	)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case errors.Is(err, tuner.ErrDeviceUnavailable), errors.Is(err, radio.ErrNoDevices):
		return exitDeviceUnavailable
	case errors.As(err, &hwErr):
		return exitHardwareConfig
	case errors.As(err, &readErr):
		return exitRead
	case errors.As(err, &ioErr):
		return exitOutput
	}
	return exitFailure
}

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *log.Logger
	stdout  io.Writer
	stderr  io.Writer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		v:      config.New(),
		stdout: stdout,
		stderr: stderr,
		log:    log.NewWithOptions(stderr, log.Options{Prefix: "rtlstream"}),
	}
}

func newLogger(w io.Writer, c config.LogConfig) (*log.Logger, error) {
	lvl, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	opts := log.Options{Level: lvl, Prefix: "rtlstream", ReportTimestamp: true}
	switch strings.ToLower(c.Format) {
	case "json":
		opts.Formatter = log.JSONFormatter
	case "logfmt":
		opts.Formatter = log.LogfmtFormatter
	default:
		opts.Formatter = log.TextFormatter
	}
	return log.NewWithOptions(w, opts), nil
}

// load resolves configuration once flags are parsed.
func (a *app) load(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	c, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	lg, err := newLogger(a.stderr, c.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = c, lg
	return nil
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rtlstream",
		Short: "Stream calibrated or FM demodulated samples from an RTL-SDR tuner",
		Long: `rtlstream tunes an RTL2832U dongle and writes raw, unframed float32 samples
to stdout or a file: one float per sample when demodulating, interleaved
I/Q pairs otherwise.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.load(cmd) },
		RunE:              func(cmd *cobra.Command, args []string) error { return a.stream(cmd.Context()) },
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "YAML config file")
	pf.Uint32P("frequency", "f", 96900000, "Center frequency in Hz")
	pf.Uint32P("sample-rate", "s", 250000, "Sample rate in Hz")
	pf.String("byte-order", "native", "Sample byte order (native, little, big)")
	pf.Bool("resample", false, "Resample before output")
	pf.Float64("resample-ratio", 0.48, "Output/input sample rate ratio")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json, logfmt)")

	addStreamFlags(root)
	stream := &cobra.Command{
		Use:   "stream",
		Short: "Stream samples (default)",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return a.stream(cmd.Context()) },
	}
	addStreamFlags(stream)
	root.AddCommand(stream, a.listCmd(), a.spectrumCmd(), a.ppmCmd())
	return root
}

func addDeviceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("ppm", 1, "Frequency correction in ppm")
	f.String("backend", config.BackendRTLSDR, "Device backend (rtlsdr, rtltcp)")
	f.Int("device", 0, "Device index")
	f.String("serial", "", "Select device by USB serial")
	f.String("rtltcp-addr", "127.0.0.1:1234", "rtl_tcp server address")
	f.Bool("rtltcp-spawn", false, "Start a local rtl_tcp for the selected device")
}

func addStreamFlags(cmd *cobra.Command) {
	addDeviceFlags(cmd)
	f := cmd.Flags()
	f.IntP("duration", "d", -1, "Seconds to stream; negative streams until interrupted")
	f.Int("buffer-samples", 8192, "Complex samples per device read")
	f.BoolP("no-demod", "n", false, "Write complex I/Q instead of demodulated audio")
	f.Float64("modulation-index", 1.0, "FM discriminator modulation index")
	f.String("dsp", "native", "DSP backend (native, liquid)")
	f.Float64("resample-attenuation", 45, "Resampler stop-band attenuation in dB")
	f.StringP("output", "o", "-", "Output file; - for stdout")
	f.String("metrics-listen", "", "Serve /metrics and /api/session/ on this address")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if code != exitOK {
		a.log.Error("exiting", "err", err, "status", code)
	}
	return code
}

func main() {
	// Broken output pipes surface as write errors instead of killing the process.
	signal.Ignore(syscall.SIGPIPE)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
