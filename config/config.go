// Package config loads rtlstream settings from flags, RTLSTREAM_* environment
// variables, an optional YAML file, and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chzchzchz/rtlstream/dsp"
	"github.com/chzchzchz/rtlstream/radio"
	"github.com/chzchzchz/rtlstream/tuner"
)

const EnvPrefix = "RTLSTREAM"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	// Duration in seconds; negative streams until interrupted.
	Duration int            `mapstructure:"duration"`
	Tuner    TunerConfig    `mapstructure:"tuner"`
	Device   DeviceConfig   `mapstructure:"device"`
	Demod    DemodConfig    `mapstructure:"demod"`
	DSP      DSPConfig      `mapstructure:"dsp"`
	Resample ResampleConfig `mapstructure:"resample"`
	Output   OutputConfig   `mapstructure:"output"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type TunerConfig struct {
	Frequency     uint32 `mapstructure:"frequency"`
	SampleRate    uint32 `mapstructure:"sample_rate"`
	PPM           int    `mapstructure:"ppm"`
	BufferSamples int    `mapstructure:"buffer_samples"`
}

type DeviceConfig struct {
	// Backend is rtlsdr (USB via librtlsdr) or rtltcp.
	Backend string `mapstructure:"backend"`
	Index   int    `mapstructure:"index"`
	// Serial overrides Index when set.
	Serial  string `mapstructure:"serial"`
	Address string `mapstructure:"address"`
	Spawn   bool   `mapstructure:"spawn"`
}

type DemodConfig struct {
	Disable         bool    `mapstructure:"disable"`
	ModulationIndex float64 `mapstructure:"modulation_index"`
}

type DSPConfig struct {
	Backend string `mapstructure:"backend"`
}

type ResampleConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Ratio         float64 `mapstructure:"ratio"`
	AttenuationDB float64 `mapstructure:"attenuation_db"`
}

type OutputConfig struct {
	// Path "-" is stdout.
	Path      string `mapstructure:"path"`
	ByteOrder string `mapstructure:"byte_order"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Listen enables the status listener, e.g. ":9090".
	Listen string `mapstructure:"listen"`
}

const (
	BackendRTLSDR = "rtlsdr"
	BackendRTLTCP = "rtltcp"
)

func SetDefaults(v *viper.Viper) {
	v.SetDefault("duration", -1)
	v.SetDefault("tuner.frequency", 96900000)
	v.SetDefault("tuner.sample_rate", 250000)
	v.SetDefault("tuner.ppm", 1)
	v.SetDefault("tuner.buffer_samples", 8192)
	v.SetDefault("device.backend", BackendRTLSDR)
	v.SetDefault("device.index", 0)
	v.SetDefault("device.serial", "")
	v.SetDefault("device.address", "127.0.0.1:1234")
	v.SetDefault("device.spawn", false)
	v.SetDefault("demod.disable", false)
	v.SetDefault("demod.modulation_index", 1.0)
	v.SetDefault("dsp.backend", string(dsp.Native))
	v.SetDefault("resample.enabled", false)
	v.SetDefault("resample.ratio", 0.48)
	v.SetDefault("resample.attenuation_db", 45.0)
	v.SetDefault("output.path", "-")
	v.SetDefault("output.byte_order", "native")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.listen", "")
}

// New returns a viper instance with defaults and environment lookup wired.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"duration":             "duration",
	"frequency":            "tuner.frequency",
	"sample-rate":          "tuner.sample_rate",
	"ppm":                  "tuner.ppm",
	"buffer-samples":       "tuner.buffer_samples",
	"backend":              "device.backend",
	"device":               "device.index",
	"serial":               "device.serial",
	"rtltcp-addr":          "device.address",
	"rtltcp-spawn":         "device.spawn",
	"no-demod":             "demod.disable",
	"modulation-index":     "demod.modulation_index",
	"dsp":                  "dsp.backend",
	"resample":             "resample.enabled",
	"resample-ratio":       "resample.ratio",
	"resample-attenuation": "resample.attenuation_db",
	"output":               "output.path",
	"byte-order":           "output.byte_order",
	"log-level":            "log.level",
	"log-format":           "log.format",
	"metrics-listen":       "metrics.listen",
}

// BindFlags binds every known flag present in fs to its key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file if one is given, then decodes and validates.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	if !radio.ValidSampleRate(c.Tuner.SampleRate) {
		return invalid("sample rate %d outside (225000, 300000] and (900000, 3200000]", c.Tuner.SampleRate)
	}
	if c.Tuner.Frequency == 0 {
		return invalid("frequency must be set")
	}
	// USB bulk transfers are 512 bytes.
	if c.Tuner.BufferSamples <= 0 || c.Tuner.BufferSamples%tuner.BufferQuantum != 0 {
		return invalid("buffer_samples %d must be a positive multiple of %d", c.Tuner.BufferSamples, tuner.BufferQuantum)
	}
	switch c.Device.Backend {
	case BackendRTLSDR, BackendRTLTCP:
	default:
		return invalid("unknown device backend %q", c.Device.Backend)
	}
	if c.Device.Index < 0 {
		return invalid("device index %d", c.Device.Index)
	}
	if c.Device.Backend == BackendRTLTCP && c.Device.Address == "" {
		return invalid("rtltcp backend needs device.address")
	}
	if c.Demod.ModulationIndex <= 0 {
		return invalid("modulation index %v must be positive", c.Demod.ModulationIndex)
	}
	if _, err := dsp.ParseBackend(c.DSP.Backend); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Resample.Enabled {
		if c.Resample.Ratio <= 0 || c.Resample.Ratio > 256 {
			return invalid("resample ratio %v must be in (0, 256]", c.Resample.Ratio)
		}
		if c.Resample.AttenuationDB <= 0 {
			return invalid("resample attenuation %v dB must be positive", c.Resample.AttenuationDB)
		}
	}
	if c.Output.Path == "" {
		return invalid("output path must be set")
	}
	if _, err := radio.ParseByteOrder(c.Output.ByteOrder); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json", "logfmt":
	default:
		return invalid("unknown log format %q", c.Log.Format)
	}
	return nil
}

// OutputRate is the sample rate of the emitted stream.
func (c *Config) OutputRate() float64 {
	if c.Resample.Enabled {
		return float64(c.Tuner.SampleRate) * c.Resample.Ratio
	}
	return float64(c.Tuner.SampleRate)
}
