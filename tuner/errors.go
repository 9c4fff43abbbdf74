package tuner

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable means no tuner could be acquired.
	ErrDeviceUnavailable = errors.New("tuner device unavailable")
	ErrNotConfigured     = errors.New("tuner not configured")
	ErrClosed            = errors.New("tuner session closed")
	ErrBufferSize        = errors.New("invalid buffer size")
)

// Step names the hardware configuration call that failed.
type Step string

const (
	StepXtal       Step = "xtal"
	StepPPM        Step = "ppm"
	StepFrequency  Step = "frequency"
	StepSampleRate Step = "sample_rate"
	StepReset      Step = "reset"
)

type HardwareConfigError struct {
	Step Step
	Err  error
}

func (e *HardwareConfigError) Error() string {
	return fmt.Sprintf("tuner %s: %v", e.Step, e.Err)
}

func (e *HardwareConfigError) Unwrap() error { return e.Err }

// ReadError is a failed buffered read. Stage is "read" for the device call
// or "resample" when the resampler rejected the converted buffer.
type ReadError struct {
	Stage string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("tuner %s: %v", e.Stage, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
