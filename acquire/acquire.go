// Package acquire drives a tuner session buffer by buffer and streams the
// result to a byte sink.
package acquire

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chzchzchz/rtlstream/radio"
)

// Source yields one buffer per call. *tuner.Session satisfies it.
type Source interface {
	PCM() ([]float32, error)
	ComplexIQ() ([]complex64, error)
	BufferSize() int
}

// Observer is told about every emitted buffer and the terminating error.
type Observer interface {
	ObserveBuffer(samples, bytes int, elapsed time.Duration)
	ObserveError(err error)
}

// IoError is a failed write or flush to the sink.
type IoError struct {
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("output: %v", e.Err) }

func (e *IoError) Unwrap() error { return e.Err }

// Iterations converts a duration in seconds into a buffer count, rounding
// down. A negative duration is unbounded.
func Iterations(sampleRate uint32, seconds int, bufferSamples int) (n uint64, bounded bool) {
	if seconds < 0 {
		return 0, false
	}
	if bufferSamples <= 0 {
		return 0, true
	}
	return uint64(sampleRate) * uint64(seconds) / uint64(bufferSamples), true
}

type Stats struct {
	Iterations uint64 `json:"iterations"`
	Samples    uint64 `json:"samples"`
	Bytes      uint64 `json:"bytes"`
}

type Loop struct {
	Source     Source
	SampleRate uint32
	// Seconds bounds the run; negative runs until an error or cancellation.
	Seconds      int
	DisableDemod bool
	Sink         io.Writer
	// ByteOrder defaults to binary.NativeEndian.
	ByteOrder binary.ByteOrder
	Observer  Observer
	Logger    *log.Logger
}

// Run loops until the budget is spent, ctx is done, or a read or write fails.
// Each buffer is written whole and flushed before the next read.
func (l *Loop) Run(ctx context.Context) (st Stats, err error) {
	order := l.ByteOrder
	if order == nil {
		order = binary.NativeEndian
	}
	lg := l.Logger
	if lg == nil {
		lg = log.New(io.Discard)
	}
	w := radio.NewIQWriter(l.Sink, order)

	target, bounded := Iterations(l.SampleRate, l.Seconds, l.Source.BufferSize())
	if bounded {
		lg.Info("starting", "iterations", target, "buffer", l.Source.BufferSize(), "demod", !l.DisableDemod)
	} else {
		lg.Info("starting", "iterations", "unbounded", "buffer", l.Source.BufferSize(), "demod", !l.DisableDemod)
	}
	defer func() {
		if err != nil && l.Observer != nil {
			l.Observer.ObserveError(err)
		}
	}()

	for !bounded || st.Iterations < target {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		start := time.Now()
		samps, n, err := l.emit(w)
		if err != nil {
			return st, err
		}
		st.Iterations++
		st.Samples += uint64(samps)
		st.Bytes += uint64(n)
		if l.Observer != nil {
			l.Observer.ObserveBuffer(samps, n, time.Since(start))
		}
		lg.Debug("buffer", "n", st.Iterations, "samples", samps)
	}
	lg.Info("done", "iterations", st.Iterations, "bytes", st.Bytes)
	return st, nil
}

// emit reads one buffer and writes it; nothing is written if the read fails.
func (l *Loop) emit(w *radio.IQWriter) (samps int, n int, err error) {
	if l.DisableDemod {
		iq, err := l.Source.ComplexIQ()
		if err != nil {
			return 0, 0, err
		}
		n, err = w.WriteComplex64(iq)
		if err != nil {
			return 0, n, &IoError{Err: err}
		}
		return len(iq), n, nil
	}
	pcm, err := l.Source.PCM()
	if err != nil {
		return 0, 0, err
	}
	n, err = w.WriteFloat32(pcm)
	if err != nil {
		return 0, n, &IoError{Err: err}
	}
	return len(pcm), n, nil
}
