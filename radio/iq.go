package radio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	// The RTL2832 ADC idles slightly below mid-scale; 127.4 removes that DC bias.
	dcOffset = 127.4
	iqScale  = 128.0
)

// ConvertIQ maps u8 interleaved I/Q to complex baseband in roughly [-1, 1).
// A trailing odd byte has no partner and is dropped.
func ConvertIQ(raw []byte) []complex64 {
	samps := make([]complex64, len(raw)/2)
	for i := range samps {
		samps[i] = complex(
			(float32(raw[2*i])-dcOffset)/iqScale,
			(float32(raw[2*i+1])-dcOffset)/iqScale)
	}
	return samps
}

// ParseByteOrder accepts "native", "little" or "big".
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "":
		return binary.NativeEndian, nil
	case "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", s)
}

type flusher interface{ Flush() error }

// IQWriter serializes sample frames as unframed 32-bit floats. Each frame is
// written with a single Write and then flushed, so a consumer only ever sees
// whole frames.
type IQWriter struct {
	w     io.Writer
	order binary.ByteOrder
	buf   []byte
}

func NewIQWriter(w io.Writer, order binary.ByteOrder) *IQWriter {
	return &IQWriter{w: w, order: order}
}

// WriteComplex64 writes interleaved (re, im) pairs, 8 bytes per sample.
func (iq *IQWriter) WriteComplex64(samps []complex64) (int, error) {
	buf := iq.grow(8 * len(samps))
	for i, v := range samps {
		iq.order.PutUint32(buf[8*i:], math.Float32bits(real(v)))
		iq.order.PutUint32(buf[8*i+4:], math.Float32bits(imag(v)))
	}
	return iq.emit(buf)
}

// WriteFloat32 writes 4 bytes per sample.
func (iq *IQWriter) WriteFloat32(samps []float32) (int, error) {
	buf := iq.grow(4 * len(samps))
	for i, v := range samps {
		iq.order.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return iq.emit(buf)
}

func (iq *IQWriter) grow(n int) []byte {
	if cap(iq.buf) < n {
		iq.buf = make([]byte, n)
	}
	return iq.buf[:n]
}

func (iq *IQWriter) emit(buf []byte) (int, error) {
	n, err := iq.w.Write(buf)
	if err != nil {
		return n, err
	}
	if f, ok := iq.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// IQReader decodes a stream produced by IQWriter.WriteComplex64.
type IQReader struct {
	r     io.Reader
	order binary.ByteOrder
	buf   []byte
}

func NewIQReader(r io.Reader, order binary.ByteOrder) *IQReader {
	if r == nil {
		panic("nil reader")
	}
	return &IQReader{r: r, order: order}
}

// ReadComplex64 returns up to n samples. It returns io.EOF once no whole
// sample remains; a trailing partial sample is discarded.
func (iq *IQReader) ReadComplex64(n int) ([]complex64, error) {
	if cap(iq.buf) < 8*n {
		iq.buf = make([]byte, 8*n)
	}
	buf := iq.buf[:8*n]
	got, err := io.ReadFull(iq.r, buf)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	samps := make([]complex64, got/8)
	for i := range samps {
		samps[i] = complex(
			math.Float32frombits(iq.order.Uint32(buf[8*i:])),
			math.Float32frombits(iq.order.Uint32(buf[8*i+4:])))
	}
	if len(samps) == 0 && err == nil {
		err = io.EOF
	}
	return samps, err
}
