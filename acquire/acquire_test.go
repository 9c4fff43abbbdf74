package acquire

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chzchzchz/rtlstream/radio"
	"github.com/chzchzchz/rtlstream/radio/radiotest"
	"github.com/chzchzchz/rtlstream/tuner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errRead = errors.New("usb transfer failed")

// fakeSource counts reads and fails once failAt reads have succeeded.
type fakeSource struct {
	samples int
	reads   int
	failAt  int
	cancel  func()
}

func (f *fakeSource) next() error {
	if f.failAt > 0 && f.reads >= f.failAt {
		return errRead
	}
	f.reads++
	if f.cancel != nil && f.reads == 3 {
		f.cancel()
	}
	return nil
}

func (f *fakeSource) PCM() ([]float32, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	out := make([]float32, f.samples)
	for i := range out {
		out[i] = float32(f.reads) + float32(i)/float32(f.samples)
	}
	return out, nil
}

func (f *fakeSource) ComplexIQ() ([]complex64, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	out := make([]complex64, f.samples)
	for i := range out {
		out[i] = complex(float32(f.reads), -float32(i))
	}
	return out, nil
}

func (f *fakeSource) BufferSize() int { return f.samples }

func TestIterations(t *testing.T) {
	tests := []struct {
		rate    uint32
		seconds int
		buf     int
		want    uint64
		bounded bool
	}{
		{250000, 10, 8192, 305, true},
		{250000, 0, 8192, 0, true},
		{250000, -1, 8192, 0, false},
		{3200000, 86400, 8192, 33750000, true},
		{2048000, 1, 16384, 125, true},
		{1000, 1, 8192, 0, true},
	}
	for _, tt := range tests {
		n, bounded := Iterations(tt.rate, tt.seconds, tt.buf)
		assert.Equal(t, tt.want, n, "%+v", tt)
		assert.Equal(t, tt.bounded, bounded, "%+v", tt)
	}
}

func TestRunBounded(t *testing.T) {
	src := &fakeSource{samples: 100}
	var sink bytes.Buffer
	l := &Loop{Source: src, SampleRate: 250, Seconds: 2, Sink: &sink, ByteOrder: binary.LittleEndian}
	st, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Iterations: 5, Samples: 500, Bytes: 2000}, st)
	assert.Equal(t, 5, src.reads)
	assert.Equal(t, 2000, sink.Len())

	got := make([]float32, 500)
	require.NoError(t, binary.Read(&sink, binary.LittleEndian, got))
	assert.Equal(t, float32(1), got[0])
	assert.Equal(t, float32(5)+0.99, got[499])
}

func TestRunComplexLayout(t *testing.T) {
	src := &fakeSource{samples: 64}
	var sink bytes.Buffer
	l := &Loop{Source: src, SampleRate: 64, Seconds: 3, DisableDemod: true, Sink: &sink, ByteOrder: binary.BigEndian}
	st, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Iterations)
	assert.Equal(t, 3*64*8, sink.Len())

	samps, err := radio.NewIQReader(&sink, binary.BigEndian).ReadComplex64(3 * 64)
	require.NoError(t, err)
	assert.Equal(t, complex64(complex(3, -63)), samps[len(samps)-1])
}

func TestRunUnboundedStopsOnlyOnError(t *testing.T) {
	src := &fakeSource{samples: 10, failAt: 1000}
	var sink bytes.Buffer
	l := &Loop{Source: src, SampleRate: 1, Seconds: -1, Sink: &sink}
	st, err := l.Run(context.Background())
	assert.ErrorIs(t, err, errRead)
	assert.Equal(t, uint64(1000), st.Iterations)
	assert.Equal(t, 1000*10*4, sink.Len())
}

func TestRunReadFailureEmitsWholeBuffers(t *testing.T) {
	src := &fakeSource{samples: 33, failAt: 4}
	fr := &frameRecorder{}
	l := &Loop{Source: src, SampleRate: 1000, Seconds: 10, DisableDemod: true, Sink: fr}
	st, err := l.Run(context.Background())
	require.ErrorIs(t, err, errRead)
	assert.Equal(t, uint64(4), st.Iterations)
	assert.Equal(t, []int{264, 264, 264, 264}, fr.writes)
	assert.Equal(t, 4, fr.flushes)
}

func TestRunWriteFailure(t *testing.T) {
	src := &fakeSource{samples: 8}
	fr := &frameRecorder{failAfter: 2, err: errors.New("broken pipe")}
	obs := &recordingObserver{}
	l := &Loop{Source: src, SampleRate: 8, Seconds: 10, Sink: fr, Observer: obs}
	st, err := l.Run(context.Background())
	var ioErr *IoError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, fr.err)
	assert.Equal(t, uint64(2), st.Iterations)
	assert.Equal(t, 2, obs.buffers)
	assert.ErrorIs(t, obs.err, fr.err)
}

func TestRunCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{samples: 16, cancel: cancel}
	var sink bytes.Buffer
	l := &Loop{Source: src, SampleRate: 16, Seconds: -1, Sink: &sink}
	st, err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	// The buffer read when the signal arrived is still written whole.
	assert.Equal(t, uint64(3), st.Iterations)
	assert.Equal(t, 3*16*4, sink.Len())
}

func TestRunSession(t *testing.T) {
	dev := radiotest.New()
	dev.ReadLimit = 7
	s, err := tuner.Open(dev.Opener(), 0, tuner.Options{PPM: 1, BufferSamples: 256})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Tune(96900000, 250000))

	var sink bytes.Buffer
	l := &Loop{Source: s, SampleRate: 256, Seconds: 5, Sink: &sink}
	st, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), st.Iterations)
	assert.Equal(t, 5*256*4, sink.Len())

	l.Seconds = -1
	st, err = l.Run(context.Background())
	var rerr *tuner.ReadError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, uint64(2), st.Iterations)
}

type frameRecorder struct {
	writes    []int
	flushes   int
	failAfter int
	err       error
}

func (f *frameRecorder) Write(p []byte) (int, error) {
	if f.err != nil && len(f.writes) >= f.failAfter {
		return 0, f.err
	}
	f.writes = append(f.writes, len(p))
	return len(p), nil
}

func (f *frameRecorder) Flush() error {
	f.flushes++
	return nil
}

type recordingObserver struct {
	buffers int
	err     error
}

func (o *recordingObserver) ObserveBuffer(int, int, time.Duration) { o.buffers++ }

func (o *recordingObserver) ObserveError(err error) { o.err = err }
