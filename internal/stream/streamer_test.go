package stream_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/stream"
)

func payload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// Concatenated output must equal the source byte-for-byte, in order.
func TestStreamPreservesBytesAndOrder(t *testing.T) {
	src := payload(100*1024 + 37) // deliberately not chunk-aligned
	var dst bytes.Buffer

	s := stream.New(1024, 64, zap.NewNop().Sugar())
	metrics, err := s.Stream(context.Background(), &dst, bytes.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, src, dst.Bytes())
	assert.Equal(t, int64(len(src)), metrics.Bytes)
	assert.Equal(t, 101, metrics.Chunks) // 100 full chunks + 37-byte tail
}

func TestStreamEmptySource(t *testing.T) {
	var dst bytes.Buffer

	s := stream.New(1024, 8, zap.NewNop().Sugar())
	metrics, err := s.Stream(context.Background(), &dst, bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Zero(t, metrics.Chunks)
	assert.Zero(t, metrics.Bytes)
}

func TestStreamMetrics(t *testing.T) {
	src := payload(8 * 1024)
	var dst bytes.Buffer

	s := stream.New(1024, 16, zap.NewNop().Sugar())
	metrics, err := s.Stream(context.Background(), &dst, bytes.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 8, metrics.Chunks)
	assert.GreaterOrEqual(t, metrics.Duration, metrics.TimeToFirstChunk)
	assert.Greater(t, metrics.BytesPerSecond, 0.0)
}

// slowWriter simulates a consumer that cannot keep up.
type slowWriter struct {
	delay time.Duration
	buf   bytes.Buffer
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(w.delay)
	return w.buf.Write(p)
}

// A tiny buffer plus a slow consumer exercises the backpressure path; the
// stream must still complete with all bytes intact.
func TestSlowConsumerDoesNotDeadlock(t *testing.T) {
	src := payload(20 * 256)
	dst := &slowWriter{delay: time.Millisecond}

	s := stream.New(256, 4, zap.NewNop().Sugar())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Stream(context.Background(), dst, bytes.NewReader(src))
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not complete")
	}

	assert.Equal(t, src, dst.buf.Bytes())
}

// blockingReader yields a little data then blocks until its context dies.
type blockingReader struct {
	served bool
	ctx    context.Context
}

func (r *blockingReader) Read(p []byte) (int, error) {
	if !r.served {
		r.served = true
		return copy(p, payload(256)), nil
	}
	<-r.ctx.Done()
	return 0, io.EOF
}

// Client disconnect (ctx cancel) must terminate the session promptly.
func TestCancellationStopsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &blockingReader{ctx: ctx}
	var dst bytes.Buffer

	s := stream.New(1024, 8, zap.NewNop().Sugar())

	done := make(chan error, 1)
	go func() {
		_, err := s.Stream(ctx, &dst, src)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}
