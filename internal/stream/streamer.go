// Package stream delivers synthesized audio to a client in fixed-size
// chunks through a bounded buffer with soft backpressure.
package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// Producer pause applied while the buffer sits above the threshold.
	// A soft throttle only; the transport's flow control is the hard stop.
	backpressurePause     = 10 * time.Millisecond
	backpressureThreshold = 0.8
)

// Metrics describes one completed streaming session. Emitted exactly once,
// at stream end, regardless of outcome.
type Metrics struct {
	Chunks           int           `json:"chunks"`
	Bytes            int64         `json:"bytes"`
	TimeToFirstChunk time.Duration `json:"time_to_first_chunk"`
	Duration         time.Duration `json:"duration"`
	ChunksPerSecond  float64       `json:"chunks_per_second"`
	BytesPerSecond   float64       `json:"bytes_per_second"`
}

type Streamer struct {
	chunkSize int
	capacity  int
	log       *zap.SugaredLogger
}

// New creates a Streamer. chunkSize is the size of each delivered chunk in
// bytes; capacity is the bounded buffer size in chunks. The two are
// independent knobs.
func New(chunkSize, capacity int, log *zap.SugaredLogger) *Streamer {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	if capacity <= 0 {
		capacity = 8192
	}
	return &Streamer{chunkSize: chunkSize, capacity: capacity, log: log}
}

// Stream reads src in chunkSize pieces and writes them to dst in FIFO
// order. The producer pauses briefly whenever the buffer passes 80% of
// capacity. Cancelling ctx (client disconnect) stops the producer promptly
// and abandons the remaining audio.
func (s *Streamer) Stream(ctx context.Context, dst io.Writer, src io.Reader) (Metrics, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	buffer := make(chan []byte, s.capacity)
	pauseAbove := int(float64(s.capacity) * backpressureThreshold)

	var produceErr error
	go func() {
		defer close(buffer)
		for {
			if len(buffer) > pauseAbove {
				time.Sleep(backpressurePause)
			}

			chunk := make([]byte, s.chunkSize)
			n, err := io.ReadFull(src, chunk)
			if n > 0 {
				select {
				case buffer <- chunk[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					produceErr = err
				}
				return
			}
		}
	}()

	flusher, _ := dst.(http.Flusher)

	var metrics Metrics
	var firstChunkAt time.Time
	var writeErr error

consume:
	for {
		select {
		case chunk, ok := <-buffer:
			if !ok {
				break consume
			}
			if _, err := dst.Write(chunk); err != nil {
				writeErr = err
				break consume
			}
			if flusher != nil {
				flusher.Flush()
			}
			if metrics.Chunks == 0 {
				firstChunkAt = time.Now()
			}
			metrics.Chunks++
			metrics.Bytes += int64(len(chunk))
		case <-ctx.Done():
			writeErr = ctx.Err()
			break consume
		}
	}

	metrics.Duration = time.Since(start)
	if !firstChunkAt.IsZero() {
		metrics.TimeToFirstChunk = firstChunkAt.Sub(start)
	}
	if secs := metrics.Duration.Seconds(); secs > 0 {
		metrics.ChunksPerSecond = float64(metrics.Chunks) / secs
		metrics.BytesPerSecond = float64(metrics.Bytes) / secs
	}

	err := writeErr
	if err == nil {
		err = produceErr
	}

	s.log.Infow("stream session complete",
		"chunks", metrics.Chunks,
		"bytes", metrics.Bytes,
		"ttfb_ms", metrics.TimeToFirstChunk.Milliseconds(),
		"duration_ms", metrics.Duration.Milliseconds(),
		"error", err,
	)

	return metrics, err
}
