// Package synth validates synthesis requests and drives the configured
// engine, normalizing its output and failure modes.
package synth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/engine"
	"github.com/callwaiting/tts-service/internal/models"
)

// Preprocessor turns raw request text into plain synthesizable text. SSML
// handling lives behind this hook, outside the service core.
type Preprocessor func(string) string

type Dispatcher struct {
	engine        engine.Engine
	preprocess    Preprocessor
	timeout       time.Duration
	maxTextLength int
	log           *zap.SugaredLogger
}

type Options struct {
	Timeout       time.Duration
	MaxTextLength int
	Preprocess    Preprocessor
}

func NewDispatcher(eng engine.Engine, opts Options, log *zap.SugaredLogger) *Dispatcher {
	pre := opts.Preprocess
	if pre == nil {
		pre = func(s string) string { return s }
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Dispatcher{
		engine:        eng,
		preprocess:    pre,
		timeout:       timeout,
		maxTextLength: opts.MaxTextLength,
		log:           log,
	}
}

// Streaming reports whether the underlying engine emits audio incrementally.
func (d *Dispatcher) Streaming() bool {
	_, ok := d.engine.(engine.StreamingEngine)
	return ok
}

func (d *Dispatcher) EngineName() string { return d.engine.Name() }

// Validate applies the request checks that must pass before the engine is
// ever invoked. It returns the preprocessed text.
func (d *Dispatcher) Validate(text string) (string, error) {
	text = d.preprocess(text)
	if strings.TrimSpace(text) == "" {
		return "", apierr.E(apierr.InvalidArgument, "Text cannot be empty")
	}
	if d.maxTextLength > 0 && len(text) > d.maxTextLength {
		return "", apierr.E(apierr.InvalidArgument, "Text exceeds maximum length of %d characters", d.maxTextLength)
	}
	return text, nil
}

// Synthesize validates the text and runs the engine under a bounded
// timeout, returning a reader over the produced audio. Engines that stream
// natively are passed through; whole-file engines are buffered and the
// streamer slices the result into uniform chunks either way. Any engine
// temp files are gone by the time this returns, on every path.
func (d *Dispatcher) Synthesize(ctx context.Context, text string, voice *models.VoiceConfig) (io.ReadCloser, error) {
	text, err := d.Validate(text)
	if err != nil {
		return nil, err
	}

	spec := engine.VoiceSpec{
		VoiceID:            voice.VoiceID,
		Language:           voice.Language,
		EngineVoice:        voice.EngineVoice,
		ReferenceAudioPath: voice.ReferenceAudioPath,
	}

	if streaming, ok := d.engine.(engine.StreamingEngine); ok {
		engineCtx, cancel := context.WithTimeout(ctx, d.timeout)
		rc, err := streaming.SynthesizeStream(engineCtx, text, spec)
		if err != nil {
			cancel()
			return nil, d.mapEngineError(err)
		}
		return &cancelReadCloser{ReadCloser: rc, cancel: cancel}, nil
	}

	engineCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	data, err := d.engine.Synthesize(engineCtx, text, spec)
	if err != nil {
		return nil, d.mapEngineError(err)
	}

	if len(data) < wavHeaderSize {
		return nil, apierr.E(apierr.SynthesisFailed, "Engine produced malformed audio output")
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

const wavHeaderSize = 44

func (d *Dispatcher) mapEngineError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierr.Wrap(apierr.EngineUnavailable, err, "Synthesis engine timed out")
	}
	d.log.Errorw("engine call failed", "engine", d.engine.Name(), "error", err)
	return apierr.Wrap(apierr.EngineUnavailable, err, "Synthesis engine unavailable")
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
