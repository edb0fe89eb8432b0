package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"
	"go.uber.org/zap"
)

// EdgeEngine synthesizes through the Microsoft Edge neural-voice service.
// The service returns MP3; the adapter decodes to PCM and wraps it as WAV
// so every engine hands the dispatcher the same container format.
type EdgeEngine struct {
	defaultVoice string
	log          *zap.SugaredLogger
}

func NewEdgeEngine(defaultVoice string, log *zap.SugaredLogger) *EdgeEngine {
	return &EdgeEngine{defaultVoice: defaultVoice, log: log}
}

func (e *EdgeEngine) Name() string { return "edge" }

func (e *EdgeEngine) Synthesize(ctx context.Context, text string, voice VoiceSpec) ([]byte, error) {
	engineVoice := voice.EngineVoice
	if engineVoice == "" {
		engineVoice = e.defaultVoice
	}

	comm, err := edge.NewCommunicate(text, edge.WithVoice(engineVoice))
	if err != nil {
		return nil, fmt.Errorf("edge-tts create communicate: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge-tts start stream: %w", err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return nil, fmt.Errorf("edge-tts returned no audio data")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode edge-tts mp3: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("read decoded pcm: %w", err)
	}

	e.log.Debugw("edge-tts synthesis complete",
		"voice", engineVoice, "mp3_bytes", mp3Buf.Len(), "pcm_bytes", len(pcm))

	// go-mp3 always emits stereo 16-bit LE at the source sample rate.
	return pcmToWAV(pcm, decoder.SampleRate(), 2), nil
}
