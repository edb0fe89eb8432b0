// Package engine defines the synthesis engine boundary and its adapters.
// All acoustic work happens behind this interface; the service only moves
// the resulting bytes.
package engine

import (
	"context"
	"encoding/binary"
	"io"
)

// VoiceSpec is the engine-facing slice of a resolved voice configuration.
type VoiceSpec struct {
	VoiceID            string
	Language           string
	EngineVoice        string
	ReferenceAudioPath string
}

// Engine produces complete audio for a piece of text. Implementations must
// honor ctx cancellation and leave no temporary files behind on any path.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice VoiceSpec) ([]byte, error)
}

// StreamingEngine is implemented by engines whose backend emits audio
// incrementally. The dispatcher passes such output through without
// buffering the whole result.
type StreamingEngine interface {
	Engine
	SynthesizeStream(ctx context.Context, text string, voice VoiceSpec) (io.ReadCloser, error)
}

const wavHeaderSize = 44

// pcmToWAV wraps 16-bit LE PCM samples in a RIFF/WAVE header.
func pcmToWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16

	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)

	return out
}
