package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// CommandEngine shells out to an OS speech synthesizer (espeak by default)
// with one fixed invocation contract: `<command> [-v voice] -w <file> <text>`.
// There is no alternate-invocation fallback; an engine that cannot serve
// this contract surfaces as unavailable to the caller.
type CommandEngine struct {
	command string
	voice   string
	log     *zap.SugaredLogger
}

func NewCommandEngine(command, voice string, log *zap.SugaredLogger) *CommandEngine {
	return &CommandEngine{command: command, voice: voice, log: log}
}

func (e *CommandEngine) Name() string { return "command:" + e.command }

func (e *CommandEngine) Synthesize(ctx context.Context, text string, voice VoiceSpec) ([]byte, error) {
	tempFile, err := os.CreateTemp("", "tts-output-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file for engine output: %w", err)
	}
	tempFile.Close()

	defer func() {
		if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
			e.log.Warnw("failed to remove engine temp file", "path", tempFile.Name(), "error", removeErr)
		}
	}()

	args := []string{}
	engineVoice := voice.EngineVoice
	if engineVoice == "" {
		engineVoice = e.voice
	}
	if engineVoice != "" {
		args = append(args, "-v", engineVoice)
	}
	args = append(args, "-w", tempFile.Name(), text)

	cmd := exec.CommandContext(ctx, e.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s execution failed: %w, stderr: %s", e.command, err, stderr.String())
	}

	audioData, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return nil, fmt.Errorf("read engine output: %w", err)
	}

	return audioData, nil
}
