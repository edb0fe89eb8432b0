// Command enginecheck runs one synthesis through the configured engine and
// reports timing and output size. Useful for verifying an engine binary or
// network path before pointing traffic at a deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/callwaiting/tts-service/internal/config"
	"github.com/callwaiting/tts-service/internal/engine"
)

func main() {
	text := flag.String("text", "This is a synthesis engine check.", "text to synthesize")
	out := flag.String("out", "", "optional path to write the audio output")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	var eng engine.Engine
	switch cfg.TTSEngine {
	case "edge":
		eng = engine.NewEdgeEngine(cfg.EngineVoice, sugar)
	default:
		eng = engine.NewCommandEngine(cfg.EngineCommand, cfg.EngineVoice, sugar)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.EngineTimeout)
	defer cancel()

	start := time.Now()
	data, err := eng.Synthesize(ctx, *text, engine.VoiceSpec{
		VoiceID:     "default",
		Language:    "en-US",
		EngineVoice: cfg.EngineVoice,
	})
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "engine %s failed after %s: %v\n", eng.Name(), elapsed, err)
		os.Exit(1)
	}

	fmt.Printf("engine %s produced %d bytes in %s\n", eng.Name(), len(data), elapsed)

	if *out != "" {
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *out)
	}
}
