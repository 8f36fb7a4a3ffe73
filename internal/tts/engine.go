// SPDX-License-Identifier: MIT

// Package tts turns script sentences into narration audio. An Engine speaks
// one sentence into one file; the Synthesizer fans a whole script through an
// engine under a concurrency bound and measures every produced file.
package tts

import (
	"context"
	"fmt"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
)

// Engine synthesizes a single sentence into the file at out. Implementations
// must write the complete file before returning nil and must honor ctx.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text, out string) error
}

// NewEngine builds the engine selected by cfg.Engine.
func NewEngine(cfg config.TTSConfig) (Engine, error) {
	switch cfg.Engine {
	case "openai":
		return newOpenAIEngine(cfg)
	case "piper":
		return newPiperEngine(cfg)
	case "command":
		return newCommandEngine(cfg)
	case "":
		return nil, fault.BadConfig("tts.engine", "no engine configured")
	default:
		return nil, fault.BadConfig("tts.engine", fmt.Sprintf("unknown engine %q", cfg.Engine))
	}
}
