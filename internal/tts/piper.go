// SPDX-License-Identifier: MIT

package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
)

// piperEngine shells out to a local piper binary. Text goes in on stdin,
// a wav file comes out; no network involved.
type piperEngine struct {
	bin   string
	model string
}

func newPiperEngine(cfg config.TTSConfig) (*piperEngine, error) {
	if cfg.PiperModel == "" {
		return nil, fault.BadConfig("tts.piper", "piper_model not set")
	}
	bin := cfg.PiperBin
	if bin == "" {
		bin = "piper"
	}
	return &piperEngine{bin: bin, model: cfg.PiperModel}, nil
}

func (e *piperEngine) Name() string { return "piper" }

func (e *piperEngine) Synthesize(ctx context.Context, text, out string) error {
	cmd := exec.CommandContext(ctx, e.bin, "--model", e.model, "--output_file", out)
	cmd.Stdin = strings.NewReader(text + "\n")

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fault.Timeout("tts.piper", ctx.Err().Error())
		}
		return fault.Collab("tts", fmt.Errorf("piper: %w: %s", err, tail(stderr.String())))
	}
	return requireNonEmpty(out)
}

// tail keeps error output readable when piper dumps its whole model banner.
func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, " | ")
}

func requireNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fault.Collab("tts", fmt.Errorf("no output produced: %w", err))
	}
	if info.Size() == 0 {
		os.Remove(path)
		return fault.Collab("tts", fmt.Errorf("empty output file %s", path))
	}
	return nil
}
