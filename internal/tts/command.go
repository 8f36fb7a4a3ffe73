// SPDX-License-Identifier: MIT

package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
)

// commandEngine runs an arbitrary synthesis command line. The configured
// argv is used as a template: {{text}} and {{out}} are substituted per call,
// so any CLI speech tool can be wired in without code changes.
type commandEngine struct {
	argv []string
}

func newCommandEngine(cfg config.TTSConfig) (*commandEngine, error) {
	if len(cfg.Command) == 0 {
		return nil, fault.BadConfig("tts.command", "command argv not set")
	}
	var hasOut bool
	for _, a := range cfg.Command {
		if strings.Contains(a, "{{out}}") {
			hasOut = true
		}
	}
	if !hasOut {
		return nil, fault.BadConfig("tts.command", "command argv must reference {{out}}")
	}
	return &commandEngine{argv: cfg.Command}, nil
}

func (e *commandEngine) Name() string { return "command" }

func (e *commandEngine) Synthesize(ctx context.Context, text, out string) error {
	argv := expandArgv(e.argv, text, out)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// Tools that read from stdin instead of argv still get the text.
	if !containsText(e.argv) {
		cmd.Stdin = strings.NewReader(text + "\n")
	}

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fault.Timeout("tts.command", ctx.Err().Error())
		}
		return fault.Collab("tts", fmt.Errorf("%s: %w: %s", argv[0], err, tail(stderr.String())))
	}
	return requireNonEmpty(out)
}

func expandArgv(argv []string, text, out string) []string {
	expanded := make([]string, len(argv))
	for i, a := range argv {
		a = strings.ReplaceAll(a, "{{text}}", text)
		a = strings.ReplaceAll(a, "{{out}}", out)
		expanded[i] = a
	}
	return expanded
}

func containsText(argv []string) bool {
	for _, a := range argv {
		if strings.Contains(a, "{{text}}") {
			return true
		}
	}
	return false
}
