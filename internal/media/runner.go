// SPDX-License-Identifier: MIT

// Package media drives ffmpeg and ffprobe for the assembly stages: audio
// concatenation, music mixing, slideshow and color-clip composition,
// subtitle burn-in and the final encode. Every operation is a single
// run-to-completion process invocation; stderr is captured in a ring so
// failures surface the interesting tail instead of megabytes of log.
package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/procgroup"
)

const (
	stderrKeep = 256 // lines of stderr kept per invocation
	tailLines  = 12  // lines reported on failure

	// Intermediate clips (slideshow, color background) are encoded cheap
	// and near-lossless; the real rate control happens in the final encode.
	intermediatePreset = "veryfast"
	intermediateCRF    = 18

	// killGrace bounds how long a cancelled or stalled invocation gets to
	// exit on SIGTERM before the group is killed hard.
	killGrace = 3 * time.Second

	watchInterval = time.Second
)

// Engine runs ffmpeg/ffprobe with the configured binaries and video
// geometry. It is stateless and safe for concurrent use.
type Engine struct {
	ffmpeg  string
	ffprobe string
	video   config.VideoConfig
	stall   time.Duration
	logger  zerolog.Logger
}

// NewEngine builds an engine from the tool paths and video settings.
// Missing values fall back to the standard binaries and 1080p30.
func NewEngine(tools config.ToolsConfig, video config.VideoConfig) *Engine {
	if tools.FFmpegBin == "" {
		tools.FFmpegBin = "ffmpeg"
	}
	if tools.FFprobeBin == "" {
		tools.FFprobeBin = "ffprobe"
	}
	if video.Width <= 0 {
		video.Width = 1920
	}
	if video.Height <= 0 {
		video.Height = 1080
	}
	if video.FPS <= 0 {
		video.FPS = 30
	}
	stall := time.Duration(tools.StallTimeoutSec) * time.Second
	if stall < 0 {
		stall = 0
	}
	return &Engine{
		ffmpeg:  tools.FFmpegBin,
		ffprobe: tools.FFprobeBin,
		video:   video,
		stall:   stall,
		logger:  log.WithComponent("media"),
	}
}

// run executes one ffmpeg invocation to completion. On failure the error
// carries the stderr tail.
func (e *Engine) run(ctx context.Context, op string, args []string) error {
	return e.exec(ctx, op, args, nil)
}

// runWatched additionally arms the progress watchdog: the invocation is
// killed once ffmpeg reports no new frames or bytes inside the stall
// budget. Used for the long renders; a zero budget disables it.
func (e *Engine) runWatched(ctx context.Context, op string, args []string) error {
	if e.stall <= 0 {
		return e.exec(ctx, op, args, nil)
	}
	watched := append([]string{"-progress", "pipe:1", "-nostats"}, args...)
	return e.exec(ctx, op, watched, newProgressWatch(e.stall, e.stall, nil))
}

func (e *Engine) exec(ctx context.Context, op string, args []string, watch *progressWatch) error {
	ring := NewLineRing(stderrKeep)
	cmd := exec.Command(e.ffmpeg, args...) // #nosec G204 -- binary and args are built from config, not request input
	procgroup.Set(cmd)
	cmd.Stderr = ring
	if watch != nil {
		cmd.Stdout = watch
	}

	e.logger.Debug().Str("op", op).Str("command", cmd.String()).Msg("running ffmpeg")
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &fault.Error{Kind: fault.KindCollaborator, Op: op, Err: err}
	}

	wait := make(chan error, 1)
	go func() { wait <- cmd.Wait() }()

	var tick <-chan time.Time
	if watch != nil {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var err error
loop:
	for {
		select {
		case err = <-wait:
			break loop
		case <-ctx.Done():
			_ = procgroup.Terminate(cmd, wait, killGrace)
			err = ctx.Err()
			break loop
		case <-tick:
			if stallErr := watch.check(); stallErr != nil {
				_ = procgroup.Terminate(cmd, wait, killGrace)
				err = stallErr
				break loop
			}
		}
	}
	took := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		e.logger.Error().
			Str("op", op).
			Dur("took", took).
			Strs("stderr", ring.LastN(tailLines)).
			Msg("ffmpeg failed")
		return &fault.Error{
			Kind:   fault.KindCollaborator,
			Op:     op,
			Detail: ring.Tail(tailLines),
			Err:    err,
		}
	}

	e.logger.Debug().Str("op", op).Dur("took", took).Msg("ffmpeg done")
	return nil
}

// ffDuration formats a seconds value the way ffmpeg arguments expect.
func ffDuration(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// resolution is the WxH string for scale/pad/color arguments.
func (e *Engine) resolution() string {
	return fmt.Sprintf("%dx%d", e.video.Width, e.video.Height)
}

// lavfiColor converts a #RRGGBB config color to the 0xRRGGBB form lavfi
// sources and the tpad filter accept. Named colors pass through.
func lavfiColor(c string) string {
	if strings.HasPrefix(c, "#") {
		return "0x" + strings.TrimPrefix(c, "#")
	}
	if c == "" {
		return "black"
	}
	return c
}

// escapeFilterValue escapes a string for use inside a filtergraph option,
// where backslash, quote, colon, brackets, commas and semicolons are all
// structural.
func escapeFilterValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '\'', ':', '[', ']', ',', ';':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
