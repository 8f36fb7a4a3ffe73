// SPDX-License-Identifier: MIT

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/vcodec"
)

// Slideshow composes the images into a video of exactly
// count·dwell − (count−1)·fade seconds. Each image is scaled and padded to
// the configured resolution; with a positive fade the clips overlap in an
// xfade chain, otherwise they are hard-cut.
func (e *Engine) Slideshow(ctx context.Context, images []string, dwell, fade float64, out string) error {
	if len(images) == 0 {
		return fault.BadInput("media.slideshow", "no images")
	}
	if dwell <= 0 {
		return fault.BadConfig("media.slideshow", "image dwell must be positive")
	}
	if fade < 0 {
		fade = 0
	}
	if fade > 0 && fade >= dwell {
		return fault.BadConfig("media.slideshow", "cross-fade longer than image dwell")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fault.Wrap(fault.KindCollaborator, "media.slideshow", err)
	}
	return e.runWatched(ctx, "media.slideshow", e.slideshowArgs(images, dwell, fade, out))
}

func (e *Engine) slideshowArgs(images []string, dwell, fade float64, out string) []string {
	args := []string{"-y"}
	for _, img := range images {
		args = append(args, "-loop", "1", "-t", ffDuration(dwell), "-i", img)
	}
	args = append(args,
		"-filter_complex", e.slideshowFilter(len(images), dwell, fade),
		"-map", "[vout]",
	)
	args = append(args, e.intermediateVideoArgs()...)
	return append(args, out)
}

// slideshowFilter normalizes every input to the target geometry and then
// either concatenates or cross-fades. xfade offsets step by dwell−fade so
// each transition eats fade seconds of the accumulated stream.
func (e *Engine) slideshowFilter(count int, dwell, fade float64) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		fmt.Fprintf(&b, "[%d:v]%s[v%d];", i, e.frameChain(), i)
	}

	if fade <= 0 || count == 1 {
		for i := 0; i < count; i++ {
			fmt.Fprintf(&b, "[v%d]", i)
		}
		fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[vout]", count)
		return b.String()
	}

	prev := "v0"
	for i := 1; i < count; i++ {
		label := fmt.Sprintf("x%d", i)
		if i == count-1 {
			label = "vout"
		}
		offset := float64(i) * (dwell - fade)
		fmt.Fprintf(&b, "[%s][v%d]xfade=transition=fade:duration=%s:offset=%s[%s];",
			prev, i, ffDuration(fade), ffDuration(offset), label)
		prev = label
	}
	return strings.TrimSuffix(b.String(), ";")
}

// frameChain is the per-image conditioning: fit inside the frame, pad to
// full size, square pixels, constant rate, encoder-friendly format.
func (e *Engine) frameChain() string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s,setsar=1,fps=%d,format=yuv420p",
		e.video.Width, e.video.Height,
		e.video.Width, e.video.Height,
		lavfiColor(e.video.BackgroundColor),
		e.video.FPS,
	)
}

func (e *Engine) intermediateVideoArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", intermediatePreset,
		"-crf", fmt.Sprintf("%d", intermediateCRF),
		"-pix_fmt", "yuv420p",
	}
}

// ColorClip renders a solid background video of the given duration, used
// when a job has no images.
func (e *Engine) ColorClip(ctx context.Context, duration float64, out string) error {
	if duration <= 0 {
		return fault.BadInput("media.colorclip", "duration must be positive")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fault.Wrap(fault.KindCollaborator, "media.colorclip", err)
	}

	src := fmt.Sprintf("color=c=%s:s=%s:r=%d:d=%s",
		lavfiColor(e.video.BackgroundColor), e.resolution(), e.video.FPS, ffDuration(duration))
	args := []string{"-y", "-f", "lavfi", "-i", src}
	args = append(args, e.intermediateVideoArgs()...)
	args = append(args, out)
	return e.run(ctx, "media.colorclip", args)
}

// TrimOrPad reconciles the encoded file's length with the audio total:
// too long is trimmed, too short gets a background-color tail. The video
// stream is re-encoded with the same selection; audio is copied.
func (e *Engine) TrimOrPad(ctx context.Context, in, out string, target, actual float64, enc vcodec.Selection) error {
	if target <= 0 {
		return fault.BadInput("media.trimorpad", "target duration must be positive")
	}

	args := []string{"-y", "-i", in}
	switch {
	case actual > target:
		args = append(args, "-t", ffDuration(target))
	case actual < target:
		pad := fmt.Sprintf("tpad=stop_mode=add:stop_duration=%s:color=%s",
			ffDuration(target-actual), lavfiColor(e.video.BackgroundColor))
		args = append(args, "-vf", pad)
	default:
		return copyFile(in, out)
	}

	args = append(args, encoderArgs(enc, e.video.BitrateK)...)
	args = append(args, "-c:a", "copy", out)
	return e.run(ctx, "media.trimorpad", args)
}
