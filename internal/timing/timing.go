// SPDX-License-Identifier: MIT

// Package timing aligns measured sentence audio durations with subtitle
// segments and slideshow dwell so that audio, image transitions and subtitles
// co-terminate.
package timing

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mediafab/vidforge/internal/fault"
)

// DriftTolerance is the maximum tolerated difference between the audio total
// and the composed video duration before a trim/pad correction is applied.
const DriftTolerance = 0.1

// Segment is one subtitle cue. Times are seconds from the start of the audio
// track; Index is 1-based.
type Segment struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Reconcile packs sentences against their measured durations end-to-end:
// the first segment starts at zero, every following segment starts exactly
// where its predecessor ended. No gaps, no overlaps; the final end equals the
// sum of all durations.
func Reconcile(sentences []string, durations []float64) ([]Segment, error) {
	if len(sentences) != len(durations) {
		return nil, fault.BadInput("timing.reconcile",
			fmt.Sprintf("%d sentences vs %d durations", len(sentences), len(durations)))
	}

	segments := make([]Segment, 0, len(sentences))
	current := 0.0
	for i, sentence := range sentences {
		d := durations[i]
		if d <= 0 {
			return nil, fault.BadInput("timing.reconcile",
				fmt.Sprintf("sentence %d has non-positive duration %g", i+1, d))
		}
		segments = append(segments, Segment{
			Index: i + 1,
			Start: current,
			End:   current + d,
			Text:  strings.TrimSpace(sentence),
		})
		current += d
	}
	return segments, nil
}

// Estimate produces segments timed from character counts alone, for the
// audio-less path. Each sentence lasts runeCount * perChar seconds; when
// total > 0 the last segment is clamped so the track never outruns the audio.
func Estimate(sentences []string, perChar, total float64) []Segment {
	segments := make([]Segment, 0, len(sentences))
	current := 0.0
	for i, sentence := range sentences {
		d := float64(utf8.RuneCountInString(sentence)) * perChar
		if total > 0 && i == len(sentences)-1 && current+d > total {
			d = total - current
		}
		if d <= 0 {
			continue
		}
		segments = append(segments, Segment{
			Index: len(segments) + 1,
			Start: current,
			End:   current + d,
			Text:  strings.TrimSpace(sentence),
		})
		current += d
	}
	return segments
}

// Total sums the measured durations.
func Total(durations []float64) float64 {
	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	return sum
}

// Dwell computes the per-image display time for k images over total seconds
// of audio with cross-fades of fade seconds between neighbours.
//
// Without transitions (fade == 0) or with a single image the audio is split
// evenly. With cross-fades each boundary overlaps two images by fade seconds,
// so dwell = (total + (k-1)*fade) / k keeps the composed duration at exactly
// total.
func Dwell(total float64, images int, fade float64) (float64, error) {
	if images <= 0 {
		return 0, fault.BadInput("timing.dwell", "image count must be positive")
	}
	if fade < 0 {
		return 0, fault.BadConfig("timing.dwell", fmt.Sprintf("negative transition duration %g", fade))
	}

	var dwell float64
	if images == 1 || fade == 0 {
		dwell = total / float64(images)
	} else {
		dwell = (total + float64(images-1)*fade) / float64(images)
	}
	if dwell <= 0 {
		return 0, fault.BadConfig("timing.dwell",
			fmt.Sprintf("computed dwell %.3fs for %d images over %gs", dwell, images, total))
	}
	// A fade at least as long as the dwell leaves no stable frame to fade
	// from, and drives xfade offsets negative.
	if images > 1 && fade > 0 && dwell <= fade {
		return 0, fault.BadConfig("timing.dwell",
			fmt.Sprintf("transition %gs leaves no visible time per image (dwell %.3fs)", fade, dwell))
	}
	return dwell, nil
}

// Drift reports the correction needed to make the composed video match the
// audio total. The returned pad is positive when the video is short (append a
// background clip of that length) and negative when it is long (trim).
// exceeds is false while |audio-video| stays within DriftTolerance.
func Drift(audioTotal, videoActual float64) (pad float64, exceeds bool) {
	delta := audioTotal - videoActual
	if math.Abs(delta) <= DriftTolerance {
		return 0, false
	}
	return delta, true
}

// Validate checks the packing invariants on a segment list: 1-based contiguous
// indices, monotone non-overlapping spans, first start at zero.
func Validate(segments []Segment) error {
	for i, s := range segments {
		if s.Index != i+1 {
			return fault.BadInput("timing.validate",
				fmt.Sprintf("segment %d has index %d", i, s.Index))
		}
		if s.End <= s.Start {
			return fault.BadInput("timing.validate",
				fmt.Sprintf("segment %d is empty or inverted", s.Index))
		}
		if i == 0 {
			if s.Start != 0 {
				return fault.BadInput("timing.validate", "first segment does not start at zero")
			}
			continue
		}
		if s.Start != segments[i-1].End {
			return fault.BadInput("timing.validate",
				fmt.Sprintf("gap or overlap between segments %d and %d", s.Index-1, s.Index))
		}
	}
	return nil
}
