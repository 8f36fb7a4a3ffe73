// SPDX-License-Identifier: MIT

package subtitle

import (
	"math"
	"unicode/utf8"

	"github.com/mediafab/vidforge/internal/timing"
)

// STTSegment is one recognized span of speech as returned by the
// transcription engine, before any cleanup.
type STTSegment struct {
	Text       string
	Start      float64
	End        float64
	Confidence float64
}

// Duration returns the span length in seconds.
func (s STTSegment) Duration() float64 {
	return s.End - s.Start
}

// RefineOptions tunes the recognized-speech cleanup pipeline. Zero values
// fall back to the defaults noted per field.
type RefineOptions struct {
	// MinConfidence drops segments the recognizer was unsure about.
	// Default 0.3.
	MinConfidence float64
	// MinDuration drops blips shorter than this many seconds. Default 0.5.
	MinDuration float64
	// MergeGap merges neighbours whose silence gap is at most this many
	// seconds, as long as the combined span stays within twice this value.
	// Default 1.5.
	MergeGap float64
	// MaxCharsPerLine controls cue width; overlong merged text is split
	// back into per-line segments. Default 25.
	MaxCharsPerLine int
	// TrimPunctuation strips leading/trailing punctuation from cue text.
	TrimPunctuation bool
}

func (o RefineOptions) withDefaults() RefineOptions {
	if o.MinConfidence == 0 {
		o.MinConfidence = 0.3
	}
	if o.MinDuration == 0 {
		o.MinDuration = 0.5
	}
	if o.MergeGap == 0 {
		o.MergeGap = 1.5
	}
	if o.MaxCharsPerLine <= 0 {
		o.MaxCharsPerLine = DefaultMaxCharsPerLine
	}
	return o
}

// Refine turns raw recognizer output into display-ready cues: low-confidence
// and too-short segments are dropped, text is cleaned and normalized to CJK
// punctuation, close neighbours are merged, and merged text that outgrows the
// line limit is split back into per-line cues with proportional timing.
//
// Unlike scripted cues the result may contain real silence gaps between
// segments; only ordering is guaranteed.
func Refine(raw []STTSegment, opts RefineOptions) []timing.Segment {
	opts = opts.withDefaults()

	kept := make([]STTSegment, 0, len(raw))
	for _, seg := range raw {
		if seg.Confidence < opts.MinConfidence {
			continue
		}
		if seg.Duration() < opts.MinDuration {
			continue
		}
		text := CleanText(seg.Text, opts.TrimPunctuation)
		if text == "" {
			continue
		}
		seg.Text = text
		kept = append(kept, seg)
	}

	merged := mergeAdjacent(kept, opts.MergeGap)

	out := make([]timing.Segment, 0, len(merged))
	for _, seg := range merged {
		lines := WrapLines(seg.Text, opts.MaxCharsPerLine)
		if len(lines) == 1 {
			out = append(out, timing.Segment{
				Index: len(out) + 1,
				Start: seg.Start,
				End:   seg.End,
				Text:  seg.Text,
			})
			continue
		}
		out = append(out, splitByLines(seg, lines, len(out))...)
	}
	return out
}

// mergeAdjacent folds neighbouring segments together when the silence between
// them is at most gap seconds and the combined speech stays within 2*gap.
// Merged spans keep the lower confidence of the pair.
func mergeAdjacent(segments []STTSegment, gap float64) []STTSegment {
	if len(segments) == 0 {
		return nil
	}
	merged := make([]STTSegment, 0, len(segments))
	current := segments[0]
	for _, next := range segments[1:] {
		silence := next.Start - current.End
		if silence <= gap && current.Duration()+next.Duration() <= gap*2 {
			current = STTSegment{
				Text:       current.Text + " " + next.Text,
				Start:      current.Start,
				End:        next.End,
				Confidence: math.Min(current.Confidence, next.Confidence),
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// splitByLines shares a segment's span across its wrapped lines in proportion
// to line length, so each partial cue shows for roughly as long as it takes
// to speak.
func splitByLines(seg STTSegment, lines []string, indexBase int) []timing.Segment {
	totalChars := 0
	for _, line := range lines {
		totalChars += utf8.RuneCountInString(line)
	}
	if totalChars == 0 {
		return []timing.Segment{{Index: indexBase + 1, Start: seg.Start, End: seg.End, Text: seg.Text}}
	}

	perChar := seg.Duration() / float64(totalChars)
	out := make([]timing.Segment, 0, len(lines))
	current := seg.Start
	for _, line := range lines {
		d := float64(utf8.RuneCountInString(line)) * perChar
		out = append(out, timing.Segment{
			Index: indexBase + len(out) + 1,
			Start: current,
			End:   current + d,
			Text:  line,
		})
		current += d
	}
	return out
}
