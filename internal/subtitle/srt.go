// SPDX-License-Identifier: MIT

package subtitle

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/timing"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s*1000)) * time.Millisecond
}

// WriteSRT renders segments as an SRT file at path, wrapping each cue's text
// to maxCharsPerLine runes. Parent directories are created as needed.
func WriteSRT(segments []timing.Segment, path string, maxCharsPerLine int) error {
	if len(segments) == 0 {
		return fault.BadInput("subtitle.write_srt", "no segments to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fault.Wrap(fault.KindUnknown, "subtitle.write_srt", err)
	}

	subs := astisub.NewSubtitles()
	for _, seg := range segments {
		item := &astisub.Item{
			Index:   seg.Index,
			StartAt: secondsToDuration(seg.Start),
			EndAt:   secondsToDuration(seg.End),
		}
		for _, line := range WrapLines(seg.Text, maxCharsPerLine) {
			item.Lines = append(item.Lines, astisub.Line{
				Items: []astisub.LineItem{{Text: line}},
			})
		}
		subs.Items = append(subs.Items, item)
	}

	if err := subs.Write(path); err != nil {
		return fault.Wrap(fault.KindUnknown, "subtitle.write_srt", err)
	}
	return nil
}

// ReadSRT loads an SRT file back into segments. Multi-line cues keep their
// line breaks in the segment text.
func ReadSRT(path string) ([]timing.Segment, error) {
	subs, err := astisub.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.NotFound("subtitle.read_srt", path)
		}
		return nil, fault.Wrap(fault.KindBadInput, "subtitle.read_srt", err)
	}

	segments := make([]timing.Segment, 0, len(subs.Items))
	for i, item := range subs.Items {
		lines := make([]string, 0, len(item.Lines))
		for _, line := range item.Lines {
			parts := make([]string, 0, len(line.Items))
			for _, li := range line.Items {
				parts = append(parts, li.Text)
			}
			lines = append(lines, strings.Join(parts, " "))
		}
		segments = append(segments, timing.Segment{
			Index: i + 1,
			Start: item.StartAt.Seconds(),
			End:   item.EndAt.Seconds(),
			Text:  strings.Join(lines, "\n"),
		})
	}
	return segments, nil
}
