// SPDX-License-Identifier: MIT

// Package subtitle turns script text or speech-recognition output into timed
// subtitle cues and serializes them as SRT.
package subtitle

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxCharsPerLine bounds cue line width when no limit is configured.
const DefaultMaxCharsPerLine = 25

func isTerminator(r rune) bool {
	return strings.ContainsRune("。！？!?", r)
}

func isClauseSeparator(r rune) bool {
	return strings.ContainsRune("，、,", r)
}

// SplitSentences breaks a script into speakable sentences. The text is split
// on sentence terminators; any piece longer than maxChars is split once more
// on clause separators. Punctuation at the split points is consumed, empty
// pieces are dropped, every surviving piece is trimmed.
//
// Splitting is idempotent: joining the result with a terminator and splitting
// again yields the same list, because every surviving overlong piece has no
// clause separators left in it.
func SplitSentences(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxCharsPerLine
	}

	var out []string
	for _, piece := range strings.FieldsFunc(norm.NFC.String(text), isTerminator) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) <= maxChars {
			out = append(out, piece)
			continue
		}
		for _, clause := range strings.FieldsFunc(piece, isClauseSeparator) {
			clause = strings.TrimSpace(clause)
			if clause != "" {
				out = append(out, clause)
			}
		}
	}
	return out
}

// WrapLines word-wraps cue text to maxChars runes per line. Text without
// spaces (typical CJK) is returned as a single line regardless of length;
// width control for such text happens at sentence splitting.
func WrapLines(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxCharsPerLine
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(word)+1 <= maxChars {
			current += word + " "
			continue
		}
		if trimmed := strings.TrimSpace(current); trimmed != "" {
			lines = append(lines, trimmed)
		}
		current = word + " "
	}
	if trimmed := strings.TrimSpace(current); trimmed != "" {
		lines = append(lines, trimmed)
	}
	if len(lines) == 0 {
		return []string{text}
	}
	return lines
}

var whitespaceRun = regexp.MustCompile(`\s+`)

var toCJKPunctuation = strings.NewReplacer(
	",", "，",
	".", "。",
	"?", "？",
	"!", "！",
	":", "：",
	";", "；",
	"(", "（",
	")", "）",
	"[", "【",
	"]", "】",
)

// Edge punctuation stripped by CleanText when trimEdges is set.
const edgePunctuation = "，。？！：；“”‘’（）【】"

// NormalizePunctuation maps ASCII punctuation to its CJK form so recognized
// speech renders consistently with scripted text. Quotes are left alone.
func NormalizePunctuation(text string) string {
	return toCJKPunctuation.Replace(text)
}

// CleanText prepares recognized text for display: NFC normalization,
// whitespace runs collapsed to single spaces, punctuation mapped to CJK
// forms, and optionally leading/trailing punctuation stripped.
func CleanText(text string, trimEdges bool) string {
	text = whitespaceRun.ReplaceAllString(strings.TrimSpace(norm.NFC.String(text)), " ")
	text = NormalizePunctuation(text)
	if trimEdges {
		text = strings.Trim(text, edgePunctuation)
	}
	return text
}
