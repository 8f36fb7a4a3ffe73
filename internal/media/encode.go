// SPDX-License-Identifier: MIT

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/metrics"
	"github.com/mediafab/vidforge/internal/vcodec"
)

// SubtitleStyle carries the burn-in styling for the subtitles filter.
// FontPath locates the file whose directory is handed to libass; FontName
// is the family name inside that file.
type SubtitleStyle struct {
	FontPath    string
	FontName    string
	FontSize    int
	Color       string // named or #RRGGBB
	StrokeColor string
	StrokeWidth int
	Position    string // bottom, center or top
	MarginV     int
}

// StyleFromConfig resolves the subtitle settings plus the chosen font into
// a style block.
func StyleFromConfig(cfg config.SubtitleConfig, fontPath, fontFamily string) SubtitleStyle {
	return SubtitleStyle{
		FontPath:    fontPath,
		FontName:    fontFamily,
		FontSize:    cfg.FontSize,
		Color:       cfg.FontColor,
		StrokeColor: cfg.StrokeColor,
		StrokeWidth: cfg.StrokeWidth,
		Position:    cfg.Position,
		MarginV:     cfg.MarginBottom,
	}
}

// EncodeFinal muxes the composed video with the mixed audio, burns in the
// subtitles and encodes with the selected codec. This is the only stage
// with real rate control; everything before it is intermediate.
func (e *Engine) EncodeFinal(ctx context.Context, video, audio, subtitles string, style SubtitleStyle, enc vcodec.Selection, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fault.Wrap(fault.KindCollaborator, "media.encode", err)
	}

	args := []string{"-y", "-i", video}
	if audio != "" {
		args = append(args, "-i", audio)
	}
	if subtitles != "" {
		args = append(args, "-vf", subtitlesFilter(subtitles, style))
	}
	args = append(args, "-map", "0:v:0")
	if audio != "" {
		args = append(args, "-map", "1:a:0")
	}
	args = append(args, encoderArgs(enc, e.video.BitrateK)...)
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", e.video.FPS),
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		out,
	)

	if err := e.runWatched(ctx, "media.encode", args); err != nil {
		metrics.RecordEncode(enc.Codec, "error")
		return err
	}
	metrics.RecordEncode(enc.Codec, "success")
	return nil
}

// subtitlesFilter renders the burn-in filter. The font's directory rides
// along as fontsdir so libass finds the exact file the resolver picked.
func subtitlesFilter(path string, style SubtitleStyle) string {
	var b strings.Builder
	b.WriteString("subtitles=filename=")
	b.WriteString(escapeFilterValue(path))
	if style.FontPath != "" {
		b.WriteString(":fontsdir=")
		b.WriteString(escapeFilterValue(filepath.Dir(style.FontPath)))
	}
	b.WriteString(":force_style='")
	b.WriteString(forceStyle(style))
	b.WriteString("'")
	return b.String()
}

// forceStyle maps the style block to the ASS override list.
func forceStyle(style SubtitleStyle) string {
	fields := make([]string, 0, 8)
	if style.FontName != "" {
		fields = append(fields, "FontName="+style.FontName)
	}
	if style.FontSize > 0 {
		fields = append(fields, fmt.Sprintf("FontSize=%d", style.FontSize))
	}
	fields = append(fields,
		"PrimaryColour="+assColor(style.Color),
		"OutlineColour="+assColor(style.StrokeColor),
		"BorderStyle=1",
		fmt.Sprintf("Outline=%d", style.StrokeWidth),
		"Shadow=0",
		fmt.Sprintf("Alignment=%d", assAlignment(style.Position)),
		fmt.Sprintf("MarginV=%d", style.MarginV),
	)
	return strings.Join(fields, ",")
}

var namedColors = map[string]string{
	"white":   "FFFFFF",
	"black":   "000000",
	"yellow":  "FFFF00",
	"red":     "FF0000",
	"green":   "00FF00",
	"blue":    "0000FF",
	"cyan":    "00FFFF",
	"magenta": "FF00FF",
	"gray":    "808080",
	"grey":    "808080",
}

// assColor converts a named or #RRGGBB color to the ASS &H00BBGGRR form.
// Unrecognized values render white rather than failing the encode.
func assColor(c string) string {
	hexRGB, ok := namedColors[strings.ToLower(strings.TrimSpace(c))]
	if !ok {
		if v, valid := parseHexRGB(c); valid {
			hexRGB = v
		} else {
			hexRGB = "FFFFFF"
		}
	}
	return "&H00" + hexRGB[4:6] + hexRGB[2:4] + hexRGB[0:2]
}

func parseHexRGB(c string) (string, bool) {
	c = strings.TrimPrefix(strings.TrimSpace(c), "#")
	if len(c) != 6 {
		return "", false
	}
	for _, r := range c {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return "", false
		}
	}
	return strings.ToUpper(c), true
}

// assAlignment maps the position keyword to the ASS numpad value.
func assAlignment(position string) int {
	switch strings.ToLower(position) {
	case "top":
		return 8
	case "center", "middle":
		return 5
	default: // bottom
		return 2
	}
}

// encoderArgs renders the codec selection: CRF for software, constant
// quality for NVENC, plain bitrate for VideoToolbox (it has no CRF mode).
func encoderArgs(enc vcodec.Selection, bitrateK int) []string {
	switch enc.Codec {
	case vcodec.CodecNVENC:
		return []string{
			"-c:v", enc.Codec,
			"-preset", enc.Preset,
			"-rc", "vbr",
			"-cq", fmt.Sprintf("%d", enc.CRF),
			"-b:v", "0",
		}
	case vcodec.CodecVideoToolbox:
		if bitrateK <= 0 {
			bitrateK = 5000
		}
		return []string{
			"-c:v", enc.Codec,
			"-b:v", fmt.Sprintf("%dk", bitrateK),
		}
	default:
		codec := enc.Codec
		if codec == "" {
			codec = vcodec.CodecSoftware
		}
		preset := enc.Preset
		if preset == "" {
			preset = "medium"
		}
		crf := enc.CRF
		if crf <= 0 {
			crf = 23
		}
		return []string{
			"-c:v", codec,
			"-preset", preset,
			"-crf", fmt.Sprintf("%d", crf),
		}
	}
}
