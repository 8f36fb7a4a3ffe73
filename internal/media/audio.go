// SPDX-License-Identifier: MIT

package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediafab/vidforge/internal/fault"
)

// MixOptions controls how background music is layered under the voice.
type MixOptions struct {
	Volume  float64 // music gain, 0..1; <=0 falls back to 0.2
	FadeIn  float64 // seconds, 0 disables
	FadeOut float64 // seconds, 0 disables
	Loop    bool    // repeat the track until it covers the voice
}

func (o MixOptions) withDefaults() MixOptions {
	if o.Volume <= 0 {
		o.Volume = 0.2
	}
	if o.FadeIn < 0 {
		o.FadeIn = 0
	}
	if o.FadeOut < 0 {
		o.FadeOut = 0
	}
	return o
}

// ConcatAudio joins the per-sentence audio files into one track. A single
// input is copied verbatim; multiple inputs go through the concat demuxer
// and are re-encoded so heterogeneous segments cannot corrupt timestamps.
func (e *Engine) ConcatAudio(ctx context.Context, parts []string, out string) error {
	if len(parts) == 0 {
		return fault.BadInput("media.concat", "no audio segments to join")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fault.Wrap(fault.KindCollaborator, "media.concat", err)
	}

	if len(parts) == 1 {
		if err := copyFile(parts[0], out); err != nil {
			return fault.Wrap(fault.KindCollaborator, "media.concat", err)
		}
		e.logger.Debug().Str("out", out).Msg("single segment, copied without re-encode")
		return nil
	}

	listPath := out + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(concatList(parts)), 0o644); err != nil {
		return fault.Wrap(fault.KindCollaborator, "media.concat", err)
	}
	defer os.Remove(listPath) //nolint:errcheck // temp list file

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	}
	args = append(args, audioCodecArgs(out)...)
	args = append(args, out)
	return e.run(ctx, "media.concat", args)
}

// concatList renders the demuxer list file. Single quotes in paths are
// closed, escaped and reopened per the ffconcat quoting rules.
func concatList(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// audioCodecArgs picks the encoder from the output extension: mp3 for the
// common case, pcm for wav, aac otherwise.
func audioCodecArgs(out string) []string {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".wav":
		return []string{"-c:a", "pcm_s16le"}
	case ".mp3":
		return []string{"-c:a", "libmp3lame", "-b:a", "192k"}
	default:
		return []string{"-c:a", "aac", "-b:a", "192k"}
	}
}

// MixVoiceMusic lays the music track under the voice at the configured
// gain with fade-in/out. The music is looped (when enabled) and trimmed to
// the voice duration; the mix always ends with the voice.
func (e *Engine) MixVoiceMusic(ctx context.Context, voice, music, out string, opts MixOptions) error {
	opts = opts.withDefaults()

	voiceDur, err := e.ProbeDuration(ctx, voice)
	if err != nil {
		return err
	}
	if voiceDur <= 0 {
		return fault.BadInput("media.mix", "voice track has zero duration")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fault.Wrap(fault.KindCollaborator, "media.mix", err)
	}

	args := []string{"-y", "-i", voice}
	if opts.Loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args,
		"-i", music,
		"-filter_complex", mixFilter(voiceDur, opts),
		"-map", "[mix]",
	)
	args = append(args, audioCodecArgs(out)...)
	args = append(args, out)
	return e.run(ctx, "media.mix", args)
}

// mixFilter builds the music-conditioning chain plus the final amix. The
// voice is input 0 and drives the output duration.
func mixFilter(voiceDur float64, opts MixOptions) string {
	var b strings.Builder
	b.WriteString("[1:a]atrim=0:")
	b.WriteString(ffDuration(voiceDur))
	b.WriteString(",asetpts=PTS-STARTPTS")
	fmt.Fprintf(&b, ",volume=%s", ffDuration(opts.Volume))
	if opts.FadeIn > 0 {
		fmt.Fprintf(&b, ",afade=t=in:st=0:d=%s", ffDuration(opts.FadeIn))
	}
	if opts.FadeOut > 0 {
		st := voiceDur - opts.FadeOut
		if st < 0 {
			st = 0
		}
		fmt.Fprintf(&b, ",afade=t=out:st=%s:d=%s", ffDuration(st), ffDuration(opts.FadeOut))
	}
	b.WriteString("[bg];[0:a][bg]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[mix]")
	return b.String()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
