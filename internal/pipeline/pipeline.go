// SPDX-License-Identifier: MIT

// Package pipeline drives one video-assembly job from script (or audio) to
// an encoded file. Stages run strictly in order; all timing decisions use
// durations measured from produced media, never estimates. Collaborators
// are injected as narrow interfaces so tests can run the whole pipeline
// without ffmpeg, TTS or network access.
package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fontsel"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/media"
	"github.com/mediafab/vidforge/internal/music"
	"github.com/mediafab/vidforge/internal/subtitle"
	"github.com/mediafab/vidforge/internal/tts"
	"github.com/mediafab/vidforge/internal/vcodec"
)

// Synthesizer turns script sentences into measured audio segments.
type Synthesizer interface {
	GenerateSegments(ctx context.Context, sentences []string, dir string) ([]tts.Segment, []tts.Failure)
}

// Transcriber produces raw timed segments from an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]subtitle.STTSegment, error)
}

// Assembler is the media toolchain behind every compose step.
type Assembler interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ConcatAudio(ctx context.Context, parts []string, out string) error
	MixVoiceMusic(ctx context.Context, voice, musicPath, out string, opts media.MixOptions) error
	Slideshow(ctx context.Context, images []string, dwell, fade float64, out string) error
	ColorClip(ctx context.Context, duration float64, out string) error
	EncodeFinal(ctx context.Context, video, audio, subtitles string, style media.SubtitleStyle, enc vcodec.Selection, out string) error
	TrimOrPad(ctx context.Context, in, out string, target, actual float64, enc vcodec.Selection) error
}

// MusicPicker resolves a background track for script content.
type MusicPicker interface {
	GetMusicForContent(ctx context.Context, content string, targetDuration float64, criteria *music.SearchCriteria) (*music.Selection, error)
}

// MaterialResolver enumerates and matches slideshow images.
type MaterialResolver interface {
	List(dir string) ([]string, error)
	ForScript(sentences []string, pool []string) []string
}

// ImageFiller tops up the automatic materials library from a remote
// image source.
type ImageFiller interface {
	Fill(ctx context.Context, keywords []string, want int) []string
}

// CodecSelector picks the encoder for the final render.
type CodecSelector interface {
	Select(ctx context.Context, softwarePreset string) vcodec.Selection
}

// FontResolver finds a font able to render the subtitle text.
type FontResolver interface {
	Resolve(explicit string, fallbacks []string) (string, error)
}

// Result is what a finished job hands back to the queue.
type Result struct {
	OutputPath    string
	DurationSec   float64
	SubtitleCount int
	Title         string
}

// Orchestrator owns the stage sequence for one job at a time. A single
// instance is safe for concurrent Run calls: per-job state lives on the
// stack, shared collaborators guard themselves.
type Orchestrator struct {
	cfg       config.Config
	synth     Synthesizer
	transcrib Transcriber
	assemble  Assembler
	musicPick MusicPicker
	materials MaterialResolver
	images    ImageFiller
	codecs    CodecSelector
	fonts     FontResolver
	logger    zerolog.Logger

	fontOnce   sync.Once
	fontPath   string
	fontFamily string
	fontErr    error
}

// Options bundles the collaborators an Orchestrator needs. Transcriber,
// MusicPicker and Images may be nil when the corresponding features are
// disabled.
type Options struct {
	Synthesizer Synthesizer
	Transcriber Transcriber
	Assembler   Assembler
	MusicPicker MusicPicker
	Materials   MaterialResolver
	Images      ImageFiller
	Codecs      CodecSelector
	Fonts       FontResolver
}

// New builds an orchestrator over the given collaborators.
func New(cfg config.Config, opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		synth:     opts.Synthesizer,
		transcrib: opts.Transcriber,
		assemble:  opts.Assembler,
		musicPick: opts.MusicPicker,
		materials: opts.Materials,
		images:    opts.Images,
		codecs:    opts.Codecs,
		fonts:     opts.Fonts,
		logger:    log.WithComponent("pipeline"),
	}
}

// font resolves the burn-in font once per process and caches the outcome,
// including failure: a host without usable CJK fonts fails every job the
// same way instead of re-scanning the font dirs per task.
func (o *Orchestrator) font() (path, family string, err error) {
	o.fontOnce.Do(func() {
		o.fontPath, o.fontErr = o.fonts.Resolve(o.cfg.Subtitle.FontPath, o.cfg.Subtitle.FontFallback)
		if o.fontErr != nil {
			return
		}
		if fam, ferr := fontFamily(o.fontPath); ferr == nil {
			o.fontFamily = fam
		}
	})
	return o.fontPath, o.fontFamily, o.fontErr
}

// fontFamily is swapped out in tests that use fake font paths.
var fontFamily = fontsel.FamilyName

// Override keys a task may carry; anything else is logged and ignored.
const (
	OverrideMusicEnabled = "music.enabled"
	OverrideMusicSmart   = "music.smart"
	OverrideMusicTrack   = "music.track"
	OverrideMusicGenre   = "music.genre"
	OverrideMusicMood    = "music.mood"
	OverrideQuality      = "export.quality"
)

// effectiveConfig applies per-task overrides to a copy of the process
// config. Slices reachable from the copy are never mutated, only replaced.
func (o *Orchestrator) effectiveConfig(overrides map[string]string, logger zerolog.Logger) config.Config {
	cfg := o.cfg
	for key, value := range overrides {
		switch key {
		case OverrideMusicEnabled:
			cfg.Music.Enabled = value == "true"
		case OverrideMusicSmart:
			cfg.Music.Smart = value == "true"
		case OverrideMusicTrack:
			cfg.Music.TrackPath = value
		case OverrideMusicGenre, OverrideMusicMood:
			// consumed by musicCriteria
		case OverrideQuality:
			cfg.Export.Quality = value
		default:
			logger.Warn().Str("override", key).Msg("ignoring unknown task override")
		}
	}
	return cfg
}

// musicCriteria derives the search profile for smart music selection.
func musicCriteria(cfg config.Config, totalDuration float64, overrides map[string]string) music.SearchCriteria {
	crit := music.DefaultCriteria()
	crit.CopyrightOnly = cfg.Music.CopyrightOnly
	if len(cfg.Music.Sources) > 0 {
		crit.Sources = cfg.Music.Sources
	}
	// Half to double the narration keeps looping and trimming reasonable.
	crit.MinDuration = totalDuration / 2
	crit.MaxDuration = totalDuration * 2

	if genres := splitList(overrides[OverrideMusicGenre]); len(genres) > 0 {
		crit.Genres = genres
	}
	if moods := splitList(overrides[OverrideMusicMood]); len(moods) > 0 {
		crit.Moods = moods
	}
	return crit
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
