// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/materials"
	"github.com/mediafab/vidforge/internal/media"
	"github.com/mediafab/vidforge/internal/metrics"
	"github.com/mediafab/vidforge/internal/queue"
	"github.com/mediafab/vidforge/internal/subtitle"
	"github.com/mediafab/vidforge/internal/timing"
	"github.com/mediafab/vidforge/internal/tts"
	"github.com/mediafab/vidforge/internal/vcodec"
)

// Stage names shared by logs and metrics labels.
const (
	stageIngest    = "ingest"
	stageSTT       = "stt"
	stageMaterials = "materials"
	stageTTS       = "tts"
	stageAudio     = "audio"
	stageSubtitles = "subtitles"
	stageVisual    = "visual"
	stageEncode    = "encode"
)

// jobEnv carries the per-job context: effective config, scoped logger and
// the scratch directory that every intermediate artifact lives in.
type jobEnv struct {
	cfg    config.Config
	logger zerolog.Logger
	tmp    string
	start  time.Time
}

func (o *Orchestrator) beginJob(ctx context.Context, task *queue.Task) (context.Context, *jobEnv, error) {
	ctx = log.ContextWithTaskID(ctx, task.ID)
	logger := o.logger.With().Str(log.FieldTaskID, task.ID).Logger()
	cfg := o.effectiveConfig(task.Overrides, logger)

	tmp := filepath.Join(os.TempDir(), "vidforge-"+task.ID)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return ctx, nil, fault.Wrap(fault.KindCollaborator, "pipeline.tmpdir", err)
	}
	return ctx, &jobEnv{cfg: cfg, logger: logger, tmp: tmp, start: time.Now()}, nil
}

func (e *jobEnv) cleanup() {
	if err := os.RemoveAll(e.tmp); err != nil {
		e.logger.Warn().Err(err).Str("dir", e.tmp).Msg("scratch dir cleanup failed")
	}
}

func (e *jobEnv) observe(stage string, start time.Time) {
	d := time.Since(start).Seconds()
	metrics.ObserveStage(stage, d)
	e.logger.Debug().Str(log.FieldStage, stage).Float64(log.FieldDuration, d).Msg("stage complete")
}

// finish records the job outcome once, whatever path led here.
func (o *Orchestrator) finish(env *jobEnv, res *Result, err error) (*Result, error) {
	elapsed := time.Since(env.start).Seconds()
	if err != nil {
		metrics.RecordPipelineRun("error")
		env.logger.Error().Err(err).
			Str("error_kind", string(fault.KindOf(err))).
			Float64(log.FieldDuration, elapsed).
			Msg("job failed")
		return nil, err
	}
	metrics.RecordPipelineRun("success")
	env.logger.Info().
		Str("output", res.OutputPath).
		Float64("video_sec", res.DurationSec).
		Int("subtitles", res.SubtitleCount).
		Float64(log.FieldDuration, elapsed).
		Msg("job complete")
	return res, nil
}

// Run executes one job end to end. Tasks carrying an audio input take the
// transcription path; everything else is narrated via TTS.
func (o *Orchestrator) Run(ctx context.Context, task *queue.Task) (*Result, error) {
	if task.AudioPath != "" {
		return o.RunFromAudio(ctx, task)
	}
	return o.runScript(ctx, task)
}

func (o *Orchestrator) runScript(ctx context.Context, task *queue.Task) (*Result, error) {
	ctx, env, err := o.beginJob(ctx, task)
	if err != nil {
		return nil, err
	}
	defer env.cleanup()

	sentences, script, err := o.ingest(env, task)
	if err != nil {
		return o.finish(env, nil, err)
	}

	images, err := o.resolveMaterials(ctx, env, task, sentences)
	if err != nil {
		return o.finish(env, nil, err)
	}

	segs, err := o.synthesize(ctx, env, sentences)
	if err != nil {
		return o.finish(env, nil, err)
	}
	total := tts.TotalDuration(segs)

	audioTrack, err := o.composeAudio(ctx, env, task, segs, script, total)
	if err != nil {
		return o.finish(env, nil, err)
	}

	segments, subsPath, style, err := o.buildSubtitles(env, segs)
	if err != nil {
		return o.finish(env, nil, err)
	}

	res, err := o.compose(ctx, env, task, images, total, audioTrack, subsPath, style, segments)
	return o.finish(env, res, err)
}

// RunFromAudio builds a video over an existing narration track: subtitles
// come from speech recognition and the track itself is used unmodified
// except for the optional music bed.
func (o *Orchestrator) RunFromAudio(ctx context.Context, task *queue.Task) (*Result, error) {
	ctx, env, err := o.beginJob(ctx, task)
	if err != nil {
		return nil, err
	}
	defer env.cleanup()

	if o.transcrib == nil {
		return o.finish(env, nil, fault.BadConfig("stt", "transcription not configured"))
	}

	segments, err := o.transcribeAudio(ctx, env, task.AudioPath)
	if err != nil {
		return o.finish(env, nil, err)
	}

	total, err := o.assemble.ProbeDuration(ctx, task.AudioPath)
	if err != nil {
		return o.finish(env, nil, err)
	}

	sentences := make([]string, len(segments))
	for i, s := range segments {
		sentences[i] = s.Text
	}

	images, err := o.resolveMaterials(ctx, env, task, sentences)
	if err != nil {
		return o.finish(env, nil, err)
	}

	audioStart := time.Now()
	audioTrack := o.mixMusic(ctx, env, task, task.AudioPath, strings.Join(sentences, " "), total)
	env.observe(stageAudio, audioStart)

	segments, subsPath, style, err := o.renderSubtitles(env, segments)
	if err != nil {
		return o.finish(env, nil, err)
	}

	res, err := o.compose(ctx, env, task, images, total, audioTrack, subsPath, style, segments)
	return o.finish(env, res, err)
}

// ingest loads the script text and splits it into sentences.
func (o *Orchestrator) ingest(env *jobEnv, task *queue.Task) ([]string, string, error) {
	defer env.observe(stageIngest, time.Now())

	script := task.ScriptText
	if script == "" && task.ScriptPath != "" {
		raw, err := os.ReadFile(task.ScriptPath)
		if err != nil {
			return nil, "", fault.NotFound("pipeline.ingest", task.ScriptPath)
		}
		script = string(raw)
	}

	sentences := subtitle.SplitSentences(script, env.cfg.Subtitle.MaxCharsPerLine)
	if len(sentences) == 0 {
		return nil, "", fault.BadInput("pipeline.ingest", "script contains no sentences")
	}
	env.logger.Info().Int("sentences", len(sentences)).Msg("script ingested")
	return sentences, script, nil
}

// transcribeAudio turns the narration into refined subtitle segments.
func (o *Orchestrator) transcribeAudio(ctx context.Context, env *jobEnv, audioPath string) ([]timing.Segment, error) {
	defer env.observe(stageSTT, time.Now())

	raw, err := o.transcrib.Transcribe(log.ContextWithStage(ctx, stageSTT), audioPath)
	if err != nil {
		return nil, err
	}
	segments := subtitle.Refine(raw, subtitle.RefineOptions{
		MinConfidence:   env.cfg.STT.MinConfidence,
		MinDuration:     env.cfg.STT.MinSegmentLength,
		MergeGap:        env.cfg.STT.MergeThreshold,
		MaxCharsPerLine: env.cfg.Subtitle.MaxCharsPerLine,
		TrimPunctuation: true,
	})
	if len(segments) == 0 {
		return nil, fault.Collab("stt", errors.New("transcription yielded no usable segments"))
	}
	env.logger.Info().Int("raw", len(raw)).Int("refined", len(segments)).Msg("audio transcribed")
	return segments, nil
}

// resolveMaterials finds the slideshow images. An explicit directory must
// exist; the auto library is best-effort and degrades to color background.
func (o *Orchestrator) resolveMaterials(ctx context.Context, env *jobEnv, task *queue.Task, sentences []string) ([]string, error) {
	defer env.observe(stageMaterials, time.Now())

	if task.MaterialsDir != "" {
		images, err := o.materials.List(task.MaterialsDir)
		if err != nil {
			return nil, err
		}
		env.logger.Info().Int("images", len(images)).Str("dir", task.MaterialsDir).Msg("materials resolved")
		return images, nil
	}

	if env.cfg.Materials.Auto {
		pool, err := o.materials.List(env.cfg.Paths.AutoMaterialsDir())
		if err != nil {
			env.logger.Debug().Err(err).Msg("no local materials library yet")
			pool = nil
		}
		// A pool smaller than the script would lean on the stable rotation;
		// the online source widens it instead when one is wired.
		if o.images != nil && len(pool) < len(sentences) {
			keywords := materials.ScriptKeywords(sentences, 5)
			fetched := o.images.Fill(log.ContextWithStage(ctx, stageMaterials), keywords, len(sentences)-len(pool))
			pool = append(pool, fetched...)
		}
		if len(pool) == 0 {
			env.logger.Warn().Msg("auto materials unavailable, using color background")
			return nil, nil
		}
		images := o.materials.ForScript(sentences, pool)
		env.logger.Info().Int("images", len(images)).Int("pool", len(pool)).Msg("materials matched to script")
		return images, nil
	}
	return nil, nil
}

// synthesize narrates every sentence. Individual failures were already
// logged by the synthesizer; only a completely silent script is fatal.
func (o *Orchestrator) synthesize(ctx context.Context, env *jobEnv, sentences []string) ([]tts.Segment, error) {
	defer env.observe(stageTTS, time.Now())

	segs, failures := o.synth.GenerateSegments(log.ContextWithStage(ctx, stageTTS), sentences, filepath.Join(env.tmp, "tts"))
	if len(failures) > 0 {
		env.logger.Warn().Int("failed", len(failures)).Int("succeeded", len(segs)).Msg("some sentences failed synthesis")
	}
	if len(segs) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fault.Collab("tts", errors.New("no sentence produced audio"))
	}
	env.logger.Info().Int("segments", len(segs)).Float64("audio_sec", tts.TotalDuration(segs)).Msg("narration synthesized")
	return segs, nil
}

// composeAudio concatenates the narration segments and lays the optional
// music bed under them.
func (o *Orchestrator) composeAudio(ctx context.Context, env *jobEnv, task *queue.Task, segs []tts.Segment, script string, total float64) (string, error) {
	defer env.observe(stageAudio, time.Now())

	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Path
	}
	voice := filepath.Join(env.tmp, "voice.mp3")
	if err := o.assemble.ConcatAudio(ctx, parts, voice); err != nil {
		return "", err
	}
	return o.mixMusic(ctx, env, task, voice, script, total), nil
}

// mixMusic returns the final audio track. Music trouble of any kind is
// recoverable: the job continues with plain narration.
func (o *Orchestrator) mixMusic(ctx context.Context, env *jobEnv, task *queue.Task, voice, script string, total float64) string {
	musicPath := o.resolveMusic(ctx, env, task, script, total)
	if musicPath == "" {
		return voice
	}

	mixed := filepath.Join(env.tmp, "mixed.mp3")
	opts := media.MixOptions{
		Volume:  env.cfg.Music.Volume,
		FadeIn:  env.cfg.Music.FadeIn,
		FadeOut: env.cfg.Music.FadeOut,
		Loop:    env.cfg.Music.Loop,
	}
	if err := o.assemble.MixVoiceMusic(ctx, voice, musicPath, mixed, opts); err != nil {
		env.logger.Warn().Err(err).Msg("music mix failed, using narration only")
		return voice
	}
	return mixed
}

func (o *Orchestrator) resolveMusic(ctx context.Context, env *jobEnv, task *queue.Task, script string, total float64) string {
	cfg := env.cfg
	if !cfg.Music.Enabled {
		return ""
	}

	if cfg.Music.TrackPath != "" {
		if _, err := os.Stat(cfg.Music.TrackPath); err != nil {
			env.logger.Warn().Str("path", cfg.Music.TrackPath).Msg("configured music track missing, continuing without music")
			return ""
		}
		return cfg.Music.TrackPath
	}

	if !cfg.Music.Smart || o.musicPick == nil {
		return ""
	}

	crit := musicCriteria(cfg, total, task.Overrides)
	sel, err := o.musicPick.GetMusicForContent(ctx, script, total, &crit)
	switch {
	case err != nil:
		env.logger.Warn().Err(err).Msg("music selection failed, continuing without music")
		return ""
	case sel == nil:
		env.logger.Info().Msg("no suitable music found, continuing without music")
		return ""
	}
	env.logger.Info().
		Str("title", sel.Recommendation.Title).
		Str("source", sel.Recommendation.Source).
		Msg("background track selected")
	return sel.LocalPath
}

// buildSubtitles packs sentences against measured durations end to end.
func (o *Orchestrator) buildSubtitles(env *jobEnv, segs []tts.Segment) ([]timing.Segment, string, media.SubtitleStyle, error) {
	defer env.observe(stageSubtitles, time.Now())

	texts := make([]string, len(segs))
	durations := make([]float64, len(segs))
	for i, s := range segs {
		texts[i] = s.Text
		durations[i] = s.Duration
	}
	segments, err := timing.Reconcile(texts, durations)
	if err != nil {
		return nil, "", media.SubtitleStyle{}, err
	}
	return o.renderSubtitles(env, segments)
}

// renderSubtitles writes the cue file and resolves the burn-in style.
// Disabled subtitles skip both; the encoder then gets an empty cue path.
func (o *Orchestrator) renderSubtitles(env *jobEnv, segments []timing.Segment) ([]timing.Segment, string, media.SubtitleStyle, error) {
	if !env.cfg.Subtitle.Enabled {
		return segments, "", media.SubtitleStyle{}, nil
	}

	fontPath, family, err := o.font()
	if err != nil {
		return nil, "", media.SubtitleStyle{}, err
	}

	subs := filepath.Join(env.tmp, "subtitles.srt")
	if err := subtitle.WriteSRT(segments, subs, env.cfg.Subtitle.MaxCharsPerLine); err != nil {
		return nil, "", media.SubtitleStyle{}, err
	}
	return segments, subs, media.StyleFromConfig(env.cfg.Subtitle, fontPath, family), nil
}

// compose renders the visual track, encodes the final file, fixes any
// duration drift and writes the optional subtitle sidecar.
func (o *Orchestrator) compose(ctx context.Context, env *jobEnv, task *queue.Task, images []string, total float64, audioTrack, subsPath string, style media.SubtitleStyle, segments []timing.Segment) (*Result, error) {
	video := filepath.Join(env.tmp, "video.mp4")
	if err := o.composeVisual(ctx, env, images, total, video); err != nil {
		return nil, err
	}

	out := outputPath(env.cfg, task)
	enc := o.codecs.Select(ctx, env.cfg.Export.Preset())

	if err := o.encode(ctx, env, video, audioTrack, subsPath, style, &enc, out); err != nil {
		return nil, err
	}

	final, err := o.fixDrift(ctx, env, out, total, enc)
	if err != nil {
		return nil, err
	}

	if env.cfg.Subtitle.Enabled && env.cfg.Subtitle.ExportSRT {
		sidecar := strings.TrimSuffix(out, filepath.Ext(out)) + ".srt"
		if err := subtitle.WriteSRT(segments, sidecar, env.cfg.Subtitle.MaxCharsPerLine); err != nil {
			env.logger.Warn().Err(err).Msg("srt sidecar write failed")
		} else {
			env.logger.Info().Str("path", sidecar).Msg("srt sidecar written")
		}
	}

	if err := verifyOutput(out); err != nil {
		return nil, err
	}
	return &Result{OutputPath: out, DurationSec: final, SubtitleCount: len(segments), Title: task.Title}, nil
}

func (o *Orchestrator) composeVisual(ctx context.Context, env *jobEnv, images []string, total float64, video string) error {
	defer env.observe(stageVisual, time.Now())

	if len(images) == 0 {
		env.logger.Info().Float64("video_sec", total).Msg("no images, composing color background")
		return o.assemble.ColorClip(ctx, total, video)
	}

	fade := env.cfg.Templates.Simple.TransitionDuration
	dwell, err := timing.Dwell(total, len(images), fade)
	if err != nil {
		return err
	}
	env.logger.Info().Int("images", len(images)).Float64("dwell_sec", dwell).Msg("composing slideshow")
	return o.assemble.Slideshow(ctx, images, dwell, fade, video)
}

// encode writes the final file, falling back to the software codec once
// when a hardware encoder dies.
func (o *Orchestrator) encode(ctx context.Context, env *jobEnv, video, audioTrack, subsPath string, style media.SubtitleStyle, enc *vcodec.Selection, out string) error {
	defer env.observe(stageEncode, time.Now())

	err := o.assemble.EncodeFinal(ctx, video, audioTrack, subsPath, style, *enc, out)
	if err != nil && enc.Hardware() && ctx.Err() == nil {
		env.logger.Warn().Err(err).Str(log.FieldCodec, enc.Codec).Msg("hardware encode failed, retrying with software codec")
		metrics.RecordEncodeFallback()
		*enc = vcodec.Software(env.cfg.Export.Preset())
		err = o.assemble.EncodeFinal(ctx, video, audioTrack, subsPath, style, *enc, out)
	}
	return err
}

// fixDrift probes the written file and trims or pads it when the video
// length drifted more than the tolerance away from the audio length.
func (o *Orchestrator) fixDrift(ctx context.Context, env *jobEnv, out string, total float64, enc vcodec.Selection) (float64, error) {
	actual, err := o.assemble.ProbeDuration(ctx, out)
	if err != nil {
		return 0, err
	}
	pad, exceeds := timing.Drift(total, actual)
	if !exceeds {
		return actual, nil
	}

	env.logger.Warn().
		Float64("audio_sec", total).
		Float64("video_sec", actual).
		Float64("drift_sec", pad).
		Msg("duration drift exceeds tolerance, fixing")

	fixed := out + ".fix.mp4"
	if err := o.assemble.TrimOrPad(ctx, out, fixed, total, actual, enc); err != nil {
		return 0, err
	}
	if err := os.Rename(fixed, out); err != nil {
		return 0, fault.Wrap(fault.KindCollaborator, "pipeline.drift", err)
	}
	return total, nil
}

// outputPath derives where the final video lands. Explicit task paths win;
// otherwise `<title>_<timestamp>.mp4` (task id when untitled) lands under the
// output dir.
func outputPath(cfg config.Config, task *queue.Task) string {
	if task.OutputPath != "" {
		return task.OutputPath
	}
	name := sanitizeName(task.Title)
	if name == "" {
		name = task.ID
	}
	stamp := time.Now().Format("20060102_150405")
	return filepath.Join(cfg.Paths.Output, name+"_"+stamp+".mp4")
}

// sanitizeName strips filesystem-hostile characters from a title and swaps
// spaces for underscores, capped at 200 runes.
func sanitizeName(title string) string {
	title = strings.TrimSpace(title)
	var b strings.Builder
	for _, r := range title {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r) || r < 0x20:
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	runes := []rune(b.String())
	if len(runes) > 200 {
		runes = runes[:200]
	}
	return string(runes)
}

func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fault.NotFound("pipeline.output", path)
	}
	if info.Size() == 0 {
		return fault.Collab("encoder", fmt.Errorf("empty output file %s", path))
	}
	return nil
}
