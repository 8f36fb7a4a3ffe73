// SPDX-License-Identifier: MIT

// Package config provides configuration management for vidforge.
package config

import (
	"strconv"
	"strings"

	"github.com/mediafab/vidforge/internal/validate"
)

// Validate checks a resolved Config using the centralized validation package.
func Validate(cfg Config) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("Log.Level", err.Error(), cfg.Log.Level)
	}

	v.NotEmpty("Paths.Output", cfg.Paths.Output)
	v.NotEmpty("Paths.Data", cfg.Paths.Data)

	v.NonNegative("Tools.StallTimeoutSec", cfg.Tools.StallTimeoutSec)

	v.Positive("Video.Width", cfg.Video.Width)
	v.Positive("Video.Height", cfg.Video.Height)
	v.Range("Video.FPS", cfg.Video.FPS, 1, 120)
	v.Positive("Video.BitrateK", cfg.Video.BitrateK)
	v.HexColor("Video.BackgroundColor", cfg.Video.BackgroundColor)

	v.OneOf("TTS.Engine", cfg.TTS.Engine, []string{"openai", "piper", "command"})
	v.FloatRange("TTS.Rate", cfg.TTS.Rate, 0.5, 2.0)
	v.FloatRange("TTS.Volume", cfg.TTS.Volume, 0.0, 1.0)
	v.Positive("TTS.Concurrency", cfg.TTS.Concurrency)
	v.NonNegative("TTS.RetryAttempts", cfg.TTS.RetryAttempts)
	v.OneOf("TTS.Format", cfg.TTS.Format, []string{"mp3", "wav"})
	if cfg.TTS.Engine == "piper" {
		v.NotEmpty("TTS.PiperModel", cfg.TTS.PiperModel)
	}
	if cfg.TTS.Engine == "command" && len(cfg.TTS.Command) == 0 {
		v.AddError("TTS.Command", "argv template required for command engine", nil)
	}

	if cfg.STT.Enabled {
		v.URL("STT.ServerURL", cfg.STT.ServerURL, []string{"http", "https"})
		v.FloatRange("STT.MinConfidence", cfg.STT.MinConfidence, 0.0, 1.0)
		v.PositiveFloat("STT.MergeThreshold", cfg.STT.MergeThreshold)
		v.PositiveFloat("STT.MinSegmentLength", cfg.STT.MinSegmentLength)
	}

	if cfg.Subtitle.Enabled {
		v.Positive("Subtitle.FontSize", cfg.Subtitle.FontSize)
		v.Positive("Subtitle.MaxCharsPerLine", cfg.Subtitle.MaxCharsPerLine)
		v.NonNegative("Subtitle.MarginBottom", cfg.Subtitle.MarginBottom)
		v.PositiveFloat("Subtitle.DurationPerChar", cfg.Subtitle.DurationPerChar)
		v.OneOf("Subtitle.Position", cfg.Subtitle.Position, []string{"top", "center", "bottom"})
	}

	if cfg.Music.Enabled {
		v.FloatRange("Music.Volume", cfg.Music.Volume, 0.0, 1.0)
		v.NonNegativeFloat("Music.FadeIn", cfg.Music.FadeIn)
		v.NonNegativeFloat("Music.FadeOut", cfg.Music.FadeOut)
		for _, s := range cfg.Music.Sources {
			switch strings.ToLower(s) {
			case "jamendo", "freemusicarchive", "incompetech":
			default:
				v.AddError("Music.Sources", "unknown source", s)
			}
		}
		v.Positive("Music.Download.MaxSizeMB", int(cfg.Music.Download.MaxSizeMB))
		v.Positive("Music.Download.TimeoutSec", cfg.Music.Download.TimeoutSec)
		v.Positive("Music.Download.MaxConcurrent", cfg.Music.Download.MaxConcurrent)
		v.Positive("Music.MaxCacheFiles", cfg.Music.MaxCacheFiles)
		v.Positive("Music.MaxCacheAgeDays", cfg.Music.MaxCacheAgeDays)
	}

	v.NonNegative("Materials.ImageAPI.PerQuery", cfg.Materials.ImageAPI.PerQuery)

	th := cfg.Performance.Threading
	if th.MaxWorkers != "auto" {
		if n, err := strconv.Atoi(th.MaxWorkers); err != nil || n < 1 {
			v.AddError("Performance.Threading.MaxWorkers",
				"must be a positive integer or \"auto\"", th.MaxWorkers)
		}
	}
	v.Positive("Performance.Threading.MaxConcurrentTasks", th.MaxConcurrentTasks)
	v.Positive("Performance.Threading.WorkerMemoryLimitMB", th.WorkerMemoryLimitMB)
	v.Positive("Performance.Threading.TaskMemoryEstimateMB", th.TaskMemoryEstimateMB)
	v.Positive("Performance.Threading.TaskTimeoutSec", th.TaskTimeoutSec)
	v.NonNegative("Performance.Threading.RetryTimes", th.RetryTimes)
	v.NonNegative("Performance.Threading.ShutdownGraceSec", th.ShutdownGraceSec)
	if th.TaskMemoryEstimateMB > th.WorkerMemoryLimitMB {
		v.AddError("Performance.Threading.TaskMemoryEstimateMB",
			"must not exceed WorkerMemoryLimitMB", th.TaskMemoryEstimateMB)
	}

	v.OneOf("Export.Quality", cfg.Export.Quality, []string{"ultra", "high", "medium", "low"})

	tmpl := cfg.Templates.Simple
	v.PositiveFloat("Templates.Simple.ImageDuration", tmpl.ImageDuration)
	v.NonNegativeFloat("Templates.Simple.TransitionDuration", tmpl.TransitionDuration)
	v.OneOf("Templates.Simple.Transition", tmpl.Transition, []string{"fade", "none"})
	if tmpl.TransitionDuration > 0 && tmpl.TransitionDuration >= tmpl.ImageDuration {
		v.AddError("Templates.Simple.TransitionDuration",
			"must be shorter than image_duration", tmpl.TransitionDuration)
	}

	if !v.IsValid() {
		return v.Err()
	}

	return nil
}
