// SPDX-License-Identifier: MIT

package config

import (
	"path/filepath"
	"time"
)

// Config is the resolved configuration tree passed into constructors. There is
// no global singleton; main loads it once and injects it.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Paths       PathsConfig       `yaml:"paths"`
	Tools       ToolsConfig       `yaml:"tools"`
	Video       VideoConfig       `yaml:"video"`
	TTS         TTSConfig         `yaml:"tts"`
	STT         STTConfig         `yaml:"stt"`
	Subtitle    SubtitleConfig    `yaml:"subtitle"`
	Music       MusicConfig       `yaml:"music"`
	Materials   MaterialsConfig   `yaml:"materials"`
	Performance PerformanceConfig `yaml:"performance"`
	Export      ExportConfig      `yaml:"export"`
	Templates   TemplatesConfig   `yaml:"templates"`

	// Version comes from the binary, never from the file.
	Version string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	// Addr enables the /metrics and /healthz listener when non-empty, e.g. ":9090".
	Addr string `yaml:"addr"`
}

type PathsConfig struct {
	Output    string `yaml:"output"`
	Data      string `yaml:"data"`
	Assets    string `yaml:"assets"`
	Logs      string `yaml:"logs"`
	QueueFile string `yaml:"queue_file"`
}

// AutoMaterialsDir is where the self-built slideshow library lives.
func (p PathsConfig) AutoMaterialsDir() string {
	return filepath.Join(p.Assets, "materials")
}

// ImageCacheDir is the scratch cache for downloaded stock photos, kept
// apart from the music cache so the orphan sweep there cannot reap it.
func (p PathsConfig) ImageCacheDir() string {
	return filepath.Join(p.Data, "image_cache")
}

type ToolsConfig struct {
	FFmpegBin  string `yaml:"ffmpeg_bin"`
	FFprobeBin string `yaml:"ffprobe_bin"`
	NvidiaSMI  string `yaml:"nvidia_smi_bin"`

	// StallTimeoutSec kills a render reporting no progress for this long.
	// Zero disables the watchdog.
	StallTimeoutSec int `yaml:"stall_timeout"`
}

type VideoConfig struct {
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	FPS             int    `yaml:"fps"`
	BitrateK        int    `yaml:"bitrate_k"`
	BackgroundColor string `yaml:"background_color"`
}

type TTSConfig struct {
	Engine        string  `yaml:"engine"` // "openai", "piper" or "command"
	Voice         string  `yaml:"voice"`
	Model         string  `yaml:"model"`
	Rate          float64 `yaml:"rate"`   // speaking speed, 0.5 - 2.0
	Volume        float64 `yaml:"volume"` // 0.0 - 1.0
	Concurrency   int     `yaml:"concurrency"`
	RetryAttempts int     `yaml:"retry_attempts"`
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"-"` // env only, never from file

	PiperBin   string `yaml:"piper_bin"`
	PiperModel string `yaml:"piper_model"`

	// Command is an argv template for the generic exec engine; {{text}} and
	// {{out}} are substituted per sentence.
	Command []string `yaml:"command"`

	Format string `yaml:"format"` // "mp3" or "wav"
}

type STTConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ServerURL        string  `yaml:"server_url"`
	Model            string  `yaml:"model"`
	Language         string  `yaml:"language"`
	MinConfidence    float64 `yaml:"min_confidence_threshold"`
	MergeThreshold   float64 `yaml:"segment_merge_threshold"`
	MinSegmentLength float64 `yaml:"min_segment_length"`
	MaxFileSizeMB    int64   `yaml:"max_file_size_mb"`
}

type SubtitleConfig struct {
	Enabled         bool     `yaml:"enabled"`
	FontPath        string   `yaml:"font_path"`
	FontFallback    []string `yaml:"font_fallback"`
	FontSize        int      `yaml:"font_size"`
	FontColor       string   `yaml:"font_color"`
	StrokeColor     string   `yaml:"stroke_color"`
	StrokeWidth     int      `yaml:"stroke_width"`
	Position        string   `yaml:"position"`
	MarginBottom    int      `yaml:"margin_bottom"`
	MaxCharsPerLine int      `yaml:"max_chars_per_line"`
	ExportSRT       bool     `yaml:"export_srt"`

	// DurationPerChar drives the estimate used when subtitles are timed
	// without any audio track.
	DurationPerChar float64 `yaml:"duration_per_char"`
}

type MusicConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Smart         bool     `yaml:"smart"`
	TrackPath     string   `yaml:"track_path"`
	Volume        float64  `yaml:"volume"`
	FadeIn        float64  `yaml:"fade_in"`
	FadeOut       float64  `yaml:"fade_out"`
	Loop          bool     `yaml:"loop"`
	Sources       []string `yaml:"sources"`
	CopyrightOnly bool     `yaml:"copyright_only"`

	JamendoClientID string `yaml:"jamendo_client_id"`

	LLM      LLMConfig      `yaml:"llm"`
	Download DownloadConfig `yaml:"download"`

	LibraryPath     string `yaml:"library_path"`
	MaxCacheAgeDays int    `yaml:"max_cache_age"`
	MaxCacheFiles   int    `yaml:"max_cache_files"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	APIKey      string  `yaml:"-"` // env only
}

type DownloadConfig struct {
	MaxSizeMB     int64  `yaml:"max_size"`
	TimeoutSec    int    `yaml:"timeout"`
	ChunkSize     int    `yaml:"chunk_size"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Dir           string `yaml:"dir"`
}

// Timeout returns the per-download deadline as a duration.
func (d DownloadConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

type MaterialsConfig struct {
	Auto         bool           `yaml:"auto"`
	ImageFormats []string       `yaml:"image_formats"`
	ImageAPI     ImageAPIConfig `yaml:"image_api"`
}

// ImageAPIConfig controls the stock-photo source that tops up the
// automatic materials library. The key comes from the environment only.
type ImageAPIConfig struct {
	PerQuery int    `yaml:"per_query"`
	Key      string `yaml:"-"`
}

type PerformanceConfig struct {
	Threading ThreadingConfig `yaml:"threading"`
}

type ThreadingConfig struct {
	// MaxWorkers is a positive integer or "auto".
	MaxWorkers         string `yaml:"max_workers"`
	MaxConcurrentTasks int    `yaml:"max_concurrent_tasks"`
	// WorkerMemoryLimitMB caps machine-wide used memory plus the next
	// task's estimate; dispatch stalls while the machine is over it.
	WorkerMemoryLimitMB  int `yaml:"worker_memory_limit"`
	TaskMemoryEstimateMB int `yaml:"task_memory_estimate"`
	TaskTimeoutSec       int `yaml:"task_timeout"`
	RetryTimes           int `yaml:"retry_times"`
	ShutdownGraceSec     int `yaml:"shutdown_grace"`
}

// TaskTimeout returns the per-task deadline as a duration.
func (t ThreadingConfig) TaskTimeout() time.Duration {
	return time.Duration(t.TaskTimeoutSec) * time.Second
}

// ShutdownGrace returns the worker-join deadline used during shutdown.
func (t ThreadingConfig) ShutdownGrace() time.Duration {
	return time.Duration(t.ShutdownGraceSec) * time.Second
}

type ExportConfig struct {
	Quality string `yaml:"quality"` // ultra, high, medium, low
}

// Preset maps the export quality onto an encoder preset name.
func (e ExportConfig) Preset() string {
	switch e.Quality {
	case "ultra":
		return "slow"
	case "high":
		return "medium"
	case "medium":
		return "fast"
	case "low":
		return "ultrafast"
	default:
		return "fast"
	}
}

type TemplatesConfig struct {
	Simple SimpleTemplate `yaml:"simple"`
}

type SimpleTemplate struct {
	ImageDuration      float64 `yaml:"image_duration"`
	Transition         string  `yaml:"transition"`
	TransitionDuration float64 `yaml:"transition_duration"`
}

// Default returns the fully-populated configuration tree.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Paths: PathsConfig{
			Output:    "output",
			Data:      "data",
			Assets:    "assets",
			Logs:      "output/logs",
			QueueFile: "output/task_queue.json",
		},
		Tools: ToolsConfig{
			FFmpegBin:       "ffmpeg",
			FFprobeBin:      "ffprobe",
			NvidiaSMI:       "nvidia-smi",
			StallTimeoutSec: 120,
		},
		Video: VideoConfig{
			Width:           1920,
			Height:          1080,
			FPS:             30,
			BitrateK:        5000,
			BackgroundColor: "#000000",
		},
		TTS: TTSConfig{
			Engine:        "openai",
			Voice:         "alloy",
			Model:         "tts-1",
			Rate:          1.0,
			Volume:        1.0,
			Concurrency:   1,
			RetryAttempts: 3,
			Format:        "mp3",
		},
		STT: STTConfig{
			Model:            "whisper-1",
			Language:         "zh",
			MinConfidence:    0.3,
			MergeThreshold:   1.5,
			MinSegmentLength: 0.5,
			MaxFileSizeMB:    1024,
		},
		Subtitle: SubtitleConfig{
			Enabled:         true,
			FontSize:        48,
			FontColor:       "white",
			StrokeColor:     "black",
			StrokeWidth:     2,
			Position:        "bottom",
			MarginBottom:    100,
			MaxCharsPerLine: 25,
			DurationPerChar: 0.3,
		},
		Music: MusicConfig{
			Smart:         true,
			Volume:        0.2,
			FadeIn:        2.0,
			FadeOut:       3.0,
			Loop:          true,
			Sources:       []string{"jamendo", "freemusicarchive", "incompetech"},
			CopyrightOnly: true,
			LLM: LLMConfig{
				Model:       "gpt-4o-mini",
				Temperature: 0.3,
			},
			Download: DownloadConfig{
				MaxSizeMB:     50,
				TimeoutSec:    30,
				ChunkSize:     8192,
				MaxConcurrent: 3,
				Dir:           "assets/music",
			},
			LibraryPath:     "data/music_library.json",
			MaxCacheAgeDays: 30,
			MaxCacheFiles:   100,
		},
		Materials: MaterialsConfig{
			ImageFormats: []string{".jpg", ".jpeg", ".png", ".webp", ".bmp"},
			ImageAPI:     ImageAPIConfig{PerQuery: 3},
		},
		Performance: PerformanceConfig{
			Threading: ThreadingConfig{
				MaxWorkers:           "auto",
				MaxConcurrentTasks:   4,
				WorkerMemoryLimitMB:  8192,
				TaskMemoryEstimateMB: 512,
				TaskTimeoutSec:       3600,
				RetryTimes:           3,
				ShutdownGraceSec:     30,
			},
		},
		Export: ExportConfig{Quality: "medium"},
		Templates: TemplatesConfig{
			Simple: SimpleTemplate{
				ImageDuration:      5.0,
				Transition:         "fade",
				TransitionDuration: 0.5,
			},
		},
	}
}
