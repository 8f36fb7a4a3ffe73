// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader. configPath may be empty, in
// which case only defaults and environment variables apply.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath: configPath,
		version:    version,
	}
}

// Load resolves the configuration in strict validated order:
// defaults -> file (strict parse) -> environment -> validate.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	// Output-relative paths stay consistent when only the output dir moves.
	if cfg.Paths.Logs == "" {
		cfg.Paths.Logs = filepath.Join(cfg.Paths.Output, "logs")
	}
	if cfg.Paths.QueueFile == "" {
		cfg.Paths.QueueFile = filepath.Join(cfg.Paths.Output, "task_queue.json")
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile decodes a YAML file over the defaults with STRICT parsing. Unknown
// fields cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(cfg *Config, path string) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: ensure no second document or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return nil
}

// mergeEnv overrides the tree with VIDFORGE_* environment variables. Only
// operationally useful knobs are exposed; everything else is file-only.
func (l *Loader) mergeEnv(cfg *Config) {
	cfg.Log.Level = ParseString("VIDFORGE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Pretty = ParseBool("VIDFORGE_LOG_PRETTY", cfg.Log.Pretty)
	cfg.Metrics.Addr = ParseString("VIDFORGE_METRICS_ADDR", cfg.Metrics.Addr)

	cfg.Paths.Output = ParseString("VIDFORGE_OUTPUT_DIR", cfg.Paths.Output)
	cfg.Paths.Data = ParseString("VIDFORGE_DATA_DIR", cfg.Paths.Data)
	cfg.Paths.Assets = ParseString("VIDFORGE_ASSETS_DIR", cfg.Paths.Assets)

	cfg.Tools.FFmpegBin = ParseString("VIDFORGE_FFMPEG_BIN", cfg.Tools.FFmpegBin)
	cfg.Tools.FFprobeBin = ParseString("VIDFORGE_FFPROBE_BIN", cfg.Tools.FFprobeBin)

	cfg.TTS.Engine = ParseString("VIDFORGE_TTS_ENGINE", cfg.TTS.Engine)
	cfg.TTS.Voice = ParseString("VIDFORGE_TTS_VOICE", cfg.TTS.Voice)
	cfg.TTS.Model = ParseString("VIDFORGE_TTS_MODEL", cfg.TTS.Model)
	cfg.TTS.BaseURL = ParseString("VIDFORGE_TTS_BASE_URL", cfg.TTS.BaseURL)
	cfg.TTS.Rate = ParseFloat("VIDFORGE_TTS_RATE", cfg.TTS.Rate)

	// Secrets never come from the file.
	cfg.TTS.APIKey = ParseString("VIDFORGE_OPENAI_API_KEY", ParseString("OPENAI_API_KEY", ""))
	cfg.Music.LLM.APIKey = cfg.TTS.APIKey
	cfg.Materials.ImageAPI.Key = ParseString("VIDFORGE_PEXELS_API_KEY", ParseString("PEXELS_API_KEY", ""))

	cfg.STT.Enabled = ParseBool("VIDFORGE_STT_ENABLED", cfg.STT.Enabled)
	cfg.STT.ServerURL = ParseString("VIDFORGE_STT_SERVER_URL", cfg.STT.ServerURL)

	cfg.Subtitle.FontPath = ParseString("VIDFORGE_FONT_PATH", cfg.Subtitle.FontPath)

	cfg.Music.Enabled = ParseBool("VIDFORGE_MUSIC_ENABLED", cfg.Music.Enabled)
	cfg.Music.JamendoClientID = ParseString("VIDFORGE_JAMENDO_CLIENT_ID", cfg.Music.JamendoClientID)
	cfg.Music.LLM.BaseURL = ParseString("VIDFORGE_LLM_BASE_URL", cfg.Music.LLM.BaseURL)
	cfg.Music.LLM.Model = ParseString("VIDFORGE_LLM_MODEL", cfg.Music.LLM.Model)

	th := &cfg.Performance.Threading
	th.MaxWorkers = ParseString("VIDFORGE_MAX_WORKERS", th.MaxWorkers)
	th.MaxConcurrentTasks = ParseInt("VIDFORGE_MAX_CONCURRENT_TASKS", th.MaxConcurrentTasks)
	th.WorkerMemoryLimitMB = ParseInt("VIDFORGE_WORKER_MEMORY_LIMIT", th.WorkerMemoryLimitMB)
	th.TaskTimeoutSec = int(ParseDuration("VIDFORGE_TASK_TIMEOUT", th.TaskTimeout()).Seconds())
	th.RetryTimes = ParseInt("VIDFORGE_RETRY_TIMES", th.RetryTimes)

	cfg.Export.Quality = ParseString("VIDFORGE_EXPORT_QUALITY", cfg.Export.Quality)
}
