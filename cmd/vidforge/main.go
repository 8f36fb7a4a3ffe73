// SPDX-License-Identifier: MIT

// Command vidforge assembles narrated slideshow videos from text scripts or
// recorded audio. It runs a single job, or drains a queue of scripts in
// parallel batch mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/mediafab/vidforge/internal/admission"
	"github.com/mediafab/vidforge/internal/batch"
	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fontsel"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/materials"
	"github.com/mediafab/vidforge/internal/media"
	"github.com/mediafab/vidforge/internal/mediacache"
	"github.com/mediafab/vidforge/internal/metrics"
	"github.com/mediafab/vidforge/internal/music"
	"github.com/mediafab/vidforge/internal/pipeline"
	"github.com/mediafab/vidforge/internal/queue"
	"github.com/mediafab/vidforge/internal/stt"
	"github.com/mediafab/vidforge/internal/subtitle"
	"github.com/mediafab/vidforge/internal/timing"
	"github.com/mediafab/vidforge/internal/tts"
	"github.com/mediafab/vidforge/internal/vcodec"
)

var (
	version   = "1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

// exitInterrupted is the conventional code for a run cut off by the
// shutdown deadline.
const exitInterrupted = 124

const defaultConfigPath = "config/default_config.yaml"

type cliOptions struct {
	scriptPath   string
	scriptText   string
	audioPath    string
	materialsDir string
	outputPath   string
	title        string
	configPath   string
	batchDir     string
	watch        bool
	subsOnly     bool
	autoMusic    bool
	noMusic      bool
	musicGenre   string
	musicMood    string
	metricsAddr  string
	showVersion  bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if opts.showVersion {
		fmt.Printf("vidforge %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	// Safe defaults until the config file is loaded.
	log.Configure(log.Config{Level: "info", Service: "vidforge", Version: version})
	logger := log.WithComponent("cli")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// An explicit --config must load; the default path is picked up only
	// when it exists.
	configPath := opts.configPath
	if configPath == defaultConfigPath {
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}
	cfg, err := config.NewLoader(configPath, version).Load()
	if err != nil {
		logger.Error().Err(err).Str(log.FieldPath, configPath).Msg("configuration load failed")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		Service: "vidforge",
		Version: version,
	})
	if configPath != "" {
		logger.Info().Str(log.FieldPath, configPath).Msg("configuration loaded from file")
	} else {
		logger.Info().Msg("configuration from environment and defaults")
	}

	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, version)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	// Subtitle-only export needs no collaborators at all.
	if opts.subsOnly {
		return runSubsOnly(cfg, opts)
	}

	svc, err := buildServices(cfg, opts)
	if err != nil {
		logger.Error().Err(err).Msg("startup wiring failed")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if opts.batchDir != "" {
		return runBatch(ctx, cfg, svc, opts)
	}
	return runSingle(ctx, svc.orch, opts)
}

func parseFlags(args []string) (*cliOptions, error) {
	opts := &cliOptions{}
	fs := flag.NewFlagSet("vidforge", flag.ContinueOnError)
	fs.StringVar(&opts.scriptPath, "script", "", "script file path")
	fs.StringVar(&opts.scriptText, "text", "", "inline script text")
	fs.StringVar(&opts.audioPath, "audio", "", "narration audio file (transcription pipeline)")
	fs.StringVar(&opts.materialsDir, "materials", "", "materials directory")
	fs.StringVar(&opts.outputPath, "output", "", "output video path")
	fs.StringVar(&opts.title, "title", "", "video title")
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "configuration file (YAML)")
	fs.StringVar(&opts.batchDir, "batch", "", "batch mode: directory of .txt scripts")
	fs.BoolVar(&opts.watch, "watch", false, "with --batch: keep watching the directory for new scripts")
	fs.BoolVar(&opts.subsOnly, "subs-only", false, "write only the .srt for a script, timings estimated from text")
	fs.BoolVar(&opts.autoMusic, "auto-music", false, "force smart background music on")
	fs.BoolVar(&opts.noMusic, "no-music", false, "disable background music")
	fs.StringVar(&opts.musicGenre, "music-genre", "", "preferred music genres (comma separated)")
	fs.StringVar(&opts.musicMood, "music-mood", "", "preferred music moods (comma separated)")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "expose /metrics and /healthz on this address")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}

	if opts.autoMusic && opts.noMusic {
		return nil, fmt.Errorf("--auto-music and --no-music are mutually exclusive")
	}
	inputs := 0
	for _, v := range []string{opts.scriptPath, opts.scriptText, opts.audioPath} {
		if v != "" {
			inputs++
		}
	}
	if opts.subsOnly {
		if opts.batchDir != "" {
			return nil, fmt.Errorf("--subs-only cannot be combined with --batch")
		}
		if opts.audioPath != "" {
			return nil, fmt.Errorf("--subs-only takes --script or --text; use plain --audio for transcribed subtitles")
		}
	}
	if opts.batchDir != "" {
		if inputs > 0 {
			return nil, fmt.Errorf("--batch cannot be combined with --script, --text or --audio")
		}
		return opts, nil
	}
	if opts.watch {
		return nil, fmt.Errorf("--watch requires --batch")
	}
	if inputs != 1 {
		return nil, fmt.Errorf("exactly one of --script, --text or --audio is required")
	}
	return opts, nil
}

// imageCacheMaxAgeDays bounds how long unreferenced stock photos stay in
// the scratch cache.
const imageCacheMaxAgeDays = 7

// services bundles the orchestrator with the caches that need upkeep
// after a batch run.
type services struct {
	orch   *pipeline.Orchestrator
	lib    *music.Library         // nil without smart music
	images *mediacache.Downloader // nil without an image API key
}

// maintain runs the cache upkeep a batch run accumulates: library expiry,
// orphan and LRU passes, and the image scratch cache age sweep.
func (s *services) maintain() {
	if s.lib != nil {
		s.lib.Optimize()
	}
	if s.images != nil {
		s.images.SweepOlderThan(time.Now().AddDate(0, 0, -imageCacheMaxAgeDays))
	}
}

// buildServices wires every collaborator the pipeline needs. TTS and
// media tooling are mandatory; STT, music and online materials are built
// only when enabled and degrade to absent on wiring failure where the
// pipeline tolerates it.
func buildServices(cfg config.Config, opts *cliOptions) (*services, error) {
	logger := log.WithComponent("cli")

	engine := media.NewEngine(cfg.Tools, cfg.Video)
	ttsEngine, err := tts.NewEngine(cfg.TTS)
	if err != nil {
		return nil, err
	}

	po := pipeline.Options{
		Synthesizer: tts.NewSynthesizer(cfg.TTS, ttsEngine, engine),
		Assembler:   engine,
		Materials:   materials.NewResolver(cfg.Materials),
		Codecs:      vcodec.NewDetector(cfg.Tools.FFmpegBin, cfg.Tools.NvidiaSMI),
		Fonts:       fontsel.NewResolver(),
	}
	svc := &services{}

	if cfg.STT.Enabled {
		client, err := stt.NewClient(cfg.STT)
		if err != nil {
			return nil, err
		}
		po.Transcriber = client
	}

	// The library is wired whenever smart music could run; a wiring failure
	// only loses music, never the video.
	if cfg.Music.Smart && !opts.noMusic {
		fetcher, err := mediacache.New(cfg.Music.Download)
		if err != nil {
			logger.Warn().Err(err).Msg("music cache unavailable, continuing without smart music")
		} else {
			lib, err := music.NewLibrary(cfg.Music, music.NewRecommender(cfg.Music), fetcher)
			if err != nil {
				logger.Warn().Err(err).Msg("music library unavailable, continuing without smart music")
			} else {
				po.MusicPicker = lib
				svc.lib = lib
			}
		}
	}

	// Online materials share the download bounds with music but keep their
	// own cache directory, out of reach of the library's orphan sweep.
	if cfg.Materials.Auto && cfg.Materials.ImageAPI.Key != "" {
		imgCfg := cfg.Music.Download
		imgCfg.Dir = cfg.Paths.ImageCacheDir()
		imgCache, err := mediacache.New(imgCfg)
		if err != nil {
			logger.Warn().Err(err).Msg("image cache unavailable, auto materials stay local")
		} else {
			po.Images = materials.NewOnlineSource(
				materials.NewPexelsSource(cfg.Materials.ImageAPI.Key),
				imgCache,
				cfg.Paths.AutoMaterialsDir(),
				cfg.Materials.ImageAPI.PerQuery,
			)
			svc.images = imgCache
		}
	}

	svc.orch = pipeline.New(cfg, po)
	return svc, nil
}

func runSingle(ctx context.Context, orch *pipeline.Orchestrator, opts *cliOptions) int {
	task := queue.NewTask(deriveTitle(opts))
	task.ScriptPath = opts.scriptPath
	task.ScriptText = opts.scriptText
	task.AudioPath = opts.audioPath
	task.MaterialsDir = opts.materialsDir
	task.OutputPath = opts.outputPath
	task.Overrides = musicOverrides(opts)

	res, err := orch.Run(ctx, task)
	if err != nil {
		fmt.Printf("\n✗ video generation failed: %v\n", err)
		return 1
	}
	fmt.Printf("\n✓ video generated\n")
	fmt.Printf("  output:    %s\n", res.OutputPath)
	fmt.Printf("  duration:  %.2fs\n", res.DurationSec)
	fmt.Printf("  subtitles: %d\n", res.SubtitleCount)
	return 0
}

// runSubsOnly writes the cue file for a script without narrating it. With no
// audio to measure against, timings come from character counts.
func runSubsOnly(cfg config.Config, opts *cliOptions) int {
	script := opts.scriptText
	if script == "" {
		raw, err := os.ReadFile(opts.scriptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		script = string(raw)
	}

	sentences := subtitle.SplitSentences(script, cfg.Subtitle.MaxCharsPerLine)
	if len(sentences) == 0 {
		fmt.Fprintln(os.Stderr, "error: script contains no sentences")
		return 1
	}
	segments := timing.Estimate(sentences, cfg.Subtitle.DurationPerChar, 0)

	out := opts.outputPath
	if out == "" {
		out = filepath.Join(cfg.Paths.Output, deriveTitle(opts)+".srt")
	}
	if err := subtitle.WriteSRT(segments, out, cfg.Subtitle.MaxCharsPerLine); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	last := segments[len(segments)-1]
	fmt.Printf("✓ subtitles written\n")
	fmt.Printf("  output:   %s\n", out)
	fmt.Printf("  cues:     %d\n", len(segments))
	fmt.Printf("  duration: %.1fs (estimated)\n", last.End)
	return 0
}

func runBatch(ctx context.Context, cfg config.Config, svc *services, opts *cliOptions) int {
	logger := log.WithComponent("cli")

	store, err := queue.Open(cfg.Paths.QueueFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	added, err := enqueueScripts(store, opts.batchDir, musicOverrides(opts))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	pending := len(store.Pending())
	if pending == 0 && !opts.watch {
		fmt.Fprintf(os.Stderr, "error: no .txt scripts found in %s\n", opts.batchDir)
		return 1
	}
	fmt.Printf("enqueued %d scripts from %s (%d tasks pending)\n", added, opts.batchDir, pending)

	threading := cfg.Performance.Threading
	ledger := admission.New(threading.MaxConcurrentTasks, threading.WorkerMemoryLimitMB, admission.SystemMemoryUsedMB)
	proc := batch.New(store, ledger, svc.orch.Run, cfg)
	logger.Info().Int("workers", proc.Workers()).Msg("batch processor ready")

	if !opts.watch && isTerminal(os.Stdout) {
		bar := progressbar.NewOptions(
			pending,
			progressbar.OptionFullWidth(),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("assembling videos..."),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
		)
		proc.OnProgress = func(p batch.Progress) {
			_ = bar.Set(p.Done)
		}
	}

	var res *batch.Result
	if opts.watch {
		res, err = proc.Watch(ctx, opts.batchDir)
	} else {
		res, err = proc.Process(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	svc.maintain()

	printBatchSummary(res)
	switch {
	case res.Interrupted:
		return exitInterrupted
	case res.Failed > 0:
		return 1
	default:
		return 0
	}
}

// enqueueScripts adds one pending task per .txt file in dir, sorted by name.
func enqueueScripts(store *queue.Store, dir string, overrides map[string]string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("script directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".txt") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	added := 0
	for _, name := range names {
		task := queue.NewTask(strings.TrimSuffix(name, filepath.Ext(name)))
		task.ScriptPath = filepath.Join(dir, name)
		task.Overrides = overrides
		if err := store.Add(task); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func printBatchSummary(res *batch.Result) {
	fmt.Printf("\nbatch finished: %d total, %d succeeded, %d failed in %s\n",
		res.Total, res.Successful, res.Failed, res.TotalDuration.Round(time.Second))
	if res.Successful+res.Failed > 0 {
		fmt.Printf("  avg %.1fs/task, %.2f tasks/s, peak memory %s\n",
			res.AverageTaskDuration.Seconds(),
			res.ThroughputPerSec,
			humanize.IBytes(uint64(res.PeakMemoryMB)<<20))
	}
	for _, task := range res.Tasks {
		switch task.Status {
		case queue.StatusCompleted:
			fmt.Printf("  ✓ %s (%s) -> %s\n", task.Title, task.ID, task.Output)
		case queue.StatusFailed:
			fmt.Printf("  ✗ %s (%s): %s\n", task.Title, task.ID, task.Message)
		default:
			fmt.Printf("  - %s (%s): %s\n", task.Title, task.ID, task.Message)
		}
	}
	if res.Interrupted {
		fmt.Println("  batch was interrupted before completion")
	}
}

// deriveTitle falls back from the explicit flag to the input filename.
func deriveTitle(opts *cliOptions) string {
	if opts.title != "" {
		return opts.title
	}
	for _, path := range []string{opts.scriptPath, opts.audioPath} {
		if path != "" {
			base := filepath.Base(path)
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return "untitled"
}

// musicOverrides translates the music flags into per-task overrides.
func musicOverrides(opts *cliOptions) map[string]string {
	ov := make(map[string]string)
	switch {
	case opts.noMusic:
		ov[pipeline.OverrideMusicEnabled] = "false"
	case opts.autoMusic:
		ov[pipeline.OverrideMusicEnabled] = "true"
		ov[pipeline.OverrideMusicSmart] = "true"
	}
	if opts.musicGenre != "" {
		ov[pipeline.OverrideMusicGenre] = opts.musicGenre
	}
	if opts.musicMood != "" {
		ov[pipeline.OverrideMusicMood] = opts.musicMood
	}
	if len(ov) == 0 {
		return nil
	}
	return ov
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
