// SPDX-License-Identifier: MIT

package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/pipeline"
	"github.com/mediafab/vidforge/internal/queue"
	"github.com/mediafab/vidforge/internal/subtitle"
)

func TestParseFlagsInputSelection(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"script only", []string{"--script", "a.txt"}, false},
		{"text only", []string{"--text", "你好。"}, false},
		{"audio only", []string{"--audio", "a.mp3"}, false},
		{"no input", []string{}, true},
		{"two inputs", []string{"--script", "a.txt", "--text", "hi"}, true},
		{"batch excludes input", []string{"--batch", "scripts", "--script", "a.txt"}, true},
		{"batch alone", []string{"--batch", "scripts"}, false},
		{"batch with watch", []string{"--batch", "scripts", "--watch"}, false},
		{"watch without batch", []string{"--watch", "--text", "hi"}, true},
		{"music flags conflict", []string{"--text", "hi", "--auto-music", "--no-music"}, true},
		{"subs-only with text", []string{"--subs-only", "--text", "你好。"}, false},
		{"subs-only with audio", []string{"--subs-only", "--audio", "a.mp3"}, true},
		{"subs-only with batch", []string{"--subs-only", "--batch", "scripts"}, true},
		{"version short-circuits", []string{"--version"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseFlags(tc.args)
			if (err != nil) != tc.wantErr {
				t.Errorf("parseFlags(%v) err = %v, wantErr %v", tc.args, err, tc.wantErr)
			}
		})
	}
}

func TestRunSubsOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()

	out := filepath.Join(t.TempDir(), "cues.srt")
	code := runSubsOnly(cfg, &cliOptions{scriptText: "你好世界。再见了。", outputPath: out})
	if code != 0 {
		t.Fatalf("runSubsOnly = %d, want 0", code)
	}

	segments, err := subtitle.ReadSRT(out)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("cues = %d, want 2", len(segments))
	}
	// Four runes at the default 0.3s per character.
	if d := segments[0].End - segments[0].Start; math.Abs(d-1.2) > 0.01 {
		t.Errorf("first cue duration = %v, want 1.2", d)
	}
	if segments[1].Start < segments[0].End-0.01 {
		t.Errorf("cues overlap: %v then %v", segments[0], segments[1])
	}
}

func TestRunSubsOnlyDefaultsOutputPath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()

	code := runSubsOnly(cfg, &cliOptions{scriptText: "你好。", title: "intro"})
	if code != 0 {
		t.Fatalf("runSubsOnly = %d, want 0", code)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.Output, "intro.srt")); err != nil {
		t.Errorf("derived output missing: %v", err)
	}
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name string
		opts cliOptions
		want string
	}{
		{"explicit wins", cliOptions{title: "Launch", scriptPath: "scripts/intro.txt"}, "Launch"},
		{"script stem", cliOptions{scriptPath: "scripts/intro.txt"}, "intro"},
		{"audio stem", cliOptions{audioPath: "/tmp/voice memo.wav"}, "voice memo"},
		{"inline text", cliOptions{scriptText: "你好。"}, "untitled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deriveTitle(&tc.opts); got != tc.want {
				t.Errorf("deriveTitle = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMusicOverrides(t *testing.T) {
	if ov := musicOverrides(&cliOptions{}); ov != nil {
		t.Errorf("no flags should produce no overrides, got %v", ov)
	}

	ov := musicOverrides(&cliOptions{autoMusic: true, musicGenre: "jazz,lofi", musicMood: "calm"})
	if ov[pipeline.OverrideMusicEnabled] != "true" || ov[pipeline.OverrideMusicSmart] != "true" {
		t.Errorf("auto-music overrides = %v", ov)
	}
	if ov[pipeline.OverrideMusicGenre] != "jazz,lofi" || ov[pipeline.OverrideMusicMood] != "calm" {
		t.Errorf("criteria overrides = %v", ov)
	}

	ov = musicOverrides(&cliOptions{noMusic: true})
	if ov[pipeline.OverrideMusicEnabled] != "false" {
		t.Errorf("no-music override = %v", ov)
	}
	if _, ok := ov[pipeline.OverrideMusicSmart]; ok {
		t.Error("no-music must not force smart mode")
	}
}

func TestEnqueueScripts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.TXT", "notes.md", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("你好。"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.txt"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	store, err := queue.Open(filepath.Join(t.TempDir(), "queue.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	added, err := enqueueScripts(store, dir, map[string]string{pipeline.OverrideMusicEnabled: "false"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if added != 3 {
		t.Fatalf("added = %d, want 3 (.txt files only)", added)
	}

	pending := store.Pending()
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	titles := []string{pending[0].Title, pending[1].Title, pending[2].Title}
	want := []string{"a", "b", "c"}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("titles = %v, want %v", titles, want)
			break
		}
	}
	if pending[0].Overrides[pipeline.OverrideMusicEnabled] != "false" {
		t.Error("overrides not attached to enqueued task")
	}
}

func TestEnqueueScriptsMissingDir(t *testing.T) {
	store, err := queue.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := enqueueScripts(store, filepath.Join(t.TempDir(), "absent"), nil); err == nil {
		t.Fatal("missing directory must error")
	}
}
