// SPDX-License-Identifier: MIT

package music

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/mediacache"
)

type fakeRecommender struct {
	recs  []Recommendation
	calls atomic.Int32
}

func (f *fakeRecommender) Recommend(context.Context, string, float64, SearchCriteria) []Recommendation {
	f.calls.Add(1)
	return f.recs
}

// fakeFetcher stands in for the media cache: it writes a small file per
// fetch and sweeps its directory like the real downloader does.
type fakeFetcher struct {
	dir  string
	fail map[string]bool // URLs that should error

	mu    sync.Mutex
	calls int
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tracks")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return &fakeFetcher{dir: dir, fail: map[string]bool{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, title, source, rawURL string) (*mediacache.Download, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail[rawURL] {
		return nil, fault.Download("fake.fetch", errors.New("refused"))
	}
	path := filepath.Join(f.dir, mediacache.FileName(title, source, rawURL))
	if err := os.WriteFile(path, []byte("ID3 fake audio"), 0o644); err != nil {
		return nil, err
	}
	return &mediacache.Download{Path: path, Size: 14, MD5: "0123456789abcdef0123456789abcdef", Format: "mp3"}, nil
}

func (f *fakeFetcher) Dir() string { return f.dir }

func (f *fakeFetcher) Sweep(live map[string]bool) int {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || live[e.Name()] {
			continue
		}
		if os.Remove(filepath.Join(f.dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}

func (f *fakeFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestLibrary(t *testing.T, rec TrackRecommender, fetcher TrackFetcher) *Library {
	t.Helper()
	lib, err := NewLibrary(config.MusicConfig{
		LibraryPath:     filepath.Join(t.TempDir(), "data", "music_library.json"),
		MaxCacheAgeDays: 30,
		MaxCacheFiles:   100,
	}, rec, fetcher)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	return lib
}

func calmTrack(title, rawURL string) Recommendation {
	return Recommendation{
		Title:           title,
		Artist:          "Test Artist",
		URL:             rawURL,
		Duration:        180,
		Genre:           "ambient",
		Mood:            "calm",
		CopyrightStatus: CopyrightCreativeCommons,
		Confidence:      0.9,
		Source:          "jamendo",
	}
}

// The second identical request must be served from the library without
// touching the recommender or the network, and the use count keeps rising.
func TestGetMusicForContentCacheFlow(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), []byte("tiny mp3 payload")...))
	}))
	defer srv.Close()

	downloader, err := mediacache.New(config.DownloadConfig{
		Dir:           filepath.Join(t.TempDir(), "cache"),
		MaxSizeMB:     50,
		TimeoutSec:    5,
		ChunkSize:     1024,
		MaxConcurrent: 3,
	})
	if err != nil {
		t.Fatalf("mediacache.New: %v", err)
	}

	rec := &fakeRecommender{recs: []Recommendation{calmTrack("Meditation Ambience", srv.URL+"/track.mp3")}}
	libPath := filepath.Join(t.TempDir(), "data", "music_library.json")
	lib, err := NewLibrary(config.MusicConfig{
		LibraryPath:     libPath,
		MaxCacheAgeDays: 30,
		MaxCacheFiles:   100,
	}, rec, downloader)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}

	ctx := context.Background()
	first, err := lib.GetMusicForContent(ctx, "morning meditation session", 120, nil)
	if err != nil {
		t.Fatalf("first GetMusicForContent: %v", err)
	}
	if first == nil {
		t.Fatal("first call returned no selection")
	}
	if _, err := os.Stat(first.LocalPath); err != nil {
		t.Fatalf("downloaded track missing: %v", err)
	}
	if hits.Load() != 1 || rec.calls.Load() != 1 {
		t.Fatalf("server hits = %d, recommender calls = %d after first request", hits.Load(), rec.calls.Load())
	}

	second, err := lib.GetMusicForContent(ctx, "morning meditation session", 120, nil)
	if err != nil {
		t.Fatalf("second GetMusicForContent: %v", err)
	}
	if second == nil || second.LocalPath != first.LocalPath {
		t.Fatalf("second call did not reuse the cached track: %+v", second)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d after second request, want 1", hits.Load())
	}
	if rec.calls.Load() != 1 {
		t.Errorf("recommender calls = %d after second request, want 1", rec.calls.Load())
	}

	stats := lib.Stats()
	if stats.TotalEntries != 1 || stats.TotalUseCount != 2 {
		t.Errorf("stats = %+v, want 1 entry used twice", stats)
	}

	// A fresh library instance sees the persisted entry.
	reloaded, err := NewLibrary(config.MusicConfig{
		LibraryPath:     libPath,
		MaxCacheAgeDays: 30,
		MaxCacheFiles:   100,
	}, rec, downloader)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Stats().TotalEntries != 1 {
		t.Errorf("reloaded entries = %d, want 1", reloaded.Stats().TotalEntries)
	}
}

func TestGetMusicForContentNoCandidates(t *testing.T) {
	lib := newTestLibrary(t, &fakeRecommender{}, newFakeFetcher(t))

	sel, err := lib.GetMusicForContent(context.Background(), "anything", 60, nil)
	if err != nil {
		t.Fatalf("GetMusicForContent: %v", err)
	}
	if sel != nil {
		t.Errorf("selection = %+v, want nil when nothing is recommended", sel)
	}
}

func TestGetMusicForContentDownloadError(t *testing.T) {
	fetcher := newFakeFetcher(t)
	fetcher.fail["https://cdn.example.com/broken.mp3"] = true
	rec := &fakeRecommender{recs: []Recommendation{calmTrack("Broken", "https://cdn.example.com/broken.mp3")}}
	lib := newTestLibrary(t, rec, fetcher)

	sel, err := lib.GetMusicForContent(context.Background(), "anything", 60, nil)
	if err == nil {
		t.Fatalf("expected download error, got selection %+v", sel)
	}
	if lib.Stats().TotalEntries != 0 {
		t.Errorf("failed download must not create an entry")
	}
}

func (l *Library) addEntryForTest(rec Recommendation, useCount int, downloadedAt time.Time, path string) *LibraryEntry {
	entry := &LibraryEntry{
		Recommendation: rec,
		LocalPath:      path,
		DownloadedAt:   downloadedAt,
		UseCount:       useCount,
	}
	l.mu.Lock()
	l.entries[rec.URL] = entry
	l.mu.Unlock()
	return entry
}

func TestFindLocalScoring(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	crit := DefaultCriteria()

	cases := []struct {
		name      string
		rec       Recommendation
		downloads time.Time
		wantMatch bool
	}{
		{
			name:      "title keyword only scores 0.4",
			rec:       Recommendation{Title: "Ocean Waves", URL: "u1", Genre: "rock", Mood: "angry", Duration: 180, CopyrightStatus: CopyrightCreativeCommons},
			downloads: now,
			wantMatch: true,
		},
		{
			name:      "genre only scores 0.3 and still passes",
			rec:       Recommendation{Title: "Zzz", URL: "u2", Genre: "ambient", Mood: "angry", Duration: 180, CopyrightStatus: CopyrightCreativeCommons},
			downloads: now,
			wantMatch: true,
		},
		{
			name:      "no overlap scores 0",
			rec:       Recommendation{Title: "Zzz", URL: "u3", Genre: "rock", Mood: "angry", Duration: 180, CopyrightStatus: CopyrightCreativeCommons},
			downloads: now,
			wantMatch: false,
		},
		{
			name:      "expired entries are invisible",
			rec:       Recommendation{Title: "Ocean Dreams", URL: "u4", Genre: "ambient", Mood: "calm", Duration: 180, CopyrightStatus: CopyrightCreativeCommons},
			downloads: now.AddDate(0, 0, -40),
			wantMatch: false,
		},
		{
			name:      "unsafe license is filtered",
			rec:       Recommendation{Title: "Ocean Deep", URL: "u5", Genre: "ambient", Mood: "calm", Duration: 180, CopyrightStatus: CopyrightUnknown},
			downloads: now,
			wantMatch: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lib := newTestLibrary(t, &fakeRecommender{}, newFakeFetcher(t))
			lib.now = func() time.Time { return now }
			lib.addEntryForTest(tc.rec, 0, tc.downloads, "/tmp/fake.mp3")

			lib.mu.Lock()
			got := lib.findLocalLocked("deep blue ocean", crit)
			lib.mu.Unlock()

			if (got != nil) != tc.wantMatch {
				t.Errorf("match = %v, want %v", got != nil, tc.wantMatch)
			}
		})
	}
}

func TestFindLocalDurationBounds(t *testing.T) {
	lib := newTestLibrary(t, &fakeRecommender{}, newFakeFetcher(t))
	now := time.Now()
	lib.addEntryForTest(calmTrack("Long Meditation", "u1"), 0, now, "/tmp/a.mp3") // 180s

	crit := DefaultCriteria()
	crit.MaxDuration = 100

	lib.mu.Lock()
	got := lib.findLocalLocked("meditation", crit)
	lib.mu.Unlock()
	if got != nil {
		t.Errorf("entry above MaxDuration matched: %+v", got)
	}

	crit.MaxDuration = 300
	crit.MinDuration = 200
	lib.mu.Lock()
	got = lib.findLocalLocked("meditation", crit)
	lib.mu.Unlock()
	if got != nil {
		t.Errorf("entry below MinDuration matched: %+v", got)
	}
}

func TestFindLocalTieBreaksOnUseCount(t *testing.T) {
	lib := newTestLibrary(t, &fakeRecommender{}, newFakeFetcher(t))
	now := time.Now()

	colder := Recommendation{Title: "Zzz One", URL: "u1", Genre: "ambient", Mood: "angry", Duration: 180, CopyrightStatus: CopyrightCreativeCommons}
	warmer := Recommendation{Title: "Zzz Two", URL: "u2", Genre: "ambient", Mood: "angry", Duration: 180, CopyrightStatus: CopyrightCreativeCommons}
	lib.addEntryForTest(colder, 1, now, "/tmp/a.mp3")
	lib.addEntryForTest(warmer, 5, now, "/tmp/b.mp3")

	lib.mu.Lock()
	got := lib.findLocalLocked("unrelated words", DefaultCriteria())
	lib.mu.Unlock()

	if got == nil || got.Recommendation.URL != "u2" {
		t.Fatalf("got %+v, want the more-used entry", got)
	}
}

func TestLibraryFileFormat(t *testing.T) {
	fetcher := newFakeFetcher(t)
	rec := &fakeRecommender{recs: []Recommendation{calmTrack("Morning Calm", "https://cdn.example.com/morning.mp3")}}
	lib := newTestLibrary(t, rec, fetcher)

	if _, err := lib.GetMusicForContent(context.Background(), "irrelevant words", 60, nil); err != nil {
		t.Fatalf("GetMusicForContent: %v", err)
	}

	data, err := os.ReadFile(lib.path)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	var file map[string]any
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("index not valid JSON: %v", err)
	}

	meta, ok := file["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("no metadata object in %s", data)
	}
	if meta["version"] != "1.0" || meta["totalEntries"] != float64(1) {
		t.Errorf("metadata = %+v", meta)
	}

	entries, ok := file["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("entries = %+v", file["entries"])
	}
	entry := entries[0].(map[string]any)
	if entry["useCount"] != float64(1) {
		t.Errorf("useCount = %v, want 1 after the initial use", entry["useCount"])
	}
	if p, _ := entry["localPath"].(string); p == "" {
		t.Errorf("entry missing localPath: %+v", entry)
	}
	if h, _ := entry["fileHash"].(string); h == "" {
		t.Errorf("entry missing fileHash: %+v", entry)
	}
	recommendation := entry["recommendation"].(map[string]any)
	if recommendation["copyrightStatus"] != "creative_commons" {
		t.Errorf("copyrightStatus = %v", recommendation["copyrightStatus"])
	}
}

func TestLibraryLoadDropsMissingFiles(t *testing.T) {
	fetcher := newFakeFetcher(t)
	rec := &fakeRecommender{recs: []Recommendation{calmTrack("Vanishing Track", "https://cdn.example.com/v.mp3")}}

	cfg := config.MusicConfig{
		LibraryPath:     filepath.Join(t.TempDir(), "data", "music_library.json"),
		MaxCacheAgeDays: 30,
		MaxCacheFiles:   100,
	}
	lib, err := NewLibrary(cfg, rec, fetcher)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	sel, err := lib.GetMusicForContent(context.Background(), "vanishing", 60, nil)
	if err != nil || sel == nil {
		t.Fatalf("seed entry: sel=%+v err=%v", sel, err)
	}

	if err := os.Remove(sel.LocalPath); err != nil {
		t.Fatalf("remove track: %v", err)
	}

	reloaded, err := NewLibrary(cfg, rec, fetcher)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n := reloaded.Stats().TotalEntries; n != 0 {
		t.Errorf("entries = %d, want 0 after the file vanished", n)
	}
}

func TestLibraryLoadToleratesCorruptIndex(t *testing.T) {
	cfg := config.MusicConfig{
		LibraryPath:     filepath.Join(t.TempDir(), "data", "music_library.json"),
		MaxCacheAgeDays: 30,
		MaxCacheFiles:   100,
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LibraryPath), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.LibraryPath, []byte("{ not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err := NewLibrary(cfg, &fakeRecommender{}, newFakeFetcher(t))
	if err != nil {
		t.Fatalf("NewLibrary should survive a corrupt index: %v", err)
	}
	if lib.Stats().TotalEntries != 0 {
		t.Errorf("entries = %d, want 0", lib.Stats().TotalEntries)
	}
}

func TestCleanupExpired(t *testing.T) {
	lib := newTestLibrary(t, &fakeRecommender{}, newFakeFetcher(t))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lib.now = func() time.Time { return now }

	lib.addEntryForTest(calmTrack("Old", "u1"), 0, now.AddDate(0, 0, -40), "/tmp/old.mp3")
	lib.addEntryForTest(calmTrack("Fresh", "u2"), 0, now.AddDate(0, 0, -5), "/tmp/fresh.mp3")

	if removed := lib.CleanupExpired(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if lib.Stats().TotalEntries != 1 {
		t.Errorf("entries = %d, want 1", lib.Stats().TotalEntries)
	}

	if removed := lib.CleanupExpired(); removed != 0 {
		t.Errorf("second pass removed %d, want 0", removed)
	}
}

func TestOptimizeEnforcesEntryLimit(t *testing.T) {
	fetcher := newFakeFetcher(t)
	cfg := config.MusicConfig{
		LibraryPath:     filepath.Join(t.TempDir(), "data", "music_library.json"),
		MaxCacheAgeDays: 30,
		MaxCacheFiles:   2,
	}
	lib, err := NewLibrary(cfg, &fakeRecommender{}, fetcher)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}

	now := time.Now()
	paths := make(map[string]string)
	for i, tc := range []struct {
		url      string
		useCount int
	}{
		{"u1", 3},
		{"u2", 0},
		{"u3", 1},
		{"u4", 2},
	} {
		path := filepath.Join(fetcher.dir, tc.url+".mp3")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		paths[tc.url] = path
		lib.addEntryForTest(calmTrack("Track "+tc.url, tc.url), tc.useCount, now.Add(time.Duration(i)*time.Minute), path)
	}

	lib.Optimize()

	stats := lib.Stats()
	if stats.TotalEntries != 2 {
		t.Fatalf("entries = %d, want 2", stats.TotalEntries)
	}

	// The two least-used entries lose their files, the others keep them.
	for _, gone := range []string{"u2", "u3"} {
		if _, err := os.Stat(paths[gone]); !os.IsNotExist(err) {
			t.Errorf("file for %s should be gone", gone)
		}
	}
	for _, kept := range []string{"u1", "u4"} {
		if _, err := os.Stat(paths[kept]); err != nil {
			t.Errorf("file for %s should remain: %v", kept, err)
		}
	}
}

func TestSweepOrphans(t *testing.T) {
	fetcher := newFakeFetcher(t)
	lib := newTestLibrary(t, &fakeRecommender{}, fetcher)

	livePath := filepath.Join(fetcher.dir, "live.mp3")
	strayPath := filepath.Join(fetcher.dir, "stray.mp3")
	for _, p := range []string{livePath, strayPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	lib.addEntryForTest(calmTrack("Live", "u1"), 0, time.Now(), livePath)

	if removed := lib.SweepOrphans(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(livePath); err != nil {
		t.Errorf("live file removed: %v", err)
	}
	if _, err := os.Stat(strayPath); !os.IsNotExist(err) {
		t.Error("stray file survived the sweep")
	}
}

func TestPreload(t *testing.T) {
	fetcher := newFakeFetcher(t)
	fetcher.fail["https://cdn.example.com/bad.mp3"] = true
	lib := newTestLibrary(t, &fakeRecommender{}, fetcher)

	recs := []Recommendation{
		calmTrack("One", "https://cdn.example.com/one.mp3"),
		calmTrack("Two", "https://cdn.example.com/two.mp3"),
		calmTrack("Bad", "https://cdn.example.com/bad.mp3"),
	}
	results := lib.Preload(context.Background(), recs)

	if !results["https://cdn.example.com/one.mp3"] || !results["https://cdn.example.com/two.mp3"] {
		t.Errorf("results = %+v, want the good URLs to succeed", results)
	}
	if results["https://cdn.example.com/bad.mp3"] {
		t.Error("failing URL reported success")
	}

	stats := lib.Stats()
	if stats.TotalEntries != 2 {
		t.Errorf("entries = %d, want 2", stats.TotalEntries)
	}
	if stats.TotalUseCount != 0 {
		t.Errorf("preloaded entries must start unused, got total use %d", stats.TotalUseCount)
	}
	if fetcher.fetchCalls() != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.fetchCalls())
	}
}

func TestSearchEntries(t *testing.T) {
	lib := newTestLibrary(t, &fakeRecommender{}, newFakeFetcher(t))
	now := time.Now()

	jazz := Recommendation{Title: "Smoky Room", Artist: "Trio", URL: "u1", Genre: "jazz", Mood: "calm", Duration: 200, CopyrightStatus: CopyrightCreativeCommons, Source: "jamendo"}
	ambient := Recommendation{Title: "Still Water", Artist: "Solo", URL: "u2", Genre: "ambient", Mood: "calm", Duration: 180, CopyrightStatus: CopyrightCreativeCommons, Source: "incompetech"}
	unsafe := Recommendation{Title: "Smoky Covers", Artist: "Band", URL: "u3", Genre: "jazz", Mood: "calm", Duration: 190, CopyrightStatus: CopyrightCopyrighted, Source: "jamendo"}

	lib.addEntryForTest(jazz, 4, now, "/tmp/a.mp3")
	lib.addEntryForTest(ambient, 1, now, "/tmp/b.mp3")
	lib.addEntryForTest(unsafe, 9, now, "/tmp/c.mp3")

	got := lib.SearchEntries("smoky", "", "", "", true)
	if len(got) != 1 || got[0].Recommendation.URL != "u1" {
		t.Errorf("copyright-only search = %+v, want just the CC jazz entry", got)
	}

	got = lib.SearchEntries("", "", "calm", "", false)
	if len(got) != 3 {
		t.Fatalf("mood search = %d entries, want 3", len(got))
	}
	if got[0].Recommendation.URL != "u3" {
		t.Errorf("most-used entry should sort first, got %s", got[0].Recommendation.URL)
	}

	got = lib.SearchEntries("", "", "", "incompetech", false)
	if len(got) != 1 || got[0].Recommendation.URL != "u2" {
		t.Errorf("source search = %+v", got)
	}
}
