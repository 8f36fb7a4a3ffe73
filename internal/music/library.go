// SPDX-License-Identifier: MIT

package music

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/mediacache"
	"github.com/mediafab/vidforge/internal/metrics"
)

// localMatchThreshold is the minimum blended score for a library entry to
// satisfy a request without going remote.
const localMatchThreshold = 0.3

// TrackFetcher is what the library needs from the media cache.
type TrackFetcher interface {
	Fetch(ctx context.Context, title, source, rawURL string) (*mediacache.Download, error)
	Dir() string
	Sweep(live map[string]bool) int
}

// TrackRecommender produces ranked candidate tracks for a script.
type TrackRecommender interface {
	Recommend(ctx context.Context, content string, targetDuration float64, criteria SearchCriteria) []Recommendation
}

// Selection is a chosen track resolved to a local file.
type Selection struct {
	Recommendation Recommendation
	LocalPath      string
}

// Library owns the persistent index of downloaded background tracks. All
// access to the index goes through its lock; the JSON file on disk is
// rewritten atomically after every mutation.
type Library struct {
	path        string
	maxAgeDays  int
	maxFiles    int
	recommender TrackRecommender
	fetcher     TrackFetcher
	logger      zerolog.Logger
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*LibraryEntry // keyed by recommendation URL
}

// NewLibrary loads the index from cfg.LibraryPath. Entries whose local file
// has vanished are dropped on load; a corrupt index file is logged and
// replaced by an empty one rather than failing startup.
func NewLibrary(cfg config.MusicConfig, recommender TrackRecommender, fetcher TrackFetcher) (*Library, error) {
	path := cfg.LibraryPath
	if path == "" {
		path = "data/music_library.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fault.Wrap(fault.KindBadConfig, "music.library", err)
	}

	l := &Library{
		path:        path,
		maxAgeDays:  cfg.MaxCacheAgeDays,
		maxFiles:    cfg.MaxCacheFiles,
		recommender: recommender,
		fetcher:     fetcher,
		logger:      log.WithComponent("music.library"),
		now:         time.Now,
		entries:     make(map[string]*LibraryEntry),
	}
	l.load()

	l.logger.Info().Int("entries", len(l.entries)).Str("path", path).Msg("music library ready")
	return l, nil
}

// libraryFile is the on-disk index layout.
type libraryFile struct {
	Metadata libraryMetadata `json:"metadata"`
	Entries  []LibraryEntry  `json:"entries"`
}

type libraryMetadata struct {
	Version      string    `json:"version"`
	LastUpdated  time.Time `json:"lastUpdated"`
	TotalEntries int       `json:"totalEntries"`
}

func (l *Library) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Info().Msg("no music library file yet, starting empty")
		} else {
			l.logger.Error().Err(err).Str("path", l.path).Msg("cannot read music library, starting empty")
		}
		return
	}

	var file libraryFile
	if err := json.Unmarshal(data, &file); err != nil {
		l.logger.Error().Err(err).Str("path", l.path).Msg("music library not parseable, starting empty")
		return
	}

	for i := range file.Entries {
		entry := file.Entries[i]
		if entry.Recommendation.URL == "" {
			continue
		}
		if _, err := os.Stat(entry.LocalPath); err != nil {
			l.logger.Warn().Str("path", entry.LocalPath).Msg("cached track file missing, dropping entry")
			continue
		}
		l.entries[entry.Recommendation.URL] = &entry
	}
	l.logger.Info().Int("entries", len(l.entries)).Msg("music library loaded")
}

// saveLocked rewrites the index atomically. Callers hold the lock.
func (l *Library) saveLocked() error {
	entries := make([]LibraryEntry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Recommendation.URL < entries[j].Recommendation.URL
	})

	file := libraryFile{
		Metadata: libraryMetadata{
			Version:      "1.0",
			LastUpdated:  l.now().UTC(),
			TotalEntries: len(entries),
		},
		Entries: entries,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	pf, err := renameio.NewPendingFile(l.path, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pf.Cleanup() //nolint:errcheck // best-effort temp cleanup

	if _, err := pf.Write(data); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

func (l *Library) saveLockedLogged() {
	if err := l.saveLocked(); err != nil {
		l.logger.Warn().Err(err).Msg("music library save failed")
	}
}

// GetMusicForContent resolves a background track for the script: a local
// library match first, then a fresh recommendation whose best candidate is
// downloaded and cached. A nil criteria selects the default profile.
// Returns nil without error when no track can be found at all.
func (l *Library) GetMusicForContent(ctx context.Context, content string, targetDuration float64, criteria *SearchCriteria) (*Selection, error) {
	crit := DefaultCriteria()
	if criteria != nil {
		crit = *criteria
	}

	l.mu.Lock()
	if entry := l.findLocalLocked(content, crit); entry != nil {
		entry.MarkUsed(l.now())
		l.saveLockedLogged()
		sel := &Selection{Recommendation: entry.Recommendation, LocalPath: entry.LocalPath}
		l.mu.Unlock()

		metrics.RecordCacheLookup("library", "hit")
		l.logger.Info().Str("title", sel.Recommendation.Title).Msg("matched track in library")
		return sel, nil
	}
	l.mu.Unlock()
	metrics.RecordCacheLookup("library", "miss")

	recs := l.recommender.Recommend(ctx, content, targetDuration, crit)
	if len(recs) == 0 {
		l.logger.Warn().Msg("no music recommendations found")
		return nil, nil
	}

	return l.downloadAndCache(ctx, recs[0])
}

// findLocalLocked scans the index for the best non-expired entry matching
// the request. Ties on score break toward the more-used entry, then by URL
// so selection stays deterministic.
func (l *Library) findLocalLocked(content string, crit SearchCriteria) *LibraryEntry {
	now := l.now()
	contentWords := strings.Fields(strings.ToLower(content))

	var best *LibraryEntry
	var bestScore float64
	for _, entry := range l.entries {
		rec := entry.Recommendation

		if entry.Expired(now, l.maxAgeDays) {
			continue
		}
		if crit.CopyrightOnly && !rec.SafeToUse() {
			continue
		}
		if crit.MaxDuration > 0 && rec.Duration > crit.MaxDuration {
			continue
		}
		if crit.MinDuration > 0 && rec.Duration < crit.MinDuration {
			continue
		}

		titleLower := strings.ToLower(rec.Title)
		titleMatch := 0.0
		for _, w := range contentWords {
			if strings.Contains(titleLower, w) {
				titleMatch = 1.0
				break
			}
		}
		genreMatch := 0.0
		if containsString(crit.Genres, rec.Genre) {
			genreMatch = 1.0
		}
		moodMatch := 0.0
		if containsString(crit.Moods, rec.Mood) {
			moodMatch = 1.0
		}

		score := titleMatch*0.4 + genreMatch*0.3 + moodMatch*0.3
		if score < localMatchThreshold {
			continue
		}

		if best == nil || score > bestScore ||
			(score == bestScore && entry.UseCount > best.UseCount) ||
			(score == bestScore && entry.UseCount == best.UseCount && rec.URL < best.Recommendation.URL) {
			best = entry
			bestScore = score
		}
	}
	return best
}

// downloadAndCache fetches the track, records a fresh entry and marks it
// used once for the requesting job.
func (l *Library) downloadAndCache(ctx context.Context, rec Recommendation) (*Selection, error) {
	dl, err := l.fetcher.Fetch(ctx, rec.Title, rec.Source, rec.URL)
	if err != nil {
		return nil, err
	}

	now := l.now()
	entry := &LibraryEntry{
		Recommendation: rec,
		LocalPath:      dl.Path,
		DownloadedAt:   now,
		FileHash:       dl.MD5,
	}
	entry.MarkUsed(now)

	l.mu.Lock()
	l.entries[rec.URL] = entry
	l.saveLockedLogged()
	l.mu.Unlock()

	l.logger.Info().Str("title", rec.Title).Str("path", dl.Path).Msg("cached new track")
	return &Selection{Recommendation: rec, LocalPath: dl.Path}, nil
}

// Preload downloads a batch of recommendations into the cache ahead of
// time. Concurrency is bounded by the fetcher. The result maps each URL to
// whether its download succeeded.
func (l *Library) Preload(ctx context.Context, recs []Recommendation) map[string]bool {
	results := make(map[string]bool, len(recs))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, rec := range recs {
		wg.Add(1)
		go func(rec Recommendation) {
			defer wg.Done()
			dl, err := l.fetcher.Fetch(ctx, rec.Title, rec.Source, rec.URL)
			if err != nil {
				l.logger.Warn().Err(err).Str("title", rec.Title).Msg("preload failed")
				resultsMu.Lock()
				results[rec.URL] = false
				resultsMu.Unlock()
				return
			}

			l.mu.Lock()
			if _, exists := l.entries[rec.URL]; !exists {
				l.entries[rec.URL] = &LibraryEntry{
					Recommendation: rec,
					LocalPath:      dl.Path,
					DownloadedAt:   l.now(),
					FileHash:       dl.MD5,
				}
			}
			l.mu.Unlock()

			resultsMu.Lock()
			results[rec.URL] = true
			resultsMu.Unlock()
		}(rec)
	}
	wg.Wait()

	l.mu.Lock()
	l.saveLockedLogged()
	l.mu.Unlock()

	ok := 0
	for _, success := range results {
		if success {
			ok++
		}
	}
	l.logger.Info().Int("ok", ok).Int("total", len(recs)).Msg("preload done")
	return results
}

// CleanupExpired drops entries past the cache age. Their files stay on disk
// until the next orphan sweep.
func (l *Library) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for url, entry := range l.entries {
		if entry.Expired(now, l.maxAgeDays) {
			delete(l.entries, url)
			metrics.RecordCacheEviction("expired")
			removed++
		}
	}
	if removed > 0 {
		l.saveLockedLogged()
		l.logger.Info().Int("removed", removed).Msg("expired library entries dropped")
	}
	return removed
}

// SweepOrphans deletes files in the download directory that no live entry
// references.
func (l *Library) SweepOrphans() int {
	l.mu.Lock()
	live := make(map[string]bool, len(l.entries))
	for _, entry := range l.entries {
		live[filepath.Base(entry.LocalPath)] = true
	}
	l.mu.Unlock()

	return l.fetcher.Sweep(live)
}

// enforceLimitLocked removes least-used entries above the configured cap,
// deleting their files. Callers hold the lock.
func (l *Library) enforceLimitLocked() int {
	if l.maxFiles <= 0 || len(l.entries) <= l.maxFiles {
		return 0
	}

	ordered := make([]*LibraryEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.UseCount != b.UseCount {
			return a.UseCount < b.UseCount
		}
		if !a.lastUsedOrZero().Equal(b.lastUsedOrZero()) {
			return a.lastUsedOrZero().Before(b.lastUsedOrZero())
		}
		if !a.DownloadedAt.Equal(b.DownloadedAt) {
			return a.DownloadedAt.Before(b.DownloadedAt)
		}
		return a.Recommendation.URL < b.Recommendation.URL
	})

	removed := 0
	for _, entry := range ordered[:len(ordered)-l.maxFiles] {
		if err := os.Remove(entry.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn().Err(err).Str("path", entry.LocalPath).Msg("cannot remove cached track")
			continue
		}
		delete(l.entries, entry.Recommendation.URL)
		metrics.RecordCacheEviction("lru")
		removed++
	}
	return removed
}

// Optimize runs the full maintenance pass: expiry, orphan files, then the
// least-used overflow beyond the entry cap.
func (l *Library) Optimize() {
	expired := l.CleanupExpired()
	orphans := l.SweepOrphans()

	l.mu.Lock()
	lru := l.enforceLimitLocked()
	if lru > 0 {
		l.saveLockedLogged()
	}
	l.mu.Unlock()

	l.logger.Info().
		Int("expired", expired).
		Int("orphans", orphans).
		Int("lru", lru).
		Msg("library optimization done")
}

// LibraryStats summarizes the cached collection.
type LibraryStats struct {
	TotalEntries    int
	TotalSizeBytes  int64
	Genres          map[string]int
	Sources         map[string]int
	CopyrightStatus map[string]int
	TotalUseCount   int
	AverageUseCount float64
	LibraryPath     string
}

// Stats reports entry counts, on-disk size and per-field distributions.
func (l *Library) Stats() LibraryStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := LibraryStats{
		TotalEntries:    len(l.entries),
		Genres:          make(map[string]int),
		Sources:         make(map[string]int),
		CopyrightStatus: make(map[string]int),
		LibraryPath:     l.path,
	}
	for _, entry := range l.entries {
		rec := entry.Recommendation
		stats.Genres[rec.Genre]++
		stats.Sources[rec.Source]++
		stats.CopyrightStatus[string(rec.CopyrightStatus)]++
		stats.TotalUseCount += entry.UseCount
		if info, err := os.Stat(entry.LocalPath); err == nil {
			stats.TotalSizeBytes += info.Size()
		}
	}
	if stats.TotalEntries > 0 {
		stats.AverageUseCount = float64(stats.TotalUseCount) / float64(stats.TotalEntries)
	}
	return stats
}

// SearchEntries filters the index by optional genre, mood and source plus a
// free-text query over title, artist, genre and mood. Most-used entries
// come first.
func (l *Library) SearchEntries(query, genre, mood, source string, copyrightOnly bool) []LibraryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	queryLower := strings.ToLower(query)
	var out []LibraryEntry
	for _, entry := range l.entries {
		rec := entry.Recommendation
		if copyrightOnly && !rec.SafeToUse() {
			continue
		}
		if genre != "" && rec.Genre != genre {
			continue
		}
		if mood != "" && rec.Mood != mood {
			continue
		}
		if source != "" && rec.Source != source {
			continue
		}
		if queryLower != "" {
			haystack := strings.ToLower(rec.Title + " " + rec.Artist + " " + rec.Genre + " " + rec.Mood)
			if !strings.Contains(haystack, queryLower) {
				continue
			}
		}
		out = append(out, *entry)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UseCount != out[j].UseCount {
			return out[i].UseCount > out[j].UseCount
		}
		return out[i].Recommendation.URL < out[j].Recommendation.URL
	})
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
