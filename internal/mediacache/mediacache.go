// SPDX-License-Identifier: MIT

// Package mediacache downloads remote media into a bounded local cache.
// Files are content-addressed by title hash, downloads are capped in size,
// validated against known audio signatures, written atomically, and
// deduplicated so concurrent fetches of the same URL hit the network once.
package mediacache

import (
	"context"
	"crypto/md5" // #nosec G501 -- cache keys and integrity tags, not a security boundary
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/metrics"
)

const (
	sniffLen = 12

	// downloadRetries bounds repeat attempts for transient failures.
	downloadRetries      = 2
	downloadBackoffBase  = 500 * time.Millisecond
	downloadBackoffLimit = 4 * time.Second
)

// Download describes a file the cache produced or reused.
type Download struct {
	Path   string
	Size   int64
	MD5    string
	Format string // sniffed format, "" when unknown or not sniffed
	Hit    bool
}

// Downloader fetches media into the cache directory.
type Downloader struct {
	dir       string
	maxBytes  int64
	chunkSize int
	client    *http.Client
	sem       *semaphore.Weighted
	group     singleflight.Group
	logger    zerolog.Logger
}

// New builds a downloader for cfg.Dir. The directory is created if missing.
func New(cfg config.DownloadConfig) (*Downloader, error) {
	if cfg.Dir == "" {
		return nil, fault.BadConfig("mediacache.new", "download directory not set")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fault.Wrap(fault.KindBadConfig, "mediacache.new", err)
	}

	maxBytes := cfg.MaxSizeMB << 20
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 8 << 10
	}
	concurrent := int64(cfg.MaxConcurrent)
	if concurrent <= 0 {
		concurrent = 3
	}

	return &Downloader{
		dir:       cfg.Dir,
		maxBytes:  maxBytes,
		chunkSize: chunkSize,
		client:    &http.Client{Timeout: cfg.Timeout()},
		sem:       semaphore.NewWeighted(concurrent),
		logger:    log.WithComponent("mediacache"),
	}, nil
}

// Dir returns the cache directory.
func (d *Downloader) Dir() string {
	return d.dir
}

// Fetch resolves a music recommendation's URL to a local file. Local paths
// pass through untouched; remote URLs are downloaded at most once, even under
// concurrent callers, and land as <md5(title)[:8]>_<source><ext>.
func (d *Downloader) Fetch(ctx context.Context, title, source, rawURL string) (*Download, error) {
	if path, ok := localPath(rawURL); ok {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return nil, fault.NotFound("mediacache.fetch", path)
		}
		return &Download{Path: path, Size: info.Size(), Hit: true}, nil
	}

	dest := filepath.Join(d.dir, FileName(title, source, rawURL))
	return d.fetchOnce(ctx, rawURL, dest, true)
}

// FetchURL caches an arbitrary remote file (slideshow images) under
// <md5(url)[:8]><ext>. No audio signature check is applied.
func (d *Downloader) FetchURL(ctx context.Context, rawURL, ext string) (*Download, error) {
	dest := filepath.Join(d.dir, URLFileName(rawURL, ext))
	return d.fetchOnce(ctx, rawURL, dest, false)
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL, dest string, sniffAudio bool) (*Download, error) {
	if hit := statHit(dest); hit != nil {
		metrics.RecordCacheLookup("download", "hit")
		d.logger.Debug().Str("path", dest).Msg("cache hit")
		return hit, nil
	}
	metrics.RecordCacheLookup("download", "miss")

	v, err, _ := d.group.Do(rawURL, func() (any, error) {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer d.sem.Release(1)

		// The flight may have queued behind a winner that already
		// finished this exact file.
		if hit := statHit(dest); hit != nil {
			return hit, nil
		}

		policy := retrypolicy.Builder[*Download]().
			WithBackoff(downloadBackoffBase, downloadBackoffLimit).
			WithMaxRetries(downloadRetries).
			HandleIf(func(_ *Download, err error) bool {
				return transientDownload(err)
			}).
			OnRetry(func(e failsafe.ExecutionEvent[*Download]) {
				d.logger.Warn().Err(e.LastError()).
					Str("url", rawURL).
					Int(log.FieldAttempt, e.Attempts()).
					Msg("retrying download")
			}).
			Build()
		return failsafe.NewExecutor[*Download](policy).WithContext(ctx).Get(func() (*Download, error) {
			return d.download(ctx, rawURL, dest, sniffAudio)
		})
	})
	if err != nil {
		metrics.RecordDownload("error", 0)
		return nil, err
	}
	return v.(*Download), nil
}

func statHit(dest string) *Download {
	info, err := os.Stat(dest)
	if err != nil || info.IsDir() {
		return nil
	}
	return &Download{Path: dest, Size: info.Size(), Hit: true}
}

func (d *Downloader) download(ctx context.Context, rawURL, dest string, sniffAudio bool) (*Download, error) {
	const op = "mediacache.download"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fault.Download(op, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fault.Download(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.Download(op, &fault.HTTPStatusError{Code: resp.StatusCode})
	}
	if resp.ContentLength > d.maxBytes {
		return nil, fault.Download(op, fault.ErrOversize)
	}

	pending, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, fault.Download(op, err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after CloseAtomicallyReplace

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fault.Download(op, err)
	}
	head = head[:n]
	if n < 4 {
		return nil, fault.Download(op, fault.ErrBadFormat)
	}

	format := ""
	if sniffAudio {
		known := false
		if format, known = Sniff(head); !known {
			d.logger.Warn().
				Str("url", rawURL).
				Str("header", hex.EncodeToString(head[:4])).
				Msg("unknown audio format header, accepting anyway")
		}
	}

	hash := md5.New() // #nosec G401 -- integrity tag only
	out := io.MultiWriter(pending, hash)
	if _, err := out.Write(head); err != nil {
		return nil, fault.Download(op, err)
	}

	// One extra byte past the cap proves the response is oversize without
	// reading it all.
	limited := io.LimitReader(resp.Body, d.maxBytes-int64(n)+1)
	copied, err := io.CopyBuffer(out, limited, make([]byte, d.chunkSize))
	if err != nil {
		return nil, fault.Download(op, err)
	}
	total := int64(n) + copied
	if total > d.maxBytes {
		return nil, fault.Download(op, fault.ErrOversize)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fault.Download(op, err)
	}

	metrics.RecordDownload("success", total)
	d.logger.Info().
		Str("url", rawURL).
		Str("path", dest).
		Int64("bytes", total).
		Str("format", format).
		Msg("media downloaded")

	return &Download{
		Path:   dest,
		Size:   total,
		MD5:    hex.EncodeToString(hash.Sum(nil)),
		Format: format,
	}, nil
}

// transientDownload reports whether a failed attempt is worth repeating.
// Rejections (oversize, unknown format) and client-side HTTP statuses are
// permanent; transport errors, 5xx and 429 are not.
func transientDownload(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, fault.ErrOversize) || errors.Is(err, fault.ErrBadFormat) {
		return false
	}
	var status *fault.HTTPStatusError
	if errors.As(err, &status) {
		return status.Code >= 500 || status.Code == http.StatusTooManyRequests
	}
	return true
}

// Sweep removes cache files that no live entry references. Hidden files
// (in-flight atomic writes) are left alone. Returns the number removed.
func (d *Downloader) Sweep(live map[string]bool) int {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.logger.Warn().Err(err).Msg("cache sweep: cannot list directory")
		return 0
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(d.dir, name)
		if live[path] || live[name] {
			continue
		}
		if err := os.Remove(path); err != nil {
			d.logger.Warn().Err(err).Str("path", path).Msg("cache sweep: remove failed")
			continue
		}
		metrics.RecordCacheEviction("orphan")
		removed++
	}
	if removed > 0 {
		d.logger.Info().Int("removed", removed).Msg("cache sweep: unreferenced files deleted")
	}
	return removed
}

// SweepOlderThan removes cache files last modified before cutoff. Sound
// only after the index has already expired entries of the same age, which
// is how the library maintenance pass orders the two sweeps.
func (d *Downloader) SweepOlderThan(cutoff time.Time) int {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.logger.Warn().Err(err).Msg("cache sweep: cannot list directory")
		return 0
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(d.dir, name)
		if err := os.Remove(path); err != nil {
			d.logger.Warn().Err(err).Str("path", path).Msg("cache sweep: remove failed")
			continue
		}
		metrics.RecordCacheEviction("expired")
		removed++
	}
	if removed > 0 {
		d.logger.Info().Int("removed", removed).Msg("cache sweep: expired files deleted")
	}
	return removed
}

// localPath reports whether rawURL names a local file and returns its
// filesystem path, stripping a file:// scheme when present.
func localPath(rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, true
	}
	switch u.Scheme {
	case "":
		return rawURL, true
	case "file":
		return u.Path, true
	}
	return "", false
}

// FileName derives the cache name for a recommendation:
// 8 hex chars of the title's MD5, the source, and the URL's audio extension
// (".mp3" when the URL gives no recognizable one).
func FileName(title, source, rawURL string) string {
	sum := md5.Sum([]byte(title)) // #nosec G401 -- cache key only
	return hex.EncodeToString(sum[:])[:8] + "_" + source + ExtFromURL(rawURL)
}

// URLFileName derives a cache name from the URL alone.
func URLFileName(rawURL, ext string) string {
	sum := md5.Sum([]byte(rawURL)) // #nosec G401 -- cache key only
	if ext == "" {
		ext = ExtFromURL(rawURL)
	}
	return hex.EncodeToString(sum[:])[:8] + ext
}

var audioExtensions = []string{".mp3", ".wav", ".flac", ".ogg", ".m4a", ".aac"}

// ExtFromURL picks the audio extension the URL path ends in, defaulting to
// ".mp3".
func ExtFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	lower := strings.ToLower(path)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ".mp3"
}

// FileMD5 hashes a file on disk, for verifying cache entries.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hash := md5.New() // #nosec G401 -- integrity tag only
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
