package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Media cache and download metrics.

var (
	// CacheLookupsTotal counts cache lookups by kind and result.
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_cache_lookups_total",
		Help: "Total number of cache lookups, by kind (download/library) and result (hit/miss).",
	}, []string{"kind", "result"})

	// DownloadsTotal counts download attempts by outcome.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_downloads_total",
		Help: "Total number of media downloads, by outcome (success/error).",
	}, []string{"outcome"})

	// DownloadBytesTotal counts bytes fetched from remote sources.
	DownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidforge_download_bytes_total",
		Help: "Total bytes downloaded from remote media sources.",
	})

	// CacheEvictionsTotal counts evicted cache entries by reason.
	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_cache_evictions_total",
		Help: "Total number of cache entries evicted, by reason (expired/orphan/lru).",
	}, []string{"reason"})

	// MusicSourceRequestsTotal counts recommendation queries per source and outcome.
	MusicSourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_music_source_requests_total",
		Help: "Total number of music source queries, by source and outcome.",
	}, []string{"source", "outcome"})
)

// RecordCacheLookup increments the lookup counter.
// result: "hit" or "miss"
func RecordCacheLookup(kind, result string) {
	CacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// RecordDownload increments the download counter and byte total.
func RecordDownload(outcome string, bytes int64) {
	DownloadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		DownloadBytesTotal.Add(float64(bytes))
	}
}

// RecordCacheEviction increments the eviction counter.
func RecordCacheEviction(reason string) {
	CacheEvictionsTotal.WithLabelValues(reason).Inc()
}

// RecordMusicSourceRequest increments the per-source query counter.
func RecordMusicSourceRequest(source, outcome string) {
	MusicSourceRequestsTotal.WithLabelValues(source, outcome).Inc()
}
