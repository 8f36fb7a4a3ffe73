// SPDX-License-Identifier: MIT

package music

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/metrics"
)

// maxRecommendations caps the ranked result list.
const maxRecommendations = 10

// Source produces candidate tracks for an analyzed script.
type Source interface {
	Name() string
	Search(ctx context.Context, analysis ContentAnalysis, targetDuration float64, criteria SearchCriteria) ([]Recommendation, error)
}

// ContentAnalyzer distills a script into music-search features.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, content string) ContentAnalysis
}

// Recommender turns a script into a ranked list of candidate tracks: one
// LLM analysis pass, then one query per enabled source in parallel, then a
// shared scoring pass over the merged results.
type Recommender struct {
	analyzer ContentAnalyzer
	sources  []Source
	logger   zerolog.Logger
}

// NewRecommender wires the configured sources. Unknown source names are
// logged and skipped.
func NewRecommender(cfg config.MusicConfig) *Recommender {
	logger := log.WithComponent("music.recommender")

	sources := make([]Source, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		switch name {
		case "jamendo":
			sources = append(sources, NewJamendoSource(cfg.JamendoClientID))
		case "freemusicarchive":
			sources = append(sources, NewFreeMusicArchiveSource())
		case "incompetech":
			sources = append(sources, NewIncompetechSource())
		default:
			logger.Warn().Str("source", name).Msg("unknown music source, skipping")
		}
	}

	return &Recommender{
		analyzer: NewAnalyzer(cfg.LLM),
		sources:  sources,
		logger:   logger,
	}
}

// NewRecommenderWith assembles a recommender from explicit parts.
func NewRecommenderWith(analyzer ContentAnalyzer, sources ...Source) *Recommender {
	return &Recommender{
		analyzer: analyzer,
		sources:  sources,
		logger:   log.WithComponent("music.recommender"),
	}
}

// Recommend returns up to maxRecommendations candidate tracks for the
// script, best first. Individual source failures are logged and skipped;
// when every source comes back empty a small built-in fallback set keeps
// the result non-empty.
func (r *Recommender) Recommend(ctx context.Context, content string, targetDuration float64, criteria SearchCriteria) []Recommendation {
	analysis := r.analyzer.Analyze(ctx, content)

	enabled := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		if criteria.AllowsSource(src.Name()) {
			enabled = append(enabled, src)
		}
	}

	results := make(chan []Recommendation, len(enabled))
	var wg sync.WaitGroup
	for _, src := range enabled {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			recs, err := src.Search(ctx, analysis, targetDuration, criteria)
			if err != nil {
				r.logger.Warn().Err(err).Str("source", src.Name()).Msg("music source query failed")
				metrics.RecordMusicSourceRequest(src.Name(), "error")
				return
			}
			metrics.RecordMusicSourceRequest(src.Name(), "success")
			results <- recs
		}(src)
	}
	wg.Wait()
	close(results)

	var merged []Recommendation
	for recs := range results {
		merged = append(merged, recs...)
	}

	ranked := Rank(merged, analysis, criteria)
	if len(ranked) == 0 {
		r.logger.Info().Msg("no candidates from any source, using fallback tracks")
		ranked = fallbackRecommendations(analysis, targetDuration)
	}
	if len(ranked) > maxRecommendations {
		ranked = ranked[:maxRecommendations]
	}

	r.logger.Info().
		Int("sources", len(enabled)).
		Int("candidates", len(merged)).
		Int("ranked", len(ranked)).
		Msg("music recommendation done")
	return ranked
}

// Rank filters out tracks failing the copyright requirement and orders the
// rest by a weighted blend of source confidence, genre fit and mood fit.
// Partial credit keeps off-genre and off-mood tracks usable when nothing
// better exists.
func Rank(recs []Recommendation, analysis ContentAnalysis, criteria SearchCriteria) []Recommendation {
	type scored struct {
		rec   Recommendation
		score float64
	}

	kept := make([]scored, 0, len(recs))
	for _, rec := range recs {
		if criteria.CopyrightOnly && !rec.SafeToUse() {
			continue
		}
		genreMatch := 0.5
		if analysis.PrefersGenre(rec.Genre) {
			genreMatch = 1.0
		}
		moodMatch := 0.7
		if rec.Mood == analysis.Mood {
			moodMatch = 1.0
		}
		kept = append(kept, scored{
			rec:   rec,
			score: rec.Confidence*0.6 + genreMatch*0.25 + moodMatch*0.15,
		})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	out := make([]Recommendation, len(kept))
	for i, s := range kept {
		out[i] = s.rec
	}
	return out
}

// fallbackRecommendations is the last resort when no source produced a
// single candidate. The entries are synthetic but keep the pipeline moving.
func fallbackRecommendations(analysis ContentAnalysis, targetDuration float64) []Recommendation {
	mood := analysis.Mood
	if mood == "" {
		mood = "neutral"
	}
	primaryGenre := "ambient"
	secondaryGenre := primaryGenre
	if len(analysis.GenrePreferences) > 0 {
		primaryGenre = analysis.GenrePreferences[0]
		secondaryGenre = primaryGenre
	}
	if len(analysis.GenrePreferences) > 1 {
		secondaryGenre = analysis.GenrePreferences[1]
	}

	return []Recommendation{
		{
			Title:           upperFirst(mood) + " Ambient Track",
			Artist:          "Free Music Library",
			URL:             "https://example.com/free-music-1.mp3",
			Duration:        math.Min(targetDuration, 240),
			Genre:           primaryGenre,
			Mood:            mood,
			CopyrightStatus: CopyrightRoyaltyFree,
			Confidence:      0.6,
			Source:          "fallback",
		},
		{
			Title:           "Inspiring " + upperFirst(mood) + " Journey",
			Artist:          "Creative Commons Collection",
			URL:             "https://example.com/free-music-2.mp3",
			Duration:        math.Min(targetDuration*0.9, 210),
			Genre:           secondaryGenre,
			Mood:            mood,
			CopyrightStatus: CopyrightCreativeCommons,
			Confidence:      0.6,
			Source:          "fallback",
		},
		{
			Title:           "Calm " + upperFirst(mood) + " Atmosphere",
			Artist:          "Public Domain Sounds",
			URL:             "https://example.com/free-music-3.mp3",
			Duration:        math.Min(targetDuration*1.1, 270),
			Genre:           "ambient",
			Mood:            "calm",
			CopyrightStatus: CopyrightPublicDomain,
			Confidence:      0.6,
			Source:          "fallback",
		},
	}
}
