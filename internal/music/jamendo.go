// SPDX-License-Identifier: MIT

package music

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
)

const (
	jamendoAPIURL       = "https://api.jamendo.com/v3.0"
	jamendoDownloadURL  = "https://storage.jamendo.com/download/track/%s/mp32/"
	jamendoLicenseURL   = "https://www.jamendo.com/track/%s"
	jamendoConfidence   = 0.85
	jamendoSearchLimit  = "20"
	jamendoResultCap    = 10
	jamendoQueryTimeout = 15 * time.Second
)

// JamendoSource queries the Jamendo track API. Tracks there are Creative
// Commons licensed and downloadable without authentication; the search API
// itself needs a client ID. Without one the source serves a small simulated
// result set so the pipeline stays usable.
type JamendoSource struct {
	apiURL   string
	clientID string
	client   *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewJamendoSource builds the source. An empty clientID switches it to
// simulated results.
func NewJamendoSource(clientID string) *JamendoSource {
	return &JamendoSource{
		apiURL:   jamendoAPIURL,
		clientID: clientID,
		client:   &http.Client{Timeout: jamendoQueryTimeout},
		// Jamendo's free tier allows far more, this just keeps batch runs polite.
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		logger:  log.WithComponent("music.jamendo"),
	}
}

// Name implements Source.
func (s *JamendoSource) Name() string { return "jamendo" }

// Search implements Source. Transport failures degrade to the simulated
// catalog; an API-level rejection returns no results.
func (s *JamendoSource) Search(ctx context.Context, analysis ContentAnalysis, targetDuration float64, criteria SearchCriteria) ([]Recommendation, error) {
	if s.clientID == "" {
		s.logger.Debug().Msg("no jamendo client id, serving simulated results")
		return s.simulated(analysis, targetDuration), nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fault.Wrap(fault.KindCollaborator, "jamendo.search", err)
	}

	query := searchQuery(analysis)
	params := url.Values{
		"client_id": {s.clientID},
		"format":    {"json"},
		"limit":     {jamendoSearchLimit},
		"include":   {"musicinfo"},
		"groupby":   {"artist_id"},
	}
	if query != "" {
		params.Set("search", query)
	}
	if criteria.MinDuration > 0 {
		maxDur := criteria.MaxDuration
		if maxDur <= 0 {
			maxDur = 600
		}
		params.Set("duration-between", fmt.Sprintf("%d-%d", int(criteria.MinDuration), int(maxDur)))
	}

	endpoint := s.apiURL + "/tracks/?" + params.Encode()
	s.logger.Debug().Str("query", query).Msg("querying jamendo")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindCollaborator, "jamendo.search", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("jamendo unreachable, serving simulated results")
		return s.simulated(analysis, targetDuration), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn().Int("status", resp.StatusCode).Msg("jamendo api rejected request")
		return nil, nil
	}

	var decoded jamendoResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		s.logger.Warn().Err(err).Msg("jamendo response not decodable, serving simulated results")
		return s.simulated(analysis, targetDuration), nil
	}

	if decoded.Headers.Status == "failed" {
		s.logger.Warn().Str("reason", decoded.Headers.ErrorMessage).Msg("jamendo api reported failure")
		return nil, nil
	}

	recs := make([]Recommendation, 0, jamendoResultCap)
	for _, track := range decoded.Results {
		if len(recs) == jamendoResultCap {
			break
		}
		if track.ID == "" {
			continue
		}

		title := track.Name
		if title == "" {
			title = "Unknown Track"
		}
		artist := track.ArtistName
		if artist == "" {
			artist = "Unknown Artist"
		}
		duration := track.Duration
		if duration <= 0 {
			duration = 180
		}
		genre := mapJamendoGenre(track.Genre)

		recs = append(recs, Recommendation{
			Title:           title,
			Artist:          artist,
			URL:             fmt.Sprintf(jamendoDownloadURL, track.ID),
			Duration:        duration,
			Genre:           genre,
			Mood:            inferMood(title, genre),
			CopyrightStatus: CopyrightCreativeCommons,
			Confidence:      jamendoConfidence,
			Source:          "jamendo",
			LicenseURL:      fmt.Sprintf(jamendoLicenseURL, track.ID),
		})
	}

	s.logger.Info().Int("tracks", len(recs)).Msg("jamendo search done")
	return recs, nil
}

type jamendoResponse struct {
	Headers jamendoHeaders `json:"headers"`
	Results []jamendoTrack `json:"results"`
}

type jamendoHeaders struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type jamendoTrack struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ArtistName string  `json:"artist_name"`
	Duration   float64 `json:"duration"`
	Genre      string  `json:"genre"`
}

// searchQuery joins a handful of analysis terms: up to three keywords, the
// mood, and up to two preferred genres.
func searchQuery(analysis ContentAnalysis) string {
	terms := make([]string, 0, 6)
	keywords := analysis.Keywords
	if len(keywords) > 3 {
		keywords = keywords[:3]
	}
	terms = append(terms, keywords...)
	if analysis.Mood != "" {
		terms = append(terms, analysis.Mood)
	}
	genres := analysis.GenrePreferences
	if len(genres) > 2 {
		genres = genres[:2]
	}
	terms = append(terms, genres...)
	return strings.Join(terms, " ")
}

// mapJamendoGenre folds Jamendo's tag vocabulary into the small genre set
// the matcher works with.
func mapJamendoGenre(genre string) string {
	switch strings.ToLower(genre) {
	case "electronic", "ambient", "classical", "jazz":
		return strings.ToLower(genre)
	case "rock", "pop", "hiphop":
		return "electronic"
	default:
		return "electronic"
	}
}

var (
	calmKeywords      = []string{"ambient", "calm", "relax", "peaceful", "meditation", "soft"}
	energeticKeywords = []string{"energetic", "upbeat", "fast", "dance", "party"}
	inspiringKeywords = []string{"inspire", "motivate", "uplift", "hope", "dream"}
)

// inferMood guesses a mood tag from the track title, with the genre as a
// fallback signal for ambient material.
func inferMood(title, genre string) string {
	lower := strings.ToLower(title)
	switch {
	case containsAny(lower, calmKeywords) || genre == "ambient":
		return "calm"
	case containsAny(lower, energeticKeywords):
		return "energetic"
	case containsAny(lower, inspiringKeywords):
		return "inspiring"
	default:
		return "neutral"
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// simulated returns a deterministic Jamendo-shaped result set for use when
// the API cannot be reached.
func (s *JamendoSource) simulated(analysis ContentAnalysis, targetDuration float64) []Recommendation {
	mood := analysis.Mood
	if mood == "" {
		mood = "calm"
	}
	genre := "electronic"
	if len(analysis.GenrePreferences) > 0 {
		genre = analysis.GenrePreferences[0]
	}

	entries := []struct {
		title    string
		artist   string
		trackID  string
		duration float64
		genre    string
	}{
		{"Inspiring " + upperFirst(mood) + " Journey", "Creative Commons Artist", "12345", math.Min(targetDuration, 240), genre},
		{"Ambient " + upperFirst(mood) + " Soundscape", "Open Music Collective", "67890", math.Min(targetDuration*0.8, 200), "ambient"},
		{"Electronic " + upperFirst(mood) + " Waves", "Digital Sound Artists", "54321", math.Min(targetDuration*1.2, 300), "electronic"},
	}

	recs := make([]Recommendation, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, Recommendation{
			Title:           e.title,
			Artist:          e.artist,
			URL:             fmt.Sprintf(jamendoDownloadURL, e.trackID),
			Duration:        e.duration,
			Genre:           e.genre,
			Mood:            mood,
			CopyrightStatus: CopyrightCreativeCommons,
			Confidence:      0.7,
			Source:          "jamendo",
			LicenseURL:      fmt.Sprintf(jamendoLicenseURL, e.trackID),
		})
	}
	return recs
}

func upperFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
