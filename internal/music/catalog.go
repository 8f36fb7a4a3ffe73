// SPDX-License-Identifier: MIT

package music

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/log"
)

// CatalogTrack is one entry in a static source catalog.
type CatalogTrack struct {
	Title      string
	Artist     string
	URL        string
	Duration   float64
	Genre      string
	Mood       string
	LicenseURL string
}

// CatalogSource serves a fixed, curated track list. Catalogs need no
// network and make recommendation results reproducible, so they also back
// the sources whose upstream APIs we do not integrate.
type CatalogSource struct {
	name       string
	status     CopyrightStatus
	confidence float64
	tracks     []CatalogTrack
	logger     zerolog.Logger
}

// NewCatalogSource builds a source named name whose tracks all share the
// given copyright status and confidence.
func NewCatalogSource(name string, status CopyrightStatus, confidence float64, tracks []CatalogTrack) *CatalogSource {
	return &CatalogSource{
		name:       name,
		status:     status,
		confidence: confidence,
		tracks:     tracks,
		logger:     log.WithComponent("music." + name),
	}
}

// Name implements Source.
func (s *CatalogSource) Name() string { return s.name }

// Search implements Source. It returns every catalog track within the
// criteria's duration bounds; scoring against the analysis happens in the
// shared ranking pass.
func (s *CatalogSource) Search(_ context.Context, _ ContentAnalysis, _ float64, criteria SearchCriteria) ([]Recommendation, error) {
	recs := make([]Recommendation, 0, len(s.tracks))
	for _, t := range s.tracks {
		if criteria.MinDuration > 0 && t.Duration < criteria.MinDuration {
			continue
		}
		if criteria.MaxDuration > 0 && t.Duration > criteria.MaxDuration {
			continue
		}
		recs = append(recs, Recommendation{
			Title:           t.Title,
			Artist:          t.Artist,
			URL:             t.URL,
			Duration:        t.Duration,
			Genre:           t.Genre,
			Mood:            t.Mood,
			CopyrightStatus: s.status,
			Confidence:      s.confidence,
			Source:          s.name,
			LicenseURL:      t.LicenseURL,
		})
	}
	s.logger.Debug().Int("tracks", len(recs)).Msg("catalog search done")
	return recs, nil
}

// NewFreeMusicArchiveSource returns the curated Free Music Archive catalog.
// All entries are Creative Commons releases.
func NewFreeMusicArchiveSource() *CatalogSource {
	return NewCatalogSource("freemusicarchive", CopyrightCreativeCommons, 0.7, []CatalogTrack{
		{
			Title:      "Night Owl",
			Artist:     "Broke For Free",
			URL:        "https://files.freemusicarchive.org/music/broke-for-free/night-owl.mp3",
			Duration:   196,
			Genre:      "electronic",
			Mood:       "energetic",
			LicenseURL: "https://creativecommons.org/licenses/by/3.0/",
		},
		{
			Title:      "Curious Process",
			Artist:     "Blue Dot Sessions",
			URL:        "https://files.freemusicarchive.org/music/blue-dot-sessions/curious-process.mp3",
			Duration:   184,
			Genre:      "ambient",
			Mood:       "calm",
			LicenseURL: "https://creativecommons.org/licenses/by-nc/4.0/",
		},
		{
			Title:      "Morning Glare",
			Artist:     "Chad Crouch",
			URL:        "https://files.freemusicarchive.org/music/chad-crouch/morning-glare.mp3",
			Duration:   213,
			Genre:      "ambient",
			Mood:       "calm",
			LicenseURL: "https://creativecommons.org/licenses/by-nc/3.0/",
		},
		{
			Title:      "Thoughtful Steps",
			Artist:     "Lee Rosevere",
			URL:        "https://files.freemusicarchive.org/music/lee-rosevere/thoughtful-steps.mp3",
			Duration:   157,
			Genre:      "electronic",
			Mood:       "neutral",
			LicenseURL: "https://creativecommons.org/licenses/by/4.0/",
		},
	})
}

// NewIncompetechSource returns the curated Incompetech catalog of Kevin
// MacLeod's royalty-free instrumentals.
func NewIncompetechSource() *CatalogSource {
	return NewCatalogSource("incompetech", CopyrightRoyaltyFree, 0.7, []CatalogTrack{
		{
			Title:      "Fluidscape",
			Artist:     "Kevin MacLeod",
			URL:        "https://incompetech.com/music/royalty-free/mp3-royaltyfree/Fluidscape.mp3",
			Duration:   272,
			Genre:      "ambient",
			Mood:       "calm",
			LicenseURL: "https://incompetech.com/music/royalty-free/licenses/",
		},
		{
			Title:      "Meditation Impromptu 02",
			Artist:     "Kevin MacLeod",
			URL:        "https://incompetech.com/music/royalty-free/mp3-royaltyfree/Meditation%20Impromptu%2002.mp3",
			Duration:   187,
			Genre:      "ambient",
			Mood:       "calm",
			LicenseURL: "https://incompetech.com/music/royalty-free/licenses/",
		},
		{
			Title:      "Inspired",
			Artist:     "Kevin MacLeod",
			URL:        "https://incompetech.com/music/royalty-free/mp3-royaltyfree/Inspired.mp3",
			Duration:   219,
			Genre:      "classical",
			Mood:       "inspiring",
			LicenseURL: "https://incompetech.com/music/royalty-free/licenses/",
		},
		{
			Title:      "Wholesome",
			Artist:     "Kevin MacLeod",
			URL:        "https://incompetech.com/music/royalty-free/mp3-royaltyfree/Wholesome.mp3",
			Duration:   195,
			Genre:      "electronic",
			Mood:       "neutral",
			LicenseURL: "https://incompetech.com/music/royalty-free/licenses/",
		},
		{
			Title:      "Deadly Roulette",
			Artist:     "Kevin MacLeod",
			URL:        "https://incompetech.com/music/royalty-free/mp3-royaltyfree/Deadly%20Roulette.mp3",
			Duration:   208,
			Genre:      "jazz",
			Mood:       "energetic",
			LicenseURL: "https://incompetech.com/music/royalty-free/licenses/",
		},
	})
}
