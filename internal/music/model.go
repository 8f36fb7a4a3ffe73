// SPDX-License-Identifier: MIT

// Package music recommends, downloads and caches background tracks. A
// recommender fans out over copyright-safe catalog sources after an LLM pass
// distills the script into search features; a library keeps the downloaded
// tracks on disk with a JSON index and serves repeat requests locally.
package music

import (
	"fmt"
	"time"
)

// CopyrightStatus classifies how a track may be used.
type CopyrightStatus string

const (
	CopyrightPublicDomain    CopyrightStatus = "public_domain"
	CopyrightCreativeCommons CopyrightStatus = "creative_commons"
	CopyrightRoyaltyFree     CopyrightStatus = "royalty_free"
	CopyrightUnknown         CopyrightStatus = "unknown"
	CopyrightCopyrighted     CopyrightStatus = "copyrighted"
)

// SafeToUse reports whether tracks under this status can be published
// without clearing rights.
func (s CopyrightStatus) SafeToUse() bool {
	switch s {
	case CopyrightPublicDomain, CopyrightCreativeCommons, CopyrightRoyaltyFree:
		return true
	}
	return false
}

// ParseCopyrightStatus maps a config string to a status, defaulting to
// unknown for anything unrecognized.
func ParseCopyrightStatus(s string) CopyrightStatus {
	switch CopyrightStatus(s) {
	case CopyrightPublicDomain, CopyrightCreativeCommons, CopyrightRoyaltyFree, CopyrightCopyrighted:
		return CopyrightStatus(s)
	}
	return CopyrightUnknown
}

// Recommendation is one candidate track from a source.
type Recommendation struct {
	Title           string          `json:"title"`
	Artist          string          `json:"artist"`
	URL             string          `json:"url"`
	Duration        float64         `json:"duration"`
	Genre           string          `json:"genre"`
	Mood            string          `json:"mood"`
	CopyrightStatus CopyrightStatus `json:"copyrightStatus"`
	Confidence      float64         `json:"confidence"`
	Source          string          `json:"source"`
	LicenseURL      string          `json:"licenseUrl,omitempty"`
}

// SafeToUse reports whether the track's license permits publication.
func (r Recommendation) SafeToUse() bool {
	return r.CopyrightStatus.SafeToUse()
}

// DurationFormatted renders the duration as m:ss.
func (r Recommendation) DurationFormatted() string {
	total := int(r.Duration)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// SearchCriteria narrows both library matches and remote queries. Zero
// duration bounds mean unbounded; an empty Sources list means every
// configured source.
type SearchCriteria struct {
	Genres        []string
	Moods         []string
	MinDuration   float64
	MaxDuration   float64
	CopyrightOnly bool
	Sources       []string
}

// DefaultCriteria returns the stock search profile for background tracks.
func DefaultCriteria() SearchCriteria {
	return SearchCriteria{
		Genres:        []string{"ambient", "electronic", "classical", "jazz"},
		Moods:         []string{"calm", "inspiring", "neutral"},
		CopyrightOnly: true,
	}
}

// AllowsSource reports whether the criteria admit the named source.
func (c SearchCriteria) AllowsSource(name string) bool {
	if len(c.Sources) == 0 {
		return true
	}
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// ContentAnalysis is the feature set the LLM extracts from a script. The
// JSON tags are the wire contract with the model.
type ContentAnalysis struct {
	Theme            string   `json:"theme"`
	Mood             string   `json:"mood"`
	Pace             string   `json:"pace"`
	GenrePreferences []string `json:"genre_preferences"`
	Keywords         []string `json:"keywords"`
	DurationSuitable string   `json:"duration_suitable"`
}

// PrefersGenre reports whether the analysis lists the genre.
func (a ContentAnalysis) PrefersGenre(genre string) bool {
	for _, g := range a.GenrePreferences {
		if g == genre {
			return true
		}
	}
	return false
}

// LibraryEntry is one cached track in the library index.
type LibraryEntry struct {
	Recommendation Recommendation `json:"recommendation"`
	LocalPath      string         `json:"localPath"`
	DownloadedAt   time.Time      `json:"downloadedAt"`
	LastUsedAt     *time.Time     `json:"lastUsedAt,omitempty"`
	UseCount       int            `json:"useCount"`
	FileHash       string         `json:"fileHash,omitempty"`
}

// MarkUsed records one more use at the given time.
func (e *LibraryEntry) MarkUsed(now time.Time) {
	e.UseCount++
	e.LastUsedAt = &now
}

// Expired reports whether the entry is older than maxAgeDays, measured from
// the last use when there is one, otherwise from the download time.
func (e *LibraryEntry) Expired(now time.Time, maxAgeDays int) bool {
	if maxAgeDays <= 0 {
		return false
	}
	basis := e.DownloadedAt
	if e.LastUsedAt != nil {
		basis = *e.LastUsedAt
	}
	return now.Sub(basis) > time.Duration(maxAgeDays)*24*time.Hour
}

// lastUsedOrZero orders entries with no recorded use before everything else.
func (e *LibraryEntry) lastUsedOrZero() time.Time {
	if e.LastUsedAt == nil {
		return time.Time{}
	}
	return *e.LastUsedAt
}
