// SPDX-License-Identifier: MIT

package music

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testJamendo(clientID string) *JamendoSource {
	s := NewJamendoSource(clientID)
	// Tests never wait on the politeness limiter.
	s.limiter.SetBurst(1000)
	return s
}

func TestJamendoSearchMapsTracks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client_id") != "test123" {
			t.Errorf("client_id = %q", q.Get("client_id"))
		}
		if q.Get("format") != "json" || q.Get("limit") != "20" {
			t.Errorf("unexpected params: %v", q)
		}
		if q.Get("include") != "musicinfo" || q.Get("groupby") != "artist_id" {
			t.Errorf("unexpected params: %v", q)
		}
		if !strings.Contains(q.Get("search"), "calm") {
			t.Errorf("search = %q, want the mood in it", q.Get("search"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"headers": {"status": "success", "code": 0},
			"results": [
				{"id": "1214935", "name": "Peaceful Morning", "artist_name": "Aria North", "duration": 214, "genre": "ambient"},
				{"id": "7700321", "name": "Thunder Run", "artist_name": "Voltline", "duration": 188, "genre": "rock"},
				{"id": "", "name": "No ID Track", "artist_name": "Nobody", "duration": 100, "genre": "pop"}
			]
		}`))
	}))
	defer srv.Close()

	s := testJamendo("test123")
	s.apiURL = srv.URL

	analysis := ContentAnalysis{
		Mood:             "calm",
		GenrePreferences: []string{"ambient", "classical"},
		Keywords:         []string{"morning", "walk"},
	}
	recs, err := s.Search(context.Background(), analysis, 120, DefaultCriteria())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d recs, want 2 (track without id skipped)", len(recs))
	}

	first := recs[0]
	if first.URL != "https://storage.jamendo.com/download/track/1214935/mp32/" {
		t.Errorf("download URL = %q", first.URL)
	}
	if first.LicenseURL != "https://www.jamendo.com/track/1214935" {
		t.Errorf("license URL = %q", first.LicenseURL)
	}
	if first.Confidence != 0.85 || first.Source != "jamendo" {
		t.Errorf("confidence/source = %v/%q", first.Confidence, first.Source)
	}
	if first.Genre != "ambient" || first.Mood != "calm" {
		t.Errorf("genre/mood = %q/%q", first.Genre, first.Mood)
	}
	if first.CopyrightStatus != CopyrightCreativeCommons {
		t.Errorf("copyright = %s", first.CopyrightStatus)
	}

	// rock folds into electronic, and nothing in "Thunder Run" reads calm.
	second := recs[1]
	if second.Genre != "electronic" || second.Mood != "neutral" {
		t.Errorf("second genre/mood = %q/%q", second.Genre, second.Mood)
	}
}

func TestJamendoSearchDurationFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("duration-between"); got != "60-300" {
			t.Errorf("duration-between = %q, want 60-300", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"headers": {"status": "success"}, "results": []}`))
	}))
	defer srv.Close()

	s := testJamendo("test123")
	s.apiURL = srv.URL

	criteria := DefaultCriteria()
	criteria.MinDuration = 60
	criteria.MaxDuration = 300
	if _, err := s.Search(context.Background(), ContentAnalysis{}, 120, criteria); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestJamendoSearchAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"headers": {"status": "failed", "error_message": "missing client_id"}, "results": []}`))
	}))
	defer srv.Close()

	s := testJamendo("bogus")
	s.apiURL = srv.URL

	recs, err := s.Search(context.Background(), ContentAnalysis{}, 120, DefaultCriteria())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recs from failed API response, want 0", len(recs))
	}
}

func TestJamendoSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	s := testJamendo("test123")
	s.apiURL = srv.URL

	recs, err := s.Search(context.Background(), ContentAnalysis{}, 120, DefaultCriteria())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recs on HTTP error, want 0", len(recs))
	}
}

func TestJamendoSearchUnreachableFallsBackToSimulated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	s := testJamendo("test123")
	s.apiURL = srv.URL

	analysis := ContentAnalysis{Mood: "energetic", GenrePreferences: []string{"jazz"}}
	recs, err := s.Search(context.Background(), analysis, 120, DefaultCriteria())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d simulated recs, want 3", len(recs))
	}
	if recs[0].Title != "Inspiring Energetic Journey" || recs[0].Genre != "jazz" {
		t.Errorf("first simulated rec = %+v", recs[0])
	}
	for _, rec := range recs {
		if rec.Confidence != 0.7 || rec.Source != "jamendo" {
			t.Errorf("simulated rec = %+v", rec)
		}
	}
}

func TestJamendoWithoutClientIDServesSimulated(t *testing.T) {
	s := testJamendo("")
	recs, err := s.Search(context.Background(), ContentAnalysis{Mood: "calm"}, 90, DefaultCriteria())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d recs, want 3", len(recs))
	}
	// Durations scale off the target: min(90, 240), min(90*0.8, 200), min(90*1.2, 300).
	if recs[0].Duration != 90 || math.Abs(recs[1].Duration-72) > 1e-9 {
		t.Errorf("durations = %v, %v", recs[0].Duration, recs[1].Duration)
	}
}

func TestSearchQuery(t *testing.T) {
	analysis := ContentAnalysis{
		Mood:             "calm",
		Keywords:         []string{"a", "b", "c", "d", "e"},
		GenrePreferences: []string{"ambient", "classical", "jazz"},
	}
	got := searchQuery(analysis)
	want := "a b c calm ambient classical"
	if got != want {
		t.Errorf("searchQuery = %q, want %q", got, want)
	}

	if got := searchQuery(ContentAnalysis{}); got != "" {
		t.Errorf("empty analysis query = %q, want empty", got)
	}
}

func TestMapJamendoGenre(t *testing.T) {
	cases := map[string]string{
		"Electronic": "electronic",
		"ambient":    "ambient",
		"classical":  "classical",
		"jazz":       "jazz",
		"rock":       "electronic",
		"pop":        "electronic",
		"hiphop":     "electronic",
		"polka":      "electronic",
		"":           "electronic",
	}
	for in, want := range cases {
		if got := mapJamendoGenre(in); got != want {
			t.Errorf("mapJamendoGenre(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInferMood(t *testing.T) {
	cases := []struct {
		title string
		genre string
		want  string
	}{
		{"Peaceful Meditation", "classical", "calm"},
		{"Anything At All", "ambient", "calm"},
		{"Upbeat Dance Night", "electronic", "energetic"},
		{"Dream Big", "classical", "inspiring"},
		{"Thunder Run", "electronic", "neutral"},
	}
	for _, tc := range cases {
		if got := inferMood(tc.title, tc.genre); got != tc.want {
			t.Errorf("inferMood(%q, %q) = %q, want %q", tc.title, tc.genre, got, tc.want)
		}
	}
}
