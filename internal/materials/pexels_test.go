// SPDX-License-Identifier: MIT

package materials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mediafab/vidforge/internal/fault"
)

func testPexels(apiKey string) *PexelsSource {
	s := NewPexelsSource(apiKey)
	// Tests never wait on the politeness limiter.
	s.limiter.SetBurst(1000)
	return s
}

func TestPexelsSearchMapsPhotos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "key123" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("query") != "mountain nature" {
			t.Errorf("query = %q", q.Get("query"))
		}
		if q.Get("per_page") != "2" || q.Get("orientation") != "landscape" {
			t.Errorf("unexpected params: %v", q)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"photos": [
				{"id": 101, "photographer": "Ana Hill", "alt": "a ridge at dawn",
				 "src": {"original": "https://img.test/101-full.jpg", "large": "https://img.test/101.jpg"}},
				{"id": 102, "photographer": "Bo Chen", "alt": "",
				 "src": {"original": "https://img.test/102-full.jpg", "large": ""}},
				{"id": 103, "photographer": "Nobody", "alt": "no urls",
				 "src": {"original": "", "large": ""}}
			]
		}`))
	}))
	defer srv.Close()

	s := testPexels("key123")
	s.apiURL = srv.URL

	images, err := s.Search(context.Background(), "mountain nature", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2 (photo without urls skipped)", len(images))
	}
	if images[0].URL != "https://img.test/101.jpg" || images[0].Photographer != "Ana Hill" {
		t.Errorf("first image = %+v", images[0])
	}
	// Empty large falls back to the original rendition, empty alt to the query.
	if images[1].URL != "https://img.test/102-full.jpg" {
		t.Errorf("second URL = %q", images[1].URL)
	}
	if images[1].Alt != "mountain nature" {
		t.Errorf("second alt = %q", images[1].Alt)
	}
}

func TestPexelsSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	s := testPexels("bad-key")
	s.apiURL = srv.URL

	_, err := s.Search(context.Background(), "anything", 3)
	if !fault.IsKind(err, fault.KindCollaborator) {
		t.Fatalf("got %v, want collaborator fault", err)
	}
}

func TestPexelsSearchCapsCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("per_page"); got != "15" {
			t.Errorf("per_page = %q, want the page cap", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"photos": []}`))
	}))
	defer srv.Close()

	s := testPexels("key123")
	s.apiURL = srv.URL

	if _, err := s.Search(context.Background(), "x", 500); err != nil {
		t.Fatalf("Search: %v", err)
	}
}
