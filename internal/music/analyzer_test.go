// SPDX-License-Identifier: MIT

package music

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mediafab/vidforge/internal/config"
)

func TestParseAnalysis(t *testing.T) {
	plain := `{"theme":"nature","mood":"calm","pace":"slow","genre_preferences":["ambient"],"keywords":["forest","rain"],"duration_suitable":"3-6"}`

	cases := []struct {
		name    string
		text    string
		want    ContentAnalysis
		wantErr bool
	}{
		{
			name: "plain json",
			text: plain,
			want: ContentAnalysis{
				Theme: "nature", Mood: "calm", Pace: "slow",
				GenrePreferences: []string{"ambient"},
				Keywords:         []string{"forest", "rain"},
				DurationSuitable: "3-6",
			},
		},
		{
			name: "fenced json",
			text: "```json\n" + plain + "\n```",
			want: ContentAnalysis{
				Theme: "nature", Mood: "calm", Pace: "slow",
				GenrePreferences: []string{"ambient"},
				Keywords:         []string{"forest", "rain"},
				DurationSuitable: "3-6",
			},
		},
		{
			name: "prose around the object",
			text: "Here is the analysis you asked for: {\"theme\":\"tech\"} hope it helps",
			want: ContentAnalysis{Theme: "tech"},
		},
		{name: "no json at all", text: "sorry, cannot help", wantErr: true},
		{name: "broken json", text: `{"theme": }`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseAnalysis(tc.text)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseAnalysis(%q) expected error, got %+v", tc.text, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAnalysis(%q): %v", tc.text, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseAnalysis(%q) = %+v, want %+v", tc.text, got, tc.want)
			}
		})
	}
}

func TestFillAnalysisDefaults(t *testing.T) {
	a := ContentAnalysis{Theme: "nature"}
	fillAnalysisDefaults(&a)

	if a.Theme != "nature" {
		t.Errorf("Theme overwritten: %q", a.Theme)
	}
	if a.Mood != "neutral" || a.Pace != "medium" || a.DurationSuitable != "2-5" {
		t.Errorf("defaults not filled: %+v", a)
	}
	if !reflect.DeepEqual(a.GenrePreferences, []string{"ambient", "electronic"}) {
		t.Errorf("GenrePreferences = %v", a.GenrePreferences)
	}
}

func TestDefaultAnalysis(t *testing.T) {
	a := DefaultAnalysis("morning meditation for deep focus and calm breathing")

	want := []string{"morning", "meditation", "for", "deep", "focus"}
	if !reflect.DeepEqual(a.Keywords, want) {
		t.Errorf("Keywords = %v, want %v", a.Keywords, want)
	}
	if a.Theme != "general" || a.Mood != "neutral" || a.Pace != "medium" {
		t.Errorf("unexpected defaults: %+v", a)
	}
}

func chatCompletionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal completion: %v", err)
	}
	return body
}

func TestAnalyzeParsesModelResponse(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.Contains(r.URL.Path, "chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionBody(t, `{"theme":"nature","mood":"calm","pace":"slow","genre_preferences":["ambient","classical"],"keywords":["forest"],"duration_suitable":"3-6"}`))
	}))
	defer srv.Close()

	a := NewAnalyzer(config.LLMConfig{BaseURL: srv.URL, Model: "gpt-4o-mini", APIKey: "test-key"})
	got := a.Analyze(context.Background(), "a quiet walk through the forest")

	if hits.Load() != 1 {
		t.Fatalf("server hits = %d, want 1", hits.Load())
	}
	if got.Theme != "nature" || got.Mood != "calm" {
		t.Errorf("Analyze = %+v", got)
	}
	if !reflect.DeepEqual(got.GenrePreferences, []string{"ambient", "classical"}) {
		t.Errorf("GenrePreferences = %v", got.GenrePreferences)
	}
}

func TestAnalyzeBackfillsMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionBody(t, `{"theme":"business"}`))
	}))
	defer srv.Close()

	a := NewAnalyzer(config.LLMConfig{BaseURL: srv.URL, Model: "gpt-4o-mini", APIKey: "test-key"})
	got := a.Analyze(context.Background(), "quarterly report")

	if got.Theme != "business" {
		t.Errorf("Theme = %q", got.Theme)
	}
	if got.Mood != "neutral" || got.Pace != "medium" || got.DurationSuitable != "2-5" {
		t.Errorf("missing fields not backfilled: %+v", got)
	}
}

func TestAnalyzeFallsBackOnGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionBody(t, "I am unable to produce JSON today."))
	}))
	defer srv.Close()

	a := NewAnalyzer(config.LLMConfig{BaseURL: srv.URL, Model: "gpt-4o-mini", APIKey: "test-key"})
	got := a.Analyze(context.Background(), "alpha beta gamma delta epsilon zeta")

	if got.Theme != "general" || got.Mood != "neutral" {
		t.Errorf("expected defaults, got %+v", got)
	}
	if len(got.Keywords) != 5 || got.Keywords[0] != "alpha" {
		t.Errorf("Keywords = %v, want first five words", got.Keywords)
	}
}

func TestAnalyzeFallsBackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 400 is not retried by the client, so the test stays fast.
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewAnalyzer(config.LLMConfig{BaseURL: srv.URL, Model: "gpt-4o-mini", APIKey: "test-key"})
	got := a.Analyze(context.Background(), "some script")

	if got.Theme != "general" {
		t.Errorf("expected defaults on API error, got %+v", got)
	}
}

func TestAnalyzeWithoutKeySkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	a := NewAnalyzer(config.LLMConfig{BaseURL: srv.URL, Model: "gpt-4o-mini"})
	got := a.Analyze(context.Background(), "one two three")

	if hits.Load() != 0 {
		t.Errorf("server hit %d times without an api key", hits.Load())
	}
	if got.Theme != "general" || len(got.Keywords) != 3 {
		t.Errorf("expected defaults, got %+v", got)
	}
}
