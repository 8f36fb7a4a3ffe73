// SPDX-License-Identifier: MIT

package materials

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
)

func writeImages(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestListFiltersAndSorts(t *testing.T) {
	dir := writeImages(t, "b.png", "a.jpg", "notes.txt", "c.JPEG", "clip.mp4")
	r := NewResolver(config.MaterialsConfig{})

	images, err := r.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.JPEG"),
	}
	if !reflect.DeepEqual(images, want) {
		t.Errorf("List = %v, want %v", images, want)
	}
}

func TestListMissingDir(t *testing.T) {
	r := NewResolver(config.MaterialsConfig{})
	_, err := r.List(filepath.Join(t.TempDir(), "nope"))
	if !fault.IsKind(err, fault.KindNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestListEmptyDirIsNotAnError(t *testing.T) {
	r := NewResolver(config.MaterialsConfig{})
	images, err := r.List(t.TempDir())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("List = %v, want empty", images)
	}
}

func TestListHonorsConfiguredFormats(t *testing.T) {
	dir := writeImages(t, "a.jpg", "b.gif")
	r := NewResolver(config.MaterialsConfig{ImageFormats: []string{"gif"}})

	images, err := r.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(images) != 1 || filepath.Base(images[0]) != "b.gif" {
		t.Errorf("List = %v, want only b.gif", images)
	}
}

func TestKeywordsMatchesTable(t *testing.T) {
	got := Keywords("我在学习Python编程", 5)
	want := []string{"coding", "programming", "python", "learning", "education"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keywords = %v, want %v", got, want)
	}
}

func TestKeywordsTruncates(t *testing.T) {
	got := Keywords("我在学习Python编程", 3)
	want := []string{"coding", "programming", "python"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keywords = %v, want %v", got, want)
	}
}

func TestKeywordsFallsBackToGeneric(t *testing.T) {
	got := Keywords("早上好", 5)
	want := []string{"abstract", "background", "design", "modern"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keywords = %v, want %v", got, want)
	}
}

func TestForScriptPrefersKeywordMatches(t *testing.T) {
	pool := []string{
		"/lib/city-night.jpg",
		"/lib/forest-path.jpg",
		"/lib/mountain_sunrise.jpg",
	}
	r := NewResolver(config.MaterialsConfig{})

	picks := r.ForScript([]string{"爬山看风景", "走进森林深处"}, pool)
	if len(picks) != 2 {
		t.Fatalf("got %d picks, want 2", len(picks))
	}
	if picks[0] != "/lib/mountain_sunrise.jpg" {
		t.Errorf("picks[0] = %q, want mountain image", picks[0])
	}
	if picks[1] != "/lib/forest-path.jpg" {
		t.Errorf("picks[1] = %q, want forest image", picks[1])
	}
}

func TestForScriptStableFallback(t *testing.T) {
	pool := []string{"/lib/one.jpg", "/lib/two.jpg", "/lib/three.jpg"}
	r := NewResolver(config.MaterialsConfig{})

	first := r.ForScript([]string{"早上好", "晚上好"}, pool)
	second := r.ForScript([]string{"早上好", "晚上好"}, pool)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("picks differ across runs: %v vs %v", first, second)
	}
}

func TestForScriptEmptyPool(t *testing.T) {
	r := NewResolver(config.MaterialsConfig{})
	if picks := r.ForScript([]string{"你好"}, nil); picks != nil {
		t.Errorf("picks = %v, want nil for empty pool", picks)
	}
}
