// SPDX-License-Identifier: MIT

// Package materials resolves the still images behind a slideshow. An
// explicit directory is enumerated as-is; in auto mode images are matched
// to script sentences through a keyword table so the same script always
// gets the same pictures.
package materials

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
)

var defaultFormats = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp"}

// Resolver enumerates and matches slideshow images.
type Resolver struct {
	formats map[string]bool
	logger  zerolog.Logger
}

// NewResolver builds a resolver honoring the configured image formats.
func NewResolver(cfg config.MaterialsConfig) *Resolver {
	formats := cfg.ImageFormats
	if len(formats) == 0 {
		formats = defaultFormats
	}
	set := make(map[string]bool, len(formats))
	for _, f := range formats {
		f = strings.ToLower(f)
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		set[f] = true
	}
	return &Resolver{formats: set, logger: log.WithComponent("materials")}
}

// List returns the supported images directly under dir in name order.
// A missing directory is a NotFound fault; an empty one returns an empty
// slice, which downstream means color-background mode.
func (r *Resolver) List(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fault.NotFound("materials.list", dir)
	}
	if !info.IsDir() {
		return nil, fault.BadInput("materials.list", fmt.Sprintf("not a directory: %s", dir))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fault.Wrap(fault.KindNotFound, "materials.list", err)
	}

	// ReadDir returns entries sorted by name, which fixes slideshow order.
	images := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if r.formats[strings.ToLower(filepath.Ext(entry.Name()))] {
			images = append(images, filepath.Join(dir, entry.Name()))
		}
	}
	r.logger.Debug().Str("dir", dir).Int("images", len(images)).Msg("materials enumerated")
	return images, nil
}

// ForScript picks one image per sentence from pool. Sentences whose
// keywords appear in an image filename get that image; the rest fall back
// to a hash-stable rotation, so repeated runs compose identical videos.
func (r *Resolver) ForScript(sentences []string, pool []string) []string {
	if len(pool) == 0 {
		return nil
	}
	picks := make([]string, len(sentences))
	for i, sentence := range sentences {
		picks[i] = r.pick(sentence, pool)
	}
	return picks
}

func (r *Resolver) pick(sentence string, pool []string) string {
	keywords := Keywords(sentence, maxKeywords)

	best, bestScore := "", 0
	for _, path := range pool {
		score := matchScore(path, keywords)
		if score > bestScore {
			best, bestScore = path, score
		}
	}
	if bestScore > 0 {
		return best
	}
	return pool[stableIndex(sentence, len(pool))]
}

// matchScore counts how many keywords occur in the normalized filename.
func matchScore(path string, keywords []string) int {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)

	score := 0
	for _, k := range keywords {
		if strings.Contains(name, k) {
			score++
		}
	}
	return score
}

func stableIndex(sentence string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sentence))
	return int(h.Sum32() % uint32(n))
}
