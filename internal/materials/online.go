// SPDX-License-Identifier: MIT

package materials

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/mediacache"
)

// Searcher finds stock photos for a keyword query.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]RemoteImage, error)
}

// URLFetcher caches a remote file locally. *mediacache.Downloader
// implements it.
type URLFetcher interface {
	FetchURL(ctx context.Context, rawURL, ext string) (*mediacache.Download, error)
}

// OnlineSource tops up the automatic materials library with downloaded
// stock photos. Every fetched image is filed into the library directory
// under a keyword-prefixed name, so later runs match it locally before
// going online again.
type OnlineSource struct {
	searcher Searcher
	fetcher  URLFetcher
	dir      string
	perQuery int
	logger   zerolog.Logger
}

// NewOnlineSource wires a search provider and a download cache to the
// library directory.
func NewOnlineSource(searcher Searcher, fetcher URLFetcher, dir string, perQuery int) *OnlineSource {
	if perQuery <= 0 {
		perQuery = 3
	}
	return &OnlineSource{
		searcher: searcher,
		fetcher:  fetcher,
		dir:      dir,
		perQuery: perQuery,
		logger:   log.WithComponent("materials.online"),
	}
}

// Fill downloads up to want images for the keywords and returns their
// library paths. Failures cost an image, never the slideshow: callers
// treat a short or empty result as "use what is there".
func (o *OnlineSource) Fill(ctx context.Context, keywords []string, want int) []string {
	if want <= 0 || len(keywords) == 0 {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o750); err != nil {
		o.logger.Warn().Err(err).Str("dir", o.dir).Msg("cannot create materials library")
		return nil
	}

	terms := keywords
	if len(terms) > 3 {
		terms = terms[:3]
	}
	query := strings.Join(terms, " ")

	count := want
	if count > o.perQuery {
		count = o.perQuery
	}
	results, err := o.searcher.Search(ctx, query, count)
	if err != nil {
		o.logger.Warn().Err(err).Str("query", query).Str("source", o.searcher.Name()).
			Msg("image search failed, staying local")
		return nil
	}

	var paths []string
	for _, img := range results {
		if len(paths) == want {
			break
		}
		dl, err := o.fetcher.FetchURL(ctx, img.URL, ".jpg")
		if err != nil {
			o.logger.Warn().Err(err).Str("url", img.URL).Msg("image download failed, skipping")
			continue
		}
		libPath, err := o.addToLibrary(dl.Path, keywords[0])
		if err != nil {
			o.logger.Warn().Err(err).Str("path", dl.Path).Msg("cannot file image into library")
			continue
		}
		o.logger.Debug().
			Str("path", libPath).
			Str("photographer", img.Photographer).
			Msg("image added to library")
		paths = append(paths, libPath)
	}

	o.logger.Info().Str("query", query).Int("images", len(paths)).Msg("online materials fetched")
	return paths
}

// addToLibrary copies a cached download into the library under a name the
// keyword matcher can score later: <keyword>_<cachename>.
func (o *OnlineSource) addToLibrary(cached, keyword string) (string, error) {
	dest := filepath.Join(o.dir, safeKeyword(keyword)+"_"+filepath.Base(cached))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	data, err := os.ReadFile(cached)
	if err != nil {
		return "", err
	}
	if err := renameio.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

func safeKeyword(s string) string {
	return strings.NewReplacer(" ", "_", "/", "_").Replace(s)
}
