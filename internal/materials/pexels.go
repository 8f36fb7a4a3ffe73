// SPDX-License-Identifier: MIT

package materials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
)

const (
	pexelsAPIURL       = "https://api.pexels.com/v1"
	pexelsQueryTimeout = 10 * time.Second
	pexelsPageCap      = 15
)

// RemoteImage is one stock photo a search provider offers for download.
type RemoteImage struct {
	ID           int64
	URL          string
	Photographer string
	Alt          string
}

// PexelsSource queries the Pexels photo API. Search requires an API key;
// without one the source is not constructed at all, so every instance can
// assume a key is present.
type PexelsSource struct {
	apiURL  string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewPexelsSource builds the source for the given API key.
func NewPexelsSource(apiKey string) *PexelsSource {
	return &PexelsSource{
		apiURL: pexelsAPIURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: pexelsQueryTimeout},
		// The free tier allows 200 requests per hour.
		limiter: rate.NewLimiter(rate.Every(20*time.Second), 3),
		logger:  log.WithComponent("materials.pexels"),
	}
}

// Name implements Searcher.
func (s *PexelsSource) Name() string { return "pexels" }

// Search returns up to count landscape photos matching the query.
func (s *PexelsSource) Search(ctx context.Context, query string, count int) ([]RemoteImage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fault.Wrap(fault.KindCollaborator, "pexels.search", err)
	}
	if count <= 0 {
		count = 3
	}
	if count > pexelsPageCap {
		count = pexelsPageCap
	}

	params := url.Values{
		"query":       {query},
		"per_page":    {strconv.Itoa(count)},
		"orientation": {"landscape"},
	}
	endpoint := s.apiURL + "/search?" + params.Encode()
	s.logger.Debug().Str("query", query).Msg("querying pexels")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindCollaborator, "pexels.search", err)
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fault.Collab("pexels", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.Collab("pexels", &fault.HTTPStatusError{Code: resp.StatusCode})
	}

	var decoded pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fault.Collab("pexels", err)
	}

	images := make([]RemoteImage, 0, len(decoded.Photos))
	for _, p := range decoded.Photos {
		u := p.Src.Large
		if u == "" {
			u = p.Src.Original
		}
		if u == "" {
			continue
		}
		alt := p.Alt
		if alt == "" {
			alt = query
		}
		images = append(images, RemoteImage{
			ID:           p.ID,
			URL:          u,
			Photographer: p.Photographer,
			Alt:          alt,
		})
	}

	s.logger.Info().Str("query", query).Int("photos", len(images)).Msg("pexels search done")
	return images, nil
}

type pexelsResponse struct {
	Photos []pexelsPhoto `json:"photos"`
}

type pexelsPhoto struct {
	ID           int64     `json:"id"`
	Photographer string    `json:"photographer"`
	Alt          string    `json:"alt"`
	Src          pexelsSrc `json:"src"`
}

type pexelsSrc struct {
	Original string `json:"original"`
	Large    string `json:"large"`
}
