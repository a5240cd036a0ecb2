package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
)

const (
	apiEndpoint   = "https://www.googleapis.com/youtube/v3/search"
	apiMaxResults = 10
)

// errQuotaExhausted marks the API tier as unusable for the rest of the
// process. The resolver skips the tier instead of counting this as a
// network failure.
var errQuotaExhausted = errors.New("youtube api quota exhausted")

// apiSearcher queries the YouTube Data API v3. The medium duration
// filter keeps shorts out of the result set entirely, so candidates
// carry no duration and no short-form hint.
type apiSearcher struct {
	key      string
	client   *http.Client
	endpoint string
	quotaOut atomic.Bool
}

func newAPISearcher(key string, client *http.Client) *apiSearcher {
	s := &apiSearcher{key: key, client: client, endpoint: apiEndpoint}
	if key == "" {
		s.quotaOut.Store(true)
	}
	return s
}

func (s *apiSearcher) Name() string { return "api" }

func (s *apiSearcher) Search(ctx context.Context, phrase string) ([]Candidate, error) {
	if s.quotaOut.Load() {
		return nil, errQuotaExhausted
	}

	query := url.Values{}
	query.Set("part", "snippet")
	query.Set("q", phrase)
	query.Set("type", "video")
	query.Set("videoDuration", "medium")
	query.Set("maxResults", strconv.Itoa(apiMaxResults))
	query.Set("key", s.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube api search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		// Almost always quotaExceeded; either way the key is done for today.
		s.quotaOut.Store(true)
		log.Printf("[resolver] youtube api returned 403, disabling api tier")
		return nil, errQuotaExhausted
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube api search: unexpected response %d", resp.StatusCode)
	}

	var decoded struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding youtube api response: %w", err)
	}

	candidates := make([]Candidate, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		if len(item.ID.VideoID) != videoIDLen {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:    item.ID.VideoID,
			Title: html.UnescapeString(item.Snippet.Title),
		})
	}
	return candidates, nil
}
