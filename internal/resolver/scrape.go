package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
)

var (
	initialDataPattern = regexp.MustCompile(`(?s)var ytInitialData\s*=\s*(\{.*?\});`)
	videoIDPattern     = regexp.MustCompile(`"videoId":"([a-zA-Z0-9_-]{11})"`)
	shortsPattern      = regexp.MustCompile(`"shorts/([a-zA-Z0-9_-]{11})"`)
)

// scrapeSearcher extracts candidates from the public results page. It
// prefers the embedded ytInitialData JSON, which carries titles and
// durations, and falls back to a coarse ID scan when the page layout
// shifts under it.
type scrapeSearcher struct {
	client  *http.Client
	baseURL string
}

func newScrapeSearcher(client *http.Client) *scrapeSearcher {
	return &scrapeSearcher{client: client, baseURL: "https://www.youtube.com"}
}

func (s *scrapeSearcher) Name() string { return "http" }

func (s *scrapeSearcher) Search(ctx context.Context, phrase string) ([]Candidate, error) {
	searchURL := s.baseURL + "/results?search_query=" + url.QueryEscape(phrase)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("results page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("results page: unexpected response %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading results page: %w", err)
	}

	if match := initialDataPattern.FindSubmatch(body); match != nil {
		var payload map[string]any
		if err := json.Unmarshal(match[1], &payload); err == nil {
			if candidates := collectVideoCandidates(payload); len(candidates) > 0 {
				return candidates, nil
			}
		}
	}
	return scanVideoIDs(body), nil
}

// scanVideoIDs is the raw-regex fallback. IDs that also appear under a
// shorts path get flagged so the caller skips them.
func scanVideoIDs(body []byte) []Candidate {
	shorts := make(map[string]bool)
	for _, match := range shortsPattern.FindAllSubmatch(body, -1) {
		shorts[string(match[1])] = true
	}

	seen := make(map[string]bool)
	var candidates []Candidate
	for _, match := range videoIDPattern.FindAllSubmatch(body, -1) {
		id := string(match[1])
		if seen[id] {
			continue
		}
		seen[id] = true
		candidates = append(candidates, Candidate{ID: id, ShortFormHint: shorts[id]})
		if len(candidates) >= maxCandidates {
			break
		}
	}
	return candidates
}
