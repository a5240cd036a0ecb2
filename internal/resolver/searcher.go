// Package resolver turns song requests into concrete YouTube videos.
//
// Three search tiers run in order: the Data API (accurate but quota
// limited), a results-page scrape, and a headless browser as the last
// resort. Each tier implements the same Searcher interface so the
// fallthrough logic never cares how candidates were produced.
package resolver

import "context"

const (
	// videoIDLen is the fixed length of a YouTube video ID.
	videoIDLen = 11

	// shortFormMaxSeconds is the duration below which a video counts as
	// short-form and is never accepted for a song request.
	shortFormMaxSeconds = 60

	// maxCandidates caps how many results a tier hands back per search.
	maxCandidates = 15
)

// Candidate is a single search hit before short-form filtering.
type Candidate struct {
	ID              string
	Title           string
	DurationSeconds int // 0 when the tier cannot tell
	ShortFormHint   bool
}

// Searcher is one search tier. Search returns candidates in ranking
// order; an empty slice with a nil error means the tier answered but
// found nothing.
type Searcher interface {
	Name() string
	Search(ctx context.Context, phrase string) ([]Candidate, error)
}
