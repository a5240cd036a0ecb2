package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http/cookiejar"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sonnixhq/songfetch/internal/fetch"
	"github.com/sonnixhq/songfetch/internal/songlist"
)

const (
	defaultSearchTimeout = 10 * time.Second
	defaultCacheSize     = 256
)

// FailureReason classifies why no video could be resolved.
type FailureReason string

const (
	NoResults    FailureReason = "noResults"
	AllShortForm FailureReason = "allShortForm"
	NetworkError FailureReason = "networkError"
)

// Failure reports that every tier was exhausted without a usable video.
type Failure struct {
	Phrase string
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("resolving %q: %s: %v", f.Phrase, f.Reason, f.Err)
	}
	return fmt.Sprintf("resolving %q: %s", f.Phrase, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// Resolved is a search hit accepted for download.
type Resolved struct {
	Request         songlist.Request
	VideoID         string
	Title           string
	DurationSeconds int // 0 when the winning tier could not tell
	Tier            string
}

// Options configures a Resolver. The zero value works; an empty APIKey
// just means the api tier starts disabled.
type Options struct {
	APIKey    string
	Timeout   time.Duration
	NoBrowser bool
	CacheSize int
}

// Resolver runs the tier fallthrough and remembers successful lookups,
// so repeated requests for the same song skip the network entirely.
type Resolver struct {
	tiers []Searcher
	cache *lru.Cache[string, Resolved]
}

func New(opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSearchTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.APIKey == "" {
		log.Printf("[resolver] no api key configured, searches start at the http tier")
	}

	jar, _ := cookiejar.New(nil)
	tiers := []Searcher{
		newAPISearcher(opts.APIKey, fetch.NewHTTPClient(opts.Timeout)),
		newScrapeSearcher(fetch.NewSessionClient(jar, opts.Timeout)),
	}
	if !opts.NoBrowser {
		tiers = append(tiers, newBrowserSearcher(jar))
	}

	cache, _ := lru.New[string, Resolved](opts.CacheSize)
	return &Resolver{tiers: tiers, cache: cache}
}

// Resolve finds a downloadable long-form video for the request, trying
// each tier in order and retrying once per tier with broader phrasing.
func (r *Resolver) Resolve(ctx context.Context, req songlist.Request) (Resolved, error) {
	key := cacheKey(req.Phrase())
	if cached, ok := r.cache.Get(key); ok {
		cached.Request = req
		return cached, nil
	}
	resolved, err := r.resolve(ctx, req, nil)
	if err != nil {
		return Resolved{}, err
	}
	r.cache.Add(key, resolved)
	return resolved, nil
}

// ResolveExcluding behaves like Resolve but refuses specific video IDs.
// Used to find a replacement when the first pick turns out to be
// undownloadable. Results bypass the cache in both directions.
func (r *Resolver) ResolveExcluding(ctx context.Context, req songlist.Request, exclude map[string]bool) (Resolved, error) {
	return r.resolve(ctx, req, exclude)
}

func (r *Resolver) resolve(ctx context.Context, req songlist.Request, exclude map[string]bool) (Resolved, error) {
	phrase := req.Phrase()
	alternate := alternatePhrase(phrase)

	sawShortForm := false
	var lastNetErr error

	for _, tier := range r.tiers {
		if err := ctx.Err(); err != nil {
			return Resolved{}, err
		}

		attempts := []string{phrase}
		if alternate != "" {
			attempts = append(attempts, alternate)
		}
		for i, attempt := range attempts {
			candidates, err := tier.Search(ctx, attempt)
			if err != nil {
				if errors.Is(err, errQuotaExhausted) {
					break
				}
				if ctx.Err() != nil {
					return Resolved{}, ctx.Err()
				}
				log.Printf("[resolver] %s tier failed for %q: %v", tier.Name(), attempt, err)
				lastNetErr = err
				break
			}

			pick, shortOnly := pickCandidate(candidates, exclude)
			if pick.ID != "" {
				if i > 0 {
					log.Printf("[resolver] %q matched via broader phrasing %q", phrase, attempt)
				}
				return Resolved{
					Request:         req,
					VideoID:         pick.ID,
					Title:           candidateTitle(pick, req),
					DurationSeconds: pick.DurationSeconds,
					Tier:            tier.Name(),
				}, nil
			}
			if shortOnly {
				sawShortForm = true
			}
		}
	}

	failure := &Failure{Phrase: phrase, Reason: NoResults}
	switch {
	case sawShortForm:
		failure.Reason = AllShortForm
	case lastNetErr != nil:
		failure.Reason = NetworkError
		failure.Err = lastNetErr
	}
	return Resolved{}, failure
}

// pickCandidate returns the first long-form candidate. Unknown durations
// are accepted; the download stage re-checks the real length. The second
// return reports whether the list held nothing but short-form videos.
func pickCandidate(candidates []Candidate, exclude map[string]bool) (Candidate, bool) {
	usable := 0
	for _, c := range candidates {
		if exclude[c.ID] {
			continue
		}
		usable++
		if c.ShortFormHint {
			continue
		}
		if c.DurationSeconds > 0 && c.DurationSeconds < shortFormMaxSeconds {
			continue
		}
		return c, false
	}
	return Candidate{}, usable > 0
}

func candidateTitle(c Candidate, req songlist.Request) string {
	if c.Title != "" {
		return c.Title
	}
	return req.Phrase()
}

func cacheKey(phrase string) string {
	return strings.ToLower(phrase)
}
