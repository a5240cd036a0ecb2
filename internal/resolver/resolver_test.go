package resolver

import (
	"context"
	"errors"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sonnixhq/songfetch/internal/songlist"
)

type fakeTier struct {
	name    string
	results map[string][]Candidate
	err     error
	calls   []string
}

func (t *fakeTier) Name() string { return t.name }

func (t *fakeTier) Search(_ context.Context, phrase string) ([]Candidate, error) {
	t.calls = append(t.calls, phrase)
	if t.err != nil {
		return nil, t.err
	}
	return t.results[phrase], nil
}

func newTestResolver(tiers ...Searcher) *Resolver {
	cache, _ := lru.New[string, Resolved](16)
	return &Resolver{tiers: tiers, cache: cache}
}

func songRequest(title, artist string) songlist.Request {
	return songlist.Request{Title: title, Artist: artist, RawLine: title + " by " + artist}
}

func TestResolveFirstTierWins(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	api := &fakeTier{name: "api", results: map[string][]Candidate{
		req.Phrase(): {{ID: "dQw4w9WgXcQ", Title: "Hurt (Official Video)", DurationSeconds: 217}},
	}}
	scrape := &fakeTier{name: "http"}

	resolved, err := newTestResolver(api, scrape).Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.VideoID != "dQw4w9WgXcQ" || resolved.Tier != "api" {
		t.Errorf("resolved = %+v", resolved)
	}
	if resolved.Title != "Hurt (Official Video)" {
		t.Errorf("title = %q", resolved.Title)
	}
	if resolved.Request != req {
		t.Errorf("request not carried through: %+v", resolved.Request)
	}
	if len(scrape.calls) != 0 {
		t.Errorf("scrape tier called %d times, want 0", len(scrape.calls))
	}
}

func TestResolveFallsThroughTiers(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	api := &fakeTier{name: "api", err: errors.New("dial tcp: i/o timeout")}
	scrape := &fakeTier{name: "http", results: map[string][]Candidate{
		req.Phrase(): {{ID: "kJQP7kiw5Fk", DurationSeconds: 281}},
	}}

	resolved, err := newTestResolver(api, scrape).Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Tier != "http" {
		t.Errorf("tier = %q, want http", resolved.Tier)
	}
}

func TestResolvePrefersLongForm(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	tier := &fakeTier{name: "http", results: map[string][]Candidate{
		req.Phrase(): {
			{ID: "9bZkp7q19f0", ShortFormHint: true},
			{ID: "aaaaaaaaaaa", DurationSeconds: 45},
			{ID: "kJQP7kiw5Fk", DurationSeconds: 200},
		},
	}}

	resolved, err := newTestResolver(tier).Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.VideoID != "kJQP7kiw5Fk" {
		t.Errorf("video = %q, want the long-form hit", resolved.VideoID)
	}
}

func TestResolveAcceptsUnknownDuration(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	tier := &fakeTier{name: "api", results: map[string][]Candidate{
		req.Phrase(): {{ID: "dQw4w9WgXcQ"}},
	}}

	resolved, err := newTestResolver(tier).Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("video = %q", resolved.VideoID)
	}
}

func TestResolveAllShortForm(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	short := []Candidate{
		{ID: "9bZkp7q19f0", ShortFormHint: true},
		{ID: "aaaaaaaaaaa", DurationSeconds: 30},
	}
	tier := &fakeTier{name: "http", results: map[string][]Candidate{
		req.Phrase(): short,
		"Hurt":       short,
	}}

	_, err := newTestResolver(tier).Resolve(context.Background(), req)
	var failure *Failure
	if !errors.As(err, &failure) || failure.Reason != AllShortForm {
		t.Fatalf("err = %v, want allShortForm failure", err)
	}
}

func TestResolveNoResults(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	_, err := newTestResolver(&fakeTier{name: "api"}, &fakeTier{name: "http"}).Resolve(context.Background(), req)
	var failure *Failure
	if !errors.As(err, &failure) || failure.Reason != NoResults {
		t.Fatalf("err = %v, want noResults failure", err)
	}
	if failure.Phrase != req.Phrase() {
		t.Errorf("phrase = %q", failure.Phrase)
	}
}

func TestResolveNetworkError(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	netErr := errors.New("connection refused")
	tiers := []Searcher{
		&fakeTier{name: "api", err: netErr},
		&fakeTier{name: "http", err: netErr},
	}

	_, err := newTestResolver(tiers...).Resolve(context.Background(), req)
	var failure *Failure
	if !errors.As(err, &failure) || failure.Reason != NetworkError {
		t.Fatalf("err = %v, want networkError failure", err)
	}
	if !errors.Is(err, netErr) {
		t.Errorf("underlying error not wrapped: %v", err)
	}
}

func TestResolveRetriesWithBroaderPhrasing(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	tier := &fakeTier{name: "http", results: map[string][]Candidate{
		"Hurt": {{ID: "dQw4w9WgXcQ", DurationSeconds: 217}},
	}}

	resolved, err := newTestResolver(tier).Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("video = %q", resolved.VideoID)
	}
	want := []string{"Hurt by Johnny Cash", "Hurt"}
	if len(tier.calls) != len(want) || tier.calls[0] != want[0] || tier.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", tier.calls, want)
	}
}

func TestResolveQuotaExhaustionSkipsTier(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	api := &fakeTier{name: "api", err: errQuotaExhausted}
	scrape := &fakeTier{name: "http"}

	_, err := newTestResolver(api, scrape).Resolve(context.Background(), req)
	var failure *Failure
	if !errors.As(err, &failure) || failure.Reason != NoResults {
		t.Fatalf("err = %v, want noResults (quota exhaustion is not a network failure)", err)
	}
	if len(api.calls) != 1 {
		t.Errorf("api tier called %d times, want 1", len(api.calls))
	}
}

func TestResolveCachesSuccess(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	tier := &fakeTier{name: "api", results: map[string][]Candidate{
		req.Phrase(): {{ID: "dQw4w9WgXcQ", DurationSeconds: 217}},
	}}
	r := newTestResolver(tier)

	first, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if first.VideoID != second.VideoID {
		t.Errorf("cache returned different video: %q vs %q", first.VideoID, second.VideoID)
	}
	if len(tier.calls) != 1 {
		t.Errorf("tier called %d times, want 1", len(tier.calls))
	}
}

func TestResolveExcluding(t *testing.T) {
	req := songRequest("Hurt", "Johnny Cash")
	tier := &fakeTier{name: "http", results: map[string][]Candidate{
		req.Phrase(): {
			{ID: "dQw4w9WgXcQ", DurationSeconds: 217},
			{ID: "kJQP7kiw5Fk", DurationSeconds: 281},
		},
	}}
	r := newTestResolver(tier)

	// Prime the cache with the first pick, then demand a different one.
	first, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("first pick = %q", first.VideoID)
	}

	second, err := r.ResolveExcluding(context.Background(), req, map[string]bool{"dQw4w9WgXcQ": true})
	if err != nil {
		t.Fatalf("ResolveExcluding: %v", err)
	}
	if second.VideoID != "kJQP7kiw5Fk" {
		t.Errorf("replacement = %q, want the next candidate", second.VideoID)
	}
}

func TestResolveCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tier := &fakeTier{name: "api"}
	_, err := newTestResolver(tier).Resolve(ctx, songRequest("Hurt", "Johnny Cash"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(tier.calls) != 0 {
		t.Errorf("tier called despite cancellation")
	}
}

func TestSearchVariations(t *testing.T) {
	got := searchVariations("Hurt by Johnny Cash")
	want := []string{"Hurt", "Hurt audio", "Hurt music", "Hurt song", "Hurt cover"}
	if len(got) != len(want) {
		t.Fatalf("variations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("variations[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSearchVariationsStripsOfficial(t *testing.T) {
	got := searchVariations("Thunder official")
	if got[0] != "Thunder" {
		t.Errorf("base = %q, want %q", got[0], "Thunder")
	}
}

func TestAlternatePhrase(t *testing.T) {
	tests := []struct {
		phrase string
		want   string
	}{
		{phrase: "Hurt by Johnny Cash", want: "Hurt"},
		{phrase: "Thunder", want: "Thunder audio"},
	}
	for _, tt := range tests {
		if got := alternatePhrase(tt.phrase); got != tt.want {
			t.Errorf("alternatePhrase(%q) = %q, want %q", tt.phrase, got, tt.want)
		}
	}
}
