// Package batch drives an approved song list through the acquisition
// pipeline: resolve each request to a video, then pull artwork and a
// 192k MP3 for it. A bounded worker pool processes items; results come
// back in request order regardless of which worker finished first.
package batch

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sonnixhq/songfetch/internal/fetch"
	"github.com/sonnixhq/songfetch/internal/progress"
	"github.com/sonnixhq/songfetch/internal/resolver"
	"github.com/sonnixhq/songfetch/internal/songlist"
)

const (
	// DefaultWorkers bounds concurrent downloads. More than three trips
	// rate limiting on the media endpoints.
	DefaultWorkers = 3

	// itemAttempts is the initial try plus two retries for transient
	// failures. Permanent failures never retry.
	itemAttempts = 3

	defaultRetryDelay  = 2 * time.Second
	defaultItemTimeout = 5 * time.Minute
)

// ErrBatchActive is returned when a run is requested while another batch
// still holds the pipeline.
var ErrBatchActive = errors.New("a batch is already running")

// ItemStatus is the terminal outcome for one requested song.
type ItemStatus string

const (
	StatusSuccess          ItemStatus = "success"
	StatusResolutionFailed ItemStatus = "resolutionFailed"
	StatusDownloadFailed   ItemStatus = "downloadFailed"
	StatusSkippedShortForm ItemStatus = "skippedShortForm"
	StatusCancelled        ItemStatus = "cancelled"
)

// Result is the outcome for a single requested song.
type Result struct {
	Request       songlist.Request `json:"request"`
	Status        ItemStatus       `json:"status"`
	VideoID       string           `json:"video_id,omitempty"`
	Title         string           `json:"title,omitempty"`
	Tier          string           `json:"tier,omitempty"`
	AudioPath     string           `json:"audio_path,omitempty"`
	ThumbnailPath string           `json:"thumbnail_path,omitempty"`
	Err           error            `json:"-"`
	Error         string           `json:"error,omitempty"`
}

// Summary aggregates a finished batch. Results are in request order and
// cover every request, including ones cancellation never dispatched.
type Summary struct {
	Results   []Result      `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Cancelled int           `json:"cancelled"`
	Elapsed   time.Duration `json:"-"`
}

// VideoResolver finds a video for a song request.
type VideoResolver interface {
	Resolve(ctx context.Context, req songlist.Request) (resolver.Resolved, error)
	ResolveExcluding(ctx context.Context, req songlist.Request, exclude map[string]bool) (resolver.Resolved, error)
}

// AudioFetcher downloads and stores a video's artifacts.
type AudioFetcher interface {
	Audio(ctx context.Context, videoID, baseName string, track fetch.Track, fn fetch.ProgressFunc) (string, error)
	Thumbnail(ctx context.Context, videoID, baseName string) (string, error)
}

// Options tunes a single run. Zero values mean defaults.
type Options struct {
	Workers     int
	ItemTimeout time.Duration
	RetryDelay  time.Duration
}

// Orchestrator runs one batch at a time.
type Orchestrator struct {
	resolver VideoResolver
	fetcher  AudioFetcher
	active   atomic.Bool
}

func New(res VideoResolver, f AudioFetcher) *Orchestrator {
	return &Orchestrator{resolver: res, fetcher: f}
}

// Active reports whether a batch currently holds the pipeline.
func (o *Orchestrator) Active() bool {
	return o.active.Load()
}

// Run processes the requests and reports per-item outcomes in request
// order. Cancelling ctx stops dispatching new items; items already in
// flight run to completion on their own timeout and their results are
// kept. Only one run may be active at a time.
func (o *Orchestrator) Run(ctx context.Context, requests []songlist.Request, state *progress.State, opts Options) (Summary, error) {
	if len(requests) == 0 {
		return Summary{}, errors.New("no songs to process")
	}
	if !o.active.CompareAndSwap(false, true) {
		return Summary{}, ErrBatchActive
	}
	defer o.active.Store(false)

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(requests) {
		workers = len(requests)
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaultItemTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	state.Start()
	start := time.Now()
	log.Printf("[batch] %s: %d songs, %d workers", state.ID(), len(requests), workers)

	type task struct {
		index int
		req   songlist.Request
	}
	tasks := make(chan task)
	results := make([]Result, len(requests))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				results[t.index] = o.processItem(ctx, t.index, t.req, state, opts)
			}
		}()
	}

dispatch:
	for i, req := range requests {
		select {
		case <-ctx.Done():
			log.Printf("[batch] %s: cancelled, waiting for in-flight items", state.ID())
			break dispatch
		case tasks <- task{index: i, req: req}:
		}
	}
	close(tasks)
	wg.Wait()

	// Items the cancel kept from dispatch get a result entry but stay out
	// of the completed counter; the batch status says why they stopped.
	for i := range results {
		if results[i].Status == "" {
			results[i] = Result{Request: requests[i], Status: StatusCancelled}
		}
	}

	summary := Summary{Results: results, Elapsed: time.Since(start)}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			summary.Succeeded++
		case StatusSkippedShortForm:
			summary.Skipped++
		case StatusCancelled:
			summary.Cancelled++
		default:
			summary.Failed++
		}
	}

	switch {
	case ctx.Err() != nil:
		state.Cancel()
	case summary.Succeeded == 0 && summary.Skipped == 0 && summary.Failed > 0:
		state.Fail("every song in the batch failed")
	default:
		state.Complete()
	}

	log.Printf("[batch] %s: done in %s (%d ok, %d failed, %d skipped, %d cancelled)",
		state.ID(), summary.Elapsed.Round(time.Second), summary.Succeeded, summary.Failed, summary.Skipped, summary.Cancelled)
	return summary, nil
}

// processItem runs the full pipeline for one song. The item gets its own
// timeout detached from the batch context, so a batch cancel lets it
// finish instead of killing it mid-write.
func (o *Orchestrator) processItem(ctx context.Context, index int, req songlist.Request, state *progress.State, opts Options) Result {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.ItemTimeout)
	defer cancel()

	result := Result{Request: req}
	fail := func(status ItemStatus, err error) Result {
		result.Status = status
		result.Err = err
		if err != nil {
			result.Error = err.Error()
		}
		state.ItemDone(index, string(status), result.Error)
		return result
	}

	state.SetStage(index, "resolving")
	resolved, err := o.resolveWithRetry(itemCtx, req, opts.RetryDelay)
	if err != nil {
		var failure *resolver.Failure
		if errors.As(err, &failure) && failure.Reason == resolver.AllShortForm {
			return fail(StatusSkippedShortForm, err)
		}
		return fail(StatusResolutionFailed, err)
	}
	result.VideoID = resolved.VideoID
	result.Title = resolved.Title
	result.Tier = resolved.Tier

	baseName := fetch.CleanBaseName(req.Phrase())
	track := fetch.Track{Title: req.Title, Artist: req.Artist}

	state.SetStage(index, "downloading")

	// Artwork and audio are independent transfers; run them together.
	var (
		audioPath     string
		audioResolved resolver.Resolved
		thumbPath     string
	)
	group, groupCtx := errgroup.WithContext(itemCtx)
	group.Go(func() error {
		path, final, err := o.fetchAudio(groupCtx, index, resolved, req, baseName, track, state, opts.RetryDelay)
		if err != nil {
			return err
		}
		audioPath, audioResolved = path, final
		return nil
	})
	group.Go(func() error {
		path, err := o.fetcher.Thumbnail(groupCtx, resolved.VideoID, baseName)
		if err != nil {
			// Artwork is best-effort; the track is still worth keeping.
			log.Printf("[batch] thumbnail for %q: %v", req.Phrase(), err)
			return nil
		}
		thumbPath = path
		return nil
	})
	if err := group.Wait(); err != nil {
		if errors.Is(err, fetch.ErrShortForm) {
			return fail(StatusSkippedShortForm, err)
		}
		return fail(StatusDownloadFailed, err)
	}

	result.Status = StatusSuccess
	result.AudioPath = audioPath
	result.ThumbnailPath = thumbPath
	result.VideoID = audioResolved.VideoID
	result.Title = audioResolved.Title
	result.Tier = audioResolved.Tier
	state.ItemDone(index, string(StatusSuccess), "")
	return result
}

func (o *Orchestrator) resolveWithRetry(ctx context.Context, req songlist.Request, delay time.Duration) (resolver.Resolved, error) {
	var lastErr error
	for attempt := 1; attempt <= itemAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, backoff(delay, attempt)); err != nil {
				break
			}
			log.Printf("[batch] retrying search for %q (attempt %d/%d)", req.Phrase(), attempt, itemAttempts)
		}
		resolved, err := o.resolver.Resolve(ctx, req)
		if err == nil {
			return resolved, nil
		}
		lastErr = err

		var failure *resolver.Failure
		if errors.As(err, &failure) && failure.Reason == resolver.NetworkError {
			continue
		}
		break
	}
	return resolver.Resolved{}, lastErr
}

// fetchAudio downloads the track with transient retries. An
// age-restricted video gets exactly one shot at a different upload of
// the same song; the returned Resolved says which video the audio
// actually came from.
func (o *Orchestrator) fetchAudio(ctx context.Context, index int, resolved resolver.Resolved, req songlist.Request, baseName string, track fetch.Track, state *progress.State, delay time.Duration) (string, resolver.Resolved, error) {
	progressFn := func(written, total int64) {
		state.Progress(index, written, total)
	}

	var lastErr error
	for attempt := 1; attempt <= itemAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, backoff(delay, attempt)); err != nil {
				break
			}
			log.Printf("[batch] retrying download for %q (attempt %d/%d)", req.Phrase(), attempt, itemAttempts)
		}

		path, err := o.fetcher.Audio(ctx, resolved.VideoID, baseName, track, progressFn)
		if err == nil {
			return path, resolved, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, fetch.ErrShortForm):
			return "", resolved, err
		case errors.Is(err, fetch.ErrAgeRestricted):
			alternate, altErr := o.resolver.ResolveExcluding(ctx, req, map[string]bool{resolved.VideoID: true})
			if altErr != nil {
				return "", resolved, err
			}
			log.Printf("[batch] %s is age-restricted, trying %s instead", resolved.VideoID, alternate.VideoID)
			path, retryErr := o.fetcher.Audio(ctx, alternate.VideoID, baseName, track, progressFn)
			if retryErr == nil {
				return path, alternate, nil
			}
			return "", alternate, retryErr
		case fetch.Transient(err):
			continue
		default:
			return "", resolved, err
		}
	}
	return "", resolved, lastErr
}

// Labels returns the display phrase for each request, in order. Progress
// trackers use these as item labels.
func Labels(requests []songlist.Request) []string {
	labels := make([]string, len(requests))
	for i, req := range requests {
		labels[i] = req.Phrase()
	}
	return labels
}

func backoff(base time.Duration, attempt int) time.Duration {
	return base << (attempt - 2)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
