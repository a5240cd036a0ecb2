// Package app wires the acquisition pipeline behind the command line.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sonnixhq/songfetch/internal/batch"
	"github.com/sonnixhq/songfetch/internal/chat"
	"github.com/sonnixhq/songfetch/internal/fetch"
	"github.com/sonnixhq/songfetch/internal/library"
	"github.com/sonnixhq/songfetch/internal/limit"
	"github.com/sonnixhq/songfetch/internal/progress"
	"github.com/sonnixhq/songfetch/internal/quantity"
	"github.com/sonnixhq/songfetch/internal/resolver"
	"github.com/sonnixhq/songfetch/internal/songlist"
	"github.com/sonnixhq/songfetch/internal/tui"
	"github.com/sonnixhq/songfetch/internal/web"
	"github.com/sonnixhq/songfetch/internal/ws"
)

// Config carries the parsed command line.
type Config struct {
	Songs   []string
	File    string
	Ask     string
	Count   int
	OutDir  string
	Jobs    int
	Serve   string
	JSON    bool
	Quiet   bool
	Timeout time.Duration
}

const (
	exitOK          = 0
	exitFailed      = 1
	exitUsage       = 2
	exitInterrupted = 130
)

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func exitCodeFor(err error) int {
	var usage *usageError
	var exceeded *limit.ExceededError
	if errors.As(err, &usage) || errors.As(err, &exceeded) {
		return exitUsage
	}
	return exitFailed
}

// Run executes one batch or serves the web API and returns the process
// exit code. Cancelling ctx stops dispatch; in-flight songs finish.
func Run(ctx context.Context, cfg Config) int {
	if cfg.Jobs < 1 {
		cfg.Jobs = batch.DefaultWorkers
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "Audios"
	}
	if cfg.JSON {
		cfg.Quiet = true
	}

	if cfg.Serve != "" {
		return runServe(ctx, cfg)
	}

	var collab chat.Collaborator
	if assistant, err := chat.New(os.Getenv("GEMINI_API_KEY")); err == nil {
		collab = assistant
	}

	requests, notice, err := buildRequests(ctx, cfg, collab)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCodeFor(err)
	}

	fetcher, err := fetch.New(fetch.DirSink{Dir: cfg.OutDir}, fetch.Config{Timeout: cfg.Timeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}
	res := resolver.New(resolver.Options{APIKey: os.Getenv("YOUTUBE_API_KEY")})

	return runBatch(ctx, cfg, batch.New(res, fetcher), requests, notice)
}

func runBatch(ctx context.Context, cfg Config, orch *batch.Orchestrator, requests []songlist.Request, notice string) int {
	state := progress.New(uuid.NewString(), batch.Labels(requests))
	if notice != "" {
		state.Log(notice)
	}

	// The batch gets its own context so an interrupt stops dispatch
	// without killing songs mid-write.
	batchCtx, cancelBatch := context.WithCancel(context.Background())
	defer cancelBatch()
	go func() {
		select {
		case <-ctx.Done():
			cancelBatch()
		case <-batchCtx.Done():
		}
	}()

	type outcome struct {
		summary batch.Summary
		err     error
	}
	resCh := make(chan outcome, 1)
	go func() {
		summary, err := orch.Run(batchCtx, requests, state, batch.Options{
			Workers:     cfg.Jobs,
			ItemTimeout: cfg.Timeout,
		})
		resCh <- outcome{summary, err}
	}()

	p := tui.NewPrinter(cfg.Quiet)
	if !cfg.Quiet && tui.Interactive() {
		if err := tui.Run(ctx, state, cancelBatch); err != nil {
			log.Printf("[app] display: %v", err)
			p.Follow(context.Background(), state)
		}
	} else {
		// The feed is read to the end even after an interrupt; stopping
		// is the batch context's job.
		p.Follow(context.Background(), state)
	}

	if !state.Status().Terminal() {
		fmt.Fprintln(os.Stderr, "waiting for in-flight songs to finish")
	}
	out := <-resCh
	if out.err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", out.err)
		return exitFailed
	}

	if cfg.JSON {
		writeJSONSummary(os.Stdout, state, out.summary)
	} else {
		p.Summary(out.summary)
	}

	switch {
	case out.summary.Failed > 0 || state.Status() == progress.StatusFailed:
		return exitFailed
	case state.Status() == progress.StatusCancelled:
		return exitInterrupted
	default:
		return exitOK
	}
}

func runServe(ctx context.Context, cfg Config) int {
	fetcher, err := fetch.New(fetch.DirSink{Dir: cfg.OutDir}, fetch.Config{Timeout: cfg.Timeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}
	res := resolver.New(resolver.Options{APIKey: os.Getenv("YOUTUBE_API_KEY")})

	var collab chat.Collaborator
	if assistant, err := chat.New(os.Getenv("GEMINI_API_KEY")); err == nil {
		collab = assistant
	} else if errors.Is(err, chat.ErrNoKey) {
		log.Printf("[app] GEMINI_API_KEY not set; ask mode disabled")
	}

	srv := web.NewServer(web.Config{
		Orchestrator: batch.New(res, fetcher),
		Collaborator: collab,
		Library:      library.NewScanner(cfg.OutDir, 0),
		Hub:          ws.NewHub(),
		HistoryPath:  filepath.Join(cfg.OutDir, "history.json"),
		BatchOptions: batch.Options{Workers: cfg.Jobs, ItemTimeout: cfg.Timeout},
	})
	if err := srv.ListenAndServe(ctx, cfg.Serve); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}
	return exitOK
}

// buildRequests turns the command line into the ordered song list, plus
// the user-facing notice when a claimed count got capped.
func buildRequests(ctx context.Context, cfg Config, collab chat.Collaborator) ([]songlist.Request, string, error) {
	if cfg.Ask != "" && (cfg.File != "" || len(cfg.Songs) > 0) {
		return nil, "", &usageError{"use either -ask or a song list, not both"}
	}
	if cfg.Ask != "" {
		return askRequests(ctx, cfg, collab)
	}

	text := strings.Join(cfg.Songs, "\n")
	if cfg.File != "" {
		listText, err := readListFile(cfg.File)
		if err != nil {
			return nil, "", err
		}
		text = listText + "\n" + text
	}

	requests := songlist.Parse(text)
	if len(requests) == 0 {
		return nil, "", &usageError{"no songs found in the list"}
	}
	if err := limit.CheckList(len(requests)); err != nil {
		return nil, "", err
	}
	if cfg.Count > 0 && cfg.Count < len(requests) {
		requests = requests[:cfg.Count]
	}
	return requests, "", nil
}

func askRequests(ctx context.Context, cfg Config, collab chat.Collaborator) ([]songlist.Request, string, error) {
	if collab == nil {
		return nil, "", &usageError{"-ask needs GEMINI_API_KEY set"}
	}

	requested := cfg.Count
	if requested <= 0 {
		if claim, ok := quantity.Parse(cfg.Ask); ok {
			requested = claim.Count
		}
	}
	target := limit.MaxSongs
	notice := ""
	if requested > 0 {
		decision := limit.Apply(requested)
		target = decision.Allowed
		notice = decision.Notice
	}

	reply, err := collab.Recommend(ctx, cfg.Ask)
	if err != nil {
		if errors.Is(err, chat.ErrOffTopic) {
			return nil, "", &usageError{err.Error()}
		}
		return nil, "", fmt.Errorf("assistant request failed: %w", err)
	}
	requests := songlist.Parse(reply)
	if len(requests) == 0 {
		return nil, "", errors.New("assistant reply contained no songs")
	}
	// The reply is untrusted; re-cap it no matter what it claims.
	if len(requests) > target {
		if notice == "" {
			notice = fmt.Sprintf("The assistant returned %d songs; keeping the first %d.", len(requests), target)
		}
		requests = requests[:target]
	}
	return requests, notice, nil
}

func readListFile(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading song list from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading song list: %w", err)
	}
	return string(data), nil
}

func writeJSONSummary(w io.Writer, state *progress.State, summary batch.Summary) {
	payload := struct {
		ID      string          `json:"id"`
		Status  progress.Status `json:"status"`
		Elapsed float64         `json:"elapsed_seconds"`
		batch.Summary
	}{state.ID(), state.Status(), summary.Elapsed.Seconds(), summary}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
