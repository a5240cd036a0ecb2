package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sonnixhq/songfetch/internal/app"
	"github.com/sonnixhq/songfetch/internal/batch"
)

func main() {
	var cfg app.Config

	flag.StringVar(&cfg.File, "f", "", "file with one song per line (\"-\" reads stdin)")
	flag.StringVar(&cfg.Ask, "ask", "", "describe the songs you want and let the assistant pick them")
	flag.IntVar(&cfg.Count, "count", 0, "take only the first N songs from the list or request")
	flag.StringVar(&cfg.OutDir, "out", "Audios", "directory for finished tracks")
	flag.IntVar(&cfg.Jobs, "jobs", batch.DefaultWorkers, "number of concurrent downloads")
	flag.StringVar(&cfg.Serve, "serve", "", "serve the web API on this address (e.g. :8080) instead of running a batch")
	flag.BoolVar(&cfg.JSON, "json", false, "emit the batch summary as JSON (suppresses human-readable progress)")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "suppress progress output (failures still shown)")
	flag.DurationVar(&cfg.Timeout, "timeout", 5*time.Minute, "per-song timeout")
	flag.Parse()

	cfg.Songs = flag.Args()

	if cfg.Serve == "" && cfg.Ask == "" && cfg.File == "" && len(cfg.Songs) == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] \"Title by Artist\" ...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	// First interrupt stops dispatch and lets in-flight songs finish.
	// A second one gives up immediately.
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		<-sigCh
		os.Exit(130)
	}()

	os.Exit(app.Run(ctx, cfg))
}
