package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sonnixhq/songfetch/internal/batch"
	"github.com/sonnixhq/songfetch/internal/progress"
)

func newTestPrinter(buf *bytes.Buffer, quiet bool) *Printer {
	return &Printer{quiet: quiet, columns: 100, titleWidth: 30, out: buf}
}

func TestPrinterItemLines(t *testing.T) {
	cases := []struct {
		name   string
		status string
		detail string
		want   []string
	}{
		{"success", string(batch.StatusSuccess), "3.4MB", []string{"OK", "3.4MB"}},
		{"resolution failure", string(batch.StatusResolutionFailed), "no playable video found", []string{"FAIL", "no playable video found"}},
		{"download failure", string(batch.StatusDownloadFailed), "no audio stream", []string{"FAIL", "no audio stream"}},
		{"short form skip", string(batch.StatusSkippedShortForm), "only short-form uploads matched", []string{"SKIP", "short-form"}},
		{"cancelled", string(batch.StatusCancelled), "", []string{"SKIP", "cancelled"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := newTestPrinter(&buf, false)
			p.ItemDone(2, 10, "Song by Artist", tc.status, tc.detail)

			line := buf.String()
			if !strings.Contains(line, "[ 2/10]") {
				t.Fatalf("missing position prefix: %q", line)
			}
			if !strings.Contains(line, "Song by Artist") {
				t.Fatalf("missing label: %q", line)
			}
			for _, want := range tc.want {
				if !strings.Contains(line, want) {
					t.Fatalf("line %q missing %q", line, want)
				}
			}
		})
	}
}

func TestPrinterQuietKeepsFailuresOnly(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf, true)

	p.ItemDone(1, 2, "Song A by Artist", string(batch.StatusSuccess), "2.0KB")
	p.Notice("You asked for 20 songs; the batch limit is 10, so only the first 10 will be downloaded.")
	p.Summary(batch.Summary{Succeeded: 1, Results: make([]batch.Result, 1)})
	if buf.Len() != 0 {
		t.Fatalf("quiet mode wrote: %q", buf.String())
	}

	p.ItemDone(2, 2, "Song B by Artist", string(batch.StatusDownloadFailed), "no audio stream")
	if !strings.Contains(buf.String(), "FAIL") {
		t.Fatalf("quiet mode dropped a failure: %q", buf.String())
	}
}

func TestPrinterSummary(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf, false)
	p.Summary(batch.Summary{
		Results:   make([]batch.Result, 5),
		Succeeded: 3,
		Failed:    1,
		Skipped:   1,
		Elapsed:   83 * time.Second,
	})

	line := buf.String()
	for _, want := range []string{"OK 3", "FAIL 1", "SKIP 1", "TOTAL 5", "TIME 1m23s"} {
		if !strings.Contains(line, want) {
			t.Fatalf("summary %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "CANCELLED") {
		t.Fatalf("summary shows cancelled count without cancellations: %q", line)
	}

	buf.Reset()
	p.Summary(batch.Summary{
		Results:   make([]batch.Result, 4),
		Succeeded: 2,
		Cancelled: 2,
		Elapsed:   time.Second,
	})
	if !strings.Contains(buf.String(), "CANCELLED 2") {
		t.Fatalf("summary missing cancelled count: %q", buf.String())
	}
}

func TestPrinterPrefixPadsIndex(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf, false)

	prefix := p.Prefix(3, 100, "Title")
	if !strings.HasPrefix(prefix, "[  3/100]") {
		t.Fatalf("prefix = %q", prefix)
	}

	long := strings.Repeat("x", 80)
	prefix = p.Prefix(1, 1, long)
	if !strings.Contains(prefix, "...") {
		t.Fatalf("long title not truncated: %q", prefix)
	}
}

func TestTruncateText(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"something much longer", 10, "somethi..."},
		{"abc", 2, "ab"},
		{"anything", 0, "anything"},
	}
	for _, tc := range cases {
		if got := truncateText(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncateText(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestPrinterFollowPrintsBatchFeed(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf, false)

	state := progress.New("batch-1", []string{"Song A by Artist", "Song B by Artist"})
	state.Log("You asked for 12 songs; the batch limit is 10, so only the first 10 will be downloaded.")

	done := make(chan struct{})
	go func() {
		p.Follow(context.Background(), state)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	state.Start()
	state.SetStage(0, "resolving")
	state.SetStage(0, "downloading")
	state.Progress(0, 2048, 2048)
	state.ItemDone(0, string(batch.StatusSuccess), "")
	state.ItemDone(1, string(batch.StatusDownloadFailed), "no audio stream")
	state.Complete()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not stop when the batch ended")
	}

	out := buf.String()
	if !strings.Contains(out, "note:") || !strings.Contains(out, "the batch limit is 10") {
		t.Fatalf("output missing the cap notice:\n%s", out)
	}
	if !strings.Contains(out, "[1/2]") || !strings.Contains(out, "Song A by Artist") {
		t.Fatalf("output missing the first item line:\n%s", out)
	}
	if !strings.Contains(out, "OK") || !strings.Contains(out, "2.0KB") {
		t.Fatalf("output missing the success detail:\n%s", out)
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "no audio stream") {
		t.Fatalf("output missing the failure line:\n%s", out)
	}
}

func TestPrinterFollowStopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf, false)
	state := progress.New("batch-1", []string{"Song A by Artist"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Follow(ctx, state)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not stop on context cancel")
	}
}
