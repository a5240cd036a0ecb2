package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sonnixhq/songfetch/internal/batch"
	"github.com/sonnixhq/songfetch/internal/progress"
)

// Printer writes one line per finished song plus notices and a summary.
// It is the renderer for pipes, dumb terminals, and quiet mode.
type Printer struct {
	quiet      bool
	color      bool
	columns    int
	titleWidth int
	out        io.Writer
}

func NewPrinter(quiet bool) *Printer {
	columns := terminalColumns()
	if columns <= 0 {
		columns = 100
	}

	titleWidth := columns - 44
	if titleWidth < 20 {
		titleWidth = 20
	}
	if titleWidth > 60 {
		titleWidth = 60
	}

	return &Printer{
		quiet:      quiet,
		color:      supportsColor(),
		columns:    columns,
		titleWidth: titleWidth,
		out:        os.Stderr,
	}
}

// Follow consumes the batch's event feed and prints completions and
// notices until the batch ends or ctx is cancelled. Byte counts ride
// the progress events, so they are tracked here solely to size the
// success line.
func (p *Printer) Follow(ctx context.Context, state *progress.State) {
	events, unsubscribe := state.Subscribe()
	defer unsubscribe()
	snap := state.Snapshot()

	// Notices recorded before Follow subscribed only exist in the
	// snapshot.
	for _, evt := range snap.Events {
		if evt.Type == "log" {
			p.Notice(evt.Message)
		}
	}

	bytes := make([]int64, snap.Total)
	for _, item := range snap.Items {
		if item.Index >= 0 && item.Index < len(bytes) {
			bytes[item.Index] = item.Current
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			switch evt.Type {
			case "progress":
				if evt.Index >= 0 && evt.Index < len(bytes) {
					bytes[evt.Index] = evt.Current
				}
			case "item":
				if evt.Status == "" {
					continue
				}
				detail := evt.Message
				if evt.Status == string(batch.StatusSuccess) && evt.Index >= 0 && evt.Index < len(bytes) && bytes[evt.Index] > 0 {
					detail = padLeft(humanBytes(bytes[evt.Index]), 9)
				}
				p.ItemDone(evt.Index+1, snap.Total, evt.Label, evt.Status, detail)
			case "log":
				p.Notice(evt.Message)
			case "status":
				if evt.Status == string(progress.StatusFailed) && evt.Message != "" {
					p.Notice(evt.Message)
				}
			}
		}
	}
}

func (p *Printer) Prefix(index, total int, title string) string {
	if total <= 0 {
		total = 1
	}
	width := len(strconv.Itoa(total))
	idx := fmt.Sprintf("%*d/%d", width, index, total)
	return fmt.Sprintf("[%s] %-*s", idx, p.titleWidth, truncateText(title, p.titleWidth))
}

// ItemDone prints the outcome line for one song. Quiet mode keeps
// failures and skips and drops the rest.
func (p *Printer) ItemDone(position, total int, label, status, detail string) {
	word := "FAIL"
	color := colorRed
	switch status {
	case string(batch.StatusSuccess):
		word, color = "OK", colorGreen
	case string(batch.StatusSkippedShortForm):
		word, color = "SKIP", colorYellow
	case string(batch.StatusCancelled):
		word, color = "SKIP", colorYellow
		if detail == "" {
			detail = "cancelled"
		}
	}
	if p.quiet && word == "OK" {
		return
	}

	prefix := p.Prefix(position, total, label)
	maxDetail := p.columns - len(prefix) - len(word) - 3
	if maxDetail < 0 {
		maxDetail = 0
	}
	fmt.Fprintf(p.out, "%s %s %s\n", prefix, p.colorize(word, color), truncateText(detail, maxDetail))
}

func (p *Printer) Notice(message string) {
	if p.quiet || message == "" {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.colorize("note:", colorYellow), message)
}

func (p *Printer) Summary(s batch.Summary) {
	if p.quiet {
		return
	}
	okLabel := p.colorize("OK", colorGreen)
	failLabel := p.colorize("FAIL", colorRed)
	skipLabel := p.colorize("SKIP", colorYellow)
	total := len(s.Results)
	line := fmt.Sprintf("Summary: %s %d | %s %d | %s %d", okLabel, s.Succeeded, failLabel, s.Failed, skipLabel, s.Skipped)
	if s.Cancelled > 0 {
		line += fmt.Sprintf(" | CANCELLED %d", s.Cancelled)
	}
	line += fmt.Sprintf(" | TOTAL %d | TIME %s", total, s.Elapsed.Round(time.Second))
	fmt.Fprintln(p.out, line)
}

func (p *Printer) colorize(text, color string) string {
	if !p.color || color == "" {
		return text
	}
	return color + text + colorReset
}

func padLeft(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return strings.Repeat(" ", width-len(value)) + value
}

func truncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}

func terminalColumns() int {
	if columns := os.Getenv("COLUMNS"); columns != "" {
		if val, err := strconv.Atoi(columns); err == nil && val > 0 {
			return val
		}
	}
	return 0
}

// Interactive reports whether stderr is a terminal the full-screen view
// can own.
func Interactive() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func supportsColor() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" || os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

const (
	colorReset  = "\x1b[0m"
	colorGreen  = "\x1b[32m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
)
