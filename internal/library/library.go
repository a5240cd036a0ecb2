// Package library lists the audio files a batch has produced, reading
// titles and artists back out of the embedded tags.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWindow   = 24 * time.Hour
	scanParallelism = 4
)

// Entry describes one produced MP3.
type Entry struct {
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	Artist   string    `json:"artist,omitempty"`
	Album    string    `json:"album,omitempty"`
	Size     int64     `json:"size"`
	SizeMB   float64   `json:"size_mb"`
	Modified time.Time `json:"modified_at"`
}

// Scanner reads a sink directory back as a library listing.
type Scanner struct {
	dir    string
	window time.Duration
}

// NewScanner watches dir. A non-positive window means the 24-hour
// default.
func NewScanner(dir string, window time.Duration) *Scanner {
	if window <= 0 {
		window = defaultWindow
	}
	return &Scanner{dir: dir, window: window}
}

// Scan returns the MP3s modified inside the recency window, newest
// first. A missing directory is an empty library, not an error.
func (s *Scanner) Scan(ctx context.Context) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading library dir: %w", err)
	}

	cutoff := time.Now().Add(-s.window)
	type candidate struct {
		name string
		info fs.FileInfo
	}
	var cands []candidate
	for _, de := range dirEntries {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".mp3") {
			continue
		}
		info, err := de.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		cands = append(cands, candidate{name: de.Name(), info: info})
	}

	entries := make([]Entry, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanParallelism)
	for i, c := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = s.readEntry(c.name, c.info)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

// readEntry fills tag metadata for one file. Files without readable tags
// fall back to the file name as the title.
func (s *Scanner) readEntry(name string, info fs.FileInfo) Entry {
	e := Entry{
		Name:     name,
		Size:     info.Size(),
		SizeMB:   math.Round(float64(info.Size())/(1<<20)*100) / 100,
		Modified: info.ModTime(),
	}
	if f, err := os.Open(filepath.Join(s.dir, name)); err == nil {
		if m, err := tag.ReadFrom(f); err == nil {
			e.Title = strings.TrimSpace(m.Title())
			e.Artist = strings.TrimSpace(m.Artist())
			e.Album = strings.TrimSpace(m.Album())
		}
		f.Close()
	}
	if e.Title == "" {
		e.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return e
}

// Remove deletes one MP3 by bare file name, along with any thumbnail
// sharing its base name. Anything that looks like a path is rejected.
func (s *Scanner) Remove(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid file name %q", name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".mp3") {
		return fmt.Errorf("not an audio file: %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, ext := range []string{".jpg", ".png", ".webp"} {
		os.Remove(filepath.Join(s.dir, base+ext))
	}
	log.Printf("[library] deleted %s", name)
	return nil
}
