package web

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sonnixhq/songfetch/internal/batch"
)

// maxHistoryRecords caps the on-disk download log. Old entries fall off
// the end.
const maxHistoryRecords = 500

// downloadRecord is one fetched song in the persistent history.
type downloadRecord struct {
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	VideoID   string    `json:"videoId,omitempty"`
	File      string    `json:"file,omitempty"`
	BatchID   string    `json:"batchId,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

type historyState struct {
	Records []downloadRecord `json:"records"`
}

// historyStore persists the download log as a JSON file. Writes go
// through a temp file and rename so a crash never leaves half a file.
type historyStore struct {
	path string
	mu   sync.Mutex
}

func newHistoryStore(path string) *historyStore {
	return &historyStore{path: path}
}

func (s *historyStore) Load() (historyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Append adds records at the front of the history, newest first.
// Records with no title are dropped.
func (s *historyStore) Append(records ...downloadRecord) error {
	cleaned := make([]downloadRecord, 0, len(records))
	for _, rec := range records {
		rec.Title = strings.TrimSpace(rec.Title)
		rec.Artist = strings.TrimSpace(rec.Artist)
		if rec.Title == "" {
			continue
		}
		cleaned = append(cleaned, rec)
	}
	if len(cleaned) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked()
	if err != nil {
		return err
	}
	next := historyState{Records: append(cleaned, current.Records...)}
	if len(next.Records) > maxHistoryRecords {
		next.Records = next.Records[:maxHistoryRecords]
	}
	return s.saveLocked(next)
}

func (s *historyStore) loadLocked() (historyState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return historyState{Records: []downloadRecord{}}, nil
		}
		return historyState{}, fmt.Errorf("reading download history: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return historyState{Records: []downloadRecord{}}, nil
	}

	var decoded historyState
	if err := json.Unmarshal(data, &decoded); err != nil {
		return historyState{}, fmt.Errorf("parsing download history: %w", err)
	}
	if decoded.Records == nil {
		decoded.Records = []downloadRecord{}
	}
	return decoded, nil
}

func (s *historyStore) saveLocked(next historyState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	encoded, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding download history: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing download history temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("committing download history file: %w", err)
	}
	return nil
}

// historyRecords flattens a finished batch's successes into records.
func historyRecords(batchID string, summary batch.Summary, at time.Time) []downloadRecord {
	records := make([]downloadRecord, 0, summary.Succeeded)
	for _, res := range summary.Results {
		if res.Status != batch.StatusSuccess {
			continue
		}
		rec := downloadRecord{
			Title:     res.Request.Title,
			Artist:    res.Request.Artist,
			VideoID:   res.VideoID,
			BatchID:   batchID,
			FetchedAt: at,
		}
		if res.AudioPath != "" {
			rec.File = filepath.Base(res.AudioPath)
		}
		records = append(records, rec)
	}
	return records
}
