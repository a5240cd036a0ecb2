// Package progress tracks a running batch for concurrent observers.
//
// Workers write stage changes and byte counts; pollers read point-in-time
// snapshots and streaming observers subscribe to an event feed. The event
// log only grows and the completed counter only climbs, so an observer can
// diff two snapshots without seeing work undone.
package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

// Status is the batch lifecycle state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

const subscriberBuffer = 256

// Event is one structured progress update, shaped for SSE and websocket
// delivery as-is.
type Event struct {
	Type      string    `json:"type"`
	Index     int       `json:"index,omitempty"`
	Label     string    `json:"label,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Status    string    `json:"status,omitempty"`
	Current   int64     `json:"current,omitempty"`
	Total     int64     `json:"total,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemView is the per-song slice of a snapshot.
type ItemView struct {
	Index   int    `json:"index"`
	Label   string `json:"label"`
	Stage   string `json:"stage"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Current int64  `json:"current,omitempty"`
	Total   int64  `json:"total,omitempty"`
}

// Snapshot is a consistent copy of the whole batch, safe to hold after
// the batch keeps moving.
type Snapshot struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Items       []ItemView `json:"items"`
	Events      []Event    `json:"events"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt time.Time  `json:"completed_at,omitempty"`
}

// State is the progress sink for one batch.
type State struct {
	id        string
	createdAt time.Time

	mu          sync.RWMutex
	status      Status
	items       []ItemView
	events      []Event
	errMsg      string
	completedAt time.Time

	completed atomic.Int64

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New builds a State with one pending item per label.
func New(id string, labels []string) *State {
	items := make([]ItemView, len(labels))
	for i, label := range labels {
		items[i] = ItemView{Index: i, Label: label, Stage: "pending"}
	}
	return &State{
		id:        id,
		createdAt: time.Now(),
		status:    StatusCreated,
		items:     items,
		subs:      make(map[chan Event]struct{}),
	}
}

func (s *State) ID() string { return s.id }

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Completed reports how many items reached a terminal state. The value
// never decreases.
func (s *State) Completed() int {
	return int(s.completed.Load())
}

// CompletedAt reports when the batch reached a terminal status, or the
// zero time if it is still running.
func (s *State) CompletedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedAt
}

// Start flips the batch from created to running.
func (s *State) Start() {
	s.setStatus(StatusRunning, "")
}

// Complete marks the batch finished. In-flight item results recorded
// before the call are all retained.
func (s *State) Complete() {
	s.setStatus(StatusCompleted, "")
}

// Fail marks the batch terminally broken, recording why.
func (s *State) Fail(errMsg string) {
	s.setStatus(StatusFailed, errMsg)
}

// Cancel marks the batch cancelled. Callers stop dispatching first and
// let in-flight items finish, so this is the last write.
func (s *State) Cancel() {
	s.setStatus(StatusCancelled, "")
}

func (s *State) setStatus(to Status, errMsg string) {
	s.mu.Lock()
	if s.status.Terminal() || (to == StatusRunning && s.status != StatusCreated) {
		s.mu.Unlock()
		return
	}
	s.status = to
	if errMsg != "" {
		s.errMsg = errMsg
	}
	if to.Terminal() {
		s.completedAt = time.Now()
	}
	evt := Event{Type: "status", Status: string(to), Message: errMsg, Timestamp: time.Now()}
	s.events = append(s.events, evt)
	s.mu.Unlock()

	s.broadcast(evt)
	if to.Terminal() {
		s.closeSubscribers()
	}
}

// SetStage records which pipeline stage an item is in.
func (s *State) SetStage(index int, stage string) {
	s.mu.Lock()
	if s.status.Terminal() || index < 0 || index >= len(s.items) || s.items[index].Status != "" {
		s.mu.Unlock()
		return
	}
	s.items[index].Stage = stage
	evt := Event{Type: "item", Index: index, Label: s.items[index].Label, Stage: stage, Timestamp: time.Now()}
	s.events = append(s.events, evt)
	s.mu.Unlock()

	s.broadcast(evt)
}

// ItemDone records an item's terminal status. Repeat calls for the same
// index are ignored, which keeps the completed counter honest.
func (s *State) ItemDone(index int, status, errMsg string) {
	s.mu.Lock()
	if index < 0 || index >= len(s.items) || s.items[index].Status != "" {
		s.mu.Unlock()
		return
	}
	s.items[index].Stage = "done"
	s.items[index].Status = status
	s.items[index].Error = errMsg
	s.completed.Add(1)
	evt := Event{
		Type:      "item",
		Index:     index,
		Label:     s.items[index].Label,
		Stage:     "done",
		Status:    status,
		Message:   errMsg,
		Timestamp: time.Now(),
	}
	s.events = append(s.events, evt)
	s.mu.Unlock()

	s.broadcast(evt)
}

// Progress reports byte counts for an item's active transfer. These are
// high-frequency, so they update the snapshot in place and fan out to
// subscribers without touching the event log.
func (s *State) Progress(index int, current, total int64) {
	s.mu.Lock()
	if s.status.Terminal() || index < 0 || index >= len(s.items) {
		s.mu.Unlock()
		return
	}
	s.items[index].Current = current
	s.items[index].Total = total
	s.mu.Unlock()

	percent := 0.0
	if total > 0 {
		percent = float64(current) * 100 / float64(total)
	}
	s.broadcast(Event{
		Type:      "progress",
		Index:     index,
		Current:   current,
		Total:     total,
		Percent:   percent,
		Timestamp: time.Now(),
	})
}

// Log appends a human-readable notice, like the cap message shown when a
// request asked for more songs than a batch allows.
func (s *State) Log(message string) {
	s.mu.Lock()
	evt := Event{Type: "log", Message: message, Timestamp: time.Now()}
	s.events = append(s.events, evt)
	s.mu.Unlock()

	s.broadcast(evt)
}

// Snapshot returns a copy that later writes cannot touch.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:          s.id,
		Status:      s.status,
		Total:       len(s.items),
		Completed:   int(s.completed.Load()),
		Items:       append([]ItemView(nil), s.items...),
		Events:      append([]Event(nil), s.events...),
		Error:       s.errMsg,
		CreatedAt:   s.createdAt,
		CompletedAt: s.completedAt,
	}
}

// Subscribe returns a feed of events from now on. Slow consumers lose
// events rather than stall the batch. The cancel function is safe to
// call more than once; the channel closes when the batch ends.
func (s *State) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.subMu.Lock()
	if s.subs == nil {
		close(ch)
		s.subMu.Unlock()
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *State) broadcast(evt Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *State) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}
