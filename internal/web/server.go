package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sonnixhq/songfetch/internal/batch"
	"github.com/sonnixhq/songfetch/internal/chat"
	"github.com/sonnixhq/songfetch/internal/library"
	"github.com/sonnixhq/songfetch/internal/limit"
	"github.com/sonnixhq/songfetch/internal/progress"
	"github.com/sonnixhq/songfetch/internal/quantity"
	"github.com/sonnixhq/songfetch/internal/songlist"
	"github.com/sonnixhq/songfetch/internal/ws"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// Config wires the server's collaborators. Collaborator may be nil when
// no assistant key is configured; ask submissions then answer 503 while
// manual song lists keep working.
type Config struct {
	Orchestrator *batch.Orchestrator
	Collaborator chat.Collaborator
	Library      *library.Scanner
	Hub          *ws.Hub
	HistoryPath  string // empty disables the download history log
	BatchOptions batch.Options
}

// Server exposes the batch pipeline over a JSON API.
type Server struct {
	orch      *batch.Orchestrator
	collab    chat.Collaborator
	lib       *library.Scanner
	hub       *ws.Hub
	reg       *registry
	history   *historyStore
	opts      batch.Options
	startedAt time.Time
}

func NewServer(cfg Config) *Server {
	s := &Server{
		orch:      cfg.Orchestrator,
		collab:    cfg.Collaborator,
		lib:       cfg.Library,
		hub:       cfg.Hub,
		reg:       newRegistry(),
		opts:      cfg.BatchOptions,
		startedAt: time.Now(),
	}
	if cfg.HistoryPath != "" {
		s.history = newHistoryStore(cfg.HistoryPath)
	}
	return s
}

type batchRequest struct {
	Songs string `json:"songs"`
	Ask   string `json:"ask"`
	Count int    `json:"count"`
}

type batchCreatedResponse struct {
	ID      string `json:"id"`
	Total   int    `json:"total"`
	Notice  string `json:"notice,omitempty"`
	Message string `json:"message"`
}

type batchDetailResponse struct {
	progress.Snapshot
	Notice  string         `json:"notice,omitempty"`
	Results []batch.Result `json:"results,omitempty"`
}

type apiError struct {
	Error    string `json:"error"`
	ActiveID string `json:"active_id,omitempty"`
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	ct := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return &requestError{http.StatusUnsupportedMediaType, "content type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	return nil
}

// Handler builds the route table. The hub must be running before any
// websocket client connects.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/batches", s.handleBatches)
	mux.HandleFunc("/api/batches/", s.handleBatch)
	mux.HandleFunc("/api/library", s.handleLibrary)
	mux.HandleFunc("/api/library/", s.handleLibraryFile)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.hub.HandleWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	return withSecurityHeaders(mux)
}

// ListenAndServe runs the API until ctx is cancelled, then shuts down
// gracefully. It also runs the websocket hub and the batch cleanup loop.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.reg.StartCleanup(ctx, batchCleanupInterval, batchTTL)
	go s.hub.Run(ctx)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Printf("[web] listening on http://%s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req batchRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	songsText := strings.TrimSpace(req.Songs)
	askQuery := strings.TrimSpace(req.Ask)

	var (
		requests []songlist.Request
		notice   string
		reqErr   *requestError
	)
	switch {
	case songsText != "" && askQuery != "":
		reqErr = &requestError{http.StatusBadRequest, "send either songs or ask, not both"}
	case askQuery != "":
		requests, notice, reqErr = s.askRequests(r.Context(), askQuery, req.Count)
	case songsText != "":
		requests, notice, reqErr = manualRequests(songsText, req.Count)
	default:
		reqErr = &requestError{http.StatusBadRequest, "songs or ask is required"}
	}
	if reqErr != nil {
		writeJSONError(w, reqErr.status, reqErr.message)
		return
	}

	// The run outlives the submitting request, so it gets its own
	// context; cancellation comes through the batch, not the client.
	runCtx, cancel := context.WithCancel(context.Background())
	b := newBatch(requests, notice, cancel)
	if activeID, err := s.reg.Add(b); err != nil {
		cancel()
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error(), ActiveID: activeID})
		return
	}

	go s.hub.Relay(b.ID, b.State)
	go s.runBatch(runCtx, cancel, b)

	writeJSON(w, http.StatusAccepted, batchCreatedResponse{
		ID:      b.ID,
		Total:   len(requests),
		Notice:  notice,
		Message: fmt.Sprintf("Batch started for %d song(s).", len(requests)),
	})
}

func (s *Server) runBatch(ctx context.Context, cancel context.CancelFunc, b *Batch) {
	defer cancel()
	summary, err := s.orch.Run(ctx, b.Requests, b.State, s.opts)
	if err != nil {
		log.Printf("[web] batch %s: %v", b.ID, err)
		b.State.Fail(err.Error())
		return
	}
	b.setSummary(summary)
	s.recordHistory(b.ID, summary)
}

func (s *Server) recordHistory(batchID string, summary batch.Summary) {
	if s.history == nil {
		return
	}
	records := historyRecords(batchID, summary, time.Now())
	if len(records) == 0 {
		return
	}
	if err := s.history.Append(records...); err != nil {
		log.Printf("[web] recording history: %v", err)
	}
}

func manualRequests(text string, count int) ([]songlist.Request, string, *requestError) {
	requests := songlist.Parse(text)
	if len(requests) == 0 {
		return nil, "", &requestError{http.StatusBadRequest, "no songs found in the list"}
	}
	if err := limit.CheckList(len(requests)); err != nil {
		return nil, "", &requestError{http.StatusUnprocessableEntity, err.Error()}
	}
	if count > 0 && count < len(requests) {
		requests = requests[:count]
	}
	return requests, "", nil
}

func (s *Server) askRequests(ctx context.Context, query string, count int) ([]songlist.Request, string, *requestError) {
	if s.collab == nil {
		return nil, "", &requestError{http.StatusServiceUnavailable, "assistant is not configured"}
	}

	requested := count
	if requested <= 0 {
		if claim, ok := quantity.Parse(query); ok {
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

	reply, err := s.collab.Recommend(ctx, query)
	if err != nil {
		if errors.Is(err, chat.ErrOffTopic) {
			return nil, "", &requestError{http.StatusBadRequest, err.Error()}
		}
		log.Printf("[web] assistant: %v", err)
		return nil, "", &requestError{http.StatusBadGateway, "assistant request failed"}
	}
	requests := songlist.Parse(reply)
	if len(requests) == 0 {
		return nil, "", &requestError{http.StatusBadGateway, "assistant reply contained no songs"}
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

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSONError(w, http.StatusNotFound, "batch not found")
		return
	}
	b, ok := s.reg.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "batch not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.writeBatchDetail(w, b)
	case "events":
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.streamBatchEvents(w, r, b)
	case "cancel":
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.cancelBatch(w, b)
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) writeBatchDetail(w http.ResponseWriter, b *Batch) {
	resp := batchDetailResponse{Snapshot: b.State.Snapshot(), Notice: b.Notice}
	if summary := b.Summary(); summary != nil {
		resp.Results = summary.Results
	}
	writeJSON(w, http.StatusOK, resp)
}

type sseSnapshot struct {
	Type string `json:"type"`
	progress.Snapshot
	Notice string `json:"notice,omitempty"`
}

type sseDone struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (s *Server) streamBatchEvents(w http.ResponseWriter, r *http.Request, b *Batch) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	// Subscribe before snapshotting so nothing falls between the two.
	// A duplicated event is harmless, a missing one is not.
	events, cancel := b.State.Subscribe()
	defer cancel()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	writeSSE(w, flusher, enc, sseSnapshot{Type: "snapshot", Snapshot: b.State.Snapshot(), Notice: b.Notice})

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				writeSSE(w, flusher, enc, sseDone{Type: "done", Status: string(b.State.Status())})
				return
			}
			writeSSE(w, flusher, enc, evt)
		}
	}
}

func (s *Server) cancelBatch(w http.ResponseWriter, b *Batch) {
	if b.State.Status().Terminal() {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(b.State.Status())})
		return
	}
	b.Cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries, err := s.lib.Scan(r.Context())
	if err != nil {
		log.Printf("[web] library scan: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to read library")
		return
	}
	if entries == nil {
		entries = []library.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": entries})
}

func (s *Server) handleLibraryFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/library/")
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "missing file name")
		return
	}
	if err := s.lib.Remove(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSONError(w, http.StatusNotFound, "file not found")
			return
		}
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"records": []downloadRecord{}})
		return
	}
	state, err := s.history.Load()
	if err != nil {
		log.Printf("[web] loading history: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": state.Records})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := map[string]any{
		"uptime":  time.Since(s.startedAt).Truncate(time.Second).String(),
		"viewers": s.hub.ClientCount(),
	}
	if b, ok := s.reg.Active(); ok {
		resp["active_batch"] = b.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Error: message})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, enc *json.Encoder, payload any) {
	fmt.Fprintf(w, "data: ")
	_ = enc.Encode(payload)
	fmt.Fprintf(w, "\n")
	flusher.Flush()
}

func withSecurityHeaders(next http.Handler) http.Handler {
	const cspValue = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", cspValue)
		next.ServeHTTP(w, r)
	})
}
