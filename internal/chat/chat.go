// Package chat turns free-form music questions into song recommendations
// by way of the Gemini API. The reply is plain text; callers re-parse it
// for "Title by Artist" lines and re-apply their own count limits, since
// the model's formatting promises are not trusted.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	model          = "gemini-2.5-flash"
	requestTimeout = 20 * time.Second
)

var (
	// ErrNoKey means the assistant was never configured and manual song
	// lists are the only way in.
	ErrNoKey = errors.New("no gemini api key configured")

	// ErrOffTopic rejects queries with no music signal before any API
	// quota is spent on them.
	ErrOffTopic = errors.New("ask me about music: songs, artists, albums, genres")
)

// Collaborator produces recommendation text for a music query.
type Collaborator interface {
	Recommend(ctx context.Context, query string) (string, error)
}

// Assistant is the Gemini-backed Collaborator.
type Assistant struct {
	apiKey string
}

// New returns an Assistant, or ErrNoKey when the key is empty.
func New(apiKey string) (*Assistant, error) {
	if apiKey == "" {
		return nil, ErrNoKey
	}
	return &Assistant{apiKey: apiKey}, nil
}

// Recommend asks the model for songs matching the query and returns its
// reply with markdown fences stripped.
func (a *Assistant) Recommend(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("empty query")
	}
	if !musicRelated(query) {
		return "", ErrOffTopic
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: a.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("creating genai client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(buildPrompt(query)), nil)
	if err != nil {
		return "", fmt.Errorf("generating recommendations: %w", err)
	}

	text := CleanReply(resp.Text())
	if text == "" {
		return "", errors.New("empty reply from assistant")
	}
	log.Printf("[chat] assistant replied with %d characters", len(text))
	return text, nil
}

// buildPrompt wraps the query in the instruction block. Date context is
// included because the model otherwise labels older songs as current-year
// releases.
func buildPrompt(query string) string {
	now := time.Now()
	return fmt.Sprintf(`You are a music recommendation assistant. Today is %s, %d.

Rules:
- Only discuss music: songs, artists, albums, genres.
- Answer with a numbered list. Every item must use exactly the form "1. Song Title by Artist Name".
- If the request names a number of songs, give exactly that many items, no more and no fewer.
- Recommend well-known official recordings, not covers, remixes, or compilations.
- Be precise about release years; do not call a song a %d release unless it actually came out in %d.
- No markdown code fences, no commentary inside the numbered items.

Request: %s`, now.Format("Monday, January 2"), now.Year(), now.Year(), now.Year(), query)
}

// CleanReply strips the markdown code fences the model sometimes wraps
// answers in.
func CleanReply(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

var musicWords = []string{
	"song", "music", "artist", "album", "track", "band", "singer",
	"playlist", "hit", "chart", "pop", "rock", "rap", "hip hop",
	"jazz", "phonk", "edm", "country", "metal", "r&b", "soundtrack",
}

var contextWords = []string{
	"top", "best", "latest", "new", "popular", "recommend", "suggest",
}

// musicRelated is a cheap pre-filter; the prompt rules do the real
// domain enforcement.
func musicRelated(query string) bool {
	q := strings.ToLower(query)
	for _, w := range musicWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	for _, w := range contextWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}
