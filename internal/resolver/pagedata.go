package resolver

import (
	"strconv"
	"strings"
)

// collectVideoCandidates walks a ytInitialData payload and pulls every
// video renderer it finds, in page order. Reels are kept but flagged so
// the short-form filter drops them later.
func collectVideoCandidates(payload map[string]any) []Candidate {
	var candidates []Candidate
	seen := make(map[string]bool)

	queue := []any{payload}
	for len(queue) > 0 && len(candidates) < maxCandidates {
		node := queue[0]
		queue = queue[1:]

		switch value := node.(type) {
		case map[string]any:
			if renderer := asMap(value["videoRenderer"]); renderer != nil {
				if c, ok := parseVideoRenderer(renderer); ok && !seen[c.ID] {
					seen[c.ID] = true
					candidates = append(candidates, c)
				}
				continue
			}
			if reel := asMap(value["reelItemRenderer"]); reel != nil {
				id := getString(reel["videoId"])
				if len(id) == videoIDLen && !seen[id] {
					seen[id] = true
					candidates = append(candidates, Candidate{
						ID:            id,
						Title:         extractText(reel["headline"]),
						ShortFormHint: true,
					})
				}
				continue
			}
			for _, child := range value {
				switch child.(type) {
				case map[string]any, []any:
					queue = append(queue, child)
				}
			}
		case []any:
			for _, child := range value {
				switch child.(type) {
				case map[string]any, []any:
					queue = append(queue, child)
				}
			}
		}
	}
	return candidates
}

func parseVideoRenderer(renderer map[string]any) (Candidate, bool) {
	id := getString(renderer["videoId"])
	if len(id) != videoIDLen {
		return Candidate{}, false
	}
	c := Candidate{
		ID:              id,
		Title:           extractText(renderer["title"]),
		DurationSeconds: parseClock(extractText(renderer["lengthText"])),
	}
	if c.DurationSeconds == 0 {
		// Shorts carry no length badge and navigate to a /shorts/ URL.
		target := getString(getPath(renderer, "navigationEndpoint", "commandMetadata", "webCommandMetadata", "url"))
		c.ShortFormHint = strings.Contains(target, "/shorts/")
	}
	return c, true
}

// parseClock converts a "3:45" or "1:02:11" length badge to seconds.
// Anything unparseable reads as unknown.
func parseClock(text string) int {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

func extractText(value any) string {
	textMap := asMap(value)
	if textMap == nil {
		s, _ := value.(string)
		return s
	}
	if runs := asSlice(textMap["runs"]); len(runs) > 0 {
		var b strings.Builder
		for _, run := range runs {
			if text, ok := asMap(run)["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String()
	}
	if s, ok := textMap["simpleText"].(string); ok {
		return s
	}
	return ""
}

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

func asSlice(value any) []any {
	s, _ := value.([]any)
	return s
}

func getPath(value map[string]any, keys ...string) any {
	var current any = value
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

func getString(value any) string {
	s, _ := value.(string)
	return s
}
