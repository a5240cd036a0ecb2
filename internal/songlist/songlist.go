// Package songlist turns assistant replies and hand-written lists into
// ordered song requests.
package songlist

import (
	"regexp"
	"strings"
)

// Request is one song to acquire. Order of appearance in the source text is
// download priority, so parsed requests are never reordered or deduplicated.
type Request struct {
	Title   string
	Artist  string
	RawLine string
}

// Phrase returns the canonical search phrase. Keeping the literal "by"
// connector matters: search accuracy drops noticeably without it.
func (r Request) Phrase() string {
	return r.Title + " by " + r.Artist
}

// numberedLine matches "1. Shape of You by Ed Sheeran" style entries.
var numberedLine = regexp.MustCompile(`^\s*\d+\.\s*(.+)$`)

// inlineMarker finds run-together numbering inside a single line
// ("1. A by B 2. C by D"), which some chat clients collapse to one line.
var inlineMarker = regexp.MustCompile(`\d+\.\s*`)

// byPattern splits "Song by Artist". The title group is non-greedy so the
// first "by" wins.
var byPattern = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`)

// bulletPrefix strips list bullets some assistants emit instead of numbers.
var bulletPrefix = regexp.MustCompile(`^\s*[-*•]\s+`)

// descClause matches trailing "a haunting ballad of loss" style commentary
// after the artist name.
var descClause = regexp.MustCompile(`(?i)^(.+?)[,;]?\s+a\s+.+\s+of\s+.+$`)

// dashClause finds a dash-introduced trailing clause after the artist.
var dashClause = regexp.MustCompile(`\s+[-–—]\s+.*$`)

// maxTitleWords guards free-form lines: a "title" span longer than this is
// prose that happens to contain "by", not a song.
const maxTitleWords = 8

// Parse extracts song requests from text, one per recognizable line, in
// order of appearance. Lines without a "by" connector yield nothing; that
// includes empty input, so callers decide whether zero songs is an error.
func Parse(text string) []Request {
	var requests []Request
	for _, line := range splitEntries(text) {
		if req, ok := parseLine(line); ok {
			requests = append(requests, req)
		}
	}
	return requests
}

// splitEntries breaks the text into candidate entries: one per line, then
// lines carrying several numbered markers are cut at each marker.
func splitEntries(text string) []string {
	var entries []string
	for _, line := range strings.Split(text, "\n") {
		marks := inlineMarker.FindAllStringIndex(line, -1)
		if len(marks) < 2 {
			entries = append(entries, line)
			continue
		}
		if head := line[:marks[0][0]]; strings.TrimSpace(head) != "" {
			entries = append(entries, head)
		}
		for i, m := range marks {
			end := len(line)
			if i+1 < len(marks) {
				end = marks[i+1][0]
			}
			entries = append(entries, line[m[0]:end])
		}
	}
	return entries
}

func parseLine(line string) (Request, bool) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return Request{}, false
	}
	// Lines ending with a colon introduce a list; they are never songs.
	if strings.HasSuffix(raw, ":") {
		return Request{}, false
	}

	content := raw
	numbered := false
	if m := numberedLine.FindStringSubmatch(content); m != nil {
		content = m[1]
		numbered = true
	} else {
		content = bulletPrefix.ReplaceAllString(content, "")
	}

	m := byPattern.FindStringSubmatch(content)
	if m == nil {
		return Request{}, false
	}
	title := strings.TrimSpace(m[1])
	artist := strings.TrimSpace(m[2])

	if !numbered && len(strings.Fields(title)) > maxTitleWords {
		return Request{}, false
	}

	artist = dashClause.ReplaceAllString(artist, "")
	if d := descClause.FindStringSubmatch(artist); d != nil {
		artist = strings.TrimSpace(d[1])
	}
	title = unquote(title)
	artist = unquote(artist)

	if title == "" || artist == "" {
		return Request{}, false
	}
	return Request{Title: title, Artist: artist, RawLine: raw}, true
}

// unquote removes matching double quotes around a span, straight or curly.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	pairs := [][2]string{{`"`, `"`}, {"“", "”"}}
	for _, p := range pairs {
		if strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}
