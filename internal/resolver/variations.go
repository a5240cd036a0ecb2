package resolver

import (
	"regexp"
	"strings"
)

const maxVariations = 5

// variationStrip removes qualifiers that over-narrow a search. The
// remainder is the broad base phrase variations are built from.
var variationStrip = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s+official\s*$`),
	regexp.MustCompile(`(?i)\s+by\s+\S+.*$`),
	regexp.MustCompile(`(?i)\s+-\s+\S+\s+version.*$`),
}

// searchVariations produces alternate phrasings for a song that did not
// match on the first try. The canonical "title by artist" phrase narrows
// results; these broaden them again, most conservative first.
func searchVariations(phrase string) []string {
	base := phrase
	for _, pattern := range variationStrip {
		base = pattern.ReplaceAllString(base, "")
	}
	base = strings.TrimSpace(base)
	if base == "" {
		base = phrase
	}

	all := []string{
		base,
		base + " audio",
		base + " music",
		base + " song",
		base + " cover",
		base + " remix",
	}

	seen := make(map[string]bool, len(all))
	unique := make([]string, 0, len(all))
	for _, variation := range all {
		key := strings.ToLower(variation)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, variation)
	}
	if len(unique) > maxVariations {
		unique = unique[:maxVariations]
	}
	return unique
}

// alternatePhrase picks the retry phrasing used after a search comes
// back empty. Returns "" when no variation differs from the original.
func alternatePhrase(phrase string) string {
	for _, variation := range searchVariations(phrase) {
		if !strings.EqualFold(variation, phrase) {
			return variation
		}
	}
	return ""
}
