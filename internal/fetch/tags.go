package fetch

import (
	"regexp"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
)

// Track carries the metadata embedded into a finished MP3.
type Track struct {
	Title  string
	Artist string
	Album  string
}

// topicSuffix matches the " - Topic" artifact on auto-generated channels.
var topicSuffix = regexp.MustCompile(`(?i)\s*-\s*topic\s*$`)

// CleanArtist strips channel artifacts from an artist name pulled out of
// video metadata.
func CleanArtist(name string) string {
	return strings.TrimSpace(topicSuffix.ReplaceAllString(name, ""))
}

// embedTags writes ID3v2 tags in place. Tagging is best effort: a track
// that plays but lacks tags beats no track.
func embedTags(path string, track Track) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	if track.Title != "" {
		tag.SetTitle(track.Title)
	}
	if track.Artist != "" {
		tag.SetArtist(CleanArtist(track.Artist))
	}
	if track.Album != "" {
		tag.SetAlbum(track.Album)
	}
	return tag.Save()
}
