package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// unsafeChars matches everything disallowed in an artifact base name.
// The whitelist keeps names portable across filesystems and URL paths.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9 ._-]`)

var repeatedSpace = regexp.MustCompile(`\s+`)

const maxBaseNameLen = 100

// CleanBaseName reduces a track label to a safe artifact base name,
// without extension. Empty results fall back to "track".
func CleanBaseName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "")
	s = repeatedSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > maxBaseNameLen {
		s = strings.TrimSpace(s[:maxBaseNameLen])
	}
	if s == "" {
		return "track"
	}
	return s
}

// nextAvailablePath appends " (n)" before the extension until the path is
// free, so duplicate requests in one batch never overwrite each other.
func nextAvailablePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// mimeToExt picks a staging extension for a stream MIME type.
func mimeToExt(mimeType string) string {
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	switch strings.TrimSpace(base) {
	case "audio/mp4":
		return ".m4a"
	case "audio/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	}
	return ".bin"
}
