package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
)

func TestCleanBaseName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already clean", in: "Shape of You by Ed Sheeran", want: "Shape of You by Ed Sheeran"},
		{name: "strips punctuation", in: `Sh@pe/of: "You"?`, want: "Shpeof You"},
		{name: "collapses whitespace", in: "Hello   \t World", want: "Hello World"},
		{name: "non-ascii removed", in: "Beyoncé", want: "Beyonc"},
		{name: "empty falls back", in: "##$%", want: "track"},
		{name: "keeps dots dashes underscores", in: "Mr. Brightside_-_Live", want: "Mr. Brightside_-_Live"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanBaseName(tt.in); got != tt.want {
				t.Errorf("CleanBaseName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("a", 300)
	if got := CleanBaseName(long); len(got) != maxBaseNameLen {
		t.Errorf("long name length = %d, want %d", len(CleanBaseName(long)), maxBaseNameLen)
	}
}

func TestCleanArtist(t *testing.T) {
	if got := CleanArtist("Dua Lipa - Topic"); got != "Dua Lipa" {
		t.Errorf("CleanArtist = %q, want %q", got, "Dua Lipa")
	}
	if got := CleanArtist("Radiohead"); got != "Radiohead" {
		t.Errorf("CleanArtist = %q, want %q", got, "Radiohead")
	}
}

func TestMimeToExt(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{mime: `audio/mp4; codecs="mp4a.40.2"`, want: ".m4a"},
		{mime: `audio/webm; codecs="opus"`, want: ".webm"},
		{mime: "video/mp4", want: ".mp4"},
		{mime: "application/octet-stream", want: ".bin"},
	}
	for _, tt := range tests {
		if got := mimeToExt(tt.mime); got != tt.want {
			t.Errorf("mimeToExt(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}

func TestNextAvailablePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")

	if got := nextAvailablePath(path); got != path {
		t.Errorf("free path changed: %q", got)
	}

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "song (1).mp3")
	if got := nextAvailablePath(path); got != want {
		t.Errorf("taken path = %q, want %q", got, want)
	}
}

func TestDirSinkStore(t *testing.T) {
	staging := t.TempDir()
	out := filepath.Join(t.TempDir(), "library")
	sink := DirSink{Dir: out}

	src := filepath.Join(staging, "a.tmp")
	if err := os.WriteFile(src, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest, err := sink.Store(context.Background(), "Song.mp3", src)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if dest != filepath.Join(out, "Song.mp3") {
		t.Errorf("dest = %q", dest)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "audio-bytes" {
		t.Fatalf("stored content = %q, err %v", data, err)
	}

	// Same name again should not overwrite.
	src2 := filepath.Join(staging, "b.tmp")
	if err := os.WriteFile(src2, []byte("other"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest2, err := sink.Store(context.Background(), "Song.mp3", src2)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if dest2 != filepath.Join(out, "Song (1).mp3") {
		t.Errorf("dest2 = %q", dest2)
	}
}

func TestSelectAudioFormat(t *testing.T) {
	video := &youtube.Video{
		Formats: youtube.FormatList{
			{ItagNo: 137, Width: 1920, Height: 1080, MimeType: "video/mp4", Bitrate: 4000000},
			{ItagNo: 140, AudioChannels: 2, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 130000},
			{ItagNo: 251, AudioChannels: 2, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000},
		},
	}
	format, err := selectAudioFormat(video)
	if err != nil {
		t.Fatalf("selectAudioFormat: %v", err)
	}
	if format.ItagNo != 251 {
		t.Errorf("itag = %d, want 251", format.ItagNo)
	}
}

func TestSelectAudioFormatProgressiveFallback(t *testing.T) {
	video := &youtube.Video{
		Formats: youtube.FormatList{
			{ItagNo: 137, Width: 1920, Height: 1080, MimeType: "video/mp4", Bitrate: 4000000},
			{ItagNo: 18, AudioChannels: 2, Width: 640, Height: 360, MimeType: "video/mp4", Bitrate: 500000},
		},
	}
	format, err := selectAudioFormat(video)
	if err != nil {
		t.Fatalf("selectAudioFormat: %v", err)
	}
	if format.ItagNo != 18 {
		t.Errorf("itag = %d, want 18", format.ItagNo)
	}
}

func TestSelectAudioFormatNoneAvailable(t *testing.T) {
	video := &youtube.Video{
		Formats: youtube.FormatList{
			{ItagNo: 137, Width: 1920, Height: 1080, MimeType: "video/mp4"},
		},
	}
	_, err := selectAudioFormat(video)
	var failure *Failure
	if !errors.As(err, &failure) || failure.Kind != KindPermanentNotFound {
		t.Fatalf("err = %v, want permanentNotFound failure", err)
	}
}

func TestClassifyStreamErr(t *testing.T) {
	err := classifyStreamErr(&net.OpError{Op: "read", Err: errors.New("connection reset")}, "downloading stream")
	if !Transient(err) {
		t.Errorf("net.OpError should be transient, got %v", err)
	}

	err = classifyStreamErr(youtube.ErrUnexpectedStatusCode(503), "starting stream")
	if !Transient(err) {
		t.Errorf("503 should be transient, got %v", err)
	}

	err = classifyStreamErr(youtube.ErrUnexpectedStatusCode(404), "starting stream")
	var failure *Failure
	if !errors.As(err, &failure) || failure.Kind != KindPermanentNotFound {
		t.Errorf("404 should be permanentNotFound, got %v", err)
	}

	err = classifyStreamErr(context.Canceled, "downloading stream")
	if Transient(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("cancellation should pass through, got %v", err)
	}

	err = classifyStreamErr(errors.New("login required to confirm your age"), "fetching stream metadata")
	if !errors.Is(err, ErrAgeRestricted) {
		t.Errorf("age gate should map to ErrAgeRestricted, got %v", err)
	}
}

func TestThumbnailLadder(t *testing.T) {
	served := map[string][]byte{
		"/vi/vid123/maxresdefault.jpg": nil,               // 404
		"/vi/vid123/hqdefault.jpg":     make([]byte, 500), // placeholder-sized
		"/vi/vid123/mqdefault.jpg":     bigImage(),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := served[r.URL.Path]
		if !ok || body == nil {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	defer server.Close()

	out := t.TempDir()
	f := &Fetcher{
		client:    NewHTTPClient(5 * time.Second),
		sink:      DirSink{Dir: out},
		staging:   t.TempDir(),
		thumbBase: server.URL + "/vi",
	}

	stored, err := f.Thumbnail(context.Background(), "vid123", "My Song")
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if stored != filepath.Join(out, "My Song.jpg") {
		t.Errorf("stored = %q", stored)
	}
	info, err := os.Stat(stored)
	if err != nil {
		t.Fatalf("stat stored thumbnail: %v", err)
	}
	if info.Size() != int64(len(bigImage())) {
		t.Errorf("stored size = %d, want %d", info.Size(), len(bigImage()))
	}
}

func TestThumbnailAllMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := &Fetcher{
		client:    NewHTTPClient(5 * time.Second),
		sink:      DirSink{Dir: t.TempDir()},
		staging:   t.TempDir(),
		thumbBase: server.URL + "/vi",
	}

	_, err := f.Thumbnail(context.Background(), "vid123", "My Song")
	var failure *Failure
	if !errors.As(err, &failure) || failure.Kind != KindPermanentNotFound {
		t.Fatalf("err = %v, want permanentNotFound failure", err)
	}
}

func bigImage() []byte {
	return make([]byte, 4096)
}
