package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	// DefaultBitrate is the fixed encode rate for finished tracks.
	DefaultBitrate = "192k"
	// DefaultTimeout bounds a single stream or image request.
	DefaultTimeout = 5 * time.Minute

	// minTrackSeconds separates real tracks from short-form clips when the
	// stream metadata exposes a duration.
	minTrackSeconds = 60

	// streamChunkSize keeps range requests small enough for responsive
	// progress without flooding the CDN. Fixed because the client is shared
	// across workers.
	streamChunkSize = 1 << 20
)

// Config tunes a Fetcher. Zero values pick the defaults.
type Config struct {
	Timeout    time.Duration
	Bitrate    string
	StagingDir string
}

// Fetcher acquires audio and artwork for resolved tracks, staging files
// locally and handing finished artifacts to the sink.
type Fetcher struct {
	client    *http.Client
	yt        *youtube.Client
	sink      Sink
	staging   string
	bitrate   string
	thumbBase string
}

const defaultThumbBase = "https://img.youtube.com/vi"

func New(sink Sink, cfg Config) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = DefaultBitrate
	}
	staging := cfg.StagingDir
	if staging == "" {
		staging = filepath.Join(os.TempDir(), "songfetch")
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	// The Android player client dodges most web-side playback gating.
	youtube.DefaultClient = youtube.AndroidClient
	yt := NewYouTubeClient(cfg.Timeout)
	yt.ChunkSize = streamChunkSize

	return &Fetcher{
		client:    NewHTTPClient(cfg.Timeout),
		yt:        yt,
		sink:      sink,
		staging:   staging,
		bitrate:   cfg.Bitrate,
		thumbBase: defaultThumbBase,
	}, nil
}

// Audio downloads the video's audio stream and transcodes it to MP3 at the
// fixed bitrate, tagging it from track. baseName must already be a clean
// artifact name. progress may be nil. Returns the sink location.
func (f *Fetcher) Audio(ctx context.Context, videoID, baseName string, track Track, progress ProgressFunc) (string, error) {
	if !ffmpegAvailable() {
		return "", &Failure{Kind: KindTranscodeError, Err: errors.New("ffmpeg not found in PATH")}
	}

	video, err := f.yt.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", classifyStreamErr(err, "fetching stream metadata")
	}
	if video.Duration > 0 && video.Duration < minTrackSeconds*time.Second {
		return "", fmt.Errorf("stream runs %s: %w", video.Duration, ErrShortForm)
	}

	format, err := selectAudioFormat(video)
	if err != nil {
		return "", err
	}

	rawPath := filepath.Join(f.staging, baseName+"."+videoID+".src"+mimeToExt(format.MimeType))
	defer os.Remove(rawPath)
	if err := f.downloadStream(ctx, video, format, rawPath, progress); err != nil {
		return "", err
	}

	mp3Path := filepath.Join(f.staging, baseName+"."+videoID+".mp3")
	if err := transcodeToMP3(rawPath, mp3Path, f.bitrate); err != nil {
		os.Remove(mp3Path)
		return "", &Failure{Kind: KindTranscodeError, Err: fmt.Errorf("encoding %q: %w", baseName, err)}
	}

	if track.Album == "" && video.Author != "" {
		track.Album = CleanArtist(video.Author)
	}
	if err := embedTags(mp3Path, track); err != nil {
		log.Printf("[fetch] tag embedding failed for %q: %v", baseName, err)
	}

	stored, err := f.sink.Store(ctx, baseName+".mp3", mp3Path)
	if err != nil {
		os.Remove(mp3Path)
		return "", err
	}
	return stored, nil
}

func (f *Fetcher) downloadStream(ctx context.Context, video *youtube.Video, format *youtube.Format, path string, progress ProgressFunc) error {
	stream, size, err := f.yt.GetStreamContext(ctx, video, format)
	if err != nil {
		return classifyStreamErr(err, "starting stream")
	}
	if size <= 0 && format.ContentLength > 0 {
		size = format.ContentLength
	}
	defer func() {
		if stream != nil {
			stream.Close()
		}
	}()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}
	defer file.Close()

	var writer io.Writer = file
	var pw *progressWriter
	if progress != nil {
		pw = newProgressWriter(size, progress)
		writer = io.MultiWriter(file, pw)
	}

	_, err = copyWithContext(ctx, writer, stream)
	if err != nil && isUnexpectedStatus(err, http.StatusForbidden) {
		// Chunked range requests sometimes trip a 403 mid-stream; a single
		// unchunked request usually goes through.
		if _, seekErr := file.Seek(0, 0); seekErr != nil {
			return fmt.Errorf("rewinding staging file: %w", seekErr)
		}
		if truncErr := file.Truncate(0); truncErr != nil {
			return fmt.Errorf("truncating staging file: %w", truncErr)
		}

		single := *format
		single.ContentLength = 0
		stream.Close()
		stream = nil
		stream, size, err = f.yt.GetStreamContext(ctx, video, &single)
		if err != nil {
			return classifyStreamErr(err, "restarting stream")
		}
		if size <= 0 && format.ContentLength > 0 {
			size = format.ContentLength
		}
		writer = file
		if pw != nil {
			pw.reset(size)
			writer = io.MultiWriter(file, pw)
		}
		_, err = copyWithContext(ctx, writer, stream)
	}
	if err != nil {
		return classifyStreamErr(err, "downloading stream")
	}
	if pw != nil {
		pw.finish()
	}
	return nil
}

// selectAudioFormat prefers the best audio-only stream and falls back to a
// progressive format whose audio track survives transcoding.
func selectAudioFormat(video *youtube.Video) (*youtube.Format, error) {
	var best *youtube.Format
	for i := range video.Formats {
		f := &video.Formats[i]
		if f.AudioChannels <= 0 || f.Width != 0 || f.Height != 0 {
			continue
		}
		if best == nil || betterAudio(f, best) {
			best = f
		}
	}
	if best != nil {
		return best, nil
	}

	for _, itag := range []int{22, 18} {
		for i := range video.Formats {
			f := &video.Formats[i]
			if f.ItagNo == itag && f.AudioChannels > 0 {
				return f, nil
			}
		}
	}
	return nil, &Failure{Kind: KindPermanentNotFound, Err: errors.New("no usable audio format in stream manifest")}
}

func betterAudio(a, b *youtube.Format) bool {
	if a.Bitrate != b.Bitrate {
		return a.Bitrate > b.Bitrate
	}
	return strings.Contains(a.MimeType, "opus") && !strings.Contains(b.MimeType, "opus")
}

func transcodeToMP3(inputPath, outputPath, bitrate string) error {
	return ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{"acodec": "libmp3lame", "b:a": bitrate, "vn": ""}).
		OverWriteOutput().
		Silent(true).
		Run()
}

func ffmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func isUnexpectedStatus(err error, code int) bool {
	var statusErr youtube.ErrUnexpectedStatusCode
	if errors.As(err, &statusErr) {
		return int(statusErr) == code
	}
	return false
}
