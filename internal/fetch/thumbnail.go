package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// thumbnailLadder lists artwork qualities best first. Not every video has
// the maxres asset, so the ladder walks down until something real exists.
var thumbnailLadder = []string{"maxresdefault", "hqdefault", "mqdefault", "default"}

// minThumbnailBytes filters out the gray placeholder image the CDN serves
// with a 200 for missing qualities.
const minThumbnailBytes = 1000

// Thumbnail downloads the best available artwork for a video and stores it
// through the sink as baseName.jpg. It returns the stored location.
func (f *Fetcher) Thumbnail(ctx context.Context, videoID, baseName string) (string, error) {
	var lastErr error
	for _, quality := range thumbnailLadder {
		url := fmt.Sprintf("%s/%s/%s.jpg", f.thumbBase, videoID, quality)
		data, err := f.fetchImage(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		// Missing qualities come back as a 404 (nil data) or a placeholder
		// body; both mean "try the next rung".
		if len(data) <= minThumbnailBytes {
			continue
		}

		staging := filepath.Join(f.staging, baseName+"."+videoID+".jpg")
		if err := os.WriteFile(staging, data, 0o644); err != nil {
			return "", fmt.Errorf("staging thumbnail: %w", err)
		}
		stored, err := f.sink.Store(ctx, baseName+".jpg", staging)
		if err != nil {
			os.Remove(staging)
			return "", err
		}
		return stored, nil
	}
	if lastErr != nil {
		return "", &Failure{Kind: KindTransientNetwork, Err: fmt.Errorf("fetching thumbnail for %s: %w", videoID, lastErr)}
	}
	return "", &Failure{Kind: KindPermanentNotFound, Err: fmt.Errorf("no thumbnail available for %s", videoID)}
}

func (f *Fetcher) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
}
