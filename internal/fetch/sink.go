package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink stores finished artifacts. The pipeline stages everything locally
// and hands completed files over; implementations decide where bytes end
// up and report the final location.
type Sink interface {
	Store(ctx context.Context, name, stagingPath string) (string, error)
}

// DirSink stores artifacts in a local directory, resolving name collisions
// with a numeric suffix.
type DirSink struct {
	Dir string
}

func (s DirSink) Store(ctx context.Context, name, stagingPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	dest := nextAvailablePath(filepath.Join(s.Dir, name))
	if err := os.Rename(stagingPath, dest); err != nil {
		// Staging may sit on a different filesystem; fall back to a copy.
		if copyErr := copyFile(stagingPath, dest); copyErr != nil {
			return "", fmt.Errorf("storing %s: %w", name, copyErr)
		}
		os.Remove(stagingPath)
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
