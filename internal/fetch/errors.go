package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// Kind classifies a fetch failure for retry decisions.
type Kind string

const (
	KindTransientNetwork  Kind = "transientNetwork"
	KindPermanentNotFound Kind = "permanentNotFound"
	KindTranscodeError    Kind = "transcodeError"
)

// Failure is a classified fetch error. Transient failures are retried by
// the orchestrator; the other kinds are recorded as-is.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Transient reports whether err should be retried.
func Transient(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == KindTransientNetwork
}

// ErrShortForm marks tracks whose stream metadata reveals a short-form clip
// that slipped past search-time filtering.
var ErrShortForm = errors.New("short-form video")

// ErrAgeRestricted marks tracks that need a signed-in session; the caller
// may retry with a different search candidate.
var ErrAgeRestricted = errors.New("video is age-restricted")

// classifyStreamErr maps metadata and stream errors from the video client
// onto the failure taxonomy.
func classifyStreamErr(err error, action string) error {
	wrapped := fmt.Errorf("%s: %w", action, err)

	if errors.Is(err, context.Canceled) {
		return wrapped
	}
	if isAgeRestricted(err) {
		return fmt.Errorf("%s: %w", action, ErrAgeRestricted)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: KindTransientNetwork, Err: wrapped}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: KindTransientNetwork, Err: wrapped}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Failure{Kind: KindTransientNetwork, Err: wrapped}
	}
	var statusErr youtube.ErrUnexpectedStatusCode
	if errors.As(err, &statusErr) {
		if isTransientStatus(int(statusErr)) {
			return &Failure{Kind: KindTransientNetwork, Err: wrapped}
		}
		return &Failure{Kind: KindPermanentNotFound, Err: wrapped}
	}
	return &Failure{Kind: KindPermanentNotFound, Err: wrapped}
}

// isAgeRestricted sniffs playability reasons. The video client reports
// these as formatted errors rather than sentinels, so text matching is
// the stable signal.
func isAgeRestricted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "age") && (strings.Contains(msg, "restrict") || strings.Contains(msg, "confirm") || strings.Contains(msg, "verif")) ||
		strings.Contains(msg, "login required")
}
