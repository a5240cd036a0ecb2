// Package limit enforces the per-batch download ceiling.
package limit

import "fmt"

// MaxSongs is the most songs a single batch will download, no matter how
// many were asked for. Distinct from the quantity parser's claim ceiling,
// which only guards against absurd numbers.
const MaxSongs = 10

// Decision is the outcome of applying the batch limit to a requested count.
type Decision struct {
	Allowed int
	Capped  bool
	Notice  string
}

// Apply caps a requested count at MaxSongs. When capping, Notice carries a
// user-facing explanation naming both the requested count and the limit; it
// must be surfaced verbatim so the user knows why fewer songs arrive.
func Apply(requested int) Decision {
	if requested > MaxSongs {
		return Decision{
			Allowed: MaxSongs,
			Capped:  true,
			Notice:  fmt.Sprintf("You asked for %d songs; the batch limit is %d, so only the first %d will be downloaded.", requested, MaxSongs, MaxSongs),
		}
	}
	return Decision{Allowed: requested}
}

// ExceededError reports an explicit song list longer than the batch limit.
type ExceededError struct {
	Requested int
	Max       int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%d songs requested, limit is %d per batch", e.Requested, e.Max)
}

// CheckList validates the size of an explicit song list. Unlike a claimed
// count, which Apply quietly caps, an oversized list the user actually wrote
// out is rejected so no entry is silently dropped.
func CheckList(n int) error {
	if n > MaxSongs {
		return &ExceededError{Requested: n, Max: MaxSongs}
	}
	return nil
}
