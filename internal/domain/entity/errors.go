package entity

import (
	"errors"
	"fmt"
)

// ErrMediaUnreadable is the only run-fatal pipeline error: the input
// media could not be opened or decoded, so there is nothing to process.
var ErrMediaUnreadable = errors.New("media unreadable")

// DetectionError scopes a detector failure to a single frame. Other
// frames keep processing.
type DetectionError struct {
	FrameIndex int
	Err        error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed for frame %d: %v", e.FrameIndex, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// PublishError is a per-candidate terminal failure of the hosting
// upload. The candidate is still reported, just without matches.
type PublishError struct {
	Reason string
}

func (e *PublishError) Error() string {
	return "publish failed: " + e.Reason
}

// SearchUnavailableError is a transport-level visual search failure,
// distinct from the valid empty-result response.
type SearchUnavailableError struct {
	Reason string
}

func (e *SearchUnavailableError) Error() string {
	return "visual search unavailable: " + e.Reason
}
