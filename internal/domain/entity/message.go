package entity

import "github.com/google/uuid"

// MediaProcessMessage is the inbound message from the media.process queue.
type MediaProcessMessage struct {
	RunID     uuid.UUID `json:"run_id"`
	UserID    string    `json:"user_id"`
	MediaKey  string    `json:"media_key"`
	MediaKind MediaKind `json:"media_kind"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// MediaResultMessage is the rendering-ready structure published to the
// media.result queue once a run finishes. The front-end renders it
// directly; nothing else crosses the presentation boundary.
type MediaResultMessage struct {
	RunID        uuid.UUID         `json:"run_id"`
	UserID       string            `json:"user_id"`
	Status       RunStatus         `json:"status"`
	MediaKey     string            `json:"media_key"`
	MediaKind    MediaKind         `json:"media_kind"`
	FrameCount   int               `json:"frame_count,omitempty"`
	Duration     float64           `json:"duration_seconds,omitempty"`
	Candidates   []CandidateResult `json:"candidates,omitempty"`
	// FrameFailures lists frames whose detection failed; their
	// candidates are absent, not silently dropped.
	FrameFailures []FrameFailure `json:"frame_failures,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Attempt       int            `json:"attempt"`
	MaxAttempts   int            `json:"max_attempts"`
}

// FrameFailure reports a single frame the detector could not process.
type FrameFailure struct {
	FrameIndex int    `json:"frame_index"`
	Error      string `json:"error"`
}

// CheckoutRequestMessage is the inbound message from the checkout.request
// queue: the user picked one recognized-retail match to buy.
type CheckoutRequestMessage struct {
	RunID          uuid.UUID `json:"run_id"`
	UserID         string    `json:"user_id"`
	FrameIndex     int       `json:"frame_index"`
	CandidateIndex int       `json:"candidate_index"`
	Link           string    `json:"link"`
	UserEmail      string    `json:"user_email"`
}

// CheckoutResultMessage reports one checkout attempt's outcome.
type CheckoutResultMessage struct {
	SessionID      uuid.UUID     `json:"session_id"`
	RunID          uuid.UUID     `json:"run_id"`
	UserID         string        `json:"user_id"`
	Link           string        `json:"link"`
	State          CheckoutState `json:"state"`
	Succeeded      bool          `json:"succeeded"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	FrameIndex     int           `json:"frame_index"`
	CandidateIndex int           `json:"candidate_index"`
}
