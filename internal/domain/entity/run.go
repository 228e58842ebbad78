package entity

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusFailed     RunStatus = "FAILED"
)

// PipelineRun tracks one submitted media item through the pipeline.
type PipelineRun struct {
	ID             uuid.UUID
	UserID         string
	MediaKey       string
	MediaKind      MediaKind
	Status         RunStatus
	FrameCount     int
	CandidateCount int
	MatchedCount   int
	FileSize       int64
	MediaDuration  float64
	Attempt        int
	MaxAttempts    int
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func NewPipelineRun(userID, mediaKey string, kind MediaKind, fileSize int64, maxAttempts int) *PipelineRun {
	now := time.Now().UTC()
	return &PipelineRun{
		ID:          uuid.New(),
		UserID:      userID,
		MediaKey:    mediaKey,
		MediaKind:   kind,
		FileSize:    fileSize,
		Status:      RunStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *PipelineRun) MarkProcessing() {
	r.Status = RunStatusProcessing
	r.Attempt++
	r.UpdatedAt = time.Now().UTC()
}

func (r *PipelineRun) MarkCompleted(frameCount, candidateCount, matchedCount int, duration float64) {
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.FrameCount = frameCount
	r.CandidateCount = candidateCount
	r.MatchedCount = matchedCount
	r.MediaDuration = duration
	r.UpdatedAt = now
	r.CompletedAt = &now
}

func (r *PipelineRun) MarkFailed(errMsg string) {
	r.Status = RunStatusFailed
	r.ErrorMessage = errMsg
	r.UpdatedAt = time.Now().UTC()
}

func (r *PipelineRun) CanRetry() bool {
	return r.Attempt < r.MaxAttempts
}
