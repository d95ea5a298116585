package domain

import (
	"time"
)

// JobID is a unique identifier for an ingestion job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// JobMode selects how the orchestrator obtains the candidate media URL.
type JobMode string

const (
	// JobModeExtract runs the syndication extractor against the tweet URL.
	JobModeExtract JobMode = "extract"
	// JobModeManual uses a caller-supplied media URL directly.
	JobModeManual JobMode = "manual"
	// JobModeRetry re-runs a failed ingestion, preferring the stored media URL.
	JobModeRetry JobMode = "retry"
)

// Job represents one queued ingestion attempt for a link.
type Job struct {
	ID         JobID
	LinkID     LinkID
	OwnerID    string
	Mode       JobMode
	MediaURL   string // manual mode only
	Status     JobStatus
	Attempts   int
	MaxRetries int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewJob creates a new ingestion job for a link.
func NewJob(id JobID, linkID LinkID, ownerID string, mode JobMode, maxRetries int) *Job {
	now := time.Now()
	return &Job{
		ID:         id,
		LinkID:     linkID,
		OwnerID:    ownerID,
		Mode:       mode,
		Status:     JobStatusQueued,
		Attempts:   0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanRetry returns true if the job can be retried.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxRetries
}

// MarkProcessing updates the job status to processing.
func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
}

// MarkCompleted updates the job status to completed.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.UpdatedAt = time.Now()
}

// MarkFailed updates the job status to failed with an error message.
func (j *Job) MarkFailed(err string) {
	j.Attempts++
	j.LastError = err
	j.UpdatedAt = time.Now()

	if j.CanRetry() {
		j.Status = JobStatusRetrying
	} else {
		j.Status = JobStatusFailed
	}
}
