package repository

import (
	"context"

	"github.com/iconidentify/gifstash/internal/domain"
)

// LinkRepository persists link records and their ingestion state.
// Status writes enforce the legal transition graph and the optimistic
// version token; an interleaved writer surfaces as ErrVersionConflict.
type LinkRepository interface {
	// Create inserts a new pending link.
	Create(ctx context.Context, link *domain.Link) error

	// Get retrieves a link by ID.
	Get(ctx context.Context, id domain.LinkID) (*domain.Link, error)

	// List returns links for an owner, newest first, optionally
	// filtered by status.
	List(ctx context.Context, ownerID string, status *domain.Status, limit, offset int) ([]*domain.Link, error)

	// SetDownloading moves a link into the downloading state and
	// records the resolved media metadata.
	SetDownloading(ctx context.Context, id domain.LinkID, version int64, originalVideoURL, thumbnail, title string) (*domain.Link, error)

	// SetUploaded finalizes a link after a successful upload. The
	// error column is cleared.
	SetUploaded(ctx context.Context, id domain.LinkID, version int64, videoURL, videoPath string, videoSize int64) (*domain.Link, error)

	// SetFailed records a failure message. Writing failed over failed
	// is legal so late pipeline errors can land.
	SetFailed(ctx context.Context, id domain.LinkID, version int64, message string) (*domain.Link, error)

	// Delete removes a link owned by ownerID.
	Delete(ctx context.Context, id domain.LinkID, ownerID string) error

	// ClaimUnclaimed assigns ownerless links to ownerID and returns
	// how many were claimed.
	ClaimUnclaimed(ctx context.Context, ownerID string) (int64, error)
}

// JobRepository manages the ingestion job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// GetByLinkID finds the most recent job for a link.
	GetByLinkID(ctx context.Context, linkID domain.LinkID) (*domain.Job, error)

	// ListPending returns all queued/retrying jobs.
	ListPending(ctx context.Context) ([]*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Retrying   int
}
