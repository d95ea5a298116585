package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/iconidentify/gifstash/internal/domain"
	"github.com/iconidentify/gifstash/internal/repository"
	"github.com/iconidentify/gifstash/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockLinkService is a test implementation of LinkService.
type mockLinkService struct {
	createResp *service.CreateResponse
	createErr  error
	manualResp *service.CreateResponse
	manualErr  error
	retryResp  *service.CreateResponse
	retryErr   error
	deleteErr  error
	statusResp *service.StatusResponse
	statusErr  error
	links      []*domain.Link
	listErr    error
	claimed    int64
	claimErr   error

	// captured arguments
	lastCreate    service.CreateRequest
	lastLinkID    domain.LinkID
	lastOwnerID   string
	lastMediaURL  string
	lastVideoPath string
	lastStatus    *domain.Status
	lastLimit     int
	lastOffset    int
}

func (m *mockLinkService) CreateLink(ctx context.Context, req service.CreateRequest) (*service.CreateResponse, error) {
	m.lastCreate = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *mockLinkService) SubmitManualURL(ctx context.Context, linkID domain.LinkID, ownerID, mediaURL string) (*service.CreateResponse, error) {
	m.lastLinkID = linkID
	m.lastOwnerID = ownerID
	m.lastMediaURL = mediaURL
	if m.manualErr != nil {
		return nil, m.manualErr
	}
	return m.manualResp, nil
}

func (m *mockLinkService) Retry(ctx context.Context, linkID domain.LinkID, ownerID string) (*service.CreateResponse, error) {
	m.lastLinkID = linkID
	m.lastOwnerID = ownerID
	if m.retryErr != nil {
		return nil, m.retryErr
	}
	return m.retryResp, nil
}

func (m *mockLinkService) Delete(ctx context.Context, linkID domain.LinkID, ownerID, videoPath string) error {
	m.lastLinkID = linkID
	m.lastOwnerID = ownerID
	m.lastVideoPath = videoPath
	return m.deleteErr
}

func (m *mockLinkService) GetStatus(ctx context.Context, linkID domain.LinkID, ownerID string) (*service.StatusResponse, error) {
	m.lastLinkID = linkID
	m.lastOwnerID = ownerID
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.statusResp, nil
}

func (m *mockLinkService) List(ctx context.Context, ownerID string, status *domain.Status, limit, offset int) ([]*domain.Link, error) {
	m.lastOwnerID = ownerID
	m.lastStatus = status
	m.lastLimit = limit
	m.lastOffset = offset
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.links, nil
}

func (m *mockLinkService) ClaimUnclaimed(ctx context.Context, ownerID string) (int64, error) {
	m.lastOwnerID = ownerID
	if m.claimErr != nil {
		return 0, m.claimErr
	}
	return m.claimed, nil
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	stats    *repository.QueueStats
	statsErr error
	jobs     map[domain.JobID]*domain.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.QueueStats{},
		jobs:  make(map[domain.JobID]*domain.Job),
	}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued {
			return job, nil
		}
	}
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) GetByLinkID(ctx context.Context, linkID domain.LinkID) (*domain.Job, error) {
	for _, job := range m.jobs {
		if job.LinkID == linkID {
			return job, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	var pending []*domain.Job
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying {
			pending = append(pending, job)
		}
	}
	return pending, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}
