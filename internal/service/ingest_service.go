package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/gifstash/internal/audit"
	"github.com/iconidentify/gifstash/internal/config"
	"github.com/iconidentify/gifstash/internal/domain"
	"github.com/iconidentify/gifstash/internal/downloader"
	"github.com/iconidentify/gifstash/internal/ratelimit"
	"github.com/iconidentify/gifstash/internal/repository"
	"github.com/iconidentify/gifstash/internal/storage"
	"github.com/iconidentify/gifstash/internal/urlcheck"
	"github.com/iconidentify/gifstash/pkg/twitter"
)

// TweetResolver verifies a tweet and extracts its playable media.
type TweetResolver interface {
	Resolve(ctx context.Context, tweetURL string) (*twitter.Resolution, error)
	Extract(ctx context.Context, tweetURL string) (*twitter.Extraction, error)
}

// MediaFetcher downloads media bytes with the size and type gates applied.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaURL string) (*downloader.Result, error)
	MaxBytes() int64
}

// Transcoder converts MP4 bytes into GIF bytes.
type Transcoder interface {
	TranscodeToGIF(ctx context.Context, videoData []byte) ([]byte, error)
}

// IngestService orchestrates the stash pipeline: verify the tweet,
// pick its media, download, optionally transcode, upload, and walk the
// link through the status state machine.
type IngestService struct {
	linkRepo   repository.LinkRepository
	jobRepo    repository.JobRepository
	resolver   TweetResolver
	fetcher    MediaFetcher
	transcoder Transcoder // nil when GIF output is disabled
	store      storage.ObjectStore
	limiter    ratelimit.Limiter
	auditor    *audit.Service
	workerCfg  config.WorkerConfig
	logger     *slog.Logger
}

// NewIngestService wires the pipeline dependencies together.
func NewIngestService(
	linkRepo repository.LinkRepository,
	jobRepo repository.JobRepository,
	resolver TweetResolver,
	fetcher MediaFetcher,
	transcoder Transcoder,
	store storage.ObjectStore,
	limiter ratelimit.Limiter,
	auditor *audit.Service,
	workerCfg config.WorkerConfig,
	logger *slog.Logger,
) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		linkRepo:   linkRepo,
		jobRepo:    jobRepo,
		resolver:   resolver,
		fetcher:    fetcher,
		transcoder: transcoder,
		store:      store,
		limiter:    limiter,
		auditor:    auditor,
		workerCfg:  workerCfg,
		logger:     logger,
	}
}

// CreateRequest asks for a new link to be stashed.
type CreateRequest struct {
	URL     string
	OwnerID string
}

// CreateResponse is returned after a link is accepted.
type CreateResponse struct {
	LinkID domain.LinkID
	JobID  domain.JobID
	Status domain.Status
}

// CreateLink validates the tweet URL, inserts a pending record, and
// queues an extraction job.
func (s *IngestService) CreateLink(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if err := urlcheck.ValidateSourceURL(req.URL); err != nil {
		return nil, err
	}
	if twitter.ExtractTweetID(req.URL) == "" {
		return nil, domain.ErrMalformedTweetURL
	}

	// Quota is drawn only for requests that could actually create a
	// record; malformed submissions must not eat the caller's budget.
	if err := s.checkQuota(ctx, req.OwnerID, ratelimit.ActionCreateLink, ""); err != nil {
		return nil, err
	}

	linkID := domain.LinkID("lnk_" + uuid.New().String()[:8])
	link := &domain.Link{
		ID:        linkID,
		URL:       req.URL,
		OwnerID:   req.OwnerID,
		Status:    domain.StatusPending,
		Version:   1,
		CreatedAt: time.Now(),
	}
	if err := s.linkRepo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	job := s.newJob(linkID, req.OwnerID, domain.JobModeExtract)
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("link created",
		"link_id", linkID,
		"job_id", job.ID,
		"url", req.URL,
	)

	return &CreateResponse{LinkID: linkID, JobID: job.ID, Status: domain.StatusPending}, nil
}

// SubmitManualURL queues ingestion of a caller-supplied media URL for
// an existing link. The URL must look like motion media before any
// network traffic happens.
func (s *IngestService) SubmitManualURL(ctx context.Context, linkID domain.LinkID, ownerID, mediaURL string) (*CreateResponse, error) {
	link, err := s.linkRepo.Get(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		s.auditor.RecordType(domain.AuditSecurityViolation, ownerID, linkID,
			"manual URL submitted for a link owned by someone else", nil)
		return nil, domain.ErrNotOwner
	}

	if err := checkManualURL(mediaURL); err != nil {
		return nil, err
	}
	if err := urlcheck.ValidateMediaURL(mediaURL); err != nil {
		s.auditor.RecordType(domain.AuditSecurityViolation, ownerID, linkID,
			"manual media URL failed validation", domain.AuditMetadata{"media_url": mediaURL})
		return nil, err
	}

	job := s.newJob(linkID, ownerID, domain.JobModeManual)
	job.MediaURL = mediaURL
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("manual media URL queued", "link_id", linkID, "job_id", job.ID)
	return &CreateResponse{LinkID: linkID, JobID: job.ID, Status: link.Status}, nil
}

// Retry queues another ingestion attempt for a failed link.
func (s *IngestService) Retry(ctx context.Context, linkID domain.LinkID, ownerID string) (*CreateResponse, error) {
	link, err := s.linkRepo.Get(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		s.auditor.RecordType(domain.AuditSecurityViolation, ownerID, linkID,
			"retry requested for a link owned by someone else", nil)
		return nil, domain.ErrNotOwner
	}
	if link.Status == domain.StatusUploaded {
		return &CreateResponse{LinkID: linkID, Status: link.Status}, nil
	}

	job := s.newJob(linkID, ownerID, domain.JobModeRetry)
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("retry queued", "link_id", linkID, "job_id", job.ID)
	return &CreateResponse{LinkID: linkID, JobID: job.ID, Status: link.Status}, nil
}

// Process runs one ingestion job end to end. Pipeline errors land in
// the link's error column; infrastructure errors (link gone, version
// races) are returned for the worker to retry.
func (s *IngestService) Process(ctx context.Context, job *domain.Job) (err error) {
	logger := s.logger.With("link_id", job.LinkID, "job_id", job.ID)

	// A panic in any pipeline step must not leave the record parked in
	// downloading, and must surface as an ordinary job failure.
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		logger.Error("pipeline panic", "panic", rec)
		if link, gerr := s.linkRepo.Get(ctx, job.LinkID); gerr == nil && link.Status == domain.StatusDownloading {
			if _, ferr := s.linkRepo.SetFailed(ctx, link.ID, link.Version, fmt.Sprintf("internal error: %v", rec)); ferr != nil {
				logger.Error("failed to record panic", "error", ferr)
			}
		}
		err = domain.NewPipelineError(job.LinkID, "process", fmt.Errorf("panic: %v", rec))
	}()

	if err := s.checkQuota(ctx, job.OwnerID, ratelimit.ActionProcessVideo, job.LinkID); err != nil {
		return err
	}

	link, err := s.linkRepo.Get(ctx, job.LinkID)
	if err != nil {
		return fmt.Errorf("get link: %w", err)
	}
	if link.Status == domain.StatusUploaded {
		logger.Info("link already uploaded, nothing to do")
		return nil
	}

	// The stored URL is re-validated on every pass; records predating
	// the allowlist must not reach the network.
	if err := urlcheck.ValidateSourceURL(link.URL); err != nil {
		s.auditor.RecordType(domain.AuditSecurityViolation, link.OwnerID, link.ID,
			"stored tweet URL failed validation", domain.AuditMetadata{"url": link.URL})
		_, ferr := s.linkRepo.SetFailed(ctx, link.ID, link.Version, err.Error())
		if ferr != nil {
			return ferr
		}
		return domain.NewPipelineError(link.ID, "validate", err)
	}

	mediaURL, thumbnail, title, err := s.selectMedia(ctx, link, job)
	if err != nil {
		return s.fail(ctx, link, link.Version, "resolve", err)
	}

	// Every candidate media URL passes the same host and scheme gate,
	// whether it came from extraction, a stored retry seed, or a manual
	// submission. A rejection here leaves the record untouched.
	if err := urlcheck.ValidateMediaURL(mediaURL); err != nil {
		s.auditor.RecordType(domain.AuditSecurityViolation, link.OwnerID, link.ID,
			"candidate media URL failed validation", domain.AuditMetadata{"media_url": mediaURL})
		return domain.NewPipelineError(link.ID, "validate media", err)
	}

	// Persist the resolved media before downloading so a crash
	// mid-download leaves enough state for a cheap retry.
	link, err = s.linkRepo.SetDownloading(ctx, link.ID, link.Version, mediaURL, thumbnail, title)
	if err != nil {
		return fmt.Errorf("set downloading: %w", err)
	}
	logger.Info("downloading media", "media_url", mediaURL)

	result, err := s.fetcher.Fetch(ctx, mediaURL)
	if err != nil {
		return s.fail(ctx, link, link.Version, "download", err)
	}

	data := result.Data
	kind := domain.MediaKindMP4
	if s.transcoder != nil {
		logger.Info("transcoding to gif", "input_bytes", len(data))
		gif, err := s.transcoder.TranscodeToGIF(ctx, data)
		if err != nil {
			return s.fail(ctx, link, link.Version, "transcode", err)
		}
		data = gif
		kind = domain.MediaKindGIF
	}

	key, err := s.upload(ctx, kind, data)
	if err != nil {
		return s.fail(ctx, link, link.Version, "upload", err)
	}

	publicURL := s.store.PublicURL(key)
	link, err = s.linkRepo.SetUploaded(ctx, link.ID, link.Version, publicURL, key, int64(len(data)))
	if err != nil {
		// The object is stored but the record write lost. Leave the
		// object in place; a retry will upload under a fresh key and
		// orphan sweeping is an offline concern.
		return fmt.Errorf("set uploaded: %w", err)
	}

	s.auditor.RecordType(domain.AuditVideoUpload, link.OwnerID, link.ID,
		"media stored", domain.AuditMetadata{
			"key":        key,
			"size_bytes": len(data),
			"kind":       string(kind),
		})
	logger.Info("media stored", "key", key, "size_bytes", len(data), "kind", kind)
	return nil
}

// selectMedia produces the upstream media URL for the job's mode.
func (s *IngestService) selectMedia(ctx context.Context, link *domain.Link, job *domain.Job) (mediaURL, thumbnail, title string, err error) {
	switch job.Mode {
	case domain.JobModeManual:
		if err := checkManualURL(job.MediaURL); err != nil {
			return "", "", "", err
		}
		return job.MediaURL, "", "", nil

	case domain.JobModeRetry:
		if link.OriginalVideoURL != "" {
			return link.OriginalVideoURL, link.Thumbnail, link.Title, nil
		}
		fallthrough

	default: // extract
		res, err := s.resolver.Resolve(ctx, link.URL)
		if err != nil {
			return "", "", "", err
		}
		ext, err := s.resolver.Extract(ctx, link.URL)
		if err != nil {
			return "", "", "", err
		}
		thumbnail = ext.Thumbnail
		if thumbnail == "" {
			thumbnail = res.Thumbnail
		}
		return ext.VideoURL, thumbnail, ext.Title, nil
	}
}

// upload stores data under a fresh random key, drawing again on the
// rare collision.
func (s *IngestService) upload(ctx context.Context, kind domain.MediaKind, data []byte) (string, error) {
	const maxDraws = 3
	var lastErr error
	for i := 0; i < maxDraws; i++ {
		key := storage.NewObjectKey(kind)
		err := s.store.Put(ctx, key, kind.ContentType(), data, storage.CacheForever)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, domain.ErrObjectExists) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("exhausted key draws: %w", lastErr)
}

// fail writes a pipeline failure into the link record. The stored
// message is the sentinel's text so callers see a stable, user-facing
// reason.
func (s *IngestService) fail(ctx context.Context, link *domain.Link, version int64, op string, cause error) error {
	if _, err := s.linkRepo.SetFailed(ctx, link.ID, version, cause.Error()); err != nil {
		s.logger.Error("could not record failure",
			"link_id", link.ID, "op", op, "cause", cause, "error", err)
		return err
	}
	s.logger.Warn("pipeline step failed", "link_id", link.ID, "op", op, "error", cause)
	return domain.NewPipelineError(link.ID, op, cause)
}

// Delete removes a link and its stored media. The caller must own the
// record and name its exact storage key; a mismatch is audited and the
// media stays put.
func (s *IngestService) Delete(ctx context.Context, linkID domain.LinkID, ownerID, videoPath string) error {
	if err := s.checkQuota(ctx, ownerID, ratelimit.ActionDeleteLink, linkID); err != nil {
		return err
	}

	link, err := s.linkRepo.Get(ctx, linkID)
	if err != nil {
		return err
	}
	if link.OwnerID != ownerID {
		s.auditor.RecordType(domain.AuditSecurityViolation, ownerID, linkID,
			"delete requested for a link owned by someone else", nil)
		return domain.ErrNotOwner
	}
	if link.VideoPath != "" && link.VideoPath != videoPath {
		s.auditor.RecordType(domain.AuditSecurityViolation, ownerID, linkID,
			"delete requested with a mismatched storage key", domain.AuditMetadata{
				"requested_path": videoPath,
			})
		return domain.ErrNotOwner
	}

	if err := s.linkRepo.Delete(ctx, linkID, ownerID); err != nil {
		return err
	}

	if link.VideoPath != "" {
		if err := s.store.Remove(ctx, link.VideoPath); err != nil {
			// The record is gone; a leaked object is preferable to a
			// resurrected link.
			s.logger.Error("media removal failed", "link_id", linkID, "key", link.VideoPath, "error", err)
		} else {
			s.auditor.RecordType(domain.AuditVideoDelete, ownerID, linkID,
				"media removed", domain.AuditMetadata{"key": link.VideoPath})
		}
	}

	s.auditor.RecordType(domain.AuditLinkDelete, ownerID, linkID, "link deleted", nil)
	return nil
}

// StatusResponse reports a link's ingestion state.
type StatusResponse struct {
	LinkID    domain.LinkID
	Status    domain.Status
	VideoURL  string
	VideoPath string
	Thumbnail string
	Title     string
	Error     string
	CreatedAt time.Time
}

// GetStatus returns the current state of a link owned by ownerID.
func (s *IngestService) GetStatus(ctx context.Context, linkID domain.LinkID, ownerID string) (*StatusResponse, error) {
	link, err := s.linkRepo.Get(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		return nil, domain.ErrNotOwner
	}

	return &StatusResponse{
		LinkID:    link.ID,
		Status:    link.Status,
		VideoURL:  link.VideoURL,
		VideoPath: link.VideoPath,
		Thumbnail: link.Thumbnail,
		Title:     link.Title,
		Error:     link.VideoError,
		CreatedAt: link.CreatedAt,
	}, nil
}

// List returns an owner's links, newest first.
func (s *IngestService) List(ctx context.Context, ownerID string, status *domain.Status, limit, offset int) ([]*domain.Link, error) {
	return s.linkRepo.List(ctx, ownerID, status, limit, offset)
}

// ClaimUnclaimed assigns ownerless records to ownerID.
func (s *IngestService) ClaimUnclaimed(ctx context.Context, ownerID string) (int64, error) {
	claimed, err := s.linkRepo.ClaimUnclaimed(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if claimed > 0 {
		s.auditor.RecordType(domain.AuditDataMigration, ownerID, "",
			fmt.Sprintf("claimed %d unowned links", claimed), nil)
	}
	return claimed, nil
}

func (s *IngestService) checkQuota(ctx context.Context, principal string, action ratelimit.Action, linkID domain.LinkID) error {
	res, err := ratelimit.Check(ctx, s.limiter, principal, action)
	if err != nil {
		// Quota backend trouble fails open; blocking every user on a
		// Redis hiccup is worse than briefly unmetered traffic.
		s.logger.Error("rate limiter unavailable", "action", action, "error", err)
		return nil
	}
	if !res.Allowed {
		s.auditor.RecordType(domain.AuditRateLimitExceeded, principal, linkID,
			"quota exhausted", domain.AuditMetadata{"action": string(action)})
		return &domain.RateLimitedError{Action: string(action), ResetAt: res.ResetAt}
	}
	return nil
}

func (s *IngestService) newJob(linkID domain.LinkID, ownerID string, mode domain.JobMode) *domain.Job {
	jobID := domain.JobID("job_" + uuid.New().String()[:8])
	return domain.NewJob(jobID, linkID, ownerID, mode, s.workerCfg.MaxRetries)
}

// staticExtensions and the twimg photo host mark URLs that can never
// be motion media, so they are rejected before any request is made.
var staticExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tiff"}

var videoExtensions = []string{".mp4", ".webm", ".gif"}

// checkManualURL applies the cheap shape filter for caller-supplied
// media URLs.
func checkManualURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.ErrNotAVideoURL
	}

	path := strings.ToLower(u.Path)
	for _, ext := range staticExtensions {
		if strings.HasSuffix(path, ext) {
			return domain.ErrStaticImage
		}
	}
	if strings.EqualFold(u.Hostname(), "pbs.twimg.com") && strings.HasPrefix(path, "/media") {
		return domain.ErrStaticImage
	}

	for _, ext := range videoExtensions {
		if strings.HasSuffix(path, ext) {
			return nil
		}
	}
	if strings.EqualFold(u.Hostname(), "video.twimg.com") {
		return nil
	}
	return domain.ErrNotAVideoURL
}
