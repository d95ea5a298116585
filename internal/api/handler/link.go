package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/gifstash/internal/domain"
	"github.com/iconidentify/gifstash/internal/service"
)

// LinkService is the subset of the ingest service the HTTP layer needs.
type LinkService interface {
	CreateLink(ctx context.Context, req service.CreateRequest) (*service.CreateResponse, error)
	SubmitManualURL(ctx context.Context, linkID domain.LinkID, ownerID, mediaURL string) (*service.CreateResponse, error)
	Retry(ctx context.Context, linkID domain.LinkID, ownerID string) (*service.CreateResponse, error)
	Delete(ctx context.Context, linkID domain.LinkID, ownerID, videoPath string) error
	GetStatus(ctx context.Context, linkID domain.LinkID, ownerID string) (*service.StatusResponse, error)
	List(ctx context.Context, ownerID string, status *domain.Status, limit, offset int) ([]*domain.Link, error)
	ClaimUnclaimed(ctx context.Context, ownerID string) (int64, error)
}

// LinkHandler handles link ingestion HTTP requests.
type LinkHandler struct {
	svc    LinkService
	logger *slog.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(svc LinkService, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{
		svc:    svc,
		logger: logger,
	}
}

// CreateLinkRequest is the JSON request body for link creation.
type CreateLinkRequest struct {
	URL string `json:"url"`
}

// AcceptedResponse is returned when a link enters the pipeline.
type AcceptedResponse struct {
	LinkID string `json:"link_id"`
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status"`
}

// LinkResponse represents a link in list/get responses.
type LinkResponse struct {
	LinkID    string    `json:"link_id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	VideoURL  string    `json:"video_url,omitempty"`
	VideoPath string    `json:"video_path,omitempty"`
	VideoSize int64     `json:"video_size,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Title     string    `json:"title,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListLinksResponse contains a paginated link list.
type ListLinksResponse struct {
	Links  []LinkResponse `json:"links"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// Create handles POST /api/v1/links
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.CreateLink(r.Context(), service.CreateRequest{
		URL:     req.URL,
		OwnerID: ownerID,
	})
	if err != nil {
		h.writeServiceError(w, "create link", err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, AcceptedResponse{
		LinkID: result.LinkID.String(),
		JobID:  string(result.JobID),
		Status: string(result.Status),
	})
}

// ManualURLRequest is the JSON request body for a manual media URL.
type ManualURLRequest struct {
	MediaURL string `json:"media_url"`
}

// SubmitManualURL handles POST /api/v1/links/{linkID}/media
func (h *LinkHandler) SubmitManualURL(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	linkID := chi.URLParam(r, "linkID")
	if linkID == "" {
		h.writeError(w, http.StatusBadRequest, "missing link ID")
		return
	}

	var req ManualURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MediaURL == "" {
		h.writeError(w, http.StatusBadRequest, "missing media_url")
		return
	}

	result, err := h.svc.SubmitManualURL(r.Context(), domain.LinkID(linkID), ownerID, req.MediaURL)
	if err != nil {
		h.writeServiceError(w, "submit manual url", err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, AcceptedResponse{
		LinkID: result.LinkID.String(),
		JobID:  string(result.JobID),
		Status: string(result.Status),
	})
}

// Retry handles POST /api/v1/links/{linkID}/retry
func (h *LinkHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	linkID := chi.URLParam(r, "linkID")
	if linkID == "" {
		h.writeError(w, http.StatusBadRequest, "missing link ID")
		return
	}

	result, err := h.svc.Retry(r.Context(), domain.LinkID(linkID), ownerID)
	if err != nil {
		h.writeServiceError(w, "retry link", err)
		return
	}

	status := http.StatusAccepted
	if result.JobID == "" {
		// Already uploaded; nothing was queued.
		status = http.StatusOK
	}
	h.writeJSON(w, status, AcceptedResponse{
		LinkID: result.LinkID.String(),
		JobID:  string(result.JobID),
		Status: string(result.Status),
	})
}

// DeleteLinkRequest is the JSON request body for link deletion. The
// storage path must match the record exactly.
type DeleteLinkRequest struct {
	VideoPath string `json:"video_path"`
}

// Delete handles DELETE /api/v1/links/{linkID}
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	linkID := chi.URLParam(r, "linkID")
	if linkID == "" {
		h.writeError(w, http.StatusBadRequest, "missing link ID")
		return
	}

	var req DeleteLinkRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.svc.Delete(r.Context(), domain.LinkID(linkID), ownerID, req.VideoPath); err != nil {
		h.writeServiceError(w, "delete link", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles GET /api/v1/links/{linkID}/status
func (h *LinkHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	linkID := chi.URLParam(r, "linkID")
	if linkID == "" {
		h.writeError(w, http.StatusBadRequest, "missing link ID")
		return
	}

	status, err := h.svc.GetStatus(r.Context(), domain.LinkID(linkID), ownerID)
	if err != nil {
		h.writeServiceError(w, "get status", err)
		return
	}

	h.writeJSON(w, http.StatusOK, LinkResponse{
		LinkID:    status.LinkID.String(),
		Status:    string(status.Status),
		VideoURL:  status.VideoURL,
		VideoPath: status.VideoPath,
		Thumbnail: status.Thumbnail,
		Title:     status.Title,
		Error:     status.Error,
		CreatedAt: status.CreatedAt,
	})
}

// List handles GET /api/v1/links
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	limit := 50
	offset := 0
	var status *domain.Status

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.Status(s)
		if !st.Valid() {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", s))
			return
		}
		status = &st
	}

	links, err := h.svc.List(r.Context(), ownerID, status, limit, offset)
	if err != nil {
		h.logger.Error("list failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list links")
		return
	}

	response := ListLinksResponse{
		Links:  make([]LinkResponse, 0, len(links)),
		Limit:  limit,
		Offset: offset,
	}
	for _, l := range links {
		response.Links = append(response.Links, LinkResponse{
			LinkID:    l.ID.String(),
			URL:       l.URL,
			Status:    string(l.Status),
			VideoURL:  l.VideoURL,
			VideoPath: l.VideoPath,
			VideoSize: l.VideoSize,
			Thumbnail: l.Thumbnail,
			Title:     l.Title,
			Error:     l.VideoError,
			CreatedAt: l.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// ClaimResponse reports how many ownerless records were claimed.
type ClaimResponse struct {
	Claimed int64 `json:"claimed"`
}

// Claim handles POST /api/v1/links/claim
func (h *LinkHandler) Claim(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	claimed, err := h.svc.ClaimUnclaimed(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("claim failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to claim links")
		return
	}

	h.writeJSON(w, http.StatusOK, ClaimResponse{Claimed: claimed})
}

// requireOwner reads the calling principal from the X-User-ID header.
func (h *LinkHandler) requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := r.Header.Get("X-User-ID")
	if ownerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return "", false
	}
	return ownerID, true
}

// writeServiceError maps service errors to HTTP status codes. Ownership
// failures stay 403 so they remain distinguishable from not-found.
func (h *LinkHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var rateLimited *domain.RateLimitedError
	if errors.As(err, &rateLimited) {
		seconds := int(rateLimited.RetryAfter().Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		h.writeError(w, http.StatusTooManyRequests, rateLimited.Error())
		return
	}

	var tooLarge *domain.PayloadTooLargeError
	if errors.As(err, &tooLarge) {
		h.writeError(w, http.StatusRequestEntityTooLarge, tooLarge.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrLinkNotFound):
		h.writeError(w, http.StatusNotFound, "link not found")
	case errors.Is(err, domain.ErrNotOwner):
		h.writeError(w, http.StatusForbidden, "not authorized for this record")
	case errors.Is(err, domain.ErrNotATweetURL),
		errors.Is(err, domain.ErrMalformedTweetURL):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotAVideoURL),
		errors.Is(err, domain.ErrStaticImage),
		errors.Is(err, domain.ErrDisallowedHost),
		errors.Is(err, domain.ErrPrivateNetworkBlocked):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrVersionConflict):
		h.writeError(w, http.StatusConflict, "record modified concurrently, retry")
	default:
		h.logger.Error(op+" failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *LinkHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *LinkHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
