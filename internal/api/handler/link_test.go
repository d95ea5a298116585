package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/gifstash/internal/domain"
	"github.com/iconidentify/gifstash/internal/service"
)

// newLinkRouter mounts a LinkHandler the way the real router does, so
// chi URL params resolve in tests.
func newLinkRouter(svc LinkService) *chi.Mux {
	h := NewLinkHandler(svc, testLogger())
	r := chi.NewRouter()
	r.Post("/links", h.Create)
	r.Get("/links", h.List)
	r.Post("/links/claim", h.Claim)
	r.Get("/links/{linkID}/status", h.GetStatus)
	r.Post("/links/{linkID}/media", h.SubmitManualURL)
	r.Post("/links/{linkID}/retry", h.Retry)
	r.Delete("/links/{linkID}", h.Delete)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLinkHandler_Create(t *testing.T) {
	svc := &mockLinkService{
		createResp: &service.CreateResponse{
			LinkID: "lnk_abc123",
			JobID:  "job-1",
			Status: domain.StatusPending,
		},
	}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/links", "user-1",
		CreateLinkRequest{URL: "https://x.com/someone/status/123"})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp AcceptedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.LinkID != "lnk_abc123" {
		t.Errorf("link_id = %q, want %q", resp.LinkID, "lnk_abc123")
	}
	if resp.JobID != "job-1" {
		t.Errorf("job_id = %q, want %q", resp.JobID, "job-1")
	}
	if resp.Status != "pending" {
		t.Errorf("status = %q, want %q", resp.Status, "pending")
	}

	if svc.lastCreate.OwnerID != "user-1" {
		t.Errorf("owner = %q, want %q", svc.lastCreate.OwnerID, "user-1")
	}
	if svc.lastCreate.URL != "https://x.com/someone/status/123" {
		t.Errorf("url = %q", svc.lastCreate.URL)
	}
}

func TestLinkHandler_Create_MissingOwner(t *testing.T) {
	router := newLinkRouter(&mockLinkService{})

	w := doJSON(t, router, http.MethodPost, "/links", "",
		CreateLinkRequest{URL: "https://x.com/someone/status/123"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLinkHandler_Create_InvalidBody(t *testing.T) {
	router := newLinkRouter(&mockLinkService{})

	req := httptest.NewRequest(http.MethodPost, "/links", bytes.NewBufferString("{not json"))
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLinkHandler_Create_NotATweetURL(t *testing.T) {
	svc := &mockLinkService{createErr: domain.ErrNotATweetURL}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/links", "user-1",
		CreateLinkRequest{URL: "https://example.com/watch"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLinkHandler_Create_RateLimited(t *testing.T) {
	svc := &mockLinkService{
		createErr: &domain.RateLimitedError{
			Action:  "create_link",
			ResetAt: time.Now().Add(90 * time.Second),
		},
	}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/links", "user-1",
		CreateLinkRequest{URL: "https://x.com/someone/status/123"})

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestLinkHandler_SubmitManualURL(t *testing.T) {
	svc := &mockLinkService{
		manualResp: &service.CreateResponse{
			LinkID: "lnk_abc123",
			JobID:  "job-2",
			Status: domain.StatusPending,
		},
	}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/links/lnk_abc123/media", "user-1",
		ManualURLRequest{MediaURL: "https://video.twimg.com/clip.mp4"})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusAccepted, w.Body.String())
	}
	if svc.lastLinkID != "lnk_abc123" {
		t.Errorf("link ID = %q, want %q", svc.lastLinkID, "lnk_abc123")
	}
	if svc.lastMediaURL != "https://video.twimg.com/clip.mp4" {
		t.Errorf("media URL = %q", svc.lastMediaURL)
	}
}

func TestLinkHandler_SubmitManualURL_Rejections(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not a video", domain.ErrNotAVideoURL, http.StatusUnprocessableEntity},
		{"static image", domain.ErrStaticImage, http.StatusUnprocessableEntity},
		{"disallowed host", domain.ErrDisallowedHost, http.StatusUnprocessableEntity},
		{"wrong owner", domain.ErrNotOwner, http.StatusForbidden},
		{"missing link", domain.ErrLinkNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newLinkRouter(&mockLinkService{manualErr: tt.err})

			w := doJSON(t, router, http.MethodPost, "/links/lnk_abc123/media", "user-1",
				ManualURLRequest{MediaURL: "https://example.com/clip.bin"})

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLinkHandler_SubmitManualURL_MissingURL(t *testing.T) {
	router := newLinkRouter(&mockLinkService{})

	w := doJSON(t, router, http.MethodPost, "/links/lnk_abc123/media", "user-1",
		ManualURLRequest{})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLinkHandler_Retry(t *testing.T) {
	svc := &mockLinkService{
		retryResp: &service.CreateResponse{
			LinkID: "lnk_abc123",
			JobID:  "job-3",
			Status: domain.StatusFailed,
		},
	}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/links/lnk_abc123/retry", "user-1", nil)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestLinkHandler_Retry_AlreadyUploaded(t *testing.T) {
	// No job queued for an uploaded link; the handler reports 200.
	svc := &mockLinkService{
		retryResp: &service.CreateResponse{
			LinkID: "lnk_abc123",
			Status: domain.StatusUploaded,
		},
	}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/links/lnk_abc123/retry", "user-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp AcceptedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != "" {
		t.Errorf("job_id = %q, want empty", resp.JobID)
	}
}

func TestLinkHandler_Delete(t *testing.T) {
	svc := &mockLinkService{}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodDelete, "/links/lnk_abc123", "user-1",
		DeleteLinkRequest{VideoPath: "a1b2c3.mp4"})

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if svc.lastVideoPath != "a1b2c3.mp4" {
		t.Errorf("video path = %q, want %q", svc.lastVideoPath, "a1b2c3.mp4")
	}
	if svc.lastOwnerID != "user-1" {
		t.Errorf("owner = %q, want %q", svc.lastOwnerID, "user-1")
	}
}

func TestLinkHandler_Delete_NotOwner(t *testing.T) {
	router := newLinkRouter(&mockLinkService{deleteErr: domain.ErrNotOwner})

	w := doJSON(t, router, http.MethodDelete, "/links/lnk_abc123", "user-2",
		DeleteLinkRequest{VideoPath: "a1b2c3.mp4"})

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestLinkHandler_Delete_NotFound(t *testing.T) {
	router := newLinkRouter(&mockLinkService{deleteErr: domain.ErrLinkNotFound})

	w := doJSON(t, router, http.MethodDelete, "/links/lnk_missing", "user-1",
		DeleteLinkRequest{VideoPath: "a1b2c3.mp4"})

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestLinkHandler_GetStatus(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	svc := &mockLinkService{
		statusResp: &service.StatusResponse{
			LinkID:    "lnk_abc123",
			Status:    domain.StatusUploaded,
			VideoURL:  "https://cdn.example.com/a1b2c3.mp4",
			VideoPath: "a1b2c3.mp4",
			Title:     "someone",
			CreatedAt: created,
		},
	}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodGet, "/links/lnk_abc123/status", "user-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp LinkResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "uploaded" {
		t.Errorf("status = %q, want %q", resp.Status, "uploaded")
	}
	if resp.VideoURL != "https://cdn.example.com/a1b2c3.mp4" {
		t.Errorf("video_url = %q", resp.VideoURL)
	}
	if !resp.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", resp.CreatedAt, created)
	}
}

func TestLinkHandler_List(t *testing.T) {
	svc := &mockLinkService{
		links: []*domain.Link{
			{ID: "lnk_1", URL: "https://x.com/a/status/1", Status: domain.StatusUploaded, VideoPath: "aaaaaa.mp4"},
			{ID: "lnk_2", URL: "https://x.com/a/status/2", Status: domain.StatusFailed, VideoError: "no video found in tweet"},
		},
	}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodGet, "/links?status=uploaded&limit=10&offset=5", "user-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp ListLinksResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Links) != 2 {
		t.Fatalf("links = %d, want 2", len(resp.Links))
	}
	if resp.Limit != 10 || resp.Offset != 5 {
		t.Errorf("limit/offset = %d/%d, want 10/5", resp.Limit, resp.Offset)
	}

	if svc.lastStatus == nil || *svc.lastStatus != domain.StatusUploaded {
		t.Errorf("status filter = %v, want uploaded", svc.lastStatus)
	}
	if svc.lastLimit != 10 || svc.lastOffset != 5 {
		t.Errorf("passed limit/offset = %d/%d", svc.lastLimit, svc.lastOffset)
	}
}

func TestLinkHandler_List_UnknownStatus(t *testing.T) {
	router := newLinkRouter(&mockLinkService{})

	w := doJSON(t, router, http.MethodGet, "/links?status=bogus", "user-1", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLinkHandler_Claim(t *testing.T) {
	svc := &mockLinkService{claimed: 4}
	router := newLinkRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/links/claim", "user-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp ClaimResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Claimed != 4 {
		t.Errorf("claimed = %d, want 4", resp.Claimed)
	}
}
