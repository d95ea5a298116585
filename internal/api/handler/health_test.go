package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iconidentify/gifstash/internal/repository"
)

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(ctx context.Context) error {
	return p.err
}

func TestHealthHandler_Live(t *testing.T) {
	h := NewHealthHandler(newMockJobRepository(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Live(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	repo := newMockJobRepository()
	repo.stats = &repository.QueueStats{Queued: 3, Processing: 1}
	h := NewHealthHandler(repo, stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	h.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Queue == nil || resp.Queue.Queued != 3 {
		t.Errorf("queue = %+v, want queued 3", resp.Queue)
	}
}

func TestHealthHandler_Ready_QueueUnavailable(t *testing.T) {
	repo := newMockJobRepository()
	repo.statsErr = errors.New("queue down")
	h := NewHealthHandler(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	h.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthHandler_Ready_DBUnavailable(t *testing.T) {
	h := NewHealthHandler(newMockJobRepository(), stubPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	h.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthHandler_Stats(t *testing.T) {
	repo := newMockJobRepository()
	repo.stats = &repository.QueueStats{Completed: 12, Failed: 2}
	h := NewHealthHandler(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp SystemStats
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.NumCPU < 1 {
		t.Errorf("num_cpu = %d, want >= 1", resp.NumCPU)
	}
	if resp.Queue == nil || resp.Queue.Completed != 12 {
		t.Errorf("queue = %+v, want completed 12", resp.Queue)
	}
}
