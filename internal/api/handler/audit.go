package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iconidentify/gifstash/internal/audit"
	"github.com/iconidentify/gifstash/internal/domain"
)

// AuditHandler exposes the audit trail for review.
type AuditHandler struct {
	svc    *audit.Service
	logger *slog.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(svc *audit.Service, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		svc:    svc,
		logger: logger,
	}
}

// AuditEventsResponse is a page of audit events.
type AuditEventsResponse struct {
	Events  []domain.AuditEvent `json:"events"`
	Total   int                 `json:"total"`
	HasMore bool                `json:"has_more"`
}

// Query handles GET /api/v1/audit/events
//
// Query params: type, user_id, link_id, start, end (RFC3339), limit,
// offset, and source=buffer|history (buffer is the default).
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{}
	params := r.URL.Query()

	if t := params.Get("type"); t != "" {
		et := domain.AuditEventType(t)
		q.Filter.Type = &et
	}
	q.Filter.UserID = params.Get("user_id")
	q.Filter.LinkID = domain.LinkID(params.Get("link_id"))

	if s := params.Get("start"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		q.Filter.StartTime = &ts
	}
	if e := params.Get("end"); e != "" {
		ts, err := time.Parse(time.RFC3339, e)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		q.Filter.EndTime = &ts
	}

	if l := params.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			q.Limit = parsed
		}
	}
	if o := params.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			q.Offset = parsed
		}
	}

	var (
		result *audit.QueryResult
		err    error
	)
	if params.Get("source") == "history" {
		result, err = h.svc.QueryHistorical(r.Context(), q)
	} else {
		result, err = h.svc.Query(r.Context(), q)
	}
	if err != nil {
		h.logger.Error("audit query failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	h.writeJSON(w, http.StatusOK, AuditEventsResponse{
		Events:  result.Events,
		Total:   result.Total,
		HasMore: result.HasMore,
	})
}

// Recent handles GET /api/v1/audit/events/recent
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	n := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			n = parsed
		}
	}

	events := h.svc.Recent(n)
	h.writeJSON(w, http.StatusOK, AuditEventsResponse{
		Events: events,
		Total:  len(events),
	})
}

func (h *AuditHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *AuditHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
