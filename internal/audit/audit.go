// Package audit keeps a trail of sensitive operations: uploads,
// deletions, quota denials, and ownership violations. Recent events sit
// in an in-memory ring buffer; an optional SQLite file keeps history.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/gifstash/internal/domain"
)

// Config configures the audit service.
type Config struct {
	// BufferSize is the number of events kept in memory. Default: 1000.
	BufferSize int

	// SQLitePath enables persistence when non-empty.
	SQLitePath string

	// RetentionDays bounds how long persisted events are kept (0 = forever).
	RetentionDays int
}

// Service records and queries audit events.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	events []domain.AuditEvent
	head   int // next write position
	count  int
	seq    uint64

	db *sql.DB
}

// NewService creates an audit service. Persistence is enabled when
// cfg.SQLitePath is set.
func NewService(cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		cfg:    cfg,
		logger: logger,
		events: make([]domain.AuditEvent, cfg.BufferSize),
	}

	if cfg.SQLitePath != "" {
		if err := svc.initSQLite(); err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		logger.Info("audit persistence enabled", "path", cfg.SQLitePath)
	}

	return svc, nil
}

func (s *Service) initSQLite() error {
	db, err := sql.Open("sqlite", s.cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			type TEXT NOT NULL,
			user_id TEXT,
			link_id TEXT,
			message TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
		CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(user_id);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("create table: %w", err)
	}

	s.db = db
	return nil
}

// Close releases the SQLite handle if persistence is enabled.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends an event to the trail. An empty ID and zero timestamp
// are filled in. Recording never fails; persistence errors are logged.
func (s *Service) Record(event domain.AuditEvent) {
	if event.ID == "" {
		seq := atomic.AddUint64(&s.seq, 1)
		event.ID = domain.AuditEventID(fmt.Sprintf("aud_%d_%d", time.Now().UnixNano(), seq))
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.events[s.head] = event
	s.head = (s.head + 1) % s.cfg.BufferSize
	if s.count < s.cfg.BufferSize {
		s.count++
	}
	s.mu.Unlock()

	if s.db != nil {
		s.persist(event)
	}

	level := slog.LevelInfo
	switch event.Type {
	case domain.AuditRateLimitExceeded:
		level = slog.LevelWarn
	case domain.AuditSecurityViolation:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "audit event",
		"audit_id", event.ID,
		"type", event.Type,
		"user_id", event.UserID,
		"link_id", event.LinkID,
		"message", event.Message,
	)
}

// RecordType is shorthand for Record with inline metadata.
func (s *Service) RecordType(eventType domain.AuditEventType, userID string, linkID domain.LinkID, message string, metadata domain.AuditMetadata) {
	s.Record(domain.AuditEvent{
		Type:     eventType,
		UserID:   userID,
		LinkID:   linkID,
		Message:  message,
		Metadata: metadata.ToJSON(),
	})
}

func (s *Service) persist(event domain.AuditEvent) {
	metadataStr := ""
	if event.Metadata != nil {
		metadataStr = string(event.Metadata)
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, timestamp, type, user_id, link_id, message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Timestamp, event.Type, event.UserID, event.LinkID, event.Message, metadataStr)

	if err != nil {
		s.logger.Warn("failed to persist audit event", "audit_id", event.ID, "error", err)
	}
}

// Filter narrows a Query.
type Filter struct {
	Type      *domain.AuditEventType
	UserID    string
	LinkID    domain.LinkID
	StartTime *time.Time
	EndTime   *time.Time
}

// Query describes an audit trail lookup.
type Query struct {
	Filter Filter
	Limit  int
	Offset int
}

// QueryResult is a page of matching events.
type QueryResult struct {
	Events  []domain.AuditEvent
	Total   int
	HasMore bool
}

// Recent returns up to n events, newest first, from the ring buffer.
func (s *Service) Recent(n int) []domain.AuditEvent {
	if n <= 0 {
		n = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > s.count {
		n = s.count
	}

	result := make([]domain.AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.head - 1 - i + s.cfg.BufferSize) % s.cfg.BufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue
		}
		result = append(result, event)
	}
	return result
}

// Query filters the ring buffer, newest first, with pagination.
func (s *Service) Query(_ context.Context, query Query) (*QueryResult, error) {
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.AuditEvent, 0, s.count)
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.cfg.BufferSize) % s.cfg.BufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue
		}
		if matchesFilter(event, query.Filter) {
			matched = append(matched, event)
		}
	}

	total := len(matched)
	start := query.Offset
	if start >= total {
		return &QueryResult{Events: []domain.AuditEvent{}, Total: total}, nil
	}
	end := start + query.Limit
	if end > total {
		end = total
	}

	return &QueryResult{
		Events:  matched[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// QueryHistorical reads persisted events from SQLite. Without
// persistence it returns an empty result.
func (s *Service) QueryHistorical(ctx context.Context, query Query) (*QueryResult, error) {
	if s.db == nil {
		return &QueryResult{Events: []domain.AuditEvent{}}, nil
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	var conditions []string
	var args []any

	if query.Filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *query.Filter.Type)
	}
	if query.Filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, query.Filter.UserID)
	}
	if query.Filter.LinkID != "" {
		conditions = append(conditions, "link_id = ?")
		args = append(args, query.Filter.LinkID)
	}
	if query.Filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *query.Filter.StartTime)
	}
	if query.Filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *query.Filter.EndTime)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_events %s", whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT id, timestamp, type, user_id, link_id, message, metadata
		FROM audit_events %s
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, query.Limit, query.Offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0, query.Limit)
	for rows.Next() {
		var event domain.AuditEvent
		var userID, linkID, metadataStr sql.NullString
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.Type, &userID, &linkID, &event.Message, &metadataStr); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.UserID = userID.String
		event.LinkID = domain.LinkID(linkID.String)
		if metadataStr.Valid && metadataStr.String != "" {
			event.Metadata = json.RawMessage(metadataStr.String)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return &QueryResult{
		Events:  events,
		Total:   total,
		HasMore: query.Offset+len(events) < total,
	}, nil
}

// CleanupOld removes persisted events older than the retention period.
func (s *Service) CleanupOld(ctx context.Context) error {
	if s.db == nil || s.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("delete old audit events: %w", err)
	}

	if deleted, _ := result.RowsAffected(); deleted > 0 {
		s.logger.Info("audit retention applied", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}

func matchesFilter(event domain.AuditEvent, filter Filter) bool {
	if filter.Type != nil && event.Type != *filter.Type {
		return false
	}
	if filter.UserID != "" && event.UserID != filter.UserID {
		return false
	}
	if filter.LinkID != "" && event.LinkID != filter.LinkID {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}
