package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iconidentify/gifstash/internal/domain"
)

// linksSchema is applied by EnsureSchema at startup. The table is small
// enough that idempotent DDL beats a migration tool here.
const linksSchema = `
CREATE TABLE IF NOT EXISTS links (
	id                 TEXT PRIMARY KEY,
	url                TEXT NOT NULL,
	owner_id           TEXT NOT NULL DEFAULT '',
	original_video_url TEXT NOT NULL DEFAULT '',
	thumbnail          TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL DEFAULT '',
	video_url          TEXT NOT NULL DEFAULT '',
	video_path         TEXT NOT NULL DEFAULT '',
	video_size         BIGINT NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'pending',
	video_error        TEXT NOT NULL DEFAULT '',
	version            BIGINT NOT NULL DEFAULT 1,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_links_owner ON links(owner_id);
CREATE INDEX IF NOT EXISTS idx_links_status ON links(status);
`

// linkRow mirrors the links table for sqlx scanning.
type linkRow struct {
	ID               string    `db:"id"`
	URL              string    `db:"url"`
	OwnerID          string    `db:"owner_id"`
	OriginalVideoURL string    `db:"original_video_url"`
	Thumbnail        string    `db:"thumbnail"`
	Title            string    `db:"title"`
	VideoURL         string    `db:"video_url"`
	VideoPath        string    `db:"video_path"`
	VideoSize        int64     `db:"video_size"`
	Status           string    `db:"status"`
	VideoError       string    `db:"video_error"`
	Version          int64     `db:"version"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r linkRow) toDomain() *domain.Link {
	return &domain.Link{
		ID:               domain.LinkID(r.ID),
		URL:              r.URL,
		OwnerID:          r.OwnerID,
		OriginalVideoURL: r.OriginalVideoURL,
		Thumbnail:        r.Thumbnail,
		Title:            r.Title,
		VideoURL:         r.VideoURL,
		VideoPath:        r.VideoPath,
		VideoSize:        r.VideoSize,
		Status:           domain.Status(r.Status),
		VideoError:       r.VideoError,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
	}
}

const linkColumns = `id, url, owner_id, original_video_url, thumbnail, title,
	video_url, video_path, video_size, status, video_error, version, created_at`

// PostgresLinkRepository implements LinkRepository on Postgres.
type PostgresLinkRepository struct {
	db *sqlx.DB
}

func NewPostgresLinkRepository(db *sqlx.DB) *PostgresLinkRepository {
	return &PostgresLinkRepository{db: db}
}

// EnsureSchema creates the links table if it does not exist.
func (r *PostgresLinkRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, linksSchema); err != nil {
		return fmt.Errorf("ensure links schema: %w", err)
	}
	return nil
}

func (r *PostgresLinkRepository) Create(ctx context.Context, link *domain.Link) error {
	if link.Status == "" {
		link.Status = domain.StatusPending
	}
	if link.Version == 0 {
		link.Version = 1
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO links (id, url, owner_id, thumbnail, title, status, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		link.ID, link.URL, link.OwnerID, link.Thumbnail, link.Title,
		link.Status, link.Version, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (r *PostgresLinkRepository) Get(ctx context.Context, id domain.LinkID) (*domain.Link, error) {
	var row linkRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+linkColumns+` FROM links WHERE id = $1`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresLinkRepository) List(ctx context.Context, ownerID string, status *domain.Status, limit, offset int) ([]*domain.Link, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var rows []linkRow
	var err error
	if status != nil {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+linkColumns+` FROM links
			 WHERE owner_id = $1 AND status = $2
			 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
			ownerID, string(*status), limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+linkColumns+` FROM links
			 WHERE owner_id = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			ownerID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	links := make([]*domain.Link, 0, len(rows))
	for _, row := range rows {
		links = append(links, row.toDomain())
	}
	return links, nil
}

func (r *PostgresLinkRepository) SetDownloading(ctx context.Context, id domain.LinkID, version int64, originalVideoURL, thumbnail, title string) (*domain.Link, error) {
	return r.transition(ctx, id, version, domain.StatusDownloading, `
		UPDATE links SET
			status = $1,
			original_video_url = $2,
			thumbnail = CASE WHEN $3 <> '' THEN $3 ELSE thumbnail END,
			title = CASE WHEN $4 <> '' THEN $4 ELSE title END,
			version = version + 1
		WHERE id = $5 AND version = $6 AND status IN ('pending', 'failed')
		RETURNING `+linkColumns,
		string(domain.StatusDownloading), originalVideoURL, thumbnail, title, string(id), version)
}

func (r *PostgresLinkRepository) SetUploaded(ctx context.Context, id domain.LinkID, version int64, videoURL, videoPath string, videoSize int64) (*domain.Link, error) {
	return r.transition(ctx, id, version, domain.StatusUploaded, `
		UPDATE links SET
			status = $1,
			video_url = $2,
			video_path = $3,
			video_size = $4,
			video_error = '',
			version = version + 1
		WHERE id = $5 AND version = $6 AND status = 'downloading'
		RETURNING `+linkColumns,
		string(domain.StatusUploaded), videoURL, videoPath, videoSize, string(id), version)
}

func (r *PostgresLinkRepository) SetFailed(ctx context.Context, id domain.LinkID, version int64, message string) (*domain.Link, error) {
	return r.transition(ctx, id, version, domain.StatusFailed, `
		UPDATE links SET
			status = $1,
			video_error = $2,
			version = version + 1
		WHERE id = $3 AND version = $4 AND status IN ('pending', 'downloading', 'failed')
		RETURNING `+linkColumns,
		string(domain.StatusFailed), message, string(id), version)
}

// transition runs a guarded status update. Zero rows means either the
// link is gone, the version token is stale, or the transition is
// illegal from the current state; a re-read tells them apart.
func (r *PostgresLinkRepository) transition(ctx context.Context, id domain.LinkID, version int64, next domain.Status, query string, args ...any) (*domain.Link, error) {
	var row linkRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update link status: %w", err)
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, current.Status, next)
	}
	if current.Version != version {
		return nil, fmt.Errorf("%w: have %d, row at %d", domain.ErrVersionConflict, version, current.Version)
	}
	return nil, fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, current.Status, next)
}

func (r *PostgresLinkRepository) Delete(ctx context.Context, id domain.LinkID, ownerID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM links WHERE id = $1 AND owner_id = $2`, string(id), ownerID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrNotOwner
	}
	return nil
}

func (r *PostgresLinkRepository) ClaimUnclaimed(ctx context.Context, ownerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE links SET owner_id = $1 WHERE owner_id = ''`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("claim unclaimed links: %w", err)
	}
	claimed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("claim unclaimed links: %w", err)
	}
	return claimed, nil
}
