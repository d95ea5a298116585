// Package storage persists finished media to an object store and hands
// back public playback URLs.
package storage

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/iconidentify/gifstash/internal/domain"
)

// ObjectStore is the persistence surface the ingest pipeline uploads to.
type ObjectStore interface {
	// Put stores data under key with the given content type. It fails
	// with domain.ErrObjectExists if the key is already taken.
	Put(ctx context.Context, key, contentType string, data []byte, cacheControl string) error

	// PublicURL returns the browser-reachable URL for a stored key.
	PublicURL(key string) string

	// Remove deletes stored objects. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error
}

// CacheForever is the cache policy for uploaded media. Keys are random
// and never rewritten, so clients may cache indefinitely.
const CacheForever = "public, max-age=31536000, immutable"

// NewObjectKey generates a short random key with the extension for kind.
// Six hex characters give ~16M distinct keys; collisions surface as
// domain.ErrObjectExists and the caller retries with a fresh key.
func NewObjectKey(kind domain.MediaKind) string {
	id := uuid.New()
	return hex.EncodeToString(id[:3]) + kind.Extension()
}
