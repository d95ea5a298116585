package domain

import (
	"time"
)

// LinkID is a unique identifier for a stashed link.
type LinkID string

// String returns the string representation of the LinkID.
func (id LinkID) String() string {
	return string(id)
}

// Status represents the media ingestion state of a link.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusUploaded    Status = "uploaded"
	StatusFailed      Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusUploaded, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> next is legal.
// "uploaded" is terminal; a failed record re-enters at "downloading"
// only through an explicit retry.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusDownloading || next == StatusFailed
	case StatusDownloading:
		return next == StatusUploaded || next == StatusFailed
	case StatusFailed:
		// Writing failed twice is idempotent; retry re-enters at downloading.
		return next == StatusDownloading || next == StatusFailed
	case StatusUploaded:
		return false
	}
	return false
}

// Link is the record the ingestion pipeline mutates. The table itself is
// owned by the surrounding application; this core only reads and writes
// the fields below.
type Link struct {
	ID               LinkID
	URL              string // original tweet URL, immutable once set
	OwnerID          string
	OriginalVideoURL string // resolved upstream media URL
	Thumbnail        string
	Title            string
	VideoURL         string // public URL, set on successful upload
	VideoPath        string // storage key, set on successful upload
	VideoSize        int64
	Status           Status
	VideoError       string // set iff Status == failed
	Version          int64  // optimistic concurrency token
	CreatedAt        time.Time
}

// Uploaded reports whether the link has a durably stored asset.
func (l *Link) Uploaded() bool {
	return l.Status == StatusUploaded && l.VideoURL != "" && l.VideoPath != ""
}

// MediaKind identifies the stored asset format.
type MediaKind string

const (
	MediaKindMP4 MediaKind = "mp4"
	MediaKindGIF MediaKind = "gif"
)

// Extension returns the file extension for the media kind.
func (k MediaKind) Extension() string {
	switch k {
	case MediaKindGIF:
		return ".gif"
	default:
		return ".mp4"
	}
}

// ContentType returns the MIME type for the media kind.
func (k MediaKind) ContentType() string {
	switch k {
	case MediaKindGIF:
		return "image/gif"
	default:
		return "video/mp4"
	}
}
