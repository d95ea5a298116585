package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors.
var (
	// ErrNotATweetURL is returned when a source URL is not a twitter.com/x.com tweet URL.
	ErrNotATweetURL = errors.New("not a Twitter/X URL")

	// ErrDisallowedHost is returned when a media URL's host is outside the CDN allowlist.
	ErrDisallowedHost = errors.New("media URL host is not allowed")

	// ErrPrivateNetworkBlocked is returned when a media URL targets a private or loopback address.
	ErrPrivateNetworkBlocked = errors.New("media URL resolves to a private network address")

	// ErrTweetNotFound is returned when the oEmbed endpoint reports 404.
	ErrTweetNotFound = errors.New("tweet not found or is private")

	// ErrVerificationFailed is returned when the oEmbed endpoint fails for any other reason.
	ErrVerificationFailed = errors.New("could not verify tweet")

	// ErrInvalidProvider is returned when the oEmbed provider is not Twitter/X.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMalformedTweetURL is returned when no numeric tweet ID can be extracted.
	ErrMalformedTweetURL = errors.New("could not extract tweet ID")

	// ErrTweetInaccessible is returned when the syndication endpoint is not 2xx.
	ErrTweetInaccessible = errors.New("tweet not accessible")

	// ErrClipTooLong is returned when any media entry exceeds the duration ceiling.
	ErrClipTooLong = errors.New("only short clips allowed")

	// ErrNoVideoFound is returned for image-only tweets.
	ErrNoVideoFound = errors.New("no video found in tweet")

	// ErrStaticImage is returned when a downloaded asset is a static image.
	ErrStaticImage = errors.New("static images are not supported")

	// ErrNotAVideoURL is returned by the manual-URL pre-filter.
	ErrNotAVideoURL = errors.New("URL does not appear to be a video file")

	// ErrTranscodeTimeout is returned when ffmpeg exceeds its wall-clock budget.
	ErrTranscodeTimeout = errors.New("transcode timed out")

	// ErrGIFTooLarge is returned when the transcoded GIF exceeds the output ceiling.
	ErrGIFTooLarge = errors.New("transcoded GIF too large")

	// ErrDownloadFailed is returned when the media GET is not 2xx.
	ErrDownloadFailed = errors.New("media download failed")

	// ErrObjectExists is returned on a storage key collision.
	ErrObjectExists = errors.New("storage object already exists")

	// ErrLinkNotFound is returned when a link record cannot be found.
	ErrLinkNotFound = errors.New("link not found")

	// ErrNotOwner is returned when a caller does not own the record it targets.
	ErrNotOwner = errors.New("caller does not own this record")

	// ErrIllegalTransition is returned when a status write is rejected by the state machine.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrVersionConflict is returned when an optimistic update lost a race.
	ErrVersionConflict = errors.New("record modified concurrently")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")
)

// PayloadTooLargeError reports an oversize download with the measured size,
// so the caller can show a concrete number.
type PayloadTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("video too large (%.1fMB), maximum is %dMB",
		float64(e.Size)/1024/1024, e.Limit/1024/1024)
}

// RateLimitedError reports an exceeded quota with the window's reset time.
type RateLimitedError struct {
	Action  string
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s",
		e.Action, time.Until(e.ResetAt).Round(time.Second))
}

// RetryAfter returns the remaining wait before the window resets.
func (e *RateLimitedError) RetryAfter() time.Duration {
	return time.Until(e.ResetAt)
}

// PipelineError wraps an error with link and pipeline-step context.
type PipelineError struct {
	LinkID LinkID
	Op     string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.LinkID != "" {
		return e.Op + " [" + e.LinkID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(linkID LinkID, op string, err error) *PipelineError {
	return &PipelineError{
		LinkID: linkID,
		Op:     op,
		Err:    err,
	}
}
