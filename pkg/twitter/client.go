// Package twitter resolves tweets via the public oEmbed endpoint and
// extracts playable media via the syndication endpoint.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/iconidentify/gifstash/internal/domain"
)

const (
	defaultOEmbedURL      = "https://publish.twitter.com/oembed"
	defaultSyndicationURL = "https://cdn.syndication.twimg.com/tweet-result"

	// Scraper UA used for the og:image fetch; X serves meta tags to
	// known crawler agents.
	crawlerUserAgent = "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)"

	defaultUserAgent = "Mozilla/5.0 (compatible; GifStash/1.0)"
)

// Config holds client configuration. Zero values fall back to the public
// X endpoints.
type Config struct {
	OEmbedURL      string
	SyndicationURL string
	UserAgent      string
	Timeout        time.Duration
	MaxClipMillis  int // duration ceiling for extracted clips
}

// Client fetches tweet data from X.com.
type Client struct {
	httpClient     *http.Client
	oembedURL      string
	syndicationURL string
	userAgent      string
	maxClipMillis  int
	logger         *slog.Logger
}

// NewClient creates a new Twitter client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.OEmbedURL == "" {
		cfg.OEmbedURL = defaultOEmbedURL
	}
	if cfg.SyndicationURL == "" {
		cfg.SyndicationURL = defaultSyndicationURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxClipMillis <= 0 {
		cfg.MaxClipMillis = 10_000
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		oembedURL:      cfg.OEmbedURL,
		syndicationURL: cfg.SyndicationURL,
		userAgent:      cfg.UserAgent,
		maxClipMillis:  cfg.MaxClipMillis,
		logger:         logger,
	}
}

// Resolution is the result of verifying a tweet via oEmbed.
type Resolution struct {
	// Thumbnail is the og:image preview, empty when the scrape failed.
	Thumbnail string
}

// Resolve confirms the tweet exists and is public, and opportunistically
// scrapes the og:image preview. Thumbnail failure never fails resolution.
func (c *Client) Resolve(ctx context.Context, tweetURL string) (*Resolution, error) {
	endpoint := c.oembedURL + "?url=" + url.QueryEscape(tweetURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVerificationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrTweetNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrVerificationFailed, resp.StatusCode)
	}

	var body struct {
		ProviderName string `json:"provider_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrVerificationFailed, err)
	}
	if body.ProviderName != "Twitter" && body.ProviderName != "X" {
		return nil, domain.ErrInvalidProvider
	}

	// Thumbnail is decoration, not correctness: swallow and log.
	thumb, err := c.scrapeThumbnail(ctx, tweetURL)
	if err != nil {
		c.logger.Warn("thumbnail scrape failed", "tweet_url", tweetURL, "error", err)
		thumb = ""
	}

	return &Resolution{Thumbnail: thumb}, nil
}

var ogImageRe = regexp.MustCompile(`<meta\s+property="og:image"\s+content="([^"]+)"`)

func (c *Client) scrapeThumbnail(ctx context.Context, tweetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tweetURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", crawlerUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	// Meta tags sit in the head; 512KB is more than enough.
	html, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", err
	}

	m := ogImageRe.FindSubmatch(html)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

// Extraction is the result of selecting the best playable media variant.
type Extraction struct {
	VideoURL  string
	Thumbnail string
	Title     string // alt text of the selected media, when present
	Bitrate   int
}

// Extract fetches syndication metadata for the tweet and selects the
// highest-bitrate MP4 variant, enforcing the clip duration ceiling.
func (c *Client) Extract(ctx context.Context, tweetURL string) (*Extraction, error) {
	tweetID := ExtractTweetID(tweetURL)
	if tweetID == "" {
		return nil, domain.ErrMalformedTweetURL
	}

	endpoint := fmt.Sprintf("%s?id=%s&token=0", c.syndicationURL, tweetID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTweetInaccessible, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrTweetInaccessible, resp.StatusCode)
	}

	var syn syndicationResponse
	if err := json.NewDecoder(resp.Body).Decode(&syn); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrTweetInaccessible, err)
	}

	return selectMedia(&syn, c.maxClipMillis)
}

// ExtractTweetID extracts the numeric tweet ID from URL forms like
// https://x.com/user/status/1234567890 and the twitter.com equivalents.
func ExtractTweetID(tweetURL string) string {
	re := regexp.MustCompile(`(?:twitter\.com|x\.com)/\w+/status/(\d+)`)
	m := re.FindStringSubmatch(tweetURL)
	if len(m) > 1 {
		return m[1]
	}
	return ""
}
