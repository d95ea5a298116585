// Package urlcheck validates source and media URLs against host allowlists.
// It is pure string/netip validation with no network calls, so the media
// allowlist doubles as an SSRF gate for the downloader.
package urlcheck

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/iconidentify/gifstash/internal/domain"
)

// tweetHosts is the allowlist of hosts a source URL may use.
var tweetHosts = []string{
	"twitter.com",
	"x.com",
}

// mediaHosts is the allowlist of CDN hosts a media URL may use.
var mediaHosts = []string{
	"twimg.com",
	"video.twimg.com",
	"pbs.twimg.com",
}

// ValidateSourceURL checks that raw is a well-formed tweet URL on an
// allowed host.
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return domain.ErrNotATweetURL
	}
	if !hostAllowed(u.Hostname(), tweetHosts) {
		return domain.ErrNotATweetURL
	}
	return nil
}

// ValidateMediaURL checks that raw is an https URL on an allowed CDN host
// and does not target a private, loopback, or link-local address. The
// private-address check runs regardless of the allowlist match: a host
// string that passes the allowlist but parses as a private IP literal is
// still rejected.
func ValidateMediaURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return domain.ErrDisallowedHost
	}
	if u.Scheme != "https" {
		return domain.ErrDisallowedHost
	}

	host := u.Hostname()

	// Unconditional private-literal rejection, independent of the
	// allowlist below.
	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivateAddr(addr) {
			return domain.ErrPrivateNetworkBlocked
		}
		// Public IP literals are still not CDN hostnames.
		return domain.ErrDisallowedHost
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return domain.ErrPrivateNetworkBlocked
	}

	if !hostAllowed(host, mediaHosts) {
		return domain.ErrDisallowedHost
	}
	return nil
}

// hostAllowed reports whether host exactly matches or is a subdomain of
// any entry in allowed. Comparison is case-insensitive.
func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// isPrivateAddr reports whether addr belongs to any range that must never
// be fetched: loopback, RFC1918, link-local, CGNAT, unspecified, and the
// IPv6 equivalents.
func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return true
	}
	// CGNAT 100.64.0.0/10 is not covered by IsPrivate.
	if addr.Is4() {
		cgnat := netip.MustParsePrefix("100.64.0.0/10")
		if cgnat.Contains(addr) {
			return true
		}
	}
	// IPv6 unique local fc00::/7.
	if addr.Is6() {
		ula := netip.MustParsePrefix("fc00::/7")
		if ula.Contains(addr) {
			return true
		}
	}
	return false
}
