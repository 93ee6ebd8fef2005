// Package fingerprint derives a deterministic device fingerprint from
// request attributes. The fingerprint binds access and refresh tokens to
// the device that obtained them.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// FromRequest computes the fingerprint for an HTTP request:
// sha256(user_agent | partial_ip | accept_language | accept_encoding).
// Missing headers contribute empty segments, so the fingerprint is always
// defined.
func FromRequest(r *http.Request) string {
	parts := []string{
		r.Header.Get("User-Agent"),
		PartialIP(PeerIP(r)),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// PeerIP extracts the client address, honoring reverse-proxy headers:
// the first X-Forwarded-For entry, then X-Real-IP, then the socket peer.
func PeerIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PartialIP truncates an address to its stable prefix: the first three
// octets of an IPv4 address or the first six groups of an IPv6 address.
// Truncation keeps the fingerprint stable across DHCP churn within a
// subnet while still distinguishing networks.
func PartialIP(addr string) string {
	if addr == "" {
		return ""
	}
	if strings.Contains(addr, ":") && strings.Count(addr, ".") == 0 {
		groups := strings.Split(addr, ":")
		if len(groups) > 6 {
			groups = groups[:6]
		}
		return strings.Join(groups, ":")
	}
	octets := strings.Split(addr, ".")
	if len(octets) > 3 {
		octets = octets[:3]
	}
	return strings.Join(octets, ".")
}
