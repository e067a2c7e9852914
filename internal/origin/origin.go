// Package origin derives the rendezvous key that groups peers into rooms
// and validates browser Origin headers on the WebSocket upgrade.
package origin

import (
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// Loopback is the canonical key for connections from the local machine.
//
// Loopback traffic can arrive as 127.0.0.1, ::1 or the 4-in-6 mapped form
// depending on the listener and client stack; all of them must land in the
// same room.
const Loopback = "127.0.0.1"

// Key derives the room key for an accepted connection.
//
// When trustProxy is set and the request carries an X-Forwarded-For header,
// the first (client-most) entry wins; this is required behind a reverse
// proxy, where RemoteAddr is the proxy for every connection. Trusting the
// header is opt-in because clients can forge it when the server is exposed
// directly.
func Key(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
			first := fwd
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				first = fwd[:i]
			}
			return normalizeHost(strings.TrimSpace(first))
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalizeHost(host)
}

// normalizeHost canonicalizes one address string. IPv6 zone identifiers are
// dropped, 4-in-6 mapped addresses are unmapped, and every loopback variant
// collapses to Loopback. Unparseable input is passed through lowercased so a
// malformed header still yields a stable (if meaningless) key.
func normalizeHost(host string) string {
	trimmed := strings.Trim(strings.TrimSpace(host), "[]")
	if zone := strings.IndexByte(trimmed, '%'); zone >= 0 {
		trimmed = trimmed[:zone]
	}

	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}

	addr = addr.Unmap()
	if addr.IsLoopback() {
		return Loopback
	}
	return addr.String()
}

// NormalizeHeader validates and normalizes a browser Origin header into
// scheme://host[:port] form. Default ports are elided so that equivalent
// origins compare equal. The special value "null" is returned as-is.
func NormalizeHeader(originHeader string) (string, bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return "null", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort := u.Port(); rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return scheme + "://" + host, true
}

// HeaderAllowed reports whether a normalized Origin may open a signaling
// connection. An empty allowlist admits every origin: the server is meant to
// be reachable by whatever host serves the frontend on the LAN, and
// same-host-only would break the common deploy-behind-a-proxy setup.
// Entries must be "*" or normalized origins as produced by NormalizeHeader.
func HeaderAllowed(normalizedOrigin string, allowedOrigins []string) bool {
	if len(allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == normalizedOrigin {
			return true
		}
	}
	return false
}
