// Package identity issues durable peer identifiers and derives the
// human-facing display descriptor for a connecting client.
//
// The signaling core treats everything produced here as opaque; tests
// inject a fake Provider.
package identity

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
)

// CookieName carries the durable peer identifier across reconnects.
const CookieName = "peerid"

// Descriptor is the display/device info disclosed to other peers in the
// same room. It is derived and non-authoritative.
type Descriptor struct {
	DisplayName string `json:"displayName"`
	DeviceName  string `json:"deviceName"`
	OS          string `json:"os,omitempty"`
	Browser     string `json:"browser,omitempty"`
	DeviceType  string `json:"type,omitempty"`
}

// Identity is the result of resolving one inbound connection.
type Identity struct {
	PeerID     string
	Descriptor Descriptor

	// SetCookie is non-nil when a fresh identifier was issued and must be
	// installed on the handshake response so the client is recognized on
	// reconnect.
	SetCookie *http.Cookie
}

// Provider resolves an inbound connection's handshake metadata into a
// stable peer identity.
type Provider interface {
	Resolve(r *http.Request) Identity
}

// CookieProvider issues UUIDv4 identifiers, persisted client-side in a
// cookie. A returning client presenting its cookie keeps its identifier and
// therefore its display name.
type CookieProvider struct {
	// Secure marks issued cookies Secure; enable when serving over TLS or
	// behind a TLS-terminating proxy.
	Secure bool
}

func (p *CookieProvider) Resolve(r *http.Request) Identity {
	var id Identity

	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		id.PeerID = c.Value
	} else {
		id.PeerID = uuid.NewString()
		id.SetCookie = &http.Cookie{
			Name:     CookieName,
			Value:    id.PeerID,
			Path:     "/",
			SameSite: http.SameSiteStrictMode,
			Secure:   p.Secure,
		}
	}

	id.Descriptor = descriptorFor(id.PeerID, r.UserAgent())
	return id
}

func descriptorFor(peerID, rawUA string) Descriptor {
	d := Descriptor{
		DisplayName: displayName(peerID),
		DeviceName:  "Unknown Device",
		DeviceType:  "desktop",
	}
	if rawUA == "" {
		return d
	}

	ua := useragent.Parse(rawUA)
	d.OS = ua.OS
	d.Browser = ua.Name
	switch {
	case ua.Mobile:
		d.DeviceType = "mobile"
	case ua.Tablet:
		d.DeviceType = "tablet"
	}

	if name := deviceName(ua); name != "" {
		d.DeviceName = name
	}
	return d
}

func deviceName(ua useragent.UserAgent) string {
	parts := make([]string, 0, 2)
	if os := strings.TrimSpace(ua.OS); os != "" {
		// "Mac OS X Safari" reads worse than "Mac Safari" on small screens.
		parts = append(parts, strings.Replace(os, "Mac OS X", "Mac", 1))
	}
	if browser := strings.TrimSpace(ua.Name); browser != "" {
		parts = append(parts, browser)
	}
	return strings.Join(parts, " ")
}
