package httpserver

import (
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/dropbeam/dropbeam/internal/identity"
	"github.com/dropbeam/dropbeam/internal/turnrest"
)

// handleICEServers serves the STUN/TURN configuration browsers use to
// construct RTCPeerConnections. When a TURN REST shared secret is
// configured, short-lived per-peer credentials are injected into the TURN
// entries at serve time, scoped to the caller's peer id cookie.
func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	servers := s.cfg.ICEServers

	if s.cfg.TURNRESTSharedSecret != "" {
		creds, err := s.turnCredentialsFor(r)
		if err != nil {
			s.log.Warn("turn rest credential generation failed", "err", err)
		} else {
			servers = withTURNCredentials(servers, creds.Username, creds.Credential)
		}
	}

	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}

func (s *Server) turnCredentialsFor(r *http.Request) (turnrest.Credentials, error) {
	gen, err := turnrest.NewGenerator(turnrest.GeneratorConfig{
		SharedSecret:   s.cfg.TURNRESTSharedSecret,
		TTLSeconds:     s.cfg.TURNRESTTTLSeconds,
		UsernamePrefix: s.cfg.TURNRESTUsernamePrefix,
	})
	if err != nil {
		return turnrest.Credentials{}, err
	}

	peerID := "anonymous"
	if c, err := r.Cookie(identity.CookieName); err == nil && c.Value != "" {
		peerID = c.Value
	}
	return gen.Generate(peerID)
}

// withTURNCredentials copies the server list, filling username/credential
// on every TURN entry. STUN entries need no credentials and are passed
// through as-is.
func withTURNCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	if len(servers) == 0 {
		return servers
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if hasTURNURL(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}

func hasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		u := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}
