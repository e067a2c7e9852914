package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICE server configuration for browser clients. The signaling server never
// builds PeerConnections itself; it serves this list so clients can
// construct ones that traverse NAT when the direct LAN path fails.
const (
	envVarICEServersJSON = "DROPBEAM_ICE_SERVERS_JSON"

	envVarStunURLs       = "DROPBEAM_STUN_URLS"
	envVarTurnURLs       = "DROPBEAM_TURN_URLS"
	envVarTurnUsername   = "DROPBEAM_TURN_USERNAME"
	envVarTurnCredential = "DROPBEAM_TURN_CREDENTIAL"
)

func parseICEServersFromEnv(lookup func(string) (string, bool)) ([]webrtc.ICEServer, error) {
	if raw := envOrDefault(lookup, envVarICEServersJSON, ""); raw != "" {
		servers, err := ParseICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envVarICEServersJSON, err)
		}
		return servers, nil
	}

	return parseICEServersFromConvenienceEnv(
		envOrDefault(lookup, envVarStunURLs, ""),
		envOrDefault(lookup, envVarTurnURLs, ""),
		envOrDefault(lookup, envVarTurnUsername, ""),
		envOrDefault(lookup, envVarTurnCredential, ""),
	)
}

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseICEServersJSON parses a JSON array of ICE server entries, each with
// `urls` (string or array) and optional `username`/`credential`.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		if len(entry.URLs) == 0 {
			return nil, fmt.Errorf("entry %d: missing urls", i)
		}
		for _, u := range entry.URLs {
			if err := validateICEURL(u); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
		}
		server := webrtc.ICEServer{URLs: entry.URLs}
		if entry.Username != "" {
			server.Username = entry.Username
		}
		if entry.Credential != "" {
			server.Credential = entry.Credential
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func parseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitURLList(stunURLs); len(urls) > 0 {
		for _, u := range urls {
			if err := validateICEURL(u); err != nil {
				return nil, fmt.Errorf("%s: %w", envVarStunURLs, err)
			}
		}
		servers = append(servers, webrtc.ICEServer{URLs: urls})
	}

	if urls := splitURLList(turnURLs); len(urls) > 0 {
		for _, u := range urls {
			if err := validateICEURL(u); err != nil {
				return nil, fmt.Errorf("%s: %w", envVarTurnURLs, err)
			}
		}
		server := webrtc.ICEServer{URLs: urls}
		// Static TURN credentials are optional: when the TURN REST secret is
		// configured, per-peer credentials are injected at serve time instead.
		if turnUsername != "" {
			server.Username = turnUsername
		}
		if turnCredential != "" {
			server.Credential = turnCredential
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func validateICEURL(raw string) error {
	u := strings.TrimSpace(raw)
	if u == "" {
		return fmt.Errorf("empty ICE url")
	}
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "stun:"),
		strings.HasPrefix(lower, "stuns:"),
		strings.HasPrefix(lower, "turn:"),
		strings.HasPrefix(lower, "turns:"):
		return nil
	default:
		return fmt.Errorf("unsupported ICE url %q (expected stun:, stuns:, turn: or turns:)", raw)
	}
}

func splitURLList(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
