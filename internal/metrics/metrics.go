// Package metrics is a minimal, concurrency-safe counter registry with a
// Prometheus text-format exposition handler.
package metrics

import "sync"

// Event names incremented by the signaling core.
const (
	EventConnectionAccepted = "connection_accepted"
	EventConnectionRejected = "connection_rejected"
	EventPeerJoined         = "peer_joined"
	EventPeerLeft           = "peer_left"
	EventRelayDelivered     = "relay_delivered"
	EventRelayDroppedTarget = "relay_dropped_unknown_target"
	EventFrameMalformed     = "frame_malformed"
	EventFrameRateLimited   = "frame_rate_limited"
	EventHeartbeatEvicted   = "heartbeat_evicted"
)

// Metrics counts named events. The zero value is not usable; construct with
// New.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
