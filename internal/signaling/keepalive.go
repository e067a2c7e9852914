package signaling

import (
	"log/slog"
	"time"

	"github.com/dropbeam/dropbeam/internal/metrics"
)

// KeepAlive pings each peer on a fixed interval and evicts peers that stop
// acknowledging. Per peer it is a two-state machine: alive until a timer
// firing finds the last acknowledgment older than one interval, then stale,
// which forces a leave. A pong never reschedules the timer; it only updates
// the timestamp the next firing consults.
type KeepAlive struct {
	registry *Registry
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewKeepAlive(registry *Registry, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *KeepAlive {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &KeepAlive{
		registry: registry,
		interval: interval,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// Start begins monitoring a freshly joined peer: stamp the heartbeat, send
// the first ping, and arm the single-shot timer.
func (k *KeepAlive) Start(p *Peer) {
	p.touch(k.now())
	k.ping(p)
	p.armTimer(k.interval, func() { k.tick(p) })
}

// Ack records a heartbeat acknowledgment from the peer.
func (k *KeepAlive) Ack(p *Peer) {
	p.touch(k.now())
}

func (k *KeepAlive) tick(p *Peer) {
	if k.now().Sub(p.lastSeen()) > k.interval {
		k.log.Info("heartbeat timeout, evicting peer", "peer_id", p.ID, "room", p.OriginKey)
		k.metrics.Inc(metrics.EventHeartbeatEvicted)
		k.registry.Leave(p)
		return
	}

	// Still alive; a leave may have raced the firing, in which case the
	// peer's timer is already cancelled and must not be re-armed.
	if !k.registry.Contains(p) {
		return
	}
	k.ping(p)
	p.armTimer(k.interval, func() { k.tick(p) })
}

func (k *KeepAlive) ping(p *Peer) {
	if err := p.sendJSON(pingMessage{Type: typePing}); err != nil {
		k.log.Debug("ping failed", "peer_id", p.ID, "err", err)
	}
}
