package signaling

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dropbeam/dropbeam/internal/identity"
	"github.com/dropbeam/dropbeam/internal/metrics"
	"github.com/dropbeam/dropbeam/internal/origin"
	"github.com/dropbeam/dropbeam/internal/ratelimit"
)

// Config wires together the runtime dependencies for the signaling server.
type Config struct {
	Registry *Registry
	Identity identity.Provider
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// HeartbeatInterval is the liveness probe period; a peer that does not
	// acknowledge within one interval is evicted.
	HeartbeatInterval time.Duration

	// Inbound hardening: maximum frame size and sustained frame rate per
	// connection. Violations close the offending connection only.
	MaxFrameBytes      int64
	MaxFramesPerSecond int

	// AllowedOrigins restricts which browser origins may connect. Empty
	// admits all.
	AllowedOrigins []string

	// TrustProxy derives the room key from X-Forwarded-For.
	TrustProxy bool
}

// Server accepts signaling connections, dispatches inbound frames and
// relays addressed messages between peers in the same room.
type Server struct {
	registry  *Registry
	identity  identity.Provider
	log       *slog.Logger
	metrics   *metrics.Metrics
	keepalive *KeepAlive

	maxFrameBytes      int64
	maxFramesPerSecond int
	trustProxy         bool

	upgrader  websocket.Upgrader
	accepting atomic.Bool
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(log, m)
	}
	provider := cfg.Identity
	if provider == nil {
		provider = &identity.CookieProvider{}
	}
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	maxFrameBytes := cfg.MaxFrameBytes
	if maxFrameBytes <= 0 {
		maxFrameBytes = 64 * 1024
	}
	maxFramesPerSecond := cfg.MaxFramesPerSecond
	if maxFramesPerSecond <= 0 {
		maxFramesPerSecond = 50
	}

	allowed := cfg.AllowedOrigins

	s := &Server{
		registry:           registry,
		identity:           provider,
		log:                log,
		metrics:            m,
		keepalive:          NewKeepAlive(registry, interval, log, m),
		maxFrameBytes:      maxFrameBytes,
		maxFramesPerSecond: maxFramesPerSecond,
		trustProxy:         cfg.TrustProxy,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				raw := r.Header.Get("Origin")
				if raw == "" {
					return true
				}
				normalized, ok := origin.NormalizeHeader(raw)
				return ok && origin.HeaderAllowed(normalized, allowed)
			},
		},
	}
	s.accepting.Store(true)
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws", s)
}

// Registry exposes the room registry, mainly for shutdown wiring.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Close stops accepting new connections and evicts every connected peer.
func (s *Server) Close() {
	s.accepting.Store(false)
	s.registry.EvictAll()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.accepting.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	// Identity must be resolved before the upgrade: a fresh id travels back
	// as a cookie on the handshake response.
	id := s.identity.Resolve(r)
	originKey := origin.Key(r, s.trustProxy)
	rtcSupported, _ := strconv.ParseBool(r.URL.Query().Get("webrtc"))

	var responseHeader http.Header
	if id.SetCookie != nil {
		responseHeader = http.Header{"Set-Cookie": {id.SetCookie.String()}}
	}

	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		// Upgrade already wrote an error response.
		s.metrics.Inc(metrics.EventConnectionRejected)
		s.log.Debug("upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(s.maxFrameBytes)

	peer := NewPeer(conn, id, originKey, rtcSupported)
	s.metrics.Inc(metrics.EventConnectionAccepted)
	s.log.Info("peer connected",
		"peer_id", peer.ID,
		"room", peer.OriginKey,
		"device", peer.Descriptor.DeviceName,
		"rtc_supported", peer.RTCSupported,
	)

	s.registry.Join(peer)
	s.keepalive.Start(peer)
	s.send(peer, displayNameMessage{
		Type: typeDisplayName,
		Message: displayNamePayload{
			Descriptor: peer.Descriptor,
			PeerID:     peer.ID,
		},
	})

	s.readLoop(peer, conn)
}

// readLoop pumps inbound frames until the connection dies or the peer is
// disconnected by protocol. It always leaves the room on exit; Leave is
// idempotent, so racing an eviction is harmless.
func (s *Server) readLoop(peer *Peer, conn *websocket.Conn) {
	defer s.registry.Leave(peer)

	limiter := ratelimit.NewTokenBucket(nil, int64(s.maxFramesPerSecond), int64(s.maxFramesPerSecond))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug("read failed", "peer_id", peer.ID, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.EventFrameRateLimited)
			s.log.Warn("frame rate limit exceeded, disconnecting peer", "peer_id", peer.ID)
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		s.handleFrame(peer, data)
	}
}

// handleFrame dispatches one parsed inbound frame. Control handling and
// targeted relay are evaluated independently: a frame may be a heartbeat
// acknowledgment and still carry no target, and relay triggers on the
// presence of a target regardless of the frame's type.
func (s *Server) handleFrame(sender *Peer, data []byte) {
	f, err := parseFrame(data)
	if err != nil {
		s.metrics.Inc(metrics.EventFrameMalformed)
		s.log.Debug("dropping malformed frame", "peer_id", sender.ID, "err", err)
		return
	}

	switch f.Kind {
	case typePong:
		s.keepalive.Ack(sender)
	case typeDisconnect:
		s.registry.Leave(sender)
	}

	if f.To != "" {
		s.relay(sender, f)
	}
}

// relay delivers an addressed frame to its target within the sender's
// room. Unknown targets are dropped silently: the relay layer does not
// guarantee delivery and surfaces no error to the sender.
func (s *Server) relay(sender *Peer, f frame) {
	target, ok := s.registry.FindPeer(sender.OriginKey, f.To)
	if !ok {
		s.metrics.Inc(metrics.EventRelayDroppedTarget)
		s.log.Debug("dropping relay to unknown target", "peer_id", sender.ID, "target", f.To)
		return
	}

	payload, err := f.relayPayload(sender.ID)
	if err != nil {
		s.metrics.Inc(metrics.EventFrameMalformed)
		return
	}

	if err := target.sendRaw(payload); err != nil {
		s.log.Debug("relay delivery failed", "peer_id", target.ID, "err", err)
		return
	}
	s.metrics.Inc(metrics.EventRelayDelivered)
}

// send is guarded delivery: an absent peer, a server that is no longer
// accepting, or a dead connection all degrade to a silent no-op.
func (s *Server) send(peer *Peer, v any) {
	if peer == nil || !s.accepting.Load() {
		return
	}
	if err := peer.sendJSON(v); err != nil {
		s.log.Debug("send failed", "peer_id", peer.ID, "err", err)
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}
