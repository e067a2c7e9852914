package signaling

import (
	"log/slog"
	"sync"

	"github.com/dropbeam/dropbeam/internal/metrics"
)

// Registry maps origin keys to the set of peers currently connected from
// that origin. A room with zero members does not exist: rooms are created
// lazily on first join and deleted eagerly on last leave.
//
// One mutex serializes all membership changes and the broadcasts they
// trigger, so events on a room are observed in dispatch order.
type Registry struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	rooms map[string]map[string]*Peer
}

func NewRegistry(log *slog.Logger, m *metrics.Metrics) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Registry{
		log:     log,
		metrics: m,
		rooms:   make(map[string]map[string]*Peer),
	}
}

// Join announces the peer to its room and inserts it. Existing members
// learn of the newcomer before the newcomer receives its roster, so no
// member is informed of a peer after that peer has already completed its
// own join. The roster never includes the joining peer itself.
func (r *Registry) Join(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[p.OriginKey]
	if !ok {
		room = make(map[string]*Peer)
		r.rooms[p.OriginKey] = room
	}

	joined := peerJoinedMessage{Type: typePeerJoined, Peer: p.Info()}
	roster := make([]PeerInfo, 0, len(room))
	for _, member := range room {
		r.send(member, joined)
		roster = append(roster, member.Info())
	}

	r.send(p, peersMessage{Type: typePeers, Peers: roster})

	room[p.ID] = p
	r.metrics.Inc(metrics.EventPeerJoined)
	r.log.Debug("peer joined", "peer_id", p.ID, "room", p.OriginKey, "room_size", len(room))
}

// Leave removes the peer from its room. It is idempotent: a peer that has
// already been removed produces no effect and no error. Removal cancels
// the peer's heartbeat timer, closes its connection, and either deletes
// the now-empty room or announces the departure to the remaining members.
func (r *Registry) Leave(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[p.OriginKey]
	if !ok || room[p.ID] != p {
		return
	}

	p.cancelTimer()
	delete(room, p.ID)
	p.closeConn()

	if len(room) == 0 {
		delete(r.rooms, p.OriginKey)
	} else {
		left := peerLeftMessage{Type: typePeerLeft, PeerID: p.ID}
		for _, member := range room {
			r.send(member, left)
		}
	}

	r.metrics.Inc(metrics.EventPeerLeft)
	r.log.Debug("peer left", "peer_id", p.ID, "room", p.OriginKey, "room_size", len(room))
}

// FindPeer looks up a peer by id within one room. Lookup never crosses
// room boundaries.
func (r *Registry) FindPeer(originKey, id string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rooms[originKey][id]
	return p, ok
}

// Contains reports whether the peer is currently a member of its room.
func (r *Registry) Contains(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[p.OriginKey][p.ID] == p
}

// RoomSize returns the number of peers connected from the given origin.
func (r *Registry) RoomSize(originKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[originKey])
}

// Peers returns the current members of a room.
func (r *Registry) Peers(originKey string) []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Peer, 0, len(r.rooms[originKey]))
	for _, p := range r.rooms[originKey] {
		out = append(out, p)
	}
	return out
}

// EvictAll force-leaves every connected peer; used on shutdown.
func (r *Registry) EvictAll() {
	for _, p := range r.allPeers() {
		r.Leave(p)
	}
}

func (r *Registry) allPeers() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Peer
	for _, room := range r.rooms {
		for _, p := range room {
			out = append(out, p)
		}
	}
	return out
}

// send delivers a message to one peer, swallowing transport errors: a peer
// with a broken connection is cleaned up by its own read loop or heartbeat
// timeout, and one member's failure must not disturb a broadcast to the
// rest of the room.
func (r *Registry) send(p *Peer, v any) {
	if err := p.sendJSON(v); err != nil {
		r.log.Debug("send failed", "peer_id", p.ID, "err", err)
	}
}
