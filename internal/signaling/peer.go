package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dropbeam/dropbeam/internal/identity"
)

const writeWait = 10 * time.Second

// Conn is the write side of a peer's transport. *websocket.Conn satisfies
// it; tests substitute an in-memory fake.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Peer is the runtime record for one live connection. Its origin key is
// fixed at connect time; a peer belongs to at most one room for its entire
// lifetime.
type Peer struct {
	ID           string
	OriginKey    string
	Descriptor   identity.Descriptor
	RTCSupported bool

	conn    Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	lastHeartbeat time.Time
	timer         *time.Timer
	timerStopped  bool
}

func NewPeer(conn Conn, id identity.Identity, originKey string, rtcSupported bool) *Peer {
	return &Peer{
		ID:           id.PeerID,
		OriginKey:    originKey,
		Descriptor:   id.Descriptor,
		RTCSupported: rtcSupported,
		conn:         conn,
	}
}

func (p *Peer) Info() PeerInfo {
	return PeerInfo{
		ID:           p.ID,
		Name:         p.Descriptor,
		RTCSupported: p.RTCSupported,
	}
}

// sendJSON writes one message frame. The write mutex serializes writers;
// broadcasts, relays and keepalive pings all go through here.
func (p *Peer) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.sendRaw(data)
}

func (p *Peer) sendRaw(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *Peer) closeConn() {
	_ = p.conn.Close()
}

func (p *Peer) touch(now time.Time) {
	p.mu.Lock()
	p.lastHeartbeat = now
	p.mu.Unlock()
}

func (p *Peer) lastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastHeartbeat
}

// armTimer schedules fn after d, cancelling any pending timer first so at
// most one timer is outstanding per peer. Once cancelTimer has run the peer
// is on its way out and re-arming is refused, closing the race between a
// timer firing and a concurrent leave.
func (p *Peer) armTimer(d time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timerStopped {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(d, fn)
}

// cancelTimer stops the pending heartbeat timer for good. Invoked from
// every leave path so a dangling timer can never fire against a removed
// peer.
func (p *Peer) cancelTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timerStopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
