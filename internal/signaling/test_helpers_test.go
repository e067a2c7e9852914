package signaling

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dropbeam/dropbeam/internal/identity"
	"github.com/dropbeam/dropbeam/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry() *Registry {
	return NewRegistry(testLogger(), metrics.New())
}

// fakeConn records every frame written to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// sent decodes the recorded frames, skipping pings.
func (c *fakeConn) sent(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, data := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("recorded frame is not JSON: %v", err)
		}
		if m["type"] == typePing {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) sentOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.sent(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func newTestPeer(id, originKey string) (*Peer, *fakeConn) {
	conn := &fakeConn{}
	p := NewPeer(conn, identity.Identity{
		PeerID: id,
		Descriptor: identity.Descriptor{
			DisplayName: "Display " + id,
			DeviceName:  "Test Device",
		},
	}, originKey, true)
	return p, conn
}
