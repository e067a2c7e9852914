package signaling

import (
	"testing"
)

func TestJoin_RosterExcludesSelfAndAnnouncesFirst(t *testing.T) {
	r := newTestRegistry()

	x, xConn := newTestPeer("peer-x", "10.0.0.1")
	y, yConn := newTestPeer("peer-y", "10.0.0.1")
	r.Join(x)
	r.Join(y)

	p, pConn := newTestPeer("peer-p", "10.0.0.1")
	r.Join(p)

	for name, conn := range map[string]*fakeConn{"x": xConn, "y": yConn} {
		joined := conn.sentOfType(t, typePeerJoined)
		if len(joined) == 0 {
			t.Fatalf("%s never saw peer-joined for the newcomer", name)
		}
		last := joined[len(joined)-1]
		peer, _ := last["peer"].(map[string]any)
		if peer["id"] != "peer-p" {
			t.Errorf("%s saw peer-joined for %v, want peer-p", name, peer["id"])
		}
	}

	rosters := pConn.sentOfType(t, typePeers)
	if len(rosters) != 1 {
		t.Fatalf("newcomer got %d rosters, want 1", len(rosters))
	}
	members, _ := rosters[0]["peers"].([]any)
	ids := map[string]bool{}
	for _, m := range members {
		info, _ := m.(map[string]any)
		id, _ := info["id"].(string)
		ids[id] = true
	}
	if len(ids) != 2 || !ids["peer-x"] || !ids["peer-y"] {
		t.Errorf("roster ids = %v, want exactly {peer-x, peer-y}", ids)
	}
	if ids["peer-p"] {
		t.Error("roster must not include the joining peer itself")
	}
}

func TestJoin_FirstPeerGetsEmptyRoster(t *testing.T) {
	r := newTestRegistry()
	a, conn := newTestPeer("peer-a", "10.0.0.1")
	r.Join(a)

	rosters := conn.sentOfType(t, typePeers)
	if len(rosters) != 1 {
		t.Fatalf("got %d rosters, want 1", len(rosters))
	}
	if members, _ := rosters[0]["peers"].([]any); len(members) != 0 {
		t.Errorf("roster = %v, want empty", members)
	}
}

func TestLeave_BroadcastsDeparture(t *testing.T) {
	r := newTestRegistry()
	a, aConn := newTestPeer("peer-a", "10.0.0.1")
	b, bConn := newTestPeer("peer-b", "10.0.0.1")
	r.Join(a)
	r.Join(b)

	r.Leave(b)

	left := aConn.sentOfType(t, typePeerLeft)
	if len(left) != 1 || left[0]["peerId"] != "peer-b" {
		t.Fatalf("a saw peer-left %v, want exactly one for peer-b", left)
	}
	if !bConn.isClosed() {
		t.Error("departed peer's connection must be closed")
	}
	if got := r.RoomSize("10.0.0.1"); got != 1 {
		t.Errorf("room size = %d, want 1", got)
	}
}

func TestLeave_Idempotent(t *testing.T) {
	r := newTestRegistry()
	a, aConn := newTestPeer("peer-a", "10.0.0.1")
	b, _ := newTestPeer("peer-b", "10.0.0.1")
	r.Join(a)
	r.Join(b)

	r.Leave(b)
	r.Leave(b)
	r.Leave(b)

	if left := aConn.sentOfType(t, typePeerLeft); len(left) != 1 {
		t.Fatalf("a saw %d peer-left broadcasts, want exactly 1", len(left))
	}
	if got := r.RoomSize("10.0.0.1"); got != 1 {
		t.Errorf("room size = %d, want 1", got)
	}
}

func TestLeave_LastMemberDeletesRoom(t *testing.T) {
	r := newTestRegistry()
	a, _ := newTestPeer("peer-a", "10.0.0.1")
	r.Join(a)
	r.Leave(a)

	if got := r.RoomSize("10.0.0.1"); got != 0 {
		t.Fatalf("room size = %d after last leave, want 0", got)
	}

	// A fresh join with the same origin must see a brand-new room with no
	// memory of prior membership.
	b, bConn := newTestPeer("peer-b", "10.0.0.1")
	r.Join(b)
	rosters := bConn.sentOfType(t, typePeers)
	if len(rosters) != 1 {
		t.Fatalf("got %d rosters, want 1", len(rosters))
	}
	if members, _ := rosters[0]["peers"].([]any); len(members) != 0 {
		t.Errorf("fresh room roster = %v, want empty", members)
	}
	if left := bConn.sentOfType(t, typePeerLeft); len(left) != 0 {
		t.Errorf("fresh member saw stale peer-left broadcasts: %v", left)
	}
}

func TestFindPeer_NeverCrossesRooms(t *testing.T) {
	r := newTestRegistry()
	a, _ := newTestPeer("peer-a", "10.0.0.1")
	b, _ := newTestPeer("peer-b", "192.168.0.5")
	r.Join(a)
	r.Join(b)

	if _, ok := r.FindPeer("10.0.0.1", "peer-b"); ok {
		t.Error("lookup crossed room boundary")
	}
	if _, ok := r.FindPeer("192.168.0.5", "peer-b"); !ok {
		t.Error("same-room lookup failed")
	}
	if _, ok := r.FindPeer("10.0.0.1", "peer-a"); !ok {
		t.Error("same-room lookup failed")
	}
}

func TestJoin_RoomsAreIndependent(t *testing.T) {
	r := newTestRegistry()
	a, aConn := newTestPeer("peer-a", "10.0.0.1")
	r.Join(a)

	b, _ := newTestPeer("peer-b", "192.168.0.5")
	r.Join(b)

	if joined := aConn.sentOfType(t, typePeerJoined); len(joined) != 0 {
		t.Errorf("peer in another room saw peer-joined: %v", joined)
	}
}

func TestEvictAll(t *testing.T) {
	r := newTestRegistry()
	a, aConn := newTestPeer("peer-a", "10.0.0.1")
	b, bConn := newTestPeer("peer-b", "192.168.0.5")
	r.Join(a)
	r.Join(b)

	r.EvictAll()

	if r.RoomSize("10.0.0.1") != 0 || r.RoomSize("192.168.0.5") != 0 {
		t.Error("rooms not emptied")
	}
	if !aConn.isClosed() || !bConn.isClosed() {
		t.Error("connections not closed")
	}
}
