package match

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/campusmeet/meet-app/internal/protocol"
	"github.com/campusmeet/meet-app/internal/room"
)

// fakeNotifier records every message delivered per connection.
type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]map[string]interface{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]map[string]interface{})}
}

func (f *fakeNotifier) Send(connID string, data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent[connID] = append(f.sent[connID], m)
	f.mu.Unlock()
	return nil
}

// messagesOfType returns the payloads of the given type delivered to connID.
func (f *fakeNotifier) messagesOfType(connID, msgType string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []map[string]interface{}
	for _, m := range f.sent[connID] {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func newTestMatchmaker() (*Matchmaker, *room.Store, *fakeNotifier) {
	rooms := room.NewStore()
	notify := newFakeNotifier()
	return New(rooms, notify), rooms, notify
}

// ---------- Start tests ----------

func TestStart_FirstArrivalGetsRoleAAndRoomID(t *testing.T) {
	m, rooms, notify := newTestMatchmaker()

	role := m.Start("x")
	if role != protocol.RoleA {
		t.Fatalf("expected role A, got %s", role)
	}

	roomIDs := notify.messagesOfType("x", protocol.TypeRoomID)
	if len(roomIDs) != 1 {
		t.Fatalf("expected 1 roomid message, got %d", len(roomIDs))
	}
	if rooms.Len() != 1 {
		t.Errorf("expected 1 room, got %d", rooms.Len())
	}
	if len(notify.messagesOfType("x", protocol.TypeRemoteSocket)) != 0 {
		t.Error("lone occupant must not receive remote-socket")
	}
}

func TestStart_SecondArrivalPairsAndBothLearnPeerIDs(t *testing.T) {
	m, _, notify := newTestMatchmaker()

	m.Start("x")
	role := m.Start("y")
	if role != protocol.RoleB {
		t.Fatalf("expected role B, got %s", role)
	}

	xPeers := notify.messagesOfType("x", protocol.TypeRemoteSocket)
	yPeers := notify.messagesOfType("y", protocol.TypeRemoteSocket)
	if len(xPeers) != 1 || xPeers[0]["id"] != "y" {
		t.Errorf("expected x to learn remote-socket y, got %v", xPeers)
	}
	if len(yPeers) != 1 || yPeers[0]["id"] != "x" {
		t.Errorf("expected y to learn remote-socket x, got %v", yPeers)
	}

	// Both occupants see the same room id.
	xRoom := notify.messagesOfType("x", protocol.TypeRoomID)
	yRoom := notify.messagesOfType("y", protocol.TypeRoomID)
	if len(xRoom) != 1 || len(yRoom) != 1 {
		t.Fatalf("expected one roomid each, got x=%d y=%d", len(xRoom), len(yRoom))
	}
	if xRoom[0]["roomid"] != yRoom[0]["roomid"] {
		t.Errorf("room ids differ: %v vs %v", xRoom[0]["roomid"], yRoom[0]["roomid"])
	}
}

func TestStart_ThirdArrivalWaitsInFreshRoom(t *testing.T) {
	m, rooms, notify := newTestMatchmaker()

	m.Start("x")
	m.Start("y")
	role := m.Start("z")

	if role != protocol.RoleA {
		t.Fatalf("expected z to open a fresh room as A, got %s", role)
	}
	if rooms.Len() != 2 {
		t.Errorf("expected 2 rooms, got %d", rooms.Len())
	}
	if len(notify.messagesOfType("z", protocol.TypeRemoteSocket)) != 0 {
		t.Error("z must not receive remote-socket while waiting")
	}
}

// ---------- Disconnect tests ----------

func TestDisconnect_PeerNotifiedAndPromoted(t *testing.T) {
	m, rooms, notify := newTestMatchmaker()

	m.Start("x")
	m.Start("y")
	m.Disconnect("x")

	if len(notify.messagesOfType("y", protocol.TypeDisconnected)) != 1 {
		t.Error("expected y to receive disconnected")
	}

	// y now heads the reopened room and is eligible for re-pairing.
	role := m.Start("z")
	if role != protocol.RoleB {
		t.Fatalf("expected z to pair with waiting y, got role %s", role)
	}
	zPeers := notify.messagesOfType("z", protocol.TypeRemoteSocket)
	if len(zPeers) != 1 || zPeers[0]["id"] != "y" {
		t.Errorf("expected z paired with y, got %v", zPeers)
	}
	if rooms.Len() != 1 {
		t.Errorf("expected 1 room, got %d", rooms.Len())
	}
}

func TestDisconnect_LoneOccupantDeletesRoom(t *testing.T) {
	m, rooms, _ := newTestMatchmaker()

	m.Start("x")
	m.Disconnect("x")

	if rooms.Len() != 0 {
		t.Errorf("expected empty room table, got %d", rooms.Len())
	}
}

func TestDisconnect_UnknownConnectionIsNoOp(t *testing.T) {
	m, rooms, notify := newTestMatchmaker()

	m.Start("x")
	m.Disconnect("ghost")

	if rooms.Len() != 1 {
		t.Errorf("room table must be untouched, got %d rooms", rooms.Len())
	}
	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.sent["ghost"]) != 0 {
		t.Error("no messages should be sent for an unknown connection")
	}
}

// ---------- Skip tests ----------

func TestSkip_PeerGetsSkippedAndSkipperReenters(t *testing.T) {
	m, rooms, notify := newTestMatchmaker()

	m.Start("x")
	m.Start("y")
	role := m.Skip("x")

	if len(notify.messagesOfType("y", protocol.TypeSkipped)) != 1 {
		t.Error("expected y to receive skipped")
	}

	// x re-entered matchmaking but must not land back on y's room.
	if role != protocol.RoleA {
		t.Fatalf("expected x to wait in a fresh room, got role %s", role)
	}
	if rooms.Len() != 2 {
		t.Errorf("expected y's reopened room plus x's fresh room, got %d", rooms.Len())
	}

	// y remains the head of the original room.
	_, peer, ok := rooms.Peer("y")
	if !ok || peer != "" {
		t.Errorf("expected y waiting alone, got peer=%q ok=%v", peer, ok)
	}
}

func TestSkip_SkipperPairsWithAnotherWaiter(t *testing.T) {
	m, _, notify := newTestMatchmaker()

	m.Start("x")
	m.Start("y")
	m.Start("z") // z waits in its own room

	role := m.Skip("x")
	if role != protocol.RoleB {
		t.Fatalf("expected x to pair with waiting z, got role %s", role)
	}
	xPeers := notify.messagesOfType("x", protocol.TypeRemoteSocket)
	if len(xPeers) != 1 || xPeers[0]["id"] != "z" {
		t.Errorf("expected x paired with z, got %v", xPeers)
	}
}

func TestSkip_LoneOccupantStillReenters(t *testing.T) {
	m, rooms, notify := newTestMatchmaker()

	m.Start("x")
	role := m.Skip("x")

	if role != protocol.RoleA {
		t.Fatalf("expected role A after lone skip, got %s", role)
	}
	if rooms.Len() != 1 {
		t.Errorf("expected exactly one room after lone skip, got %d", rooms.Len())
	}
	// Two roomid messages: one from the first start, one from the re-entry.
	if got := len(notify.messagesOfType("x", protocol.TypeRoomID)); got != 2 {
		t.Errorf("expected 2 roomid messages, got %d", got)
	}
}

// ---------- EndCall tests ----------

func TestEndCall_PeerNotifiedAndRoomDeleted(t *testing.T) {
	m, rooms, notify := newTestMatchmaker()

	m.Start("x")
	m.Start("y")
	m.EndCall("x")

	if len(notify.messagesOfType("y", protocol.TypeCallEnded)) != 1 {
		t.Error("expected y to receive call-ended")
	}
	if rooms.Len() != 0 {
		t.Errorf("expected room deleted, got %d rooms", rooms.Len())
	}

	// Neither party was re-submitted: both can start fresh.
	if role := m.Start("x"); role != protocol.RoleA {
		t.Errorf("expected x to open a fresh room, got role %s", role)
	}
	if role := m.Start("y"); role != protocol.RoleB {
		t.Errorf("expected y to pair with x, got role %s", role)
	}
}

func TestEndCall_UnknownConnectionIsNoOp(t *testing.T) {
	m, rooms, _ := newTestMatchmaker()

	m.Start("x")
	m.EndCall("ghost")

	if rooms.Len() != 1 {
		t.Errorf("room table must be untouched, got %d rooms", rooms.Len())
	}
}
