// Package match implements the matchmaking state machine: it assigns arriving
// connections to rooms, re-pairs survivors after a skip or disconnect, and
// tears rooms down when a call ends.
package match

import (
	"log"

	"github.com/google/uuid"

	"github.com/campusmeet/meet-app/internal/metrics"
	"github.com/campusmeet/meet-app/internal/protocol"
	"github.com/campusmeet/meet-app/internal/room"
)

// Notifier delivers a server message to a single connection. Sends are
// best-effort: the target may have disconnected between the room mutation and
// the delivery attempt.
type Notifier interface {
	Send(connID string, data []byte) error
}

// Matchmaker mutates the room table in response to connection events and
// notifies affected occupants. All room reads-then-writes happen inside a
// single atomic store operation; notifications go out after the mutation,
// outside the room lock.
type Matchmaker struct {
	rooms  *room.Store
	notify Notifier
}

// New creates a Matchmaker over the given room table.
func New(rooms *room.Store, notify Notifier) *Matchmaker {
	return &Matchmaker{rooms: rooms, notify: notify}
}

// Start enters connID into matchmaking and returns its assigned role. The
// caller gets the role synchronously; roomid and remote-socket notifications
// follow asynchronously once the store mutation is done.
func (m *Matchmaker) Start(connID string) string {
	return m.start(connID, "")
}

func (m *Matchmaker) start(connID, avoidRoomID string) string {
	r, role := m.rooms.PairAvoiding(connID, uuid.New().String(), avoidRoomID)

	m.send(connID, protocol.TypeRoomID, protocol.RoomIDMsg{RoomID: r.ID})

	if role == protocol.RoleB {
		// Pairing completed: both parties learn the other's connection id.
		m.send(r.SlotA, protocol.TypeRemoteSocket, protocol.RemoteSocketMsg{ID: connID})
		m.send(connID, protocol.TypeRemoteSocket, protocol.RemoteSocketMsg{ID: r.SlotA})
		metrics.PairingsTotal.Inc()
	}

	m.syncGauges()
	log.Printf("match: start conn=%s room=%s role=%s", connID, r.ID, role)
	return role
}

// Disconnect removes connID from its room after the transport dropped. The
// surviving peer (if any) is told the partner disconnected and waits as the
// reopened room's head. Unknown connections are a no-op.
func (m *Matchmaker) Disconnect(connID string) {
	res, ok := m.rooms.Leave(connID)
	if !ok {
		return
	}
	if res.Peer != "" {
		m.send(res.Peer, protocol.TypeDisconnected, protocol.DisconnectedMsg{})
	}
	m.syncGauges()
	log.Printf("match: disconnect conn=%s room=%s deleted=%v", connID, res.RoomID, res.Deleted)
}

// Skip vacates connID's room (notifying the survivor with skipped) and
// immediately re-submits connID through the same start path as a fresh event.
// The vacated room is excluded from the re-entry scan, so the survivor keeps
// waiting as its room's head instead of being re-paired with the skipper.
// Returns the skipper's new role.
func (m *Matchmaker) Skip(connID string) string {
	avoid := ""
	if res, ok := m.rooms.Leave(connID); ok {
		if res.Peer != "" {
			m.send(res.Peer, protocol.TypeSkipped, protocol.SkippedMsg{})
		}
		if !res.Deleted {
			avoid = res.RoomID
		}
		log.Printf("match: skip conn=%s room=%s", connID, res.RoomID)
	}
	return m.start(connID, avoid)
}

// EndCall deletes connID's room unconditionally. The peer (if any) receives
// call-ended; neither party is re-submitted to matchmaking.
func (m *Matchmaker) EndCall(connID string) {
	res, ok := m.rooms.Drop(connID)
	if !ok {
		return
	}
	if res.Peer != "" {
		m.send(res.Peer, protocol.TypeCallEnded, protocol.CallEndedMsg{})
	}
	m.syncGauges()
	log.Printf("match: end-call conn=%s room=%s", connID, res.RoomID)
}

// send marshals and delivers a server message. Delivery failures are logged
// and swallowed: a vanished peer is a transient miss, not an error.
func (m *Matchmaker) send(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("match: build %s for conn=%s: %v", msgType, connID, err)
		return
	}
	if err := m.notify.Send(connID, data); err != nil {
		log.Printf("match: send %s to conn=%s: %v", msgType, connID, err)
	}
}

func (m *Matchmaker) syncGauges() {
	open, closed := m.rooms.Counts()
	metrics.OpenRooms.Set(float64(open))
	metrics.ClosedRooms.Set(float64(closed))
}
