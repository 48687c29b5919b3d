// Package room implements the in-memory room table for 1:1 pairing. A room
// holds at most two connections: slot A is the original occupant, slot B the
// joiner. The table is ephemeral; nothing here survives a restart.
package room

import (
	"sync"
)

// Status values for a room's occupancy state.
const (
	StatusOpen   = "open"   // exactly one occupant, waiting in slot A
	StatusClosed = "closed" // both slots occupied
)

// Room is a snapshot of a single pairing room.
type Room struct {
	ID     string
	Status string
	SlotA  string // connection id of the original occupant
	SlotB  string // connection id of the joiner, empty while open
}

// Occupants returns the number of occupied slots.
func (r Room) Occupants() int {
	n := 0
	if r.SlotA != "" {
		n++
	}
	if r.SlotB != "" {
		n++
	}
	return n
}

// LeaveResult describes what happened to a room when an occupant left.
type LeaveResult struct {
	RoomID  string
	Peer    string // remaining occupant's connection id, empty if none
	Deleted bool   // true if the room was removed from the table
}

// Store is the authoritative room table. It holds a primary index by room id,
// a secondary index from connection id to room id, and a creation-ordered id
// list so that pairing scans are deterministic FIFO. One mutex guards all
// three structures.
type Store struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	byConn map[string]string // connection id -> room id
	order  []string          // room ids in creation order
}

// NewStore creates an empty room table.
func NewStore() *Store {
	return &Store{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]string),
	}
}

// Pair assigns connID to a room. The first open room in creation order whose
// occupant is not connID is closed with connID in slot B. If no such room
// exists, a new open room with id newID is created with connID in slot A.
//
// A connection that is already a member of a room keeps its existing
// assignment: a repeated start is a no-op that returns the current room and
// role. This keeps membership exclusive under out-of-order client events.
func (s *Store) Pair(connID, newID string) (Room, string) {
	return s.PairAvoiding(connID, newID, "")
}

// PairAvoiding is Pair with one room excluded from the scan. A skipper's
// re-entry uses it so the connection does not land straight back in the room
// it just vacated.
func (s *Store) PairAvoiding(connID, newID, avoidRoomID string) (Room, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if roomID, ok := s.byConn[connID]; ok {
		r := s.rooms[roomID]
		role := "A"
		if r.SlotB == connID {
			role = "B"
		}
		return *r, role
	}

	for _, id := range s.order {
		r := s.rooms[id]
		if r.Status != StatusOpen || r.SlotA == connID || id == avoidRoomID {
			continue
		}
		r.SlotB = connID
		r.Status = StatusClosed
		s.byConn[connID] = id
		return *r, "B"
	}

	r := &Room{ID: newID, Status: StatusOpen, SlotA: connID}
	s.rooms[newID] = r
	s.byConn[connID] = newID
	s.order = append(s.order, newID)
	return *r, "A"
}

// Leave removes connID from its room. If a peer remains, the room reopens
// with the survivor promoted to slot A and keeps its position in the scan
// order. A room left empty is deleted immediately. Returns ok=false if the
// connection is not a member of any room.
func (s *Store) Leave(connID string) (LeaveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.byConn[connID]
	if !ok {
		return LeaveResult{}, false
	}
	r := s.rooms[roomID]
	delete(s.byConn, connID)

	switch connID {
	case r.SlotA:
		if r.SlotB != "" {
			peer := r.SlotB
			r.SlotA = peer
			r.SlotB = ""
			r.Status = StatusOpen
			return LeaveResult{RoomID: roomID, Peer: peer}, true
		}
		s.remove(roomID)
		return LeaveResult{RoomID: roomID, Deleted: true}, true

	default: // slot B
		peer := r.SlotA
		r.SlotB = ""
		r.Status = StatusOpen
		return LeaveResult{RoomID: roomID, Peer: peer}, true
	}
}

// Drop deletes connID's room unconditionally, regardless of remaining
// occupants. Returns the result with the peer (if any) so callers can notify
// it, and ok=false if the connection is not in any room.
func (s *Store) Drop(connID string) (LeaveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.byConn[connID]
	if !ok {
		return LeaveResult{}, false
	}
	r := s.rooms[roomID]

	peer := r.SlotA
	if peer == connID {
		peer = r.SlotB
	}

	delete(s.byConn, r.SlotA)
	if r.SlotB != "" {
		delete(s.byConn, r.SlotB)
	}
	s.remove(roomID)

	return LeaveResult{RoomID: roomID, Peer: peer, Deleted: true}, true
}

// Peer returns the room id and the other occupant for connID. ok is false
// when the connection is not in a room; peer is empty when the room is still
// open (no counterpart yet).
func (s *Store) Peer(connID string) (roomID, peer string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok = s.byConn[connID]
	if !ok {
		return "", "", false
	}
	r := s.rooms[roomID]
	if r.SlotA == connID {
		return roomID, r.SlotB, true
	}
	return roomID, r.SlotA, true
}

// Get returns a snapshot of the room with the given id.
func (s *Store) Get(roomID string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return *r, true
}

// Len returns the number of rooms in the table.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Counts returns the number of open and closed rooms.
func (s *Store) Counts() (open, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if r.Status == StatusOpen {
			open++
		} else {
			closed++
		}
	}
	return open, closed
}

// remove deletes a room from the primary index and the scan order.
// Caller must hold s.mu.
func (s *Store) remove(roomID string) {
	delete(s.rooms, roomID)
	for i, id := range s.order {
		if id == roomID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
