// Package relay forwards session-negotiation metadata and chat text between
// the two occupants of a room. Payloads are opaque to the relay; the only
// check performed is that a destination exists.
package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/campusmeet/meet-app/internal/metrics"
	"github.com/campusmeet/meet-app/internal/protocol"
	"github.com/campusmeet/meet-app/internal/room"
)

const (
	MaxChatBytes = 4096 // max chat frame size
	MaxChatChars = 2000 // max chat character count
)

// Sender delivers a server message to a single connection.
type Sender interface {
	Send(connID string, data []byte) error
}

// Relay resolves a sender's counterpart through the room table and forwards
// payloads verbatim. A sender without a counterpart (open room, or no room at
// all) is a silent drop: the peer may simply have just disconnected.
type Relay struct {
	rooms *room.Store
	send  Sender
}

// New creates a Relay over the given room table.
func New(rooms *room.Store, send Sender) *Relay {
	return &Relay{rooms: rooms, send: send}
}

// ICE forwards an opaque ICE candidate blob to the sender's peer, stamped
// with the sender's connection id.
func (r *Relay) ICE(senderID string, candidate json.RawMessage) {
	r.forward(senderID, "ice", protocol.TypeICEReply, protocol.ICEReplyMsg{
		Candidate: candidate,
		From:      senderID,
	})
}

// SDP forwards an opaque session description blob to the sender's peer,
// stamped with the sender's connection id.
func (r *Relay) SDP(senderID string, sdp json.RawMessage) {
	r.forward(senderID, "sdp", protocol.TypeSDPReply, protocol.SDPReplyMsg{
		SDP:  sdp,
		From: senderID,
	})
}

// Chat validates and forwards a chat message to the sender's peer, tagged
// with the sender's display name for attribution.
func (r *Relay) Chat(senderID, senderName, text string) error {
	if err := ValidateChatText(text); err != nil {
		return err
	}
	r.forward(senderID, "chat", protocol.TypeGetMessage, protocol.GetMessageMsg{
		Text:   text,
		Sender: senderName,
	})
	return nil
}

// forward resolves the peer and delivers the payload. Missing peers are
// counted as drops, never treated as errors.
func (r *Relay) forward(senderID, kind, msgType string, payload interface{}) {
	_, peer, ok := r.rooms.Peer(senderID)
	if !ok || peer == "" {
		metrics.RelayedTotal.WithLabelValues("dropped").Inc()
		return
	}

	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("relay: build %s from conn=%s: %v", msgType, senderID, err)
		return
	}
	if err := r.send.Send(peer, data); err != nil {
		// The peer vanished between lookup and delivery. Transient miss.
		metrics.RelayedTotal.WithLabelValues("dropped").Inc()
		return
	}
	metrics.RelayedTotal.WithLabelValues(kind).Inc()
}

// ValidateChatText checks that a chat message meets content requirements.
func ValidateChatText(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxChatBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxChatBytes)
	}
	if utf8.RuneCountInString(text) > MaxChatChars {
		return fmt.Errorf("message exceeds %d character limit", MaxChatChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
