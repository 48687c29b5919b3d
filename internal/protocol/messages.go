// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeStart       = "start"
	TypeIdentify    = "identify"
	TypeICESend     = "ice:send"
	TypeSDPSend     = "sdp:send"
	TypeSendMessage = "send-message"
	TypeSkip        = "skip"
	TypeEndCall     = "end-call"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeRole         = "role"
	TypeRoomID       = "roomid"
	TypeRemoteSocket = "remote-socket"
	TypeICEReply     = "ice:reply"
	TypeSDPReply     = "sdp:reply"
	TypeGetMessage   = "get-message"
	TypeSkipped      = "skipped"
	TypeCallEnded    = "call-ended"
	TypeDisconnected = "disconnected"
	TypeOnline       = "online"
	TypeError        = "error"
	TypePong         = "pong"
)

// Role values assigned by the matchmaker. RoleA is the room's original
// occupant, RoleB the joiner.
const (
	RoleA = "A"
	RoleB = "B"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// StartMsg is sent by the client to enter matchmaking. The server replies
// with a role assignment, followed by roomid and (once paired) remote-socket.
type StartMsg struct {
	Type string `json:"type"`
}

// IdentifyMsg binds the user's profile email to the current connection so
// that moderation actions can locate the live connection.
type IdentifyMsg struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

// ICESendMsg carries an opaque ICE candidate blob to be relayed to the peer.
type ICESendMsg struct {
	Type      string          `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
}

// SDPSendMsg carries an opaque session description blob to be relayed to the peer.
type SDPSendMsg struct {
	Type string          `json:"type"`
	SDP  json.RawMessage `json:"sdp"`
}

// SendMessageMsg is a chat message addressed to the sender's current room.
type SendMessageMsg struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
	RoomID string `json:"roomid"`
}

// SkipMsg asks the server to drop the current pairing and find a new one.
type SkipMsg struct {
	Type string `json:"type"`
}

// EndCallMsg ends the current call and tears down the room.
type EndCallMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// RoleMsg is the synchronous reply to start, assigning the caller's room role.
type RoleMsg struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

// RoomIDMsg tells the client which room it now occupies.
type RoomIDMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomid"`
}

// RemoteSocketMsg names the peer's connection id once a pairing completes.
type RemoteSocketMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ICEReplyMsg relays an ICE candidate from the peer.
type ICEReplyMsg struct {
	Type      string          `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
	From      string          `json:"from"`
}

// SDPReplyMsg relays a session description from the peer.
type SDPReplyMsg struct {
	Type string          `json:"type"`
	SDP  json.RawMessage `json:"sdp"`
	From string          `json:"from"`
}

// GetMessageMsg is a chat message relayed from the peer, tagged with the
// sender's display name so the receiver can attribute it.
type GetMessageMsg struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// SkippedMsg is sent to the remaining occupant when the peer skips away.
type SkippedMsg struct {
	Type string `json:"type"`
}

// CallEndedMsg is sent to the remaining occupant when the peer ends the call.
type CallEndedMsg struct {
	Type string `json:"type"`
}

// DisconnectedMsg is sent to the remaining occupant when the peer's
// connection drops (or is force-closed by moderation).
type DisconnectedMsg struct {
	Type string `json:"type"`
}

// OnlineMsg is broadcast to all connections whenever the online count changes.
type OnlineMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeStart:
		var m StartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeIdentify:
		var m IdentifyMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeICESend:
		var m ICESendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSDPSend:
		var m SDPSendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSkip:
		var m SkipMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEndCall:
		var m EndCallMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
