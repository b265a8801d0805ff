package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openmeet/signaling/internal/auth"
	"github.com/openmeet/signaling/internal/room"
)

// Kind tags a signaling frame. The set is closed: anything else is rejected.
type Kind string

const (
	// Client-to-server kinds.
	KindOffer            Kind = "offer"
	KindAnswer           Kind = "answer"
	KindICECandidate     Kind = "ice-candidate"
	KindChat             Kind = "chat"
	KindMediaStateChange Kind = "media-state-change"
	KindLeave            Kind = "leave"
	KindPing             Kind = "ping"

	// Server-to-client kinds.
	KindJoinNotify  Kind = "join-notify"
	KindLeaveNotify Kind = "leave-notify"
	KindRoomJoined  Kind = "room-joined"
	KindRoomClosing Kind = "room-closing"
	KindPong        Kind = "pong"
	KindError       Kind = "error"
)

// Envelope is the uniform wire shape of every signaling frame.
//
// From is always stamped by the server with the authenticated sender's user
// id; a client-supplied value is overwritten, never trusted. To addresses a
// user id and is required exactly for the directed kinds.
type Envelope struct {
	Type      Kind            `json:"type"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// IsDirected reports whether the kind targets a single user rather than the
// whole room.
func (k Kind) IsDirected() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate:
		return true
	}
	return false
}

func (k Kind) isInbound() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate, KindChat,
		KindMediaStateChange, KindLeave, KindPing:
		return true
	}
	return false
}

// MediaStatePayload is the body of a media-state-change frame and of the
// media field in roster entries.
type MediaStatePayload struct {
	VideoEnabled  bool `json:"video"`
	AudioEnabled  bool `json:"audio"`
	ScreenSharing bool `json:"screenSharing"`
}

// ErrorPayload is the body of an error frame and of pre-upgrade HTTP
// rejections.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RosterEntry describes one current member in a room-joined payload.
type RosterEntry struct {
	UserID      string            `json:"userId"`
	DisplayName string            `json:"displayName"`
	Role        auth.Role         `json:"role"`
	JoinedAt    string            `json:"joinedAt"`
	Media       MediaStatePayload `json:"media"`
}

// RoomJoinedPayload is sent once to a member immediately after admission.
type RoomJoinedPayload struct {
	RoomID  string        `json:"roomId"`
	Title   string        `json:"title,omitempty"`
	SelfID  string        `json:"selfId"`
	Members []RosterEntry `json:"members"`
}

// PresencePayload is the body of join-notify and leave-notify frames.
type PresencePayload struct {
	UserID      string            `json:"userId"`
	DisplayName string            `json:"displayName"`
	Role        auth.Role         `json:"role"`
	Media       MediaStatePayload `json:"media"`
}

// RoomClosingPayload is broadcast when the supervisor shuts a room down.
type RoomClosingPayload struct {
	Reason string `json:"reason"`
}

var errInvalidFrame = errors.New("invalid frame")

// DecodeInbound parses and validates one client frame.
//
// Decoding is strict: unknown top-level fields and trailing data are
// rejected, the kind must be one a client may send, directed kinds must
// carry `to` and undirected kinds must not. A violation returns an error
// wrapping errInvalidFrame whose message is safe to echo to the client.
func DecodeInbound(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: malformed JSON", errInvalidFrame)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Envelope{}, fmt.Errorf("%w: trailing data", errInvalidFrame)
	}

	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", errInvalidFrame)
	}
	if !env.Type.isInbound() {
		return Envelope{}, fmt.Errorf("%w: kind %q cannot be sent by a client", errInvalidFrame, env.Type)
	}

	if env.Type.IsDirected() {
		if env.To == "" {
			return Envelope{}, fmt.Errorf("%w: kind %q requires a target", errInvalidFrame, env.Type)
		}
		if len(env.Payload) == 0 {
			return Envelope{}, fmt.Errorf("%w: kind %q requires a payload", errInvalidFrame, env.Type)
		}
	} else if env.To != "" {
		return Envelope{}, fmt.Errorf("%w: kind %q does not take a target", errInvalidFrame, env.Type)
	}

	switch env.Type {
	case KindChat:
		if len(env.Payload) == 0 {
			return Envelope{}, fmt.Errorf("%w: chat requires a payload", errInvalidFrame)
		}
	case KindMediaStateChange:
		if err := decodeStrict(env.Payload, &MediaStatePayload{}); err != nil {
			return Envelope{}, fmt.Errorf("%w: bad media state payload", errInvalidFrame)
		}
	case KindLeave, KindPing:
		if len(env.Payload) != 0 {
			return Envelope{}, fmt.Errorf("%w: kind %q does not take a payload", errInvalidFrame, env.Type)
		}
	}

	return env, nil
}

func decodeStrict(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data")
	}
	return nil
}

// encodeFrame stamps the timestamp and marshals an outbound frame. Payloads
// are marshaled by the callers below; marshal errors are impossible for the
// closed payload types, so they panic rather than silently dropping a frame.
func encodeFrame(kind Kind, from, to string, payload any, now time.Time) []byte {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("marshal %s payload: %v", kind, err))
		}
		raw = b
	}
	env := Envelope{
		Type:      kind,
		From:      from,
		To:        to,
		Payload:   raw,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(env)
	if err != nil {
		panic(fmt.Sprintf("marshal %s frame: %v", kind, err))
	}
	return b
}

func errorFrame(code, message string, now time.Time) []byte {
	return encodeFrame(KindError, "", "", ErrorPayload{Code: code, Message: message}, now)
}

func pongFrame(now time.Time) []byte {
	return encodeFrame(KindPong, "", "", nil, now)
}

func joinNotifyFrame(m room.Member, now time.Time) []byte {
	return encodeFrame(KindJoinNotify, m.UserID, "", PresencePayload{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Role:        m.Role,
		Media:       mediaPayload(m.Media),
	}, now)
}

func leaveNotifyFrame(m room.Member, now time.Time) []byte {
	return encodeFrame(KindLeaveNotify, m.UserID, "", PresencePayload{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Role:        m.Role,
		Media:       mediaPayload(m.Media),
	}, now)
}

func roomJoinedFrame(roomID, title, selfUserID string, roster []room.Member, now time.Time) []byte {
	entries := make([]RosterEntry, 0, len(roster))
	for _, m := range roster {
		entries = append(entries, RosterEntry{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt.UTC().Format(time.RFC3339),
			Media:       mediaPayload(m.Media),
		})
	}
	return encodeFrame(KindRoomJoined, "", "", RoomJoinedPayload{
		RoomID:  roomID,
		Title:   title,
		SelfID:  selfUserID,
		Members: entries,
	}, now)
}

func roomClosingFrame(reason string, now time.Time) []byte {
	return encodeFrame(KindRoomClosing, "", "", RoomClosingPayload{Reason: reason}, now)
}

func mediaPayload(s room.MediaState) MediaStatePayload {
	return MediaStatePayload{
		VideoEnabled:  s.VideoEnabled,
		AudioEnabled:  s.AudioEnabled,
		ScreenSharing: s.ScreenSharing,
	}
}
