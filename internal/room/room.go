// Package room holds the in-memory presence state for active meetings: which
// signaling channels are connected to which room right now.
//
// The registry is the single source of truth for presence. Its lock only ever
// covers map/set bookkeeping; message delivery to member channels happens
// outside the lock, against snapshots, so a slow consumer can never stall a
// join or leave.
package room

import (
	"time"

	"github.com/openmeet/signaling/internal/auth"
)

// Sender is the opaque handle used to push an encoded frame to one member's
// underlying channel. Implementations must be safe for concurrent use and
// must not block indefinitely (the signaling layer enforces write deadlines).
type Sender interface {
	Send(data []byte) error

	// Close tears down the underlying channel. Used by the supervisor at
	// shutdown and by the duplicate-connection replace policy.
	Close() error
}

// MediaState mirrors a member's last announced device state. It exists so a
// newly joined client can render the current roster without waiting for each
// peer to re-announce.
type MediaState struct {
	VideoEnabled  bool
	AudioEnabled  bool
	ScreenSharing bool
}

// Member is one connected signaling channel's presence within a room.
//
// A user connected from two tabs holds two Members with distinct ConnIDs.
// Members are owned by the registry; callers only ever see value copies, so a
// snapshot taken for a broadcast stays valid while joins and leaves proceed.
type Member struct {
	ConnID      string
	UserID      string
	DisplayName string
	Role        auth.Role
	JoinedAt    time.Time
	Media       MediaState

	sender Sender
}

func NewMember(connID, userID, displayName string, role auth.Role, joinedAt time.Time, sender Sender) Member {
	return Member{
		ConnID:      connID,
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		JoinedAt:    joinedAt,
		sender:      sender,
	}
}

// Sender returns the member's channel handle. It is carried through snapshot
// copies so broadcasts can deliver without re-consulting the registry.
func (m Member) Sender() Sender { return m.sender }
