// Package directory is the boundary to the meeting-management service that
// owns meeting records and participant rosters.
//
// The signaling core treats host/participant entitlement as a black-box
// lookup: it never inspects meeting record fields to decide access itself.
package directory

import (
	"context"
	"errors"
	"time"
)

var ErrMeetingNotFound = errors.New("meeting not found")

// Meeting is the subset of a meeting record the signaling core needs at
// admission time.
type Meeting struct {
	// ID is the short join code clients dial with (not a database key).
	ID    string
	Title string

	// Capacity caps concurrently connected members. 0 means "use the
	// server-wide default".
	Capacity int

	CreatedAt time.Time
}

// Directory resolves meetings and answers entitlement questions.
//
// Implementations are expected to be safe for concurrent use. Lookups must
// honor ctx cancellation; the signaling server bounds every admission with a
// deadline and treats expiry as an authentication failure.
type Directory interface {
	// Meeting returns the meeting record for a join code, or
	// ErrMeetingNotFound.
	Meeting(ctx context.Context, meetingID string) (Meeting, error)

	// IsHost reports whether userID is the meeting's designated host.
	IsHost(ctx context.Context, userID, meetingID string) (bool, error)

	// IsParticipant reports whether userID is on the meeting's participant
	// roster.
	IsParticipant(ctx context.Context, userID, meetingID string) (bool, error)
}
