package signaling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openmeet/signaling/internal/auth"
	"github.com/openmeet/signaling/internal/directory"
)

// Grant is the outcome of a successful admission check: who the caller is,
// which meeting they may enter, and the role they hold in it.
type Grant struct {
	Identity auth.Identity
	Meeting  directory.Meeting
}

// Authorizer decides whether a connecting client may enter a meeting.
type Authorizer interface {
	// Authorize verifies the credential token and the caller's entitlement to
	// the meeting. Failures are ErrUnauthenticated or ErrForbidden (possibly
	// wrapped); no other errors escape.
	Authorize(ctx context.Context, token, meetingID string) (Grant, error)
}

// DirectoryAuthorizer verifies tokens with an auth.Verifier and entitlement
// against the meeting directory. The whole check runs under one deadline; an
// expiry anywhere is reported as unauthenticated, never as a hung upgrade.
type DirectoryAuthorizer struct {
	verifier auth.Verifier
	dir      directory.Directory
	timeout  time.Duration
}

func NewDirectoryAuthorizer(verifier auth.Verifier, dir directory.Directory, timeout time.Duration) *DirectoryAuthorizer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DirectoryAuthorizer{verifier: verifier, dir: dir, timeout: timeout}
}

func (a *DirectoryAuthorizer) Authorize(ctx context.Context, token, meetingID string) (Grant, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	identity, err := a.verifier.Verify(token)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	meeting, err := a.dir.Meeting(ctx, meetingID)
	if errors.Is(err, directory.ErrMeetingNotFound) {
		return Grant{}, fmt.Errorf("%w: unknown meeting", ErrForbidden)
	}
	if err != nil {
		return Grant{}, fmt.Errorf("%w: meeting lookup: %v", ErrUnauthenticated, err)
	}

	isHost, err := a.dir.IsHost(ctx, identity.UserID, meetingID)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: entitlement lookup: %v", ErrUnauthenticated, err)
	}
	if isHost {
		identity.Role = auth.RoleHost
		return Grant{Identity: identity, Meeting: meeting}, nil
	}

	isParticipant, err := a.dir.IsParticipant(ctx, identity.UserID, meetingID)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: entitlement lookup: %v", ErrUnauthenticated, err)
	}
	if !isParticipant {
		return Grant{}, fmt.Errorf("%w: not on the meeting roster", ErrForbidden)
	}

	// The directory is the authority on entitlement; a token claiming host for
	// a meeting the directory disagrees about is demoted. Guest stays guest.
	if identity.Role != auth.RoleGuest {
		identity.Role = auth.RoleParticipant
	}
	return Grant{Identity: identity, Meeting: meeting}, nil
}
