package auth

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Role is a caller's role within a meeting.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleGuest       Role = "guest"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleHost:
		return RoleHost, true
	case RoleParticipant:
		return RoleParticipant, true
	case RoleGuest:
		return RoleGuest, true
	default:
		return "", false
	}
}

// Identity is the authenticated principal extracted from a credential token.
//
// Role here is the role claimed by the token issuer; the signaling authorizer
// may still refine it (e.g. promote to host) based on the meeting directory,
// which is the authority on entitlement.
type Identity struct {
	UserID      string
	DisplayName string
	Role        Role
}

// Verifier validates a credential token and extracts the caller's identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// CredentialFromQuery extracts the signaling credential from a connection
// request's query string. Browsers cannot set headers on WebSocket dials, so
// the query string is the primary credential channel.
func CredentialFromQuery(q url.Values) (string, error) {
	if token := q.Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingCredentials
}
