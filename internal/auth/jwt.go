package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxTokenLen bounds credential length before any parsing happens, so a
// hostile client cannot make the server base64-decode megabytes of garbage.
const maxTokenLen = 8 * 1024

// JWTVerifier validates HS256 tokens issued by the meeting-management
// service.
//
// Expected claims: `sub` (user id, required), `exp` (required), `name`
// (display name, optional) and `role` (optional; defaults to guest). Any
// other signing algorithm is rejected, including "none".
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

type tokenClaims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingCredentials
	}
	if len(token) > maxTokenLen {
		return Identity{}, ErrInvalidCredentials
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrInvalidCredentials)
	}

	role := RoleGuest
	if claims.Role != "" {
		r, ok := ParseRole(claims.Role)
		if !ok {
			return Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidCredentials, claims.Role)
		}
		role = r
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = userID
	}

	return Identity{
		UserID:      userID,
		DisplayName: name,
		Role:        role,
	}, nil
}

// IsUnauthorized reports whether err should be treated as an authentication
// failure (as opposed to an internal error).
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrInvalidCredentials)
}
