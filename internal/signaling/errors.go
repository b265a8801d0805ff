package signaling

import "errors"

// Wire error codes carried in error frames and pre-upgrade HTTP rejections.
const (
	CodeUnauthenticated  = "unauthenticated"
	CodeForbidden        = "forbidden"
	CodeRoomFull         = "room_full"
	CodeCapacityExceeded = "capacity_exceeded"
	CodeTargetNotFound   = "target_not_found"
	CodeInvalidMessage   = "invalid_message"
	CodeRateLimited      = "rate_limited"
	CodeRoomClosing      = "room_closing"
)

var (
	// ErrUnauthenticated covers missing, malformed, expired, or unverifiable
	// credentials, including directory lookups that time out before an answer.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the credential is valid but its holder is neither the
	// meeting's host nor a recorded participant.
	ErrForbidden = errors.New("forbidden")

	// ErrChannelClosed is the internal signal that a member's channel is gone.
	// It drives lifecycle teardown and is never reported to the closing client.
	ErrChannelClosed = errors.New("channel closed")
)
