package ratelimit

// MessageLimiter enforces a per-connection budget on inbound signaling
// frames. The bucket's burst capacity equals the sustained rate, so a client
// may send one second's worth of frames at once but no more.
type MessageLimiter struct {
	bucket *TokenBucket
}

// NewMessageLimiter builds a limiter allowing perSecond frames per second.
// perSecond <= 0 disables limiting.
func NewMessageLimiter(clock Clock, perSecond int) *MessageLimiter {
	if perSecond <= 0 {
		return &MessageLimiter{}
	}
	return &MessageLimiter{
		bucket: NewTokenBucket(clock, int64(perSecond), int64(perSecond)),
	}
}

// Allow reports whether one more inbound frame fits the budget.
func (l *MessageLimiter) Allow() bool {
	if l == nil || l.bucket == nil {
		return true
	}
	return l.bucket.Allow(1)
}
