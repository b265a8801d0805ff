package metrics

import "sync"

// Event counter names. Kept as plain strings so the registry stays a simple
// map; the Prometheus handler exposes them under an `event` label.
const (
	AuthFailure = "auth_failure"

	RoomCreated  = "room_created"
	RoomEvicted  = "room_evicted"
	MemberJoined = "member_joined"
	MemberLeft   = "member_left"

	MessagesRelayed   = "messages_relayed"
	MessagesBroadcast = "messages_broadcast"

	DropReasonRateLimited   = "rate_limited"
	DropReasonRoomFull      = "room_full"
	DropReasonTooManyRooms  = "too_many_rooms"
	DropReasonTargetMissing = "target_not_found"
	DropReasonInvalid       = "invalid_message"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters for exposition.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
