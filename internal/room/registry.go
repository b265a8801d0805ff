package room

import (
	"sync"
	"time"

	"github.com/openmeet/signaling/internal/metrics"
)

type registryRoom struct {
	id        string
	capacity  int
	createdAt time.Time

	// seeded marks a room pre-created by the meeting directory before anyone
	// joined. It keeps the empty room alive until the first admission; after
	// that, normal last-member eviction applies.
	seeded bool

	members map[string]*Member
}

// Config carries the admission policies the supervisor reads from
// configuration.
type Config struct {
	// MaxRooms caps concurrently active rooms. <= 0 means unlimited.
	MaxRooms int

	// DefaultCapacity applies to rooms whose meeting record carries no
	// capacity of its own. Must be > 0.
	DefaultCapacity int
}

// Registry is the process-wide concurrent map from meeting id to live room
// state.
type Registry struct {
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	rooms  map[string]*registryRoom
	closed bool
}

func NewRegistry(cfg Config, m *metrics.Metrics) *Registry {
	if m == nil {
		m = metrics.New()
	}
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = 1
	}
	return &Registry{
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		rooms:   make(map[string]*registryRoom),
	}
}

func (r *Registry) Metrics() *metrics.Metrics { return r.metrics }

// effectiveCapacity resolves the capacity for a room: the meeting record's
// own value when present, the configured default otherwise.
func (r *Registry) effectiveCapacity(capacity int) int {
	if capacity > 0 {
		return capacity
	}
	return r.cfg.DefaultCapacity
}

func (r *Registry) getOrCreateLocked(roomID string, capacity int) (*registryRoom, error) {
	if rm, ok := r.rooms[roomID]; ok {
		return rm, nil
	}
	if r.cfg.MaxRooms > 0 && len(r.rooms) >= r.cfg.MaxRooms {
		r.metrics.Inc(metrics.DropReasonTooManyRooms)
		return nil, ErrTooManyRooms
	}
	rm := &registryRoom{
		id:        roomID,
		capacity:  r.effectiveCapacity(capacity),
		createdAt: r.now(),
		members:   make(map[string]*Member),
	}
	r.rooms[roomID] = rm
	r.metrics.Inc(metrics.RoomCreated)
	return rm, nil
}

// Seed pre-creates an empty room on behalf of the meeting directory. The room
// survives with zero members until the first admission. Seeding an existing
// room is a no-op.
func (r *Registry) Seed(roomID string, capacity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	rm, err := r.getOrCreateLocked(roomID, capacity)
	if err != nil {
		return err
	}
	if len(rm.members) == 0 {
		rm.seeded = true
	}
	return nil
}

// Add atomically gets-or-creates the room and admits the member, returning a
// snapshot of the members present before this admission (the set owed a
// join-notify). On ErrRoomFull or ErrTooManyRooms no state changes.
func (r *Registry) Add(roomID string, capacity int, m Member) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	rm, err := r.getOrCreateLocked(roomID, capacity)
	if err != nil {
		return nil, err
	}
	if len(rm.members) >= rm.capacity {
		r.metrics.Inc(metrics.DropReasonRoomFull)
		return nil, ErrRoomFull
	}

	existing := snapshotLocked(rm)
	member := m
	rm.members[m.ConnID] = &member
	rm.seeded = false
	r.metrics.Inc(metrics.MemberJoined)
	return existing, nil
}

// Remove discards the member and returns the removed member, a snapshot of
// the remaining members (the set owed a leave-notify), and whether the member
// was actually present. Removing the last member evicts the room in the same
// critical section, so no observer ever sees a lingering empty room.
//
// Remove is idempotent: a connection that already left reports ok=false and
// causes no broadcast.
func (r *Registry) Remove(roomID, connID string) (removed Member, remaining []Member, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomID]
	if !exists {
		return Member{}, nil, false
	}
	member, exists := rm.members[connID]
	if !exists {
		return Member{}, nil, false
	}

	delete(rm.members, connID)
	r.metrics.Inc(metrics.MemberLeft)

	if len(rm.members) == 0 && !rm.seeded {
		delete(r.rooms, roomID)
		r.metrics.Inc(metrics.RoomEvicted)
	}

	return *member, snapshotLocked(rm), true
}

// Members returns a copied snapshot of the room's current members. Iterating
// the snapshot during a broadcast is never corrupted by concurrent joins or
// leaves. A missing room yields an empty slice.
func (r *Registry) Members(roomID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return snapshotLocked(rm)
}

// UserConnections returns snapshots of the given user's members in the room.
// Used for directed delivery and the duplicate-connection replace policy.
func (r *Registry) UserConnections(roomID, userID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	var out []Member
	for _, m := range rm.members {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	return out
}

// SetMediaState records a member's announced device state so later roster
// snapshots reflect it. Reports whether the member was still present.
func (r *Registry) SetMediaState(roomID, connID string, state MediaState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	m, ok := rm.members[connID]
	if !ok {
		return false
	}
	m.Media = state
	return true
}

// Has reports whether the room currently exists in the registry.
func (r *Registry) Has(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomID]
	return ok
}

// RoomCount returns the number of active rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Close stops all future admissions and drains the registry, returning the
// final membership per room so the supervisor can notify and close every
// channel. Close is idempotent; later calls return nil.
func (r *Registry) Close() map[string][]Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	out := make(map[string][]Member, len(r.rooms))
	for id, rm := range r.rooms {
		out[id] = snapshotLocked(rm)
	}
	r.rooms = make(map[string]*registryRoom)
	return out
}

func snapshotLocked(rm *registryRoom) []Member {
	out := make([]Member, 0, len(rm.members))
	for _, m := range rm.members {
		out = append(out, *m)
	}
	return out
}
