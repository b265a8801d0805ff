package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Join codes avoid lookalike characters so they survive being read out loud
// on a call invite.
const (
	joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	joinCodeLen      = 8
)

type memoryMeeting struct {
	meeting      Meeting
	hostUserID   string
	participants map[string]struct{}
}

// MemoryDirectory is an in-process Directory used by the dev binary and
// tests. Production deployments point the signaling server at the real
// meeting-management service instead.
type MemoryDirectory struct {
	now func() time.Time

	mu       sync.RWMutex
	meetings map[string]*memoryMeeting
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		now:      time.Now,
		meetings: make(map[string]*memoryMeeting),
	}
}

// CreateMeeting registers a meeting under a freshly generated join code and
// returns its record. capacity=0 defers to the server-wide default.
func (d *MemoryDirectory) CreateMeeting(hostUserID, title string, capacity int) (Meeting, error) {
	code, err := gonanoid.Generate(joinCodeAlphabet, joinCodeLen)
	if err != nil {
		return Meeting{}, fmt.Errorf("generate join code: %w", err)
	}

	m := Meeting{
		ID:        code,
		Title:     title,
		Capacity:  capacity,
		CreatedAt: d.now(),
	}

	d.mu.Lock()
	d.meetings[code] = &memoryMeeting{
		meeting:      m,
		hostUserID:   hostUserID,
		participants: make(map[string]struct{}),
	}
	d.mu.Unlock()

	return m, nil
}

// AddParticipant puts userID on the meeting's roster.
func (d *MemoryDirectory) AddParticipant(meetingID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.meetings[meetingID]
	if !ok {
		return ErrMeetingNotFound
	}
	m.participants[userID] = struct{}{}
	return nil
}

// EndMeeting removes the meeting record. Subsequent joins fail with
// ErrMeetingNotFound; already-connected members are unaffected until the
// signaling layer closes their room.
func (d *MemoryDirectory) EndMeeting(meetingID string) {
	d.mu.Lock()
	delete(d.meetings, meetingID)
	d.mu.Unlock()
}

func (d *MemoryDirectory) Meeting(ctx context.Context, meetingID string) (Meeting, error) {
	if err := ctx.Err(); err != nil {
		return Meeting{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.meetings[meetingID]
	if !ok {
		return Meeting{}, ErrMeetingNotFound
	}
	return m.meeting, nil
}

func (d *MemoryDirectory) IsHost(ctx context.Context, userID, meetingID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.meetings[meetingID]
	if !ok {
		return false, ErrMeetingNotFound
	}
	return m.hostUserID == userID, nil
}

func (d *MemoryDirectory) IsParticipant(ctx context.Context, userID, meetingID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.meetings[meetingID]
	if !ok {
		return false, ErrMeetingNotFound
	}
	_, ok = m.participants[userID]
	return ok, nil
}
