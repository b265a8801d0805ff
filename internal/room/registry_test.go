package room

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/openmeet/signaling/internal/auth"
	"github.com/openmeet/signaling/internal/metrics"
)

type nopSender struct{}

func (nopSender) Send([]byte) error { return nil }
func (nopSender) Close() error      { return nil }

func newTestRegistry(cfg Config) *Registry {
	return NewRegistry(cfg, metrics.New())
}

func member(connID, userID string) Member {
	return NewMember(connID, userID, "User "+userID, auth.RoleParticipant, time.Now(), nopSender{})
}

func TestAddReturnsPriorMembers(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 10})

	before, err := r.Add("m1", 0, member("c1", "u1"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(before) != 0 {
		t.Fatalf("first admission saw %d prior members", len(before))
	}

	before, err = r.Add("m1", 0, member("c2", "u2"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(before) != 1 || before[0].ConnID != "c1" {
		t.Fatalf("second admission prior members = %+v", before)
	}
}

func TestCapacityEnforced(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 2})

	if _, err := r.Add("m1", 0, member("c1", "u1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Add("m1", 0, member("c2", "u2")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	_, err := r.Add("m1", 0, member("c3", "u3"))
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
	if got := len(r.Members("m1")); got != 2 {
		t.Fatalf("members after rejection = %d, want 2", got)
	}
}

func TestMeetingCapacityOverridesDefault(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 100})

	if _, err := r.Add("m1", 1, member("c1", "u1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Add("m1", 1, member("c2", "u2")); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
}

func TestMaxRooms(t *testing.T) {
	r := newTestRegistry(Config{MaxRooms: 1, DefaultCapacity: 10})

	if _, err := r.Add("m1", 0, member("c1", "u1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Add("m2", 0, member("c2", "u2")); !errors.Is(err, ErrTooManyRooms) {
		t.Fatalf("err = %v, want ErrTooManyRooms", err)
	}

	// Evicting m1 frees the slot.
	if _, _, ok := r.Remove("m1", "c1"); !ok {
		t.Fatalf("Remove failed")
	}
	if _, err := r.Add("m2", 0, member("c2", "u2")); err != nil {
		t.Fatalf("Add after eviction: %v", err)
	}
}

func TestRemoveEvictsEmptyRoom(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 10})

	_, _ = r.Add("m1", 0, member("c1", "u1"))
	_, _ = r.Add("m1", 0, member("c2", "u2"))

	removed, remaining, ok := r.Remove("m1", "c1")
	if !ok || removed.ConnID != "c1" {
		t.Fatalf("Remove = %+v ok=%v", removed, ok)
	}
	if len(remaining) != 1 || remaining[0].ConnID != "c2" {
		t.Fatalf("remaining = %+v", remaining)
	}
	if !r.Has("m1") {
		t.Fatalf("room evicted while still occupied")
	}

	_, remaining, ok = r.Remove("m1", "c2")
	if !ok || len(remaining) != 0 {
		t.Fatalf("last removal: remaining = %+v ok=%v", remaining, ok)
	}
	if r.Has("m1") {
		t.Fatalf("empty room not evicted")
	}
	if r.RoomCount() != 0 {
		t.Fatalf("room count = %d", r.RoomCount())
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 10})

	_, _ = r.Add("m1", 0, member("c1", "u1"))
	if _, _, ok := r.Remove("m1", "c1"); !ok {
		t.Fatalf("first Remove failed")
	}
	if _, _, ok := r.Remove("m1", "c1"); ok {
		t.Fatalf("second Remove reported a member")
	}
	if _, _, ok := r.Remove("no-such-room", "c1"); ok {
		t.Fatalf("Remove on missing room reported a member")
	}
}

func TestSeededRoomSurvivesEmpty(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 10})

	if err := r.Seed("m1", 0); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if !r.Has("m1") {
		t.Fatalf("seeded room missing")
	}

	_, _ = r.Add("m1", 0, member("c1", "u1"))
	_, _, _ = r.Remove("m1", "c1")

	// After the first occupancy, normal eviction applies.
	if r.Has("m1") {
		t.Fatalf("room should be evicted once a real member has come and gone")
	}
}

func TestMembersSnapshotIsolation(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 10})

	_, _ = r.Add("m1", 0, member("c1", "u1"))

	snap := r.Members("m1")
	snap[0].DisplayName = "mutated"

	if got := r.Members("m1")[0].DisplayName; got == "mutated" {
		t.Fatalf("snapshot mutation leaked into the registry")
	}
}

func TestUserConnections(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 10})

	_, _ = r.Add("m1", 0, member("c1", "u1"))
	_, _ = r.Add("m1", 0, member("c2", "u1")) // second tab
	_, _ = r.Add("m1", 0, member("c3", "u2"))

	conns := r.UserConnections("m1", "u1")
	if len(conns) != 2 {
		t.Fatalf("u1 connections = %d, want 2", len(conns))
	}
	if len(r.UserConnections("m1", "nobody")) != 0 {
		t.Fatalf("expected no connections for unknown user")
	}
}

func TestSetMediaState(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 10})

	_, _ = r.Add("m1", 0, member("c1", "u1"))

	state := MediaState{VideoEnabled: true, ScreenSharing: true}
	if !r.SetMediaState("m1", "c1", state) {
		t.Fatalf("SetMediaState reported missing member")
	}
	if got := r.Members("m1")[0].Media; got != state {
		t.Fatalf("media = %+v, want %+v", got, state)
	}

	if r.SetMediaState("m1", "gone", state) {
		t.Fatalf("SetMediaState on missing member reported success")
	}
}

func TestConcurrentFirstJoins(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 1000})

	const n = 100
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			if _, err := r.Add("m1", 0, member(connID, "u"+connID)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Add: %v", err)
	}

	if got := len(r.Members("m1")); got != n {
		t.Fatalf("members = %d, want %d", got, n)
	}
	if r.RoomCount() != 1 {
		t.Fatalf("room count = %d, want 1", r.RoomCount())
	}
}

func TestCloseDrainsAndStopsAdmission(t *testing.T) {
	r := newTestRegistry(Config{DefaultCapacity: 10})

	_, _ = r.Add("m1", 0, member("c1", "u1"))
	_, _ = r.Add("m2", 0, member("c2", "u2"))

	final := r.Close()
	if len(final) != 2 || len(final["m1"]) != 1 || len(final["m2"]) != 1 {
		t.Fatalf("final snapshot = %+v", final)
	}
	if r.RoomCount() != 0 {
		t.Fatalf("rooms after close = %d", r.RoomCount())
	}

	if _, err := r.Add("m3", 0, member("c3", "u3")); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("Add after close: err = %v, want ErrRegistryClosed", err)
	}
	if again := r.Close(); again != nil {
		t.Fatalf("second Close = %+v, want nil", again)
	}
}
