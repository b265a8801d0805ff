package directory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemoryDirectory_CreateAndLookup(t *testing.T) {
	d := NewMemoryDirectory()

	m, err := d.CreateMeeting("host-1", "standup", 10)
	if err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}
	if len(m.ID) != joinCodeLen {
		t.Fatalf("join code %q, want length %d", m.ID, joinCodeLen)
	}
	for _, r := range m.ID {
		if !strings.ContainsRune(joinCodeAlphabet, r) {
			t.Fatalf("join code %q contains %q outside alphabet", m.ID, r)
		}
	}

	got, err := d.Meeting(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Meeting: %v", err)
	}
	if got.Title != "standup" || got.Capacity != 10 {
		t.Fatalf("unexpected meeting: %#v", got)
	}
}

func TestMemoryDirectory_Entitlement(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	m, err := d.CreateMeeting("host-1", "standup", 0)
	if err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}
	if err := d.AddParticipant(m.ID, "user-2"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	tests := []struct {
		userID          string
		wantHost        bool
		wantParticipant bool
	}{
		{"host-1", true, false},
		{"user-2", false, true},
		{"user-3", false, false},
	}
	for _, tt := range tests {
		host, err := d.IsHost(ctx, tt.userID, m.ID)
		if err != nil || host != tt.wantHost {
			t.Errorf("IsHost(%s)=%v,%v want %v", tt.userID, host, err, tt.wantHost)
		}
		part, err := d.IsParticipant(ctx, tt.userID, m.ID)
		if err != nil || part != tt.wantParticipant {
			t.Errorf("IsParticipant(%s)=%v,%v want %v", tt.userID, part, err, tt.wantParticipant)
		}
	}
}

func TestMemoryDirectory_UnknownMeeting(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	if _, err := d.Meeting(ctx, "NOPE"); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("Meeting err=%v, want ErrMeetingNotFound", err)
	}
	if _, err := d.IsHost(ctx, "u", "NOPE"); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("IsHost err=%v, want ErrMeetingNotFound", err)
	}
	if err := d.AddParticipant("NOPE", "u"); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("AddParticipant err=%v, want ErrMeetingNotFound", err)
	}
}

func TestMemoryDirectory_EndMeeting(t *testing.T) {
	d := NewMemoryDirectory()
	m, err := d.CreateMeeting("host-1", "standup", 0)
	if err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}

	d.EndMeeting(m.ID)

	if _, err := d.Meeting(context.Background(), m.ID); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("Meeting err=%v, want ErrMeetingNotFound after EndMeeting", err)
	}
}

func TestMemoryDirectory_HonorsContextCancellation(t *testing.T) {
	d := NewMemoryDirectory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Meeting(ctx, "ANY"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Meeting err=%v, want context.Canceled", err)
	}
}
