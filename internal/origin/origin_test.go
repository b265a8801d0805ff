package origin

import (
	"net/http"
	"testing"
)

func request(t *testing.T, host, originHeader string) *http.Request {
	t.Helper()
	r, err := http.NewRequest(http.MethodGet, "http://"+host+"/rooms/m1/ws", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	r.Host = host
	if originHeader != "" {
		r.Header.Set("Origin", originHeader)
	}
	return r
}

func TestChecker_SameHostDefault(t *testing.T) {
	c, err := NewChecker(nil)
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	tests := []struct {
		name   string
		host   string
		origin string
		want   bool
	}{
		{"no origin header", "meet.example.com", "", true},
		{"matching host", "meet.example.com", "https://meet.example.com", true},
		{"matching host with default port", "meet.example.com", "https://meet.example.com:443", true},
		{"scheme ignored", "meet.example.com", "http://meet.example.com", true},
		{"different host", "meet.example.com", "https://evil.example.com", false},
		{"different port", "meet.example.com:8443", "https://meet.example.com:9443", false},
		{"case-insensitive host", "Meet.Example.com", "https://meet.example.COM", true},
		{"null origin", "meet.example.com", "null", false},
		{"origin with path", "meet.example.com", "https://meet.example.com/app", false},
		{"origin with userinfo", "meet.example.com", "https://u:p@meet.example.com", false},
		{"non-http scheme", "meet.example.com", "ftp://meet.example.com", false},
		{"garbage", "meet.example.com", "::::", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Allow(request(t, tt.host, tt.origin)); got != tt.want {
				t.Fatalf("Allow(%q vs host %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
			}
		})
	}
}

func TestChecker_Allowlist(t *testing.T) {
	c, err := NewChecker([]string{"https://app.example.com", "http://localhost:3000"})
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://app.example.com:443", true}, // normalizes to the listed entry
		{"http://localhost:3000", true},
		{"https://other.example.com", false},
		{"https://meet.example.com", false}, // same-host fallback disabled when list is set
		{"", true},
	}
	for _, tt := range tests {
		if got := c.Allow(request(t, "meet.example.com", tt.origin)); got != tt.want {
			t.Fatalf("Allow(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestChecker_Wildcard(t *testing.T) {
	c, err := NewChecker([]string{"*"})
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	if !c.Allow(request(t, "meet.example.com", "https://anything.example.org")) {
		t.Fatalf("wildcard should allow any valid origin")
	}
	if c.Allow(request(t, "meet.example.com", "not a url ::")) {
		t.Fatalf("wildcard should still reject malformed origins")
	}
}

func TestNewChecker_RejectsInvalidEntries(t *testing.T) {
	if _, err := NewChecker([]string{"https://ok.example.com", "nonsense"}); err == nil {
		t.Fatalf("expected error for invalid allowlist entry")
	}
}

func TestChecker_IPv6(t *testing.T) {
	c, err := NewChecker(nil)
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	if !c.Allow(request(t, "[::1]:8080", "http://[::1]:8080")) {
		t.Fatalf("expected IPv6 same-host match")
	}
	if c.Allow(request(t, "[::1]:8080", "http://[::1]:9090")) {
		t.Fatalf("expected IPv6 port mismatch to be rejected")
	}
}
