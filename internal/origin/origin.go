// Package origin implements the browser Origin check applied to websocket
// upgrade requests.
package origin

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Checker decides whether a websocket upgrade's Origin header is acceptable.
//
// With a configured allowlist, each entry must be "*" or a full origin
// (scheme://host[:port]); entries are normalized once at construction. With an
// empty allowlist the policy is same-host: the Origin's host[:port] must match
// the request's Host header, with default ports treated as equivalent.
type Checker struct {
	allowAll bool
	allowed  map[string]struct{}
}

func NewChecker(allowedOrigins []string) (*Checker, error) {
	c := &Checker{allowed: make(map[string]struct{})}
	for _, raw := range allowedOrigins {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			c.allowAll = true
			continue
		}
		normalized, _, ok := normalizeOrigin(trimmed)
		if !ok {
			return nil, fmt.Errorf("invalid allowed origin %q", raw)
		}
		c.allowed[normalized] = struct{}{}
	}
	return c, nil
}

// Allow reports whether the request may proceed to the websocket upgrade.
//
// Requests without an Origin header are allowed: non-browser clients (native
// apps, server-side tooling) don't send one, and the token check still gates
// them.
func (c *Checker) Allow(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return true
	}

	normalized, originHost, ok := normalizeOrigin(header)
	if !ok {
		return false
	}

	if c.allowAll {
		return true
	}
	if len(c.allowed) > 0 {
		_, ok := c.allowed[normalized]
		return ok
	}

	// Same-host default. Scheme is deliberately not compared: behind a
	// TLS-terminating proxy the server sees HTTP while the browser Origin is
	// HTTPS.
	scheme := ""
	switch {
	case strings.HasPrefix(normalized, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalized, "https://"):
		scheme = "https"
	default:
		return false
	}
	requestHost, ok := normalizeHost(r.Host, scheme)
	if !ok {
		return false
	}
	return originHost == requestHost
}

// normalizeOrigin validates a browser Origin header and returns the
// normalized origin (scheme://host[:port]) plus the host[:port] portion for
// same-host comparisons. The special value "null" never matches anything and
// is rejected here.
func normalizeOrigin(originHeader string) (normalized string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" || trimmed == "null" {
		return "", "", false
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = normalizeHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// normalizeHost canonicalizes a host[:port] authority: lowercased hostname,
// brackets around IPv6 literals, default ports for the scheme elided.
func normalizeHost(rawHost, scheme string) (string, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(rawHost))
	if trimmed == "" {
		return "", false
	}

	hostname, rawPort, ok := splitHostPort(trimmed)
	if !ok || hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}

	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host = host + ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits an authority host[:port] string. The hostname is
// returned without brackets for IPv6 literals; the port is returned as-is and
// is empty when absent.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		parts := strings.SplitN(rawHost, ":", 2)
		if parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	default:
		// Unbracketed IPv6 literals are not valid in the authority component.
		return "", "", false
	}
}
