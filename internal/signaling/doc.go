// Package signaling implements the websocket signaling surface for meetings:
// connection authorization, the per-connection session loop, the signal
// router, and the supervisor that owns room lifecycle.
//
// The server relays WebRTC session descriptions and ICE candidates between
// meeting members verbatim; it never interprets SDP or constructs peer
// connections itself.
package signaling
