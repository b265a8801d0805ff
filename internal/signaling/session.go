package signaling

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openmeet/signaling/internal/auth"
	"github.com/openmeet/signaling/internal/metrics"
	"github.com/openmeet/signaling/internal/ratelimit"
	"github.com/openmeet/signaling/internal/room"
)

const writeWait = 1 * time.Second

// session is one member's live websocket channel: the read loop, the
// keepalive ticker, and the serialized write path. It implements room.Sender
// so the registry can hand it to routing code as an opaque handle.
type session struct {
	log  *slog.Logger
	srv  *Server
	conn *websocket.Conn

	connID   string
	roomID   string
	identity auth.Identity

	limiter *ratelimit.MessageLimiter

	writeMu sync.Mutex

	teardownOnce sync.Once
	done         chan struct{}
}

func newSession(srv *Server, conn *websocket.Conn, connID, roomID string, identity auth.Identity) *session {
	return &session{
		log: srv.log.With(
			"conn_id", connID,
			"room_id", roomID,
			"user_id", identity.UserID,
		),
		srv:      srv,
		conn:     conn,
		connID:   connID,
		roomID:   roomID,
		identity: identity,
		limiter:  ratelimit.NewMessageLimiter(srv.clock, srv.cfg.MaxMessagesPerSecond),
		done:     make(chan struct{}),
	}
}

// Send delivers one encoded frame with a write deadline. A failed write marks
// the channel dead and funnels into teardown; the returned error wraps
// ErrChannelClosed and is for the caller's bookkeeping only.
func (s *session) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrChannelClosed
	default:
	}

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		// Torn down on a fresh goroutine: a write failure often surfaces while
		// another member's teardown is broadcasting, and teardown must not
		// re-enter itself through that chain.
		go s.teardown(false, "write failure")
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

// Close implements room.Sender for the supervisor shutdown and the
// duplicate-connection replace policy.
func (s *session) Close() error {
	s.teardown(true, "connection replaced or shut down")
	return nil
}

// run is the connection's read loop. It blocks until the channel dies and
// always leaves through teardown, so abrupt disconnects, idle timeouts, and
// graceful leaves reconcile presence the same way.
func (s *session) run() {
	defer s.teardown(false, "connection closed")

	idle := s.srv.cfg.WSIdleTimeout
	extend := func() {
		if idle > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(idle))
		}
	}

	if s.srv.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.srv.cfg.MaxMessageBytes)
	}
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	if interval := s.srv.cfg.WSPingInterval; interval > 0 {
		go s.keepalive(interval)
	}

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		extend()

		if msgType != websocket.TextMessage {
			s.sendError(CodeInvalidMessage, "expected a text frame")
			continue
		}
		if !s.limiter.Allow() {
			s.srv.metrics.Inc(metrics.DropReasonRateLimited)
			s.sendError(CodeRateLimited, "message rate limit exceeded")
			continue
		}

		env, err := DecodeInbound(data)
		if err != nil {
			s.srv.metrics.Inc(metrics.DropReasonInvalid)
			s.sendError(CodeInvalidMessage, err.Error())
			continue
		}

		if env.Type == KindLeave {
			s.teardown(true, "left")
			return
		}
		s.dispatch(env)
	}
}

func (s *session) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				go s.teardown(false, "keepalive failure")
				return
			}
		}
	}
}

// dispatch routes one validated inbound frame. From is stamped with the
// authenticated user id regardless of what the client sent.
func (s *session) dispatch(env Envelope) {
	now := s.srv.now()
	env.From = s.identity.UserID

	switch env.Type {
	case KindPing:
		_ = s.Send(pongFrame(now))

	case KindChat:
		frame := encodeFrame(env.Type, env.From, "", env.Payload, now)
		s.srv.broadcast(s.roomID, s.connID, frame)

	case KindMediaStateChange:
		var ms MediaStatePayload
		if err := decodeStrict(env.Payload, &ms); err != nil {
			s.sendError(CodeInvalidMessage, "bad media state payload")
			return
		}
		s.srv.registry.SetMediaState(s.roomID, s.connID, room.MediaState{
			VideoEnabled:  ms.VideoEnabled,
			AudioEnabled:  ms.AudioEnabled,
			ScreenSharing: ms.ScreenSharing,
		})
		frame := encodeFrame(env.Type, env.From, "", env.Payload, now)
		s.srv.broadcast(s.roomID, s.connID, frame)

	default:
		// Directed kinds; DecodeInbound guarantees To is set.
		frame := encodeFrame(env.Type, env.From, env.To, env.Payload, now)
		if !s.srv.directed(s.roomID, env.To, frame) {
			s.srv.metrics.Inc(metrics.DropReasonTargetMissing)
			s.sendError(CodeTargetNotFound, fmt.Sprintf("user %q is not in the room", env.To))
		}
	}
}

func (s *session) sendError(code, message string) {
	_ = s.Send(errorFrame(code, message, s.srv.now()))
}

// reject reports a terminal admission failure on an already-upgraded channel
// and closes it. Used for capacity violations, which are detected after the
// upgrade but before any room-joined is sent.
func (s *session) reject(code, message string) {
	_ = s.Send(errorFrame(code, message, s.srv.now()))
	s.closeWithReason(websocket.ClosePolicyViolation, code)
	s.teardown(false, code)
}

// teardown is the single exit path for a session: registry removal,
// leave-notify to the remaining members, channel close. It runs at most once;
// later invocations (a second leave, a racing write failure) are no-ops.
func (s *session) teardown(graceful bool, reason string) {
	s.teardownOnce.Do(func() {
		close(s.done)

		removed, remaining, ok := s.srv.registry.Remove(s.roomID, s.connID)
		if ok {
			s.srv.deliverAll(remaining, leaveNotifyFrame(removed, s.srv.now()))
		}

		if graceful {
			s.closeWithReason(websocket.CloseNormalClosure, reason)
		}
		_ = s.conn.Close()

		s.log.Info("session closed", "reason", reason, "was_member", ok)
	})
}

func (s *session) closeWithReason(closeCode int, reason string) {
	msg := websocket.FormatCloseMessage(closeCode, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
