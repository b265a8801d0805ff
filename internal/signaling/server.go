package signaling

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openmeet/signaling/internal/auth"
	"github.com/openmeet/signaling/internal/config"
	"github.com/openmeet/signaling/internal/httpserver"
	"github.com/openmeet/signaling/internal/metrics"
	"github.com/openmeet/signaling/internal/origin"
	"github.com/openmeet/signaling/internal/ratelimit"
	"github.com/openmeet/signaling/internal/room"
)

// Server is the session supervisor: it owns the room registry's lifecycle,
// admits authorized connections, and routes signals between members.
type Server struct {
	log        *slog.Logger
	cfg        config.Config
	authorizer Authorizer
	registry   *room.Registry
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader

	// now and clock are injectable for deterministic tests.
	now   func() time.Time
	clock ratelimit.Clock
}

func NewServer(cfg config.Config, logger *slog.Logger, authorizer Authorizer, registry *room.Registry) (*Server, error) {
	checker, err := origin.NewChecker(cfg.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	s := &Server{
		log:        logger,
		cfg:        cfg,
		authorizer: authorizer,
		registry:   registry,
		metrics:    registry.Metrics(),
		now:        time.Now,
		clock:      ratelimit.RealClock{},
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: checker.Allow,
	}
	return s, nil
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /rooms/{room}/ws", s.handleRoomSocket)
}

// Handler returns a standalone handler with just the signaling route, for
// tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// handleRoomSocket is the websocket admission path. Authentication and
// entitlement failures are rejected before the upgrade with a JSON body, so
// unauthorized callers never hold an upgraded channel. Capacity failures are
// detected after the upgrade and reported as a terminal error frame.
func (s *Server) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")

	token, err := auth.CredentialFromQuery(r.URL.Query())
	if err != nil {
		s.metrics.Inc(metrics.AuthFailure)
		httpserver.WriteJSON(w, http.StatusUnauthorized, ErrorPayload{
			Code:    CodeUnauthenticated,
			Message: "missing credential token",
		})
		return
	}

	grant, err := s.authorizer.Authorize(r.Context(), token, roomID)
	if err != nil {
		s.metrics.Inc(metrics.AuthFailure)
		status := http.StatusUnauthorized
		code := CodeUnauthenticated
		if errors.Is(err, ErrForbidden) {
			status = http.StatusForbidden
			code = CodeForbidden
		}
		s.log.Info("connection rejected",
			"room_id", roomID,
			"code", code,
			"error", err,
		)
		httpserver.WriteJSON(w, status, ErrorPayload{Code: code, Message: code})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response (bad handshake or origin).
		return
	}

	s.admit(conn, roomID, grant)
}

// admit registers the upgraded connection as a room member and runs its
// session loop to completion. The roster snapshot returned by the registry's
// admission and the join-notify broadcast come from the same critical
// section, so the joiner's roster is exact.
func (s *Server) admit(conn *websocket.Conn, roomID string, grant Grant) {
	connID := uuid.NewString()
	sess := newSession(s, conn, connID, roomID, grant.Identity)

	if s.cfg.DuplicateConnectionPolicy == config.DuplicateReplace {
		for _, prev := range s.registry.UserConnections(roomID, grant.Identity.UserID) {
			_ = prev.Sender().Close()
		}
	}

	member := room.NewMember(connID, grant.Identity.UserID, grant.Identity.DisplayName, grant.Identity.Role, s.now(), sess)
	existing, err := s.registry.Add(roomID, grant.Meeting.Capacity, member)
	if err != nil {
		code := CodeCapacityExceeded
		switch {
		case errors.Is(err, room.ErrRoomFull):
			code = CodeRoomFull
		case errors.Is(err, room.ErrRegistryClosed):
			code = CodeRoomClosing
		}
		s.log.Info("admission rejected",
			"room_id", roomID,
			"user_id", grant.Identity.UserID,
			"code", code,
		)
		sess.reject(code, code)
		return
	}

	s.log.Info("member joined",
		"room_id", roomID,
		"user_id", grant.Identity.UserID,
		"conn_id", connID,
		"role", grant.Identity.Role,
		"peers", len(existing),
	)

	if err := sess.Send(roomJoinedFrame(roomID, grant.Meeting.Title, grant.Identity.UserID, existing, s.now())); err != nil {
		return
	}
	s.deliverAll(existing, joinNotifyFrame(member, s.now()))

	sess.run()
}

// broadcast delivers a frame to every member of the room except the sender's
// connection. Delivery iterates a registry snapshot outside any lock.
func (s *Server) broadcast(roomID, exceptConnID string, frame []byte) {
	for _, m := range s.registry.Members(roomID) {
		if m.ConnID == exceptConnID {
			continue
		}
		_ = m.Sender().Send(frame)
	}
	s.metrics.Inc(metrics.MessagesBroadcast)
}

// directed delivers a frame to every connection the target user holds in the
// room. Reports false when the user has none.
func (s *Server) directed(roomID, toUserID string, frame []byte) bool {
	targets := s.registry.UserConnections(roomID, toUserID)
	if len(targets) == 0 {
		return false
	}
	for _, m := range targets {
		_ = m.Sender().Send(frame)
	}
	s.metrics.Inc(metrics.MessagesRelayed)
	return true
}

func (s *Server) deliverAll(members []room.Member, frame []byte) {
	for _, m := range members {
		_ = m.Sender().Send(frame)
	}
}

// CloseRoom ends one meeting's room: every member receives a room-closing
// frame and has their channel closed. Used when the meeting directory ends a
// meeting while members are still connected.
func (s *Server) CloseRoom(roomID, reason string) {
	members := s.registry.Members(roomID)
	if len(members) == 0 {
		return
	}
	frame := roomClosingFrame(reason, s.now())
	for _, m := range members {
		_ = m.Sender().Send(frame)
		_ = m.Sender().Close()
	}
}

// Close shuts the supervisor down: admission stops, every member in every
// room receives room-closing, and all channels are force-closed. Idempotent.
func (s *Server) Close() {
	rooms := s.registry.Close()
	if len(rooms) == 0 {
		return
	}
	frame := roomClosingFrame("server shutting down", s.now())
	for roomID, members := range rooms {
		for _, m := range members {
			_ = m.Sender().Send(frame)
			_ = m.Sender().Close()
		}
		s.log.Info("room closed", "room_id", roomID, "members", len(members))
	}
}
