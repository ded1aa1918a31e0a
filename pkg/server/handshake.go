package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mapforge/mapforge/pkg/protocol"
)

// handshakeError carries the refusal sent to the client when a join is
// rejected, so callers can both answer the peer and log the cause.
type handshakeError struct {
	code    protocol.HandshakeStatus
	message string
}

func (e *handshakeError) Error() string {
	return fmt.Sprintf("handshake refused (%d): %s", e.code, e.message)
}

func refuse(code protocol.HandshakeStatus, message string) *handshakeError {
	return &handshakeError{code: code, message: message}
}

// performHandshake runs the server side of the join exchange on a fresh
// socket: read the join request, validate it, answer with a response.
// On success the returned request identifies the player; on failure the
// refusal has already been written and the socket should be closed.
func (s *Server) performHandshake(ws *websocket.Conn) (*protocol.JoinRequest, error) {
	cfg := s.cfg.SessionConfig

	ws.SetReadLimit(cfg.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))

	_, msg, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("handshake read: %w", err)
	}

	frame, err := protocol.DecodeFrame(msg)
	if err != nil || frame.Type != protocol.FrameHandshake {
		herr := refuse(protocol.HandshakeInvalidFormat, "expected join request")
		s.writeRefusal(ws, herr)
		return nil, herr
	}

	req, err := protocol.DecodeJoinRequest(frame.Payload)
	if err != nil {
		herr := refuse(protocol.HandshakeInvalidFormat, "malformed join request")
		s.writeRefusal(ws, herr)
		return nil, herr
	}

	if herr := s.validateJoin(req); herr != nil {
		s.writeRefusal(ws, herr)
		return nil, herr
	}

	resp := protocol.NewJoinResponse(s.policy())
	if err := s.writeHandshake(ws, resp); err != nil {
		s.releaseName(req.PlayerName)
		return nil, fmt.Errorf("handshake write: %w", err)
	}
	return req, nil
}

// validateJoin applies the join checks in a fixed order so a client
// probing passwords learns nothing from which error it gets first. An
// accepted name is reserved under the lock; concurrent joins with the
// same name refuse instead of racing the winner's registration.
func (s *Server) validateJoin(req *protocol.JoinRequest) *handshakeError {
	if !protocol.CompatibleVersion(req.ClientVersion) {
		return refuse(protocol.HandshakeVersionMismatch,
			fmt.Sprintf("server speaks %s, client speaks %s", protocol.Version, req.ClientVersion))
	}

	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		return refuse(protocol.HandshakeInvalidFormat, "player name required")
	}
	req.PlayerName = name

	if !checkPassword(s.passwordFor(req.Role), req.PasswordDigest) {
		return refuse(protocol.HandshakeRefused, "wrong password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, connected := s.clients[name]
	_, pending := s.reserved[name]
	if connected || pending {
		return refuse(protocol.HandshakeNameInUse,
			fmt.Sprintf("player %q is already connected", name))
	}
	if s.cfg.MaxClients > 0 && len(s.clients)+len(s.reserved) >= s.cfg.MaxClients {
		return refuse(protocol.HandshakeRefused, "server is full")
	}
	s.reserved[name] = struct{}{}
	return nil
}

func (s *Server) passwordFor(role protocol.Role) string {
	if role == protocol.RoleGM {
		return s.cfg.GMPassword
	}
	return s.cfg.PlayerPassword
}

// checkPassword compares the client's digest against the digest of the
// configured password in constant time. An empty configured password
// admits any client.
func checkPassword(password string, digest []byte) bool {
	if password == "" {
		return true
	}
	want := sha256.Sum256([]byte(password))
	if len(digest) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(want[:], digest) == 1
}

func (s *Server) writeRefusal(ws *websocket.Conn, herr *handshakeError) {
	s.metrics.handshakesTotal.WithLabelValues(herr.code.String()).Inc()
	resp := protocol.NewJoinRefusal(herr.code, herr.message)
	// Best effort; the socket is going away either way.
	_ = s.writeHandshake(ws, resp)
}

func (s *Server) writeHandshake(ws *websocket.Conn, resp *protocol.JoinResponse) error {
	frame := protocol.NewFrame(protocol.FrameHandshake, protocol.EncodeJoinResponse(resp))
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(s.cfg.SessionConfig.WriteTimeout))
	return ws.WriteMessage(websocket.BinaryMessage, data)
}
