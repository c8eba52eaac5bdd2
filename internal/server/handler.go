package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/codefionn/ronkey/internal/logger"
	"github.com/codefionn/ronkey/internal/protocol"
	"github.com/codefionn/ronkey/internal/session"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// handleEval upgrades the request and runs one REPL session on it
func (s *Server) handleEval(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Counted before the hijack so Stop never waits on a zero counter that
	// is about to grow.
	if !s.acquireConn() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseConn()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.log.Warn("Failed to upgrade %s: %v", r.RemoteAddr, err)
		return
	}

	s.serveConn(conn)
}

// serveConn owns conn and its session until either side closes.
// Messages are handled strictly one at a time: the next frame is not read
// until the previous response has been written.
func (s *Server) serveConn(conn *websocket.Conn) {
	sess := session.New(s.runtime)
	log := s.log.WithPrefix("session " + shortID(sess.ID))
	log.Info("Opened for %s", conn.RemoteAddr())

	defer func() {
		evals := sess.EvalCount()
		sess.Close()
		_ = conn.Close()
		log.Info("Closed after %d evaluations, open for %s", evals, sess.Age().Round(time.Millisecond))
	}()

	// Server shutdown drops the connection. An evaluation already running
	// finishes first; the loop then fails on its next read or write.
	stop := context.AfterFunc(s.baseCtx, func() { _ = conn.Close() })
	defer stop()

	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	keepalive := s.cfg.PingInterval() > 0
	if keepalive {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout()))
		})
		done := make(chan struct{})
		defer close(done)
		go s.pingLoop(conn, done, log)
	}

	evalCtx := context.WithoutCancel(s.baseCtx)
	writer := frameWriter{conn: conn, timeout: s.cfg.WriteTimeout()}

	for {
		if keepalive {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout()))
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn("Read error: %v", err)
			} else {
				log.Debug("Connection ended: %v", err)
			}
			return
		}

		source, err := protocol.DecodeInbound(messageType, payload)
		if err != nil {
			log.Warn("Dropping connection: %v", err)
			s.rejectFrame(conn, err)
			return
		}

		log.Debug("Received %d bytes", len(payload))
		if err := s.processor.Respond(evalCtx, writer, sess, source); err != nil {
			log.Warn("%v", err)
			return
		}
	}
}

// rejectFrame sends a close control frame naming why the last frame was
// refused. No response envelope is sent for it.
func (s *Server) rejectFrame(conn *websocket.Conn, cause error) {
	code := websocket.CloseProtocolError
	switch {
	case errors.Is(cause, protocol.ErrNonText):
		code = websocket.CloseUnsupportedData
	case errors.Is(cause, protocol.ErrInvalidUTF8):
		code = websocket.CloseInvalidFramePayloadData
	}
	msg := websocket.FormatCloseMessage(code, cause.Error())
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout()))
}

// pingLoop keeps idle connections alive. WriteControl may run concurrently
// with the receive loop's writes.
func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout())); err != nil {
				log.Debug("Ping failed: %v", err)
				return
			}
		}
	}
}

type frameWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (w frameWriter) WriteFrame(data []byte) error {
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
