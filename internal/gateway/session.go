// Package gateway manages individual WebSocket sessions, handling the pumps
// between the browser and the relay, rate limiting, and lifecycle control.
package gateway

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/config"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Session is one browser connected through the gateway. It owns a WebSocket
// connection and a TCP connection to the relay.
type Session struct {
	conn           *websocket.Conn
	relay          net.Conn
	send           chan []byte
	addr           string
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig
	metrics        *metrics
	logger         *slog.Logger

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, relay net.Conn, g *Gateway, addr string) *Session {
	conn.SetReadLimit(g.cfg.MaxMessageSize)
	return &Session{
		conn:           conn,
		relay:          relay,
		send:           make(chan []byte, sendBuffer),
		addr:           addr,
		maxMessageSize: g.cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(g.cfg.RateLimit),
		rateLimit:      g.cfg.RateLimit,
		metrics:        g.metrics,
		logger:         g.logger.With("session", addr),
	}
}

// Addr returns the remote address of the browser.
func (s *Session) Addr() string {
	return s.addr
}

// close tears down both connections; the pumps notice and exit.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		if err := s.relay.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("Error closing relay connection", "error", err)
		}
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("Error closing WebSocket connection", "error", err)
		}
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Warn("Error setting initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.logger.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate messages based on the error type
// and reports whether the read loop should stop.
func (s *Session) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.logger.Info("Message exceeded maximum size", "limit", s.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.logger.Info("Browser disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.logger.Info("Browser connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		s.logger.Warn("Unexpected WebSocket error", "error", err)
	default:
		s.logger.Warn("WebSocket read error", "error", err)
	}
	return true
}

// checkRateLimit reports whether the session may send another message.
func (s *Session) checkRateLimit() bool {
	if s.rateLimiter != nil && !s.rateLimiter.allow() {
		s.logger.Info("Rate limit exceeded; discarding message",
			"burst", s.rateLimit.Burst, "interval", s.rateLimit.RefillInterval)
		s.metrics.reject("rate_limit")
		return false
	}
	return true
}

// processMessage decodes a browser message and forwards it to the relay as
// one frame. It reports whether the relay connection is still usable.
func (s *Session) processMessage(raw []byte) bool {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Info("Invalid message", "error", err)
		s.metrics.reject("invalid_json")
		return true
	}
	if err := validateContent(msg.Content); err != nil {
		s.logger.Info("Rejected message", "error", err)
		s.metrics.reject("multiline")
		return true
	}

	if err := s.writeRelay(msg.Content); err != nil {
		if !isExpectedCloseError(err) {
			s.logger.Warn("Error writing to relay", "error", err)
		}
		return false
	}
	s.metrics.relay("to_relay")
	return true
}

func (s *Session) writeRelay(content string) error {
	if err := s.relay.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	frame := make([]byte, 0, len(content)+1)
	frame = append(frame, content...)
	frame = append(frame, '\n')
	_, err := s.relay.Write(frame)
	return err
}

// readPump forwards browser messages to the relay.
func (s *Session) readPump() {
	defer s.close()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if s.handleReadError(err) {
			return
		}

		if !s.checkRateLimit() {
			continue
		}

		if !s.processMessage(raw) {
			return
		}
	}
}

// relayPump reads frames from the relay and queues them for the browser.
// It is the only sender on s.send and closes it when the relay goes away.
func (s *Session) relayPump() {
	defer close(s.send)

	r := bufio.NewReader(s.relay)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !isExpectedCloseError(err) {
				s.logger.Warn("Error reading from relay", "error", err)
			}
			return
		}

		payload, err := json.Marshal(Message{Content: string(line[:len(line)-1])})
		if err != nil {
			s.logger.Warn("Error encoding relay message", "error", err)
			continue
		}

		select {
		case s.send <- payload:
			s.metrics.relay("to_browser")
		default:
			s.logger.Warn("Send buffer full; closing session")
			s.close()
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-s.send:
		return s.handleMessage(message, ok)
	case <-ticker.C:
		return s.handlePing()
	}
}

// handleMessage writes one outgoing message and returns false if the connection should be closed
func (s *Session) handleMessage(message []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return s.writeCloseMessage()
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			s.logger.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the browser
func (s *Session) writeCloseMessage() bool {
	if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			s.logger.Warn("Error writing close message", "error", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}
