// Package gateway tracks live sessions so the gateway can report them and
// close them all on shutdown.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// errShuttingDown is returned by start once Shutdown has begun.
var errShuttingDown = errors.New("gateway is shutting down")

// Registry tracks the gateway's live sessions and their pump goroutines.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
	metrics  *metrics
	logger   *slog.Logger
}

func newRegistry(logger *slog.Logger, m *metrics) *Registry {
	return &Registry{
		sessions: make(map[*Session]struct{}),
		metrics:  m,
		logger:   logger,
	}
}

// start registers s and launches its pumps.
func (r *Registry) start(s *Session) error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return errShuttingDown
	}
	r.sessions[s] = struct{}{}
	count := len(r.sessions)
	r.wg.Add(3)
	r.mu.Unlock()

	r.metrics.sessionOpened()
	r.logger.Info("Session registered", "addr", s.Addr(), "sessions", count)

	go func() {
		defer r.wg.Done()
		s.writePump()
	}()
	go func() {
		defer r.wg.Done()
		s.relayPump()
	}()
	go func() {
		defer r.wg.Done()
		s.readPump()
		r.remove(s)
	}()
	return nil
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	_, ok := r.sessions[s]
	delete(r.sessions, s)
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.metrics.sessionClosed()
		r.logger.Info("Session unregistered", "addr", s.Addr(), "sessions", count)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes every session and waits for all pump goroutines, or until
// the timeout is reached.
func (r *Registry) Shutdown(timeout time.Duration) error {
	r.logger.Info("Shutting down all sessions...")

	r.mu.Lock()
	r.closing = true
	sessions := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Session shutdown completed", "closed", len(sessions))
		return nil
	case <-time.After(timeout):
		r.logger.Warn("Session shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
