package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Tyrowin/linechat/internal/poller"
)

// maxEvents is how many readiness events one Update consumes. Descriptors
// beyond it stay on the kernel ready list for the next round.
const maxEvents = 1024

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for peer lifecycle events.
// If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records relay activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithPoller replaces the readiness facility created by Listen.
func WithPoller(factory func() (poller.Poller, error)) Option {
	return func(s *Server) {
		if factory != nil {
			s.newPoller = factory
		}
	}
}

// Server is a single-threaded line-chat relay. It is not safe for
// concurrent use: every method must be called from the goroutine that
// drives Update.
type Server struct {
	listenFd  int
	poll      poller.Poller
	newPoller func() (poller.Poller, error)
	sys       sockets

	peers *table
	inbox Inbox
	feed  Assembler

	events []poller.Event
	ready  []*conn
	round  []framed
	err    error

	logger  *slog.Logger
	metrics *Metrics
}

// framed is a message completed during the current round and its sender.
type framed struct {
	from *conn
	msg  Message
}

// New creates a relay that is not listening yet.
func New(opts ...Option) *Server {
	s := &Server{
		listenFd: -1,
		newPoller: func() (poller.Poller, error) {
			return poller.NewEpoll()
		},
		sys:    unixSockets{},
		peers:  newTable(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds all local IPv4 interfaces on port and starts accepting peers.
// Port 0 picks an ephemeral port; see Port.
func (s *Server) Listen(port uint16) error {
	if s.listenFd >= 0 {
		return ErrAlreadyStarted
	}

	fd, err := listenTCP4(port)
	if err != nil {
		return err
	}

	p, err := s.newPoller()
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if err := p.Register(fd, poller.Readable); err != nil {
		_ = p.Close()
		_ = unix.Close(fd)
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}

	s.listenFd = fd
	s.poll = p
	if s.events == nil {
		s.events = make([]poller.Event, maxEvents)
	}
	s.logger.Info("Chat relay listening", "port", s.Port())
	return nil
}

// Update performs one readiness round: it waits up to timeoutSeconds
// (negative waits forever), accepts every pending peer, drains readable peers
// into framed messages, relays each message to all other peers and the inbox,
// flushes queued output and removes peers that disconnected.
//
// Update returns ErrTimeout when nothing became ready. Per-peer failures only
// drop that peer; poller failures during the round are reported as ErrSystem
// once the round is complete.
func (s *Server) Update(timeoutSeconds float64) error {
	if s.listenFd < 0 {
		return ErrNotStarted
	}

	n, err := s.poll.Wait(poller.Seconds(timeoutSeconds), s.events)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if n == 0 {
		return ErrTimeout
	}

	start := time.Now()
	defer s.metrics.observeUpdate(start)

	s.err = nil
	s.ready = s.ready[:0]
	s.round = s.round[:0]

	accept := false
	for _, ev := range s.events[:n] {
		if ev.Fd == s.listenFd {
			accept = true
			continue
		}
		if c, ok := s.peers.get(ev.Fd); ok && ev.Readable {
			s.ready = append(s.ready, c)
		}
	}
	if accept {
		s.acceptAll()
	}

	for _, c := range s.ready {
		s.drain(c)
	}

	for _, f := range s.round {
		s.inbox.Push(f.msg)
		s.broadcast(f.from, f.msg.Payload)
	}
	clear(s.round)

	s.flushAll()
	s.cleanup()

	return s.takeErr()
}

// acceptAll accepts until the listener would block. Edge-triggered
// notification fires once for any number of pending connections.
func (s *Server) acceptAll() {
	for {
		fd, err := s.sys.Accept(s.listenFd)
		if err != nil {
			if !errors.Is(err, ErrWouldBlock) {
				s.logger.Warn("Error accepting peer", "error", err)
			}
			return
		}

		if err := s.poll.Register(fd, poller.Readable); err != nil {
			_ = s.sys.Close(fd)
			s.fail(err)
			continue
		}

		c := newConn(fd)
		s.peers.add(c)
		s.metrics.peerAccepted()
		s.logger.Debug("Peer connected", "fd", fd, "peers", s.peers.len())

		// Bytes may have arrived before registration.
		s.ready = append(s.ready, c)
	}
}

// drain reads c until it would block or closes, framing as it goes.
func (s *Server) drain(c *conn) {
	if c.state != connActive {
		return
	}
	for {
		n, err := s.sys.Read(c.fd, c.in.Tail())
		if err != nil {
			if !errors.Is(err, ErrWouldBlock) {
				s.logger.Debug("Error reading from peer", "fd", c.fd, "error", err)
				s.markClosing(c, reasonReadError)
			}
			break
		}
		if n == 0 {
			s.markClosing(c, reasonEOF)
			break
		}
		c.in.Commit(n)
		s.collect(c)
	}

	if c.state == connClosing && c.in.Buffered() > 0 {
		s.logger.Debug("Discarding unterminated input", "fd", c.fd, "bytes", c.in.Buffered())
		c.in.Reset()
	}
}

func (s *Server) collect(c *conn) {
	for {
		m, ok := c.in.Next()
		if !ok {
			return
		}
		s.round = append(s.round, framed{from: c, msg: m})
		s.metrics.messageReceived()
	}
}

// broadcast queues payload for every active peer except from. A nil from
// reaches every peer.
func (s *Server) broadcast(from *conn, payload []byte) {
	s.peers.each(func(c *conn) {
		if c == from || c.state != connActive {
			return
		}
		c.out.Append(payload)
		s.setInterest(c, poller.Readable|poller.Writable)
	})
}

// flushAll writes the backlog of every peer with write interest.
func (s *Server) flushAll() {
	pending := 0
	s.peers.each(func(c *conn) {
		if c.state == connActive && c.interest.Has(poller.Writable) {
			s.flush(c)
		}
		if c.state == connActive {
			pending += c.out.Len()
		}
	})
	s.metrics.setBacklog(pending)
}

func (s *Server) flush(c *conn) {
	n, err := c.out.Flush(func(p []byte) (int, error) {
		return s.sys.Write(c.fd, p)
	})
	s.metrics.sent(n)
	if err != nil {
		s.logger.Debug("Error writing to peer", "fd", c.fd, "error", err)
		s.markClosing(c, reasonSendError)
		return
	}
	if c.out.Len() == 0 {
		s.setInterest(c, poller.Readable)
	}
}

// setInterest keeps the poller registration in step with c.interest.
func (s *Server) setInterest(c *conn, in poller.Interest) {
	if c.interest == in {
		return
	}
	if err := s.poll.Modify(c.fd, in); err != nil {
		s.fail(err)
		s.markClosing(c, reasonPoller)
		return
	}
	c.interest = in
}

func (s *Server) markClosing(c *conn, reason string) {
	if c.state == connClosing {
		return
	}
	c.state = connClosing
	c.reason = reason
}

// cleanup tears down every peer marked closing this round.
func (s *Server) cleanup() {
	s.peers.each(func(c *conn) {
		if c.state == connClosing {
			s.teardown(c)
		}
	})
	s.peers.compact()
}

func (s *Server) teardown(c *conn) {
	if err := s.poll.Deregister(c.fd); err != nil {
		s.fail(err)
	}
	if err := s.sys.Close(c.fd); err != nil {
		s.logger.Debug("Error closing peer", "fd", c.fd, "error", err)
	}
	s.peers.remove(c)
	s.metrics.peerRemoved(c.reason)
	s.logger.Debug("Peer disconnected", "fd", c.fd, "reason", c.reason, "peers", s.peers.len())
}

func (s *Server) fail(err error) {
	s.logger.Warn("Poller error", "error", err)
	if s.err == nil {
		s.err = err
	}
}

func (s *Server) takeErr() error {
	err := s.err
	s.err = nil
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSystem, err)
}

// PopNext removes and returns the oldest delivered message.
func (s *Server) PopNext() (Message, bool) {
	return s.inbox.Pop()
}

// Feed injects server-authored input. p is framed like peer input; every
// completed line is queued to all connected peers and written on the next
// Update. Feed does not add to the inbox.
func (s *Server) Feed(p []byte) error {
	if s.listenFd < 0 {
		return ErrNotStarted
	}
	s.err = nil
	_, _ = s.feed.Write(p)
	for {
		m, ok := s.feed.Next()
		if !ok {
			break
		}
		s.broadcast(nil, m.Payload)
	}
	return s.takeErr()
}

// GetListenDescriptor returns the listening socket, or -1.
func (s *Server) GetListenDescriptor() int {
	return s.listenFd
}

// GetDescriptor returns the poller's descriptor, or -1. An enclosing event
// loop can poll it for input to learn when Update has work to do.
func (s *Server) GetDescriptor() int {
	if s.poll == nil {
		return -1
	}
	return s.poll.Fd()
}

// GetEvents reports EventInput while listening and EventOutput while any
// peer has queued output.
func (s *Server) GetEvents() Events {
	if s.listenFd < 0 {
		return 0
	}
	ev := EventInput
	for _, c := range s.peers.slots {
		if c != nil && c.out.Len() > 0 {
			ev |= EventOutput
			break
		}
	}
	return ev
}

// Port returns the bound port, or 0 when not listening.
func (s *Server) Port() int {
	if s.listenFd < 0 {
		return 0
	}
	return boundPort(s.listenFd)
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	return s.peers.len()
}

// InboxLen returns the number of messages waiting for PopNext.
func (s *Server) InboxLen() int {
	return s.inbox.Len()
}

// Close disconnects every peer and releases the listener and poller.
// Messages already in the inbox remain available to PopNext. Close is
// idempotent; the server may Listen again afterwards.
func (s *Server) Close() error {
	if s.listenFd < 0 {
		return nil
	}

	var errs []error
	s.peers.each(func(c *conn) {
		if err := s.poll.Deregister(c.fd); err != nil {
			errs = append(errs, err)
		}
		if err := s.sys.Close(c.fd); err != nil {
			errs = append(errs, err)
		}
		s.peers.remove(c)
		s.metrics.peerRemoved(reasonShutdown)
	})
	s.peers.compact()
	s.metrics.setBacklog(0)

	if err := s.poll.Deregister(s.listenFd); err != nil {
		errs = append(errs, err)
	}
	if err := s.poll.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(s.listenFd); err != nil {
		errs = append(errs, err)
	}
	s.poll = nil
	s.listenFd = -1
	s.feed.Reset()
	s.logger.Info("Chat relay closed")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}
	return nil
}
