// Package peer implements a conforming line-chat peer: a single-socket client
// that frames its input and output the same way the relay does and is driven
// by repeated Update calls, like the relay itself.
package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sys/unix"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/poller"
)

var (
	// ErrNoAddr is returned by Connect when the address cannot be parsed or
	// resolved to an IPv4 endpoint.
	ErrNoAddr = errors.New("peer: no such address")
	// ErrClosed is returned by Update once the relay closed the connection.
	ErrClosed = errors.New("peer: connection closed")
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is one connection to a relay. Like the relay it is single-threaded:
// all methods must be called from one goroutine.
type Client struct {
	fd     int
	closed bool

	in    chat.Assembler
	feed  chat.Assembler
	out   chat.Backlog
	inbox chat.Inbox

	logger *slog.Logger
}

// New creates an unconnected client.
func New(opts ...Option) *Client {
	c := &Client{
		fd:     -1,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a TCP connection to addr ("host:port"). An empty host means
// the local machine. The socket is switched to non-blocking mode once
// connected.
func (c *Client) Connect(addr string) error {
	if c.fd >= 0 {
		return chat.ErrAlreadyStarted
	}

	sa, err := resolve(addr)
	if err != nil {
		return err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return fmt.Errorf("%w: socket: %v", chat.ErrSystem, err)
	}
	for {
		err = unix.Connect(fd, sa)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("%w: connect %s: %v", chat.ErrSystem, addr, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("%w: set non-blocking: %v", chat.ErrSystem, err)
	}

	c.fd = fd
	c.closed = false
	c.logger.Debug("Connected to relay", "addr", addr, "fd", fd)
	return nil
}

func resolve(addr string) (*unix.SockaddrInet4, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAddr, err)
	}
	if tcpAddr.Port == 0 {
		return nil, fmt.Errorf("%w: %q has no port", ErrNoAddr, addr)
	}
	ip := net.IPv4(127, 0, 0, 1).To4()
	if tcpAddr.IP != nil {
		ip = tcpAddr.IP.To4()
		if ip == nil {
			return nil, fmt.Errorf("%w: %q is not IPv4", ErrNoAddr, addr)
		}
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	copy(sa.Addr[:], ip)
	return sa, nil
}

// Update waits up to timeoutSeconds for the socket to become readable (or
// writable, while output is queued), then receives every available frame
// and sends as much queued output as the socket accepts.
func (c *Client) Update(timeoutSeconds float64) error {
	if c.fd < 0 {
		if c.closed {
			return ErrClosed
		}
		return chat.ErrNotStarted
	}

	events := int16(unix.POLLIN)
	if c.out.Len() > 0 {
		events |= unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: events}}

	n, err := unix.Poll(fds, poller.Millis(poller.Seconds(timeoutSeconds)))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return chat.ErrTimeout
		}
		return fmt.Errorf("%w: poll: %v", chat.ErrSystem, err)
	}
	if n == 0 {
		return chat.ErrTimeout
	}

	revents := fds[0].Revents
	open := true
	if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
		open = c.drain()
	}
	if open && revents&unix.POLLOUT != 0 {
		open = c.flush()
	}
	if !open {
		c.shutdown()
		return ErrClosed
	}
	return nil
}

// drain reads until the socket would block and reports whether it is
// still open.
func (c *Client) drain() bool {
	for {
		n, err := unix.Read(c.fd, c.in.Tail())
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return true
		case err != nil:
			c.logger.Debug("Error reading from relay", "error", err)
			return false
		case n == 0:
			return false
		}
		c.in.Commit(n)
		for {
			m, ok := c.in.Next()
			if !ok {
				break
			}
			c.inbox.Push(m)
		}
	}
}

func (c *Client) flush() bool {
	_, err := c.out.Flush(func(p []byte) (int, error) {
		for {
			n, err := unix.Write(c.fd, p)
			switch {
			case err == nil:
				return n, nil
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EAGAIN):
				return 0, chat.ErrWouldBlock
			default:
				return 0, err
			}
		}
	})
	if err != nil {
		c.logger.Debug("Error writing to relay", "error", err)
		return false
	}
	return true
}

func (c *Client) shutdown() {
	_ = unix.Close(c.fd)
	c.fd = -1
	c.closed = true
	c.in.Reset()
	c.out.Reset()
	c.logger.Debug("Relay connection closed")
}

// Feed queues raw input for sending. Only complete lines are queued; bytes
// after the last newline wait for their terminator.
func (c *Client) Feed(p []byte) error {
	if c.fd < 0 {
		return chat.ErrNotStarted
	}
	_, _ = c.feed.Write(p)
	for {
		m, ok := c.feed.Next()
		if !ok {
			return nil
		}
		c.out.Append(m.Payload)
	}
}

// PopNext removes and returns the oldest received message.
func (c *Client) PopNext() (chat.Message, bool) {
	return c.inbox.Pop()
}

// GetDescriptor returns the connected socket, or -1.
func (c *Client) GetDescriptor() int {
	return c.fd
}

// GetEvents reports EventInput while connected and EventOutput while sends
// are pending.
func (c *Client) GetEvents() chat.Events {
	if c.fd < 0 {
		return 0
	}
	ev := chat.EventInput
	if c.out.Len() > 0 {
		ev |= chat.EventOutput
	}
	return ev
}

// Close closes the connection. Received messages stay available.
func (c *Client) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	c.feed.Reset()
	c.out.Reset()
	if err != nil {
		return fmt.Errorf("%w: close: %v", chat.ErrSystem, err)
	}
	return nil
}
