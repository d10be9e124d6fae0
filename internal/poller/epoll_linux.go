package poller

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Epoll is an edge-triggered Poller backed by epoll(7).
type Epoll struct {
	fd  int
	buf []unix.EpollEvent
	// registered mirrors the kernel's interest list so Modify/Deregister of an
	// unknown descriptor fail locally instead of desynchronising the two.
	registered map[int]Interest
}

// NewEpoll creates an epoll instance.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Epoll{
		fd:         fd,
		registered: make(map[int]Interest),
	}, nil
}

func epollMask(in Interest) uint32 {
	mask := uint32(unix.EPOLLET | unix.EPOLLRDHUP)
	if in.Has(Readable) {
		mask |= unix.EPOLLIN
	}
	if in.Has(Writable) {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// Register adds fd to the interest list.
func (e *Epoll) Register(fd int, in Interest) error {
	if e.fd < 0 {
		return ErrClosed
	}
	if _, ok := e.registered[fd]; ok {
		return fmt.Errorf("epoll: fd %d already registered", fd)
	}
	ev := unix.EpollEvent{Events: epollMask(in), Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	e.registered[fd] = in
	return nil
}

// Modify changes the interest of a registered fd. Re-arming with EPOLLOUT on an
// already writable socket produces a fresh edge on the next Wait.
func (e *Epoll) Modify(fd int, in Interest) error {
	if e.fd < 0 {
		return ErrClosed
	}
	if _, ok := e.registered[fd]; !ok {
		return fmt.Errorf("epoll: fd %d not registered", fd)
	}
	ev := unix.EpollEvent{Events: epollMask(in), Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod fd %d: %w", fd, err)
	}
	e.registered[fd] = in
	return nil
}

// Deregister removes fd from the interest list.
func (e *Epoll) Deregister(fd int) error {
	if e.fd < 0 {
		return ErrClosed
	}
	if _, ok := e.registered[fd]; !ok {
		return nil
	}
	delete(e.registered, fd)
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Registered reports the interest currently recorded for fd.
func (e *Epoll) Registered(fd int) (Interest, bool) {
	in, ok := e.registered[fd]
	return in, ok
}

// Wait blocks until at least one registered descriptor is ready or the
// timeout elapses. An interrupted wait reports zero events.
func (e *Epoll) Wait(timeout time.Duration, events []Event) (int, error) {
	if e.fd < 0 {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(e.buf) < len(events) {
		e.buf = make([]unix.EpollEvent, len(events))
	}
	buf := e.buf[:len(events)]

	n, err := unix.EpollWait(e.fd, buf, Millis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		raw := buf[i].Events
		hangup := raw&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0
		events[i] = Event{
			Fd:       int(buf[i].Fd),
			Readable: raw&unix.EPOLLIN != 0 || hangup,
			Writable: raw&unix.EPOLLOUT != 0,
			Hangup:   hangup,
		}
	}
	return n, nil
}

// Fd returns the epoll descriptor. It can itself be polled by an enclosing
// event loop; it becomes readable when Wait would return events.
func (e *Epoll) Fd() int {
	return e.fd
}

// Close releases the epoll descriptor. Registered descriptors are not closed.
func (e *Epoll) Close() error {
	if e.fd < 0 {
		return nil
	}
	err := unix.Close(e.fd)
	e.fd = -1
	e.registered = make(map[int]Interest)
	if err != nil {
		return fmt.Errorf("close epoll: %w", err)
	}
	return nil
}
