// Package poller abstracts OS readiness notification behind a small
// register/modify/wait/deregister interface so the chat reactor does not
// depend on a particular facility.
//
// Implementations may be edge- or level-triggered. Callers must drain every
// ready descriptor until it would block before waiting again.
package poller

import (
	"errors"
	"time"
)

// Interest is the set of readiness conditions a descriptor is watched for.
type Interest uint32

const (
	// Readable requests notification when input (or a pending accept) is available.
	Readable Interest = 1 << iota
	// Writable requests notification when the send buffer has space.
	Writable
)

// Has reports whether every bit of other is set in i.
func (i Interest) Has(other Interest) bool {
	return i&other == other
}

// String returns a compact representation such as "rw".
func (i Interest) String() string {
	s := ""
	if i.Has(Readable) {
		s += "r"
	}
	if i.Has(Writable) {
		s += "w"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Event describes the readiness reported for one descriptor.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Hangup is set when the peer closed or the descriptor is in an error
	// state. Readable is also set in that case so the read path observes it.
	Hangup bool
}

// ErrClosed is returned by operations on a poller after Close.
var ErrClosed = errors.New("poller: closed")

// Poller is the readiness-notification capability used by the reactor.
type Poller interface {
	// Register starts watching fd for the given interest.
	Register(fd int, in Interest) error
	// Modify replaces the interest set of an already registered fd.
	Modify(fd int, in Interest) error
	// Deregister stops watching fd. It must be called before fd is closed.
	Deregister(fd int) error
	// Wait blocks up to timeout (negative blocks indefinitely) and fills
	// events, returning how many entries are valid.
	Wait(timeout time.Duration, events []Event) (int, error)
	// Fd returns the poller's own descriptor, or -1 if it has none.
	Fd() int
	// Close releases the poller.
	Close() error
}
