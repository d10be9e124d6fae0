// Package chat defines the error codes returned by the relay and its peers.
package chat

import "errors"

var (
	// ErrNotStarted is returned by Update and Feed before Listen succeeded.
	ErrNotStarted = errors.New("chat: not started")
	// ErrAlreadyStarted is returned by a second Listen on the same server.
	ErrAlreadyStarted = errors.New("chat: already started")
	// ErrPortBusy is returned by Listen when the port is already bound.
	ErrPortBusy = errors.New("chat: port is busy")
	// ErrSystem wraps socket and multiplexer failures.
	ErrSystem = errors.New("chat: system error")
	// ErrTimeout is returned by Update when nothing became ready in time.
	ErrTimeout = errors.New("chat: timeout")

	// ErrWouldBlock is the result of a non-blocking descriptor operation that
	// cannot make progress right now. It never escapes the public API; writers
	// handed to Backlog.Flush report it to stop the flush without failing.
	ErrWouldBlock = errors.New("chat: operation would block")
)
