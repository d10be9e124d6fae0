// Package chat implements a single-threaded, multiplexed line-chat relay.
//
// A Server accepts many TCP peers on one goroutine, reassembles
// newline-delimited messages from partial reads, and relays every message to
// all other connected peers while coping with partial writes and disconnects
// without blocking. All state changes happen inside Update; the caller drives
// it in a loop and collects delivered messages with PopNext.
//
// The implementation is organized into small files for framing (assembler),
// outbound buffering (backlog), the delivered-message queue (inbox), the
// connection table, descriptor syscalls, metrics and the reactor itself.
package chat
