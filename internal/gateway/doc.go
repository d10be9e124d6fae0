// Package gateway bridges WebSocket clients onto a line-chat relay.
//
// Every WebSocket session dials the relay over TCP and becomes an ordinary
// peer: JSON messages from the browser are written as newline-terminated
// frames, and frames from the relay are sent back as JSON messages. The relay
// does the fan-out; the gateway only translates and enforces per-session
// limits. The implementation is organized into files for sessions, the
// session registry, origin checks, rate limiting, handlers and routing.
package gateway
