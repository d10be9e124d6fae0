// Package gateway defines shared message payload types and utility helpers that
// are reused across session and registry logic.
package gateway

import (
	"errors"
	"strings"
)

// Message represents the JSON message format exchanged with WebSocket clients.
type Message struct {
	Content string `json:"content"`
}

// errMultiline is returned for content the line protocol cannot carry.
var errMultiline = errors.New("content contains a newline")

// validateContent rejects content that would split into several frames.
func validateContent(content string) error {
	if strings.ContainsAny(content, "\n") {
		return errMultiline
	}
	return nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
