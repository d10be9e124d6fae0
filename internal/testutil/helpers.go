// Package testutil provides common helpers shared by the linechat tests.
//
// It covers dialing the relay over loopback, reading and asserting
// line-protocol traffic with deadlines, driving a single-threaded relay from a
// test, and the WebSocket helpers used by the gateway tests. It deliberately
// does not import the packages under test so any of them can use it.
package testutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every blocking helper.
const DefaultTimeout = 2 * time.Second

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Updater is anything driven by repeated Update calls.
type Updater interface {
	Update(timeoutSeconds float64) error
}

// PumpUntil calls Update until cond holds. Errors matching one of ignore are
// tolerated; any other error, or DefaultTimeout elapsing, fails the test.
func PumpUntil(t *testing.T, u Updater, cond func() bool, ignore ...error) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met before deadline")
		}
		if err := u.Update(0.05); err != nil && !matchesAny(err, ignore) {
			t.Fatalf("Update failed: %v", err)
		}
	}
}

// RunInBackground drives u from its own goroutine until the returned stop
// function is called. Only the returned goroutine may touch u meanwhile.
func RunInBackground(u Updater) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			default:
			}
			_ = u.Update(0.02)
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// DialTCP connects to the relay on the loopback interface.
func DialTCP(t *testing.T, port int) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to connect to relay on port %d: %v", port, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// WriteString writes s to conn or fails the test.
func WriteString(t *testing.T, conn net.Conn, s string) {
	t.Helper()
	if _, err := io.WriteString(conn, s); err != nil {
		t.Fatalf("Failed to write %q: %v", s, err)
	}
}

// ReadExactly reads exactly n bytes from conn within DefaultTimeout.
func ReadExactly(t *testing.T, conn net.Conn, n int) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Failed to read %d bytes: %v", n, err)
	}
	return string(buf)
}

// ReadLine reads one newline-terminated line, terminator included.
func ReadLine(t *testing.T, r *bufio.Reader, conn net.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read line: %v", err)
	}
	return line
}

// ExpectNoData fails the test if conn yields any byte within wait.
func ExpectNoData(t *testing.T, conn net.Conn, wait time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n > 0 {
		t.Fatalf("Expected no data, got %q", buf[:n])
	}
	var netErr net.Error
	if err == nil || !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Expected read timeout, got %v", err)
	}
}

// ExpectClosed fails the test unless conn reaches end-of-stream within
// DefaultTimeout.
func ExpectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	buf := make([]byte, 64)
	for {
		_, err := conn.Read(buf)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("Connection still open")
			}
			return
		}
	}
}

// ConnectWebSocket creates a WebSocket connection to the specified URL
// with the given Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendMessage sends a JSON message with a "content" field.
func SendMessage(conn *websocket.Conn, content string) error {
	message := map[string]string{"content": content}
	return conn.WriteJSON(message)
}

// ReceiveContent reads a JSON message and returns its "content" field.
func ReceiveContent(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var message map[string]interface{}
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	content, ok := message["content"].(string)
	if !ok {
		t.Fatalf("Message has no string content: %v", message)
	}
	return content
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
