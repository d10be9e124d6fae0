package peer_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/peer"
	"github.com/Tyrowin/linechat/internal/testutil"
)

func startRelay(t *testing.T) *chat.Server {
	t.Helper()
	srv := chat.New(chat.WithLogger(testutil.QuietLogger()))
	if err := srv.Listen(0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func connect(t *testing.T, srv *chat.Server) *peer.Client {
	t.Helper()
	c := peer.New(peer.WithLogger(testutil.QuietLogger()))
	if err := c.Connect(fmt.Sprintf("127.0.0.1:%d", srv.Port())); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// network drives the relay and all clients in turn from the test goroutine.
type network struct {
	srv     *chat.Server
	clients []*peer.Client
}

func (n *network) Update(float64) error {
	if err := n.srv.Update(0.01); err != nil && !errors.Is(err, chat.ErrTimeout) {
		return err
	}
	for _, c := range n.clients {
		if err := c.Update(0); err != nil && !errors.Is(err, chat.ErrTimeout) {
			return err
		}
	}
	return nil
}

func TestClientLifecycleErrors(t *testing.T) {
	c := peer.New(peer.WithLogger(testutil.QuietLogger()))

	if err := c.Update(0.01); !errors.Is(err, chat.ErrNotStarted) {
		t.Errorf("Update before Connect = %v, want ErrNotStarted", err)
	}
	if err := c.Feed([]byte("x\n")); !errors.Is(err, chat.ErrNotStarted) {
		t.Errorf("Feed before Connect = %v, want ErrNotStarted", err)
	}
	if c.GetEvents() != 0 || c.GetDescriptor() != -1 {
		t.Error("Unconnected client should report no events and no descriptor")
	}

	for _, addr := range []string{"no-port-here", "127.0.0.1", "[::1]:80"} {
		if err := c.Connect(addr); !errors.Is(err, peer.ErrNoAddr) {
			t.Errorf("Connect(%q) = %v, want ErrNoAddr", addr, err)
		}
	}

	srv := startRelay(t)
	c = connect(t, srv)
	if err := c.Connect(fmt.Sprintf("127.0.0.1:%d", srv.Port())); !errors.Is(err, chat.ErrAlreadyStarted) {
		t.Errorf("second Connect = %v, want ErrAlreadyStarted", err)
	}
}

func TestClientsExchangeMessages(t *testing.T) {
	srv := startRelay(t)
	alice := connect(t, srv)
	bob := connect(t, srv)
	net := &network{srv: srv, clients: []*peer.Client{alice, bob}}
	testutil.PumpUntil(t, net, func() bool { return srv.PeerCount() == 2 })

	if err := alice.Feed([]byte("hello\nwor")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := alice.Feed([]byte("ld\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	var got []string
	testutil.PumpUntil(t, net, func() bool {
		for {
			m, ok := bob.PopNext()
			if !ok {
				break
			}
			got = append(got, m.String())
		}
		return len(got) == 2
	})

	if got[0] != "hello" || got[1] != "world" {
		t.Fatalf("Expected [hello world], got %q", got)
	}
	if m, ok := alice.PopNext(); ok {
		t.Errorf("Sender received its own message %q", m.String())
	}
	if alice.GetEvents().Has(chat.EventOutput) {
		t.Error("Sender backlog should be drained")
	}
}

func TestClientHoldsPartialLine(t *testing.T) {
	srv := startRelay(t)
	c := connect(t, srv)

	if err := c.Feed([]byte("no newline yet")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if c.GetEvents() != chat.EventInput {
		t.Fatalf("Partial line must not be queued, events = %v", c.GetEvents())
	}
	if err := c.Feed([]byte("\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !c.GetEvents().Has(chat.EventOutput) {
		t.Fatal("Completed line should be queued")
	}
}

func TestClientSeesRelayShutdown(t *testing.T) {
	srv := startRelay(t)
	c := connect(t, srv)
	testutil.PumpUntil(t, srv, func() bool { return srv.PeerCount() == 1 }, chat.ErrTimeout)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.Now().Add(testutil.DefaultTimeout)
	for {
		err := c.Update(0.05)
		if errors.Is(err, peer.ErrClosed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Client never observed the shutdown, last error %v", err)
		}
	}
	if c.GetDescriptor() != -1 {
		t.Error("Closed client kept its descriptor")
	}
	if err := c.Update(0); !errors.Is(err, peer.ErrClosed) {
		t.Errorf("Update after close = %v, want ErrClosed", err)
	}
}
