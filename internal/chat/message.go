package chat

// Message is one frame of the wire protocol with its terminator removed.
// A popped Message belongs to the caller; the relay keeps no reference to it.
type Message struct {
	Payload []byte
}

// Len returns the payload length in bytes.
func (m Message) Len() int {
	return len(m.Payload)
}

func (m Message) String() string {
	return string(m.Payload)
}

// Events is the readiness a relay (or peer) wants from an enclosing loop.
type Events uint8

const (
	// EventInput is set while the endpoint is able to receive.
	EventInput Events = 1 << iota
	// EventOutput is set while some outbound bytes are still queued.
	EventOutput
)

// Has reports whether every bit of other is set in e.
func (e Events) Has(other Events) bool {
	return e&other == other
}
