package chat

// compactThreshold is how many popped slots the inbox tolerates before
// sliding live entries back to the front.
const compactThreshold = 64

// Inbox is the relay-wide FIFO of delivered messages, in arrival order
// across all peers.
type Inbox struct {
	items []Message
	head  int
}

// Push appends m.
func (q *Inbox) Push(m Message) {
	q.items = append(q.items, m)
}

// Pop removes and returns the oldest message.
func (q *Inbox) Pop() (Message, bool) {
	if q.head == len(q.items) {
		return Message{}, false
	}
	m := q.items[q.head]
	q.items[q.head] = Message{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && 2*q.head >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return m, true
}

// Len returns the number of messages waiting.
func (q *Inbox) Len() int {
	return len(q.items) - q.head
}
