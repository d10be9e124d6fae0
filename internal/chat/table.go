package chat

import "github.com/Tyrowin/linechat/internal/poller"

type connState uint8

const (
	connActive connState = iota
	connClosing
)

func (s connState) String() string {
	if s == connClosing {
		return "closing"
	}
	return "active"
}

// conn is one accepted peer and its buffering state. It is owned by the
// table and only touched from inside Update.
type conn struct {
	fd       int
	in       Assembler
	out      Backlog
	interest poller.Interest
	state    connState
	reason   string
	slot     int
}

func newConn(fd int) *conn {
	return &conn{
		fd:       fd,
		interest: poller.Readable,
		state:    connActive,
	}
}

// table is the set of live peers keyed by descriptor. Iteration follows
// insertion order. Removal leaves a hole that compact squeezes out, so a
// single removal is O(1) and order survives.
type table struct {
	byFd  map[int]*conn
	slots []*conn
	holes int
}

func newTable() *table {
	return &table{byFd: make(map[int]*conn)}
}

func (t *table) add(c *conn) {
	c.slot = len(t.slots)
	t.slots = append(t.slots, c)
	t.byFd[c.fd] = c
}

func (t *table) get(fd int) (*conn, bool) {
	c, ok := t.byFd[fd]
	return c, ok
}

func (t *table) remove(c *conn) {
	if cur, ok := t.byFd[c.fd]; !ok || cur != c {
		return
	}
	delete(t.byFd, c.fd)
	t.slots[c.slot] = nil
	t.holes++
}

func (t *table) compact() {
	if t.holes == 0 {
		return
	}
	j := 0
	for _, c := range t.slots {
		if c == nil {
			continue
		}
		c.slot = j
		t.slots[j] = c
		j++
	}
	clear(t.slots[j:])
	t.slots = t.slots[:j]
	t.holes = 0
}

func (t *table) len() int {
	return len(t.byFd)
}

// each calls fn for every live conn in insertion order. fn may remove the
// conn it is given.
func (t *table) each(fn func(*conn)) {
	for _, c := range t.slots {
		if c != nil {
			fn(c)
		}
	}
}
