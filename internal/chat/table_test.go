package chat

import "testing"

func tableFds(tb *table) []int {
	var fds []int
	tb.each(func(c *conn) { fds = append(fds, c.fd) })
	return fds
}

func TestTableKeepsInsertionOrder(t *testing.T) {
	tb := newTable()
	conns := make(map[int]*conn)
	for _, fd := range []int{7, 3, 9, 4, 12} {
		c := newConn(fd)
		conns[fd] = c
		tb.add(c)
	}

	tb.remove(conns[3])
	tb.remove(conns[4])
	tb.remove(conns[4])

	if tb.len() != 3 {
		t.Fatalf("Expected 3 conns, got %d", tb.len())
	}
	if _, ok := tb.get(3); ok {
		t.Error("Removed fd still present")
	}

	want := []int{7, 9, 12}
	for _, check := range []func(){func() {}, tb.compact} {
		check()
		got := tableFds(tb)
		if len(got) != len(want) {
			t.Fatalf("Expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Expected %v, got %v", want, got)
			}
		}
	}

	c := newConn(3)
	tb.add(c)
	if got := tableFds(tb); got[len(got)-1] != 3 {
		t.Errorf("Reused fd should be appended last, got %v", got)
	}
	if c.slot != 3 {
		t.Errorf("Expected slot 3 after compaction, got %d", c.slot)
	}
}

func TestTableRemoveDuringEach(t *testing.T) {
	tb := newTable()
	for fd := 1; fd <= 5; fd++ {
		tb.add(newConn(fd))
	}
	tb.each(func(c *conn) {
		if c.fd%2 == 0 {
			tb.remove(c)
		}
	})
	tb.compact()
	got := tableFds(tb)
	if len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 5 {
		t.Fatalf("Expected [1 3 5], got %v", got)
	}
}

func TestTableIgnoresStaleConn(t *testing.T) {
	tb := newTable()
	old := newConn(5)
	tb.add(old)
	tb.remove(old)
	tb.compact()

	fresh := newConn(5)
	tb.add(fresh)
	tb.remove(old)
	if c, ok := tb.get(5); !ok || c != fresh {
		t.Fatal("Removing a stale conn evicted the new owner of the fd")
	}
}
