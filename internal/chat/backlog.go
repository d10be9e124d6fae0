package chat

import "errors"

// maxIdleBacklog bounds the allocation kept by a drained backlog.
const maxIdleBacklog = 64 << 10

// Backlog holds bytes queued for a descriptor but not yet written. There is
// no upper bound on its size.
type Backlog struct {
	buf []byte
}

// Append queues payload as one frame, adding the terminator.
func (b *Backlog) Append(payload []byte) {
	b.buf = append(b.buf, payload...)
	b.buf = append(b.buf, '\n')
}

// Len returns the number of queued bytes.
func (b *Backlog) Len() int {
	return len(b.buf)
}

// Bytes returns the queued bytes. The slice is only valid until the next
// mutation of the backlog.
func (b *Backlog) Bytes() []byte {
	return b.buf
}

// Flush hands the queued bytes to write until the backlog is empty or write
// reports ErrWouldBlock. Written prefixes are removed and the unsent suffix
// moves to the head of the buffer. Any other error from write is returned
// with the backlog holding exactly the bytes that were not written.
func (b *Backlog) Flush(write func([]byte) (int, error)) (int, error) {
	total := 0
	for len(b.buf) > 0 {
		n, err := write(b.buf)
		if n > 0 {
			total += n
			b.consume(n)
		}
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func (b *Backlog) consume(n int) {
	if n >= len(b.buf) {
		b.Reset()
		return
	}
	remaining := copy(b.buf, b.buf[n:])
	b.buf = b.buf[:remaining]
}

// Reset empties the backlog.
func (b *Backlog) Reset() {
	if cap(b.buf) > maxIdleBacklog {
		b.buf = nil
		return
	}
	b.buf = b.buf[:0]
}
