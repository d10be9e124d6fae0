package chat

import "bytes"

const initialReadBufferSize = 1024

// Assembler accumulates raw stream bytes and frames newline-delimited
// messages out of them. The zero value is ready to use.
//
// Bytes after the last terminator stay buffered until a later read completes
// the frame. NUL bytes at the start of the unconsumed region are skipped
// instead of being framed.
type Assembler struct {
	buf   []byte
	start int
	end   int
}

// Tail returns the free space after the buffered bytes, growing the buffer
// when it is full. Callers read into it and then call Commit.
func (a *Assembler) Tail() []byte {
	if a.end == len(a.buf) {
		a.grow()
	}
	return a.buf[a.end:]
}

// Commit marks n bytes of the last Tail as filled.
func (a *Assembler) Commit(n int) {
	if n < 0 || a.end+n > len(a.buf) {
		panic("chat: assembler commit out of range")
	}
	a.end += n
}

// Write appends p to the buffer. It never fails.
func (a *Assembler) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n := copy(a.Tail(), p[written:])
		a.Commit(n)
		written += n
	}
	return written, nil
}

// grow makes room at the tail, first by sliding unconsumed bytes to the
// front and otherwise by doubling the capacity.
func (a *Assembler) grow() {
	if a.start > 0 {
		a.end = copy(a.buf, a.buf[a.start:a.end])
		a.start = 0
		if a.end < len(a.buf) {
			return
		}
	}
	size := 2 * len(a.buf)
	if size == 0 {
		size = initialReadBufferSize
	}
	buf := make([]byte, size)
	copy(buf, a.buf[:a.end])
	a.buf = buf
}

// Next returns the oldest complete frame, if any. The payload is a copy.
func (a *Assembler) Next() (Message, bool) {
	for a.start < a.end && a.buf[a.start] == 0 {
		a.start++
	}
	i := bytes.IndexByte(a.buf[a.start:a.end], '\n')
	if i < 0 {
		if a.start == a.end {
			a.start, a.end = 0, 0
		}
		return Message{}, false
	}

	payload := make([]byte, i)
	copy(payload, a.buf[a.start:a.start+i])
	a.start += i + 1
	if a.start == a.end {
		a.start, a.end = 0, 0
	}
	return Message{Payload: payload}, true
}

// Buffered returns the number of bytes not yet framed.
func (a *Assembler) Buffered() int {
	return a.end - a.start
}

// Cap returns the current buffer capacity.
func (a *Assembler) Cap() int {
	return len(a.buf)
}

// Reset drops all buffered bytes, keeping the allocation.
func (a *Assembler) Reset() {
	a.start, a.end = 0, 0
}
