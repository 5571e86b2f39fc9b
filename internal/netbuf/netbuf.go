// Package netbuf implements a chunked byte queue with a read cursor,
// the packet assembly buffer the reactor appends inbound bytes into.
package netbuf

// Buffer is an ordered sequence of byte chunks plus a read offset into
// the head chunk. It never copies a chunk on Append; Peek never
// mutates state; Pop advances the cursor and releases fully-consumed
// head chunks.
type Buffer struct {
	chunks [][]byte
	offset int
	length int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append adds a chunk to the tail of the queue. The chunk is retained
// by reference, not copied.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.length += len(chunk)
}

// Len returns the total number of unconsumed bytes across all chunks.
func (b *Buffer) Len() int {
	return b.length
}

// Peek returns the next n bytes without consuming them. The returned
// slice may span multiple chunks and is always a fresh copy in that
// case, but is a direct subslice when it fits in the head chunk. ok
// is false if fewer than n bytes are buffered.
func (b *Buffer) Peek(n int) (out []byte, ok bool) {
	if n < 0 || n > b.length {
		return nil, false
	}
	if n == 0 {
		return []byte{}, true
	}
	if head := b.chunks[0]; len(head)-b.offset >= n {
		return head[b.offset : b.offset+n], true
	}
	out = make([]byte, 0, n)
	remaining := n
	off := b.offset
	for _, c := range b.chunks {
		avail := len(c) - off
		if avail <= 0 {
			off = 0
			continue
		}
		take := avail
		if take > remaining {
			take = remaining
		}
		out = append(out, c[off:off+take]...)
		remaining -= take
		off = 0
		if remaining == 0 {
			break
		}
	}
	return out, true
}

// Pop consumes and returns the next n bytes, releasing any head chunks
// fully consumed in the process. ok is false if fewer than n bytes are
// buffered, in which case nothing is consumed.
func (b *Buffer) Pop(n int) (out []byte, ok bool) {
	if n < 0 || n > b.length {
		return nil, false
	}
	if n == 0 {
		return []byte{}, true
	}
	if stolen, ok := b.popExactHead(n); ok {
		return stolen, true
	}
	out = make([]byte, 0, n)
	remaining := n
	for remaining > 0 {
		head := b.chunks[0]
		avail := len(head) - b.offset
		take := avail
		if take > remaining {
			take = remaining
		}
		out = append(out, head[b.offset:b.offset+take]...)
		b.offset += take
		remaining -= take
		b.length -= take
		if b.offset == len(head) {
			b.releaseHead()
		}
	}
	return out, true
}

// popExactHead is Pop's fast path: it returns true and steals the head
// chunk by reference, without copying, when the caller's request is
// exactly the whole head chunk and the read offset is 0. This is the
// zero-copy path for large row payloads; the returned slice is the
// original appended chunk, handed off, not independently owned memory.
func (b *Buffer) popExactHead(n int) ([]byte, bool) {
	if len(b.chunks) == 0 || b.offset != 0 {
		return nil, false
	}
	head := b.chunks[0]
	if len(head) != n {
		return nil, false
	}
	b.length -= len(head)
	b.releaseHead()
	return head, true
}

func (b *Buffer) releaseHead() {
	b.chunks = b.chunks[1:]
	b.offset = 0
}
