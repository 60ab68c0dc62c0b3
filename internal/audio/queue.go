// Package audio holds the PCM plumbing shared by capture and playback:
// the FIFO byte queue, sample conversions and simple file-backed sources
// and sinks.
package audio

// ByteQueue is an ordered byte buffer. Bytes leave in the order they were
// appended. It is not safe for concurrent use; owners guard it with their
// own lock.
type ByteQueue struct {
	buf  []byte
	head int
}

// NewByteQueue returns an empty queue with room for capacity bytes.
func NewByteQueue(capacity int) *ByteQueue {
	return &ByteQueue{buf: make([]byte, 0, capacity)}
}

// Put appends p to the tail of the queue.
func (q *ByteQueue) Put(p []byte) {
	if len(p) == 0 {
		return
	}
	q.compact(len(p))
	q.buf = append(q.buf, p...)
}

// Take removes and returns up to n bytes from the head of the queue.
// The returned slice is owned by the caller.
func (q *ByteQueue) Take(n int) []byte {
	out := q.Peek(n)
	q.head += len(out)
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return out
}

// Peek returns a copy of up to n bytes from the head without removing them.
func (q *ByteQueue) Peek(n int) []byte {
	if n <= 0 {
		return nil
	}
	avail := len(q.buf) - q.head
	if n > avail {
		n = avail
	}
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, q.buf[q.head:q.head+n])
	return out
}

// Discard drops up to n bytes from the head and reports how many were dropped.
func (q *ByteQueue) Discard(n int) int {
	avail := len(q.buf) - q.head
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return 0
	}
	q.head += n
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return n
}

// Clear empties the queue and returns the number of bytes dropped.
func (q *ByteQueue) Clear() int {
	n := len(q.buf) - q.head
	q.buf = q.buf[:0]
	q.head = 0
	return n
}

// Len returns the number of buffered bytes.
func (q *ByteQueue) Len() int {
	return len(q.buf) - q.head
}

// compact moves the live region to the front when the consumed prefix is
// larger than what is left, so a long-lived queue does not keep growing.
func (q *ByteQueue) compact(incoming int) {
	if q.head == 0 {
		return
	}
	live := len(q.buf) - q.head
	if q.head < live && cap(q.buf)-len(q.buf) >= incoming {
		return
	}
	copy(q.buf, q.buf[q.head:])
	q.buf = q.buf[:live]
	q.head = 0
}
