package screenrec

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// FrameQueue is a bounded single-producer/single-consumer byte ring
// holding converted frames between a capture loop and the mux loop.
//
// Put and Get block on the not-full and not-empty conditions while the
// session is active. A lifecycle transition wakes both conditions so a
// blocked side re-checks the state instead of stalling a pause or stop.
type FrameQueue struct {
	name  string
	index int
	state func() RecordingState

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buf     []byte
	head    int // Read offset
	size    int // Occupied bytes
	peak    int // Highest occupancy observed
	frames  int // Capacity in units, used by Reserve
	closed  bool
	aborted bool
}

// NewFrameQueue creates a queue holding frames units of unitSize bytes.
// state reports the session state consulted by the blocking predicates.
func NewFrameQueue(name string, frames, unitSize int, state func() RecordingState) *FrameQueue {
	if frames <= 0 {
		frames = 30
	}
	q := &FrameQueue{
		name:   name,
		state:  state,
		buf:    make([]byte, frames*unitSize),
		frames: frames,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Name returns the queue name.
func (q *FrameQueue) Name() string { return q.name }

// active reports whether a blocked side should keep waiting in state s.
// Stopped counts as active: the producer is finishing its decoder flush
// and the consumer is draining.
func active(s RecordingState) bool {
	return s == StateStarted || s == StateStopped
}

// Put copies p into the queue. It blocks while there is not enough free
// space and the session is active. It returns false without writing when
// the session is paused, so the caller can wait out the pause and retry.
func (q *FrameQueue) Put(p []byte) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(p) > len(q.buf) {
		return false, newError(ErrorKindQueueWrite, "put "+q.name,
			fmt.Errorf("%d bytes exceed capacity %d", len(p), len(q.buf)))
	}
	for {
		if q.aborted {
			return false, ErrQueueAborted
		}
		if q.closed {
			return false, newError(ErrorKindQueueWrite, "put "+q.name, io.ErrClosedPipe)
		}
		if len(q.buf)-q.size >= len(p) {
			break
		}
		if !active(q.state()) {
			return false, nil
		}
		q.notFull.Wait()
	}

	tail := (q.head + q.size) % len(q.buf)
	n := copy(q.buf[tail:], p)
	copy(q.buf, p[n:])
	q.size += len(p)
	if q.size > q.peak {
		q.peak = q.size
	}
	q.notEmpty.Signal()
	return true, nil
}

// Get fills p with exactly len(p) bytes. It blocks while fewer bytes are
// queued, the write side is open and the session is active.
//
// It returns 0 when the session is paused. Once the write side is closed
// it returns the remaining short tail, then io.EOF.
func (q *FrameQueue) Get(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.aborted {
			return 0, ErrQueueAborted
		}
		if q.size >= len(p) {
			break
		}
		if q.closed {
			if q.size == 0 {
				return 0, io.EOF
			}
			p = p[:q.size]
			break
		}
		if !active(q.state()) {
			return 0, nil
		}
		q.notEmpty.Wait()
	}

	n := copy(p, q.buf[q.head:min(q.head+len(p), len(q.buf))])
	copy(p[n:], q.buf[:len(p)-n])
	q.head = (q.head + len(p)) % len(q.buf)
	q.size -= len(p)
	if q.size == 0 {
		q.head = 0
	}
	q.notFull.Signal()
	return len(p), nil
}

// Reserve grows the queue so it holds its unit count at the new unit size.
// Queued bytes are kept in order.
func (q *FrameQueue) Reserve(unitSize int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	want := q.frames * unitSize
	if want <= len(q.buf) {
		return
	}
	grown := make([]byte, want)
	n := copy(grown, q.buf[q.head:min(q.head+q.size, len(q.buf))])
	copy(grown[n:], q.buf[:q.size-n])
	q.buf = grown
	q.head = 0
	q.notFull.Broadcast()
}

// CloseWrite marks the producer as finished. Queued data stays readable.
func (q *FrameQueue) CloseWrite() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

// Abort fails every pending and future operation.
func (q *FrameQueue) Abort() {
	q.mu.Lock()
	q.aborted = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

// Wake makes blocked callers re-check their predicates.
func (q *FrameQueue) Wake() {
	q.mu.Lock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

// Len returns the number of queued bytes.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity in bytes.
func (q *FrameQueue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Peak returns the highest occupancy seen so far.
func (q *FrameQueue) Peak() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peak
}

// queuesDrained reports whether every queue is closed and empty. The
// locks are taken together, in index order, so no queue can refill
// between the checks.
func queuesDrained(queues ...*FrameQueue) bool {
	ordered := append([]*FrameQueue(nil), queues...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })
	for _, q := range ordered {
		q.mu.Lock()
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ordered[i].mu.Unlock()
		}
	}()
	for _, q := range ordered {
		if !q.closed || q.size > 0 {
			return false
		}
	}
	return true
}
