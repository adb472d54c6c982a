package screenrec

import (
	"sync"
)

// RecordingState is the state of a recording session.
type RecordingState int32

const (
	StateNotStarted RecordingState = iota // Session created, nothing captured
	StateStarted                          // Capturing and encoding
	StatePaused                           // Capture suspended, buffers kept
	StateStopped                          // Draining queues and flushing codecs
	StateFinished                         // Output finalized
)

func (s RecordingState) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateStarted:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// lifecycle owns the session state. Every transition wakes the pause
// waiters, closes the current change channel and wakes every registered
// queue so blocked loops re-check the state.
type lifecycle struct {
	mu        sync.Mutex
	state     RecordingState
	notPaused *sync.Cond
	changed   chan struct{}
	queues    []*FrameQueue
	aborted   bool // A fatal error is unwinding the session
}

func newLifecycle() *lifecycle {
	l := &lifecycle{
		state:   StateNotStarted,
		changed: make(chan struct{}),
	}
	l.notPaused = sync.NewCond(&l.mu)
	return l
}

// State returns the current state.
func (l *lifecycle) State() RecordingState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Changed returns a channel closed on the next state transition.
func (l *lifecycle) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// watch registers a queue to be woken on every transition.
func (l *lifecycle) watch(q *FrameQueue) {
	l.mu.Lock()
	l.queues = append(l.queues, q)
	l.mu.Unlock()
}

// waitWhilePaused blocks until the state is not Paused, or the session
// is aborted, and returns the state.
func (l *lifecycle) waitWhilePaused() RecordingState {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.state == StatePaused && !l.aborted {
		l.notPaused.Wait()
	}
	return l.state
}

// Aborted reports whether abort was called.
func (l *lifecycle) Aborted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aborted
}

// abort releases every waiter without changing the state. Loops check
// Aborted after waking and unwind.
func (l *lifecycle) abort() {
	l.mu.Lock()
	if l.aborted {
		l.mu.Unlock()
		return
	}
	l.aborted = true
	l.notPaused.Broadcast()
	close(l.changed)
	l.changed = make(chan struct{})
	queues := append([]*FrameQueue(nil), l.queues...)
	l.mu.Unlock()

	for _, q := range queues {
		q.Abort()
	}
}

// start moves NotStarted to Started.
func (l *lifecycle) start() error {
	return l.transition(func(s RecordingState) (RecordingState, error) {
		switch s {
		case StateNotStarted:
			return StateStarted, nil
		case StateStarted:
			return s, ErrAlreadyRecording
		case StatePaused:
			return s, ErrAlreadyPaused
		default:
			return s, ErrAlreadyStopped
		}
	})
}

func (l *lifecycle) pause() error {
	return l.transition(func(s RecordingState) (RecordingState, error) {
		switch s {
		case StateStarted:
			return StatePaused, nil
		case StateNotStarted:
			return s, ErrNothingToPause
		case StatePaused:
			return s, ErrAlreadyPaused
		default:
			return s, ErrAlreadyStopped
		}
	})
}

func (l *lifecycle) resume() error {
	return l.transition(func(s RecordingState) (RecordingState, error) {
		switch s {
		case StatePaused:
			return StateStarted, nil
		case StateNotStarted:
			return s, ErrNothingToResume
		case StateStarted:
			return s, ErrAlreadyRecording
		default:
			return s, ErrAlreadyStopped
		}
	})
}

// stop moves Started or Paused to Stopped, and NotStarted straight to
// Finished. It reports whether the session finished without draining.
func (l *lifecycle) stop() (finished bool, err error) {
	err = l.transition(func(s RecordingState) (RecordingState, error) {
		switch s {
		case StateNotStarted:
			finished = true
			return StateFinished, nil
		case StateStarted, StatePaused:
			return StateStopped, nil
		default:
			return s, ErrAlreadyStopped
		}
	})
	return finished, err
}

// finish is called once drain and flush are complete.
func (l *lifecycle) finish() {
	_ = l.transition(func(RecordingState) (RecordingState, error) {
		return StateFinished, nil
	})
}

func (l *lifecycle) transition(next func(RecordingState) (RecordingState, error)) error {
	l.mu.Lock()
	s, err := next(l.state)
	if err != nil || s == l.state {
		l.mu.Unlock()
		return err
	}
	l.state = s
	l.notPaused.Broadcast()
	close(l.changed)
	l.changed = make(chan struct{})
	queues := append([]*FrameQueue(nil), l.queues...)
	l.mu.Unlock()

	// The state is already published, so a waiter that checks it under
	// the queue lock either sees the new state or is parked in Wait.
	for _, q := range queues {
		q.Wake()
	}
	return nil
}
