package screenrec

import (
	"sync/atomic"
	"time"
)

// streamStats are the per-stream counters of one session. Capture
// counters are written by the capture loop, the rest by the mux loop.
type streamStats struct {
	captured     atomic.Int64 // Converted frames enqueued
	discarded    atomic.Int64 // Packets dropped on stream index mismatch
	readErrors   atomic.Int64
	decodeErrors atomic.Int64
	submitted    atomic.Int64 // Units handed to the encoder
	unflushed    atomic.Int64 // Units the encoder dropped at end of stream
	written      atomic.Int64 // Packets written to the container
	bytes        atomic.Int64 // Payload bytes written
	frameSize    atomic.Int64 // Current nominal audio samples per frame
}

// StreamStatus is a snapshot of one stream.
type StreamStatus struct {
	Name          string
	Kind          MediaKind
	Captured      int64
	Discarded     int64
	ReadErrors    int64
	DecodeErrors  int64
	Encoded       int64
	Unflushed     int64
	Written       int64
	Bytes         int64
	FrameSize     int // Audio samples per encoder frame
	QueueBytes    int
	QueueCapacity int
	QueuePeak     int
}

// Status is a snapshot of a recording session.
type Status struct {
	Session    string
	State      RecordingState
	OutputPath string
	Started    time.Time // Zero until Start
	Streams    []StreamStatus
	Fatal      bool
	Err        error
}

func (st *streamStats) snapshot(name string, kind MediaKind, q *FrameQueue) StreamStatus {
	s := StreamStatus{
		Name:         name,
		Kind:         kind,
		Captured:     st.captured.Load(),
		Discarded:    st.discarded.Load(),
		ReadErrors:   st.readErrors.Load(),
		DecodeErrors: st.decodeErrors.Load(),
		Encoded:      st.submitted.Load(),
		Unflushed:    st.unflushed.Load(),
		Written:      st.written.Load(),
		Bytes:        st.bytes.Load(),
		FrameSize:    int(st.frameSize.Load()),
	}
	if q != nil {
		s.QueueBytes = q.Len()
		s.QueueCapacity = q.Cap()
		s.QueuePeak = q.Peak()
	}
	return s
}
