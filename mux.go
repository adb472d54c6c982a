package screenrec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// muxStream is the mux loop's view of one stream.
type muxStream struct {
	index int
	name  string
	kind  MediaKind
	queue *FrameQueue
	enc   Encoder
	encTB Rational // Time base of frame and packet timestamps from enc
	outTB Rational // Container time base
	stats *streamStats

	// unit is the number of bytes read per service step. The audio
	// converter may grow it from the capture goroutine.
	unit        atomic.Int64
	sampleBytes int // Bytes per interleaved sample, audio only
	frameSize   int // Frame size last applied to enc

	buf     []byte
	nextPTS int64     // Encoder time base PTS of the next unit
	drained bool      // Queue closed and empty, encoder flushed
	eos     bool      // Encoder returned io.EOF
	pending []*Packet // Encoded packets waiting to be interleaved
}

// setFrameSize updates the read granularity to samples per frame.
func (s *muxStream) setFrameSize(samples int) {
	s.stats.frameSize.Store(int64(samples))
	s.unit.Store(int64(samples * s.sampleBytes))
}

// muxLoop pulls units from the frame queues in timestamp order, encodes
// them and writes interleaved packets. It owns the encoders and the
// container writer.
type muxLoop struct {
	streams []*muxStream
	writer  ContainerWriter
	life    *lifecycle
	log     *logrus.Entry
}

func (m *muxLoop) queues() []*FrameQueue {
	qs := make([]*FrameQueue, len(m.streams))
	for i, s := range m.streams {
		qs[i] = s.queue
	}
	return qs
}

// run services streams until the session is stopped and every queue is
// drained, then flushes the encoders.
func (m *muxLoop) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.life.Aborted() {
			return ErrQueueAborted
		}
		if m.life.State() == StateStopped && queuesDrained(m.queues()...) {
			break
		}

		s := m.next()
		if s == nil {
			// Every source ran out before Stop.
			if err := m.waitForChange(ctx); err != nil {
				return err
			}
			continue
		}
		if err := m.service(s); err != nil {
			return err
		}
	}

	m.log.Debug("queues drained, flushing encoders")
	return m.flush()
}

// next returns the stream whose next unit starts first, comparing each
// stream's PTS in its own time base. Ties go to the lower index.
func (m *muxLoop) next() *muxStream {
	var best *muxStream
	for _, s := range m.streams {
		if s.drained {
			continue
		}
		if best == nil || CompareTimestamps(s.nextPTS, s.encTB, best.nextPTS, best.encTB) < 0 {
			best = s
		}
	}
	return best
}

// service dequeues one unit of s, encodes it and writes what it can.
func (m *muxLoop) service(s *muxStream) error {
	// The capture goroutine may grow unit at any time. One load keeps the
	// read size and the encoder frame size in step.
	unit := int(s.unit.Load())
	if s.sampleBytes > 0 {
		if fs := unit / s.sampleBytes; fs != s.frameSize {
			if setter, ok := s.enc.(FrameSizeSetter); ok {
				setter.SetFrameSize(fs)
			}
			s.frameSize = fs
		}
	}
	if cap(s.buf) < unit {
		s.buf = make([]byte, unit)
	}

	n, err := s.queue.Get(s.buf[:unit])
	switch {
	case errors.Is(err, io.EOF):
		m.log.WithField("stream", s.name).Debug("stream drained")
		return m.finishStream(s)
	case err != nil:
		return err
	case n == 0:
		// Paused, or woken by a transition.
		m.life.waitWhilePaused()
		return nil
	}

	f := &Frame{PTS: s.nextPTS, Data: s.buf[:n]}
	if s.sampleBytes > 0 {
		f.Samples = n / s.sampleBytes
	} else if n < unit {
		m.log.WithField("stream", s.name).WithField("bytes", n).Warn("dropping partial video frame")
		return nil
	}

	if err := s.enc.Submit(f); err != nil {
		m.log.WithField("stream", s.name).WithError(err).Warn("encoder rejected frame, skipping")
		return nil
	}
	if s.sampleBytes > 0 {
		s.nextPTS += int64(f.Samples)
	} else {
		s.nextPTS++
	}
	s.stats.submitted.Add(1)

	m.retrieve(s)
	return m.interleave(false)
}

// retrieve moves every ready packet from the encoder to s.pending,
// rescaled into the container time base.
func (m *muxLoop) retrieve(s *muxStream) {
	for {
		p, err := s.enc.Retrieve()
		switch {
		case errors.Is(err, ErrPending):
			return
		case errors.Is(err, io.EOF):
			s.eos = true
			return
		case err != nil:
			m.log.WithField("stream", s.name).WithError(err).Warn("encoder error, skipping")
			return
		}
		p.StreamIndex = s.index
		p.PTS = Rescale(p.PTS, s.encTB, s.outTB)
		p.DTS = Rescale(p.DTS, s.encTB, s.outTB)
		p.Duration = Rescale(p.Duration, s.encTB, s.outTB)
		s.pending = append(s.pending, p)
	}
}

// finishStream flushes the encoder of a drained stream.
func (m *muxLoop) finishStream(s *muxStream) error {
	s.drained = true
	if s.eos {
		return m.interleave(false)
	}
	if err := s.enc.Submit(nil); err != nil {
		m.log.WithField("stream", s.name).WithError(err).Warn("encoder flush failed")
		s.eos = true
	}
	if u, ok := s.enc.(Unflusher); ok {
		if n := u.Unflushed(); n > 0 {
			s.stats.unflushed.Add(int64(n))
			m.log.WithField("stream", s.name).WithField("frames", n).Warn("encoder dropped frames at end of stream")
		}
	}
	for !s.eos {
		before := len(s.pending)
		m.retrieve(s)
		if !s.eos && len(s.pending) == before {
			m.log.WithField("stream", s.name).Warn("encoder stalled during flush")
			s.eos = true
		}
	}
	return m.interleave(false)
}

// interleave writes pending packets in timestamp order. A packet is
// written only once every stream that can still produce output has a
// packet pending, unless final is set.
func (m *muxLoop) interleave(final bool) error {
	for {
		var best *muxStream
		for _, s := range m.streams {
			if len(s.pending) == 0 {
				if !s.eos && !final {
					return nil
				}
				continue
			}
			if best == nil || CompareTimestamps(s.pending[0].PTS, s.outTB, best.pending[0].PTS, best.outTB) < 0 {
				best = s
			}
		}
		if best == nil {
			return nil
		}
		p := best.pending[0]
		best.pending[0] = nil
		best.pending = best.pending[1:]
		if err := m.write(best, p); err != nil {
			return err
		}
	}
}

func (m *muxLoop) write(s *muxStream, p *Packet) error {
	if err := m.writer.WriteInterleaved(p); err != nil {
		if KindOf(err) == ErrorKindUnknown {
			err = newError(ErrorKindPacketWrite, fmt.Sprintf("write %s packet", s.name), err)
		}
		return err
	}
	s.stats.written.Add(1)
	s.stats.bytes.Add(int64(len(p.Data)))
	return nil
}

// flush sends end of stream to every encoder and writes the rest in
// timestamp order.
func (m *muxLoop) flush() error {
	for _, s := range m.streams {
		if !s.drained {
			if err := m.finishStream(s); err != nil {
				return err
			}
		}
	}
	return m.interleave(true)
}

// waitForChange blocks until the next state transition.
func (m *muxLoop) waitForChange(ctx context.Context) error {
	changed := m.life.Changed()
	if s := m.life.State(); s == StateStopped || m.life.Aborted() {
		return nil
	}
	select {
	case <-changed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
