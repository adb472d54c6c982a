package screenrec

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// noFrameBackoff is the longest wait after a source reports ErrNoFrame.
	noFrameBackoff = 5 * time.Millisecond

	// maxReadErrors consecutive read failures make the device fatal.
	maxReadErrors = 100
)

// captureLoop moves one stream from its capture source into its frame
// queue: read, decode, convert, enqueue. It owns the source, decoder and
// converter.
type captureLoop struct {
	name   string
	src    CaptureSource
	stream StreamInfo
	dec    Decoder
	conv   Converter
	queue  *FrameQueue
	life   *lifecycle
	stats  *streamStats
	log    *logrus.Entry

	// exhausted is called once when a finite source runs out.
	exhausted func()
}

// run loops until the session stops, the source is exhausted, or a fatal
// error occurs. It always closes the write side of the queue.
func (c *captureLoop) run(ctx context.Context) error {
	defer c.queue.CloseWrite()

	readErrors := 0
	for {
		state := c.life.waitWhilePaused()
		if c.life.Aborted() {
			return ErrQueueAborted
		}
		if state != StateStarted {
			break
		}

		pkt, err := c.src.ReadPacket(ctx)
		switch {
		case err == nil:
			readErrors = 0
		case errors.Is(err, ErrNoFrame):
			c.backoff(ctx)
			continue
		case errors.Is(err, io.EOF):
			c.log.Info("capture source exhausted")
			if err := c.flush(); err != nil {
				return err
			}
			if c.exhausted != nil {
				c.exhausted()
			}
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			readErrors++
			c.stats.readErrors.Add(1)
			if readErrors >= maxReadErrors {
				return newError(ErrorKindDeviceOpen, "read "+c.name, err)
			}
			c.log.WithError(err).Warn("capture read failed, skipping")
			c.backoff(ctx)
			continue
		}

		if pkt.StreamIndex != c.stream.Index {
			c.stats.discarded.Add(1)
			c.log.WithField("index", pkt.StreamIndex).Debug("discarding packet from another stream")
			continue
		}
		if err := c.dec.Submit(pkt); err != nil {
			c.stats.decodeErrors.Add(1)
			c.log.WithError(err).Warn("decode failed, skipping")
			continue
		}
		if err := c.drainDecoder(); err != nil {
			return err
		}
	}

	c.log.Debug("capture stopped, flushing decoder")
	return c.flush()
}

// flush drains the decoder and converter into the queue.
func (c *captureLoop) flush() error {
	if err := c.dec.Submit(nil); err != nil {
		c.log.WithError(err).Warn("decoder flush failed")
	} else if err := c.drainDecoder(); err != nil {
		return err
	}
	tail, err := c.conv.Flush()
	if err != nil {
		return err
	}
	return c.enqueue(tail)
}

// drainDecoder converts and enqueues every frame the decoder has ready.
func (c *captureLoop) drainDecoder() error {
	for {
		d, err := c.dec.Retrieve()
		if errors.Is(err, ErrPending) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			c.stats.decodeErrors.Add(1)
			c.log.WithError(err).Warn("decode failed, skipping")
			return nil
		}

		b, err := c.conv.Convert(d)
		if err != nil {
			if KindOf(err) != ErrorKindUnknown {
				return err
			}
			c.stats.decodeErrors.Add(1)
			c.log.WithError(err).Warn("conversion failed, skipping")
			continue
		}
		if err := c.enqueue(b); err != nil {
			return err
		}
	}
}

// enqueue puts b into the queue, waiting out pauses. Nothing is dropped
// while the session is alive.
func (c *captureLoop) enqueue(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	for {
		ok, err := c.queue.Put(b)
		if err != nil {
			return err
		}
		if ok {
			c.stats.captured.Add(1)
			return nil
		}
		state := c.life.waitWhilePaused()
		if c.life.Aborted() {
			return ErrQueueAborted
		}
		if state != StateStarted && state != StateStopped {
			c.log.WithField("state", state).Warn("dropping frame, session not recording")
			return nil
		}
	}
}

// backoff waits briefly or until the state changes.
func (c *captureLoop) backoff(ctx context.Context) {
	timer := time.NewTimer(noFrameBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.life.Changed():
	case <-ctx.Done():
	}
}
