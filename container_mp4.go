package screenrec

import (
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// fragmentDuration is the span of media after which a fragment is cut.
const fragmentDuration = 1 // seconds

// mp4Writer writes fragmented MP4: an init segment followed by one
// fragment per second of media holding every track.
type mp4Writer struct {
	w       io.WriteCloser
	streams []StreamDescriptor
	tracks  []*mp4Track
	seq     uint32
}

type mp4Track struct {
	id        int
	timeScale uint32
	video     bool

	baseTime uint64 // DTS of the first sample in samples
	samples  []*fmp4.Sample
	span     int64 // Sum of sample durations in samples

	// The last packet is held until the next DTS fixes its duration.
	held    *Packet
	heldDTS int64
}

func newMP4Writer(w io.WriteCloser, streams []StreamDescriptor) (*mp4Writer, error) {
	m := &mp4Writer{w: w, seq: 1}
	for i, s := range streams {
		t := &mp4Track{id: i + 1}
		switch s.Params.Codec {
		case CodecH264:
			if len(s.Params.SPS) == 0 || len(s.Params.PPS) == 0 {
				return nil, fmt.Errorf("stream %d: H.264 without SPS/PPS", i)
			}
			t.timeScale = 90000
			t.video = true
		case CodecPCMS16LE:
			if s.Params.SampleRate <= 0 || s.Params.Channels <= 0 {
				return nil, fmt.Errorf("stream %d: invalid PCM format", i)
			}
			t.timeScale = uint32(s.Params.SampleRate)
		default:
			return nil, fmt.Errorf("stream %d: codec %v not supported in MP4", i, s.Params.Codec)
		}
		s.TimeBase = Rational{Num: 1, Den: int64(t.timeScale)}
		m.streams = append(m.streams, s)
		m.tracks = append(m.tracks, t)
	}
	return m, nil
}

// Streams implements ContainerWriter.
func (m *mp4Writer) Streams() []StreamDescriptor {
	return m.streams
}

// WriteHeader implements ContainerWriter.
func (m *mp4Writer) WriteHeader() error {
	init := &fmp4.Init{}
	for i, s := range m.streams {
		var codec mp4.Codec
		switch s.Params.Codec {
		case CodecH264:
			codec = &mp4.CodecH264{SPS: s.Params.SPS, PPS: s.Params.PPS}
		case CodecPCMS16LE:
			codec = &mp4.CodecLPCM{
				LittleEndian: true,
				BitDepth:     16,
				SampleRate:   s.Params.SampleRate,
				ChannelCount: s.Params.Channels,
			}
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        m.tracks[i].id,
			TimeScale: m.tracks[i].timeScale,
			Codec:     codec,
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return newError(ErrorKindHeaderWrite, "marshal init segment", err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return newError(ErrorKindHeaderWrite, "write init segment", err)
	}
	return nil
}

// WriteInterleaved implements ContainerWriter.
func (m *mp4Writer) WriteInterleaved(p *Packet) error {
	if p.StreamIndex < 0 || p.StreamIndex >= len(m.tracks) {
		return newError(ErrorKindPacketWrite, "write packet", fmt.Errorf("unknown stream %d", p.StreamIndex))
	}
	t := m.tracks[p.StreamIndex]

	if t.held != nil {
		if p.DTS < t.heldDTS {
			return newError(ErrorKindPacketWrite, "write packet",
				fmt.Errorf("stream %d: DTS %d after %d", p.StreamIndex, p.DTS, t.heldDTS))
		}
		if err := t.commit(p.DTS - t.heldDTS); err != nil {
			return newError(ErrorKindPacketWrite, "write packet", err)
		}
	}

	if t.video {
		avcc, err := annexBToAVCC(p.Data)
		if err != nil {
			return newError(ErrorKindPacketWrite, "convert access unit", err)
		}
		held := *p
		held.Data = avcc
		t.held = &held
	} else {
		t.held = p.Clone()
	}
	t.heldDTS = p.DTS

	if t.span >= int64(t.timeScale)*fragmentDuration {
		return m.flush()
	}
	return nil
}

// commit moves the held packet into the pending fragment.
func (t *mp4Track) commit(duration int64) error {
	p := t.held
	t.held = nil
	if duration <= 0 {
		duration = max(p.Duration, 1)
	}
	if len(t.samples) == 0 {
		t.baseTime = uint64(p.DTS)
	}
	offset := p.PTS - p.DTS
	if offset < -1<<31 || offset > 1<<31-1 {
		return fmt.Errorf("PTS offset %d out of range", offset)
	}
	t.samples = append(t.samples, &fmp4.Sample{
		Duration:        uint32(duration),
		PTSOffset:       int32(offset),
		IsNonSyncSample: !p.Keyframe,
		Payload:         p.Data,
	})
	t.span += duration
	return nil
}

// flush writes the pending samples of every track as one fragment.
func (m *mp4Writer) flush() error {
	part := &fmp4.Part{SequenceNumber: m.seq}
	for _, t := range m.tracks {
		if len(t.samples) == 0 {
			continue
		}
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       t.id,
			BaseTime: t.baseTime,
			Samples:  t.samples,
		})
	}
	if len(part.Tracks) == 0 {
		return nil
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return newError(ErrorKindPacketWrite, "marshal fragment", err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return newError(ErrorKindPacketWrite, "write fragment", err)
	}
	m.seq++
	for _, t := range m.tracks {
		t.samples = nil
		t.span = 0
	}
	return nil
}

// WriteTrailer implements ContainerWriter. Held samples take their own
// packet duration.
func (m *mp4Writer) WriteTrailer() error {
	for _, t := range m.tracks {
		if t.held != nil {
			if err := t.commit(0); err != nil {
				return newError(ErrorKindTrailerWrite, "finish track", err)
			}
		}
	}
	if err := m.flush(); err != nil {
		return newError(ErrorKindTrailerWrite, "write last fragment", err)
	}
	return nil
}

// Close implements ContainerWriter.
func (m *mp4Writer) Close() error {
	return m.w.Close()
}
