package screenrec

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	gomp4 "github.com/abema/go-mp4"
	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
)

// AppName is written as the muxing and writing application.
const AppName = "screenrec"

// mkvWriter writes Matroska with millisecond timecodes.
type mkvWriter struct {
	w       *closeNotifier
	streams []StreamDescriptor
	tracks  []webm.TrackEntry
	blocks  []webm.BlockWriteCloser
	opened  bool

	mu    sync.Mutex
	fatal error
}

// closeNotifier reports when the block writers have closed the file.
type closeNotifier struct {
	io.WriteCloser
	once sync.Once
	done chan struct{}
	err  error
}

func (c *closeNotifier) Close() error {
	c.once.Do(func() {
		c.err = c.WriteCloser.Close()
		close(c.done)
	})
	return c.err
}

func newMKVWriter(w io.WriteCloser, streams []StreamDescriptor) (*mkvWriter, error) {
	m := &mkvWriter{w: &closeNotifier{WriteCloser: w, done: make(chan struct{})}}
	for i, s := range streams {
		entry := webm.TrackEntry{
			TrackNumber: uint64(i + 1),
			TrackUID:    uint64(i + 1),
			CodecID:     s.Params.Codec.MatroskaID(),
		}
		switch s.Params.Codec {
		case CodecH264:
			private, err := avcDecoderConfig(s.Params.SPS, s.Params.PPS)
			if err != nil {
				return nil, fmt.Errorf("stream %d: %w", i, err)
			}
			entry.Name = "Video"
			entry.TrackType = 1
			entry.CodecPrivate = private
			if s.Params.FPS > 0 {
				entry.DefaultDuration = uint64(1000000000 / s.Params.FPS)
			}
			entry.Video = &webm.Video{
				PixelWidth:  uint64(s.Params.Width),
				PixelHeight: uint64(s.Params.Height),
			}
		case CodecPCMS16LE:
			entry.Name = "Audio"
			entry.TrackType = 2
			entry.Audio = &webm.Audio{
				SamplingFrequency: float64(s.Params.SampleRate),
				Channels:          uint64(s.Params.Channels),
			}
		default:
			return nil, fmt.Errorf("stream %d: codec %v not supported in Matroska", i, s.Params.Codec)
		}
		s.TimeBase = TimeBaseMillis
		m.streams = append(m.streams, s)
		m.tracks = append(m.tracks, entry)
	}
	return m, nil
}

// avcDecoderConfig builds the avcC record used as H.264 CodecPrivate.
func avcDecoderConfig(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 || len(pps) == 0 {
		return nil, fmt.Errorf("H.264 without SPS/PPS")
	}
	rec := &gomp4.AVCDecoderConfiguration{
		AnyTypeBox:                 gomp4.AnyTypeBox{Type: gomp4.BoxTypeAvcC()},
		ConfigurationVersion:       1,
		Profile:                    sps[1],
		ProfileCompatibility:       sps[2],
		Level:                      sps[3],
		Reserved:                   0x3f,
		LengthSizeMinusOne:         3,
		Reserved2:                  0x7,
		NumOfSequenceParameterSets: 1,
		SequenceParameterSets:      []gomp4.AVCParameterSet{{Length: uint16(len(sps)), NALUnit: sps}},
		NumOfPictureParameterSets:  1,
		PictureParameterSets:       []gomp4.AVCParameterSet{{Length: uint16(len(pps)), NALUnit: pps}},
	}
	var buf bytes.Buffer
	if _, err := gomp4.Marshal(&buf, rec, gomp4.Context{}); err != nil {
		return nil, fmt.Errorf("marshal avcC: %w", err)
	}
	return buf.Bytes(), nil
}

// Streams implements ContainerWriter.
func (m *mkvWriter) Streams() []StreamDescriptor {
	return m.streams
}

// WriteHeader implements ContainerWriter.
func (m *mkvWriter) WriteHeader() error {
	blocks, err := webm.NewSimpleBlockWriter(m.w, m.tracks,
		mkvcore.WithEBMLHeader(&webm.EBMLHeader{
			EBMLVersion:        1,
			EBMLReadVersion:    1,
			EBMLMaxIDLength:    4,
			EBMLMaxSizeLength:  8,
			DocType:            "matroska",
			DocTypeVersion:     4,
			DocTypeReadVersion: 2,
		}),
		mkvcore.WithSegmentInfo(&webm.Info{
			TimecodeScale: 1000000, // 1ms
			MuxingApp:     AppName,
			WritingApp:    AppName,
		}),
		mkvcore.WithOnFatalHandler(func(err error) {
			m.mu.Lock()
			m.fatal = err
			m.mu.Unlock()
		}),
	)
	if err != nil {
		return newError(ErrorKindHeaderWrite, "write Matroska header", err)
	}
	m.blocks = blocks
	m.opened = true
	return nil
}

// WriteInterleaved implements ContainerWriter.
func (m *mkvWriter) WriteInterleaved(p *Packet) error {
	if err := m.fatalErr(); err != nil {
		return newError(ErrorKindPacketWrite, "write block", err)
	}
	if p.StreamIndex < 0 || p.StreamIndex >= len(m.blocks) {
		return newError(ErrorKindPacketWrite, "write block", fmt.Errorf("unknown stream %d", p.StreamIndex))
	}

	data := p.Data
	if m.streams[p.StreamIndex].Params.Codec == CodecH264 {
		avcc, err := annexBToAVCC(p.Data)
		if err != nil {
			return newError(ErrorKindPacketWrite, "convert access unit", err)
		}
		data = avcc
	}
	if _, err := m.blocks[p.StreamIndex].Write(p.Keyframe, p.PTS, data); err != nil {
		return newError(ErrorKindPacketWrite, "write block", err)
	}
	return nil
}

func (m *mkvWriter) fatalErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatal
}

// WriteTrailer implements ContainerWriter. Closing the last block
// writer finishes the segment and closes the file; it waits for that.
func (m *mkvWriter) WriteTrailer() error {
	var firstErr error
	for _, b := range m.blocks {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.blocks = nil

	select {
	case <-m.w.done:
		if firstErr == nil {
			firstErr = m.w.err
		}
	case <-time.After(10 * time.Second):
		if firstErr == nil {
			firstErr = fmt.Errorf("timed out waiting for segment to close")
		}
	}
	if firstErr == nil {
		firstErr = m.fatalErr()
	}
	if firstErr != nil {
		return newError(ErrorKindTrailerWrite, "close Matroska segment", firstErr)
	}
	return nil
}

// Close implements ContainerWriter.
func (m *mkvWriter) Close() error {
	if !m.opened {
		return m.w.Close()
	}
	for _, b := range m.blocks {
		b.Close()
	}
	m.blocks = nil
	return nil
}
