package screenrec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// StreamDescriptor describes one output stream of a container.
type StreamDescriptor struct {
	Index    int       // Output stream index, carried by Packet.StreamIndex
	Kind     MediaKind // Video or audio
	TimeBase Rational  // Container time base, chosen by the writer
	Params   CodecParams
}

// ContainerWriter writes interleaved packets to an output file.
//
// Packets passed to WriteInterleaved are already rescaled into the
// stream's TimeBase and arrive in non-decreasing time order across
// streams.
type ContainerWriter interface {
	io.Closer

	// Streams returns the descriptors with their container time bases.
	Streams() []StreamDescriptor

	// WriteHeader writes the file header.
	WriteHeader() error

	// WriteInterleaved writes one packet.
	WriteInterleaved(p *Packet) error

	// WriteTrailer finalizes the file.
	WriteTrailer() error
}

// Supported output extensions.
const (
	ExtMP4 = ".mp4"
	ExtMKV = ".mkv"
)

// NormalizeOutputPath appends .mp4 when path has no supported extension.
func NormalizeOutputPath(path string) string {
	if path == "" {
		path = "output"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtMP4, ExtMKV:
		return path
	}
	return path + ExtMP4
}

// NewContainerWriter creates the output file and a writer chosen by its
// extension.
func NewContainerWriter(path string, streams []StreamDescriptor) (ContainerWriter, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtMP4 && ext != ExtMKV {
		return nil, newError(ErrorKindFileOpen, "open "+path, fmt.Errorf("unsupported container %q", ext))
	}
	for i, s := range streams {
		if s.Index != i {
			return nil, newError(ErrorKindParameterConversion, "open "+path,
				fmt.Errorf("stream %d has index %d", i, s.Index))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, newError(ErrorKindFileOpen, "create "+path, err)
	}
	var w ContainerWriter
	if ext == ExtMKV {
		w, err = newMKVWriter(f, streams)
	} else {
		w, err = newMP4Writer(f, streams)
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, newError(ErrorKindParameterConversion, "open "+path, err)
	}
	return w, nil
}

// annexBToAVCC converts an Annex B access unit to length-prefixed NAL
// units, dropping parameter sets carried out of band.
func annexBToAVCC(data []byte) ([]byte, error) {
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return nil, err
	}
	nalus := au[:0]
	for _, n := range au {
		switch h264.NALUType(n[0] & 0x1F) {
		case h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeAccessUnitDelimiter:
			continue
		}
		nalus = append(nalus, n)
	}
	if len(nalus) == 0 {
		return nil, nil
	}
	return h264.AVCC(nalus).Marshal()
}
