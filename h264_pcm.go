package screenrec

import (
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// H264PCMEncoder is a pure Go H.264 encoder that codes every macroblock
// as I_PCM. The output is lossless, Constrained Baseline, all IDR, and
// large: about 1.5 bytes per pixel. It needs no native library.
type H264PCMEncoder struct {
	config VideoEncoderConfig

	mbWidth, mbHeight int
	sps, pps          []byte

	idrID  uint32
	out    []*Packet
	rbsp   bitWriter
	eos    bool
	closed bool
}

// NewH264PCMEncoder creates the built-in encoder.
func NewH264PCMEncoder(config VideoEncoderConfig) (*H264PCMEncoder, error) {
	if config.Width <= 0 || config.Height <= 0 || config.Width%2 != 0 || config.Height%2 != 0 {
		return nil, fmt.Errorf("invalid video size %dx%d", config.Width, config.Height)
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	e := &H264PCMEncoder{
		config:   config,
		mbWidth:  (config.Width + 15) / 16,
		mbHeight: (config.Height + 15) / 16,
	}
	e.sps = e.buildSPS()
	e.pps = buildPPS()
	return e, nil
}

// SPS returns the sequence parameter set NAL unit.
func (e *H264PCMEncoder) SPS() []byte { return e.sps }

// PPS returns the picture parameter set NAL unit.
func (e *H264PCMEncoder) PPS() []byte { return e.pps }

func (e *H264PCMEncoder) buildSPS() []byte {
	var w bitWriter
	w.writeBits(66, 8)   // profile_idc: Baseline
	w.writeBits(0xC0, 8) // constraint_set0_flag, constraint_set1_flag
	w.writeBits(51, 8)   // level_idc
	w.writeUE(0)         // seq_parameter_set_id
	w.writeUE(0)         // log2_max_frame_num_minus4
	w.writeUE(2)         // pic_order_cnt_type
	w.writeUE(1)         // max_num_ref_frames
	w.writeBits(0, 1)    // gaps_in_frame_num_value_allowed_flag
	w.writeUE(uint32(e.mbWidth - 1))
	w.writeUE(uint32(e.mbHeight - 1))
	w.writeBits(1, 1) // frame_mbs_only_flag
	w.writeBits(1, 1) // direct_8x8_inference_flag

	cropRight := (e.mbWidth*16 - e.config.Width) / 2
	cropBottom := (e.mbHeight*16 - e.config.Height) / 2
	if cropRight > 0 || cropBottom > 0 {
		w.writeBits(1, 1)
		w.writeUE(0)
		w.writeUE(uint32(cropRight))
		w.writeUE(0)
		w.writeUE(uint32(cropBottom))
	} else {
		w.writeBits(0, 1)
	}
	w.writeBits(0, 1) // vui_parameters_present_flag
	w.writeTrailingBits()

	return append([]byte{0x67}, addEmulationPrevention(w.bytes())...)
}

func buildPPS() []byte {
	var w bitWriter
	w.writeUE(0)      // pic_parameter_set_id
	w.writeUE(0)      // seq_parameter_set_id
	w.writeBits(0, 1) // entropy_coding_mode_flag: CAVLC
	w.writeBits(0, 1) // bottom_field_pic_order_in_frame_present_flag
	w.writeUE(0)      // num_slice_groups_minus1
	w.writeUE(0)      // num_ref_idx_l0_default_active_minus1
	w.writeUE(0)      // num_ref_idx_l1_default_active_minus1
	w.writeBits(0, 1) // weighted_pred_flag
	w.writeBits(0, 2) // weighted_bipred_idc
	w.writeSE(0)      // pic_init_qp_minus26
	w.writeSE(0)      // pic_init_qs_minus26
	w.writeSE(0)      // chroma_qp_index_offset
	w.writeBits(0, 1) // deblocking_filter_control_present_flag
	w.writeBits(0, 1) // constrained_intra_pred_flag
	w.writeBits(0, 1) // redundant_pic_cnt_present_flag
	w.writeTrailingBits()

	return append([]byte{0x68}, addEmulationPrevention(w.bytes())...)
}

// encodeIDR codes one I420 picture as a single IDR slice.
func (e *H264PCMEncoder) encodeIDR(pic []byte) []byte {
	width, height := e.config.Width, e.config.Height
	cw, ch := width/2, height/2
	yPlane := pic[:width*height]
	uPlane := pic[width*height : width*height+cw*ch]
	vPlane := pic[width*height+cw*ch:]

	w := &e.rbsp
	w.reset()
	w.writeUE(0)               // first_mb_in_slice
	w.writeUE(7)               // slice_type: I, all slices
	w.writeUE(0)               // pic_parameter_set_id
	w.writeBits(0, 4)          // frame_num
	w.writeUE(e.idrID % 65536) // idr_pic_id
	w.writeBits(0, 1)          // no_output_of_prior_pics_flag
	w.writeBits(0, 1)          // long_term_reference_flag
	w.writeSE(0)               // slice_qp_delta
	e.idrID++

	for my := 0; my < e.mbHeight; my++ {
		for mx := 0; mx < e.mbWidth; mx++ {
			w.writeUE(25) // mb_type: I_PCM
			w.alignZero()
			w.appendBlock(yPlane, width, width, height, mx*16, my*16, 16)
			w.appendBlock(uPlane, cw, cw, ch, mx*8, my*8, 8)
			w.appendBlock(vPlane, cw, cw, ch, mx*8, my*8, 8)
		}
	}
	w.writeTrailingBits()

	return append([]byte{0x65}, addEmulationPrevention(w.bytes())...)
}

// Submit implements Encoder.
func (e *H264PCMEncoder) Submit(f *Frame) error {
	if e.closed || e.eos {
		return ErrEncoderClosed
	}
	if f == nil {
		e.eos = true
		return nil
	}
	if want := I420Size(e.config.Width, e.config.Height); len(f.Data) < want {
		return fmt.Errorf("frame has %d bytes, need %d", len(f.Data), want)
	}

	au, err := h264.AnnexB{e.sps, e.pps, e.encodeIDR(f.Data)}.Marshal()
	if err != nil {
		return err
	}
	e.out = append(e.out, &Packet{
		PTS:      f.PTS,
		DTS:      f.PTS,
		Duration: 1,
		Keyframe: true,
		Data:     au,
	})
	return nil
}

// Retrieve implements Encoder. Packets are held back until more than
// Delay frames are queued, or until end of stream.
func (e *H264PCMEncoder) Retrieve() (*Packet, error) {
	if len(e.out) > e.config.Delay || (e.eos && len(e.out) > 0) {
		p := e.out[0]
		e.out[0] = nil
		e.out = e.out[1:]
		return p, nil
	}
	if e.eos {
		return nil, io.EOF
	}
	return nil, ErrPending
}

// TimeBase implements Encoder.
func (e *H264PCMEncoder) TimeBase() Rational {
	return Rational{Num: 1, Den: int64(e.config.FPS)}
}

// Params implements Encoder.
func (e *H264PCMEncoder) Params() CodecParams {
	return CodecParams{
		Codec:   CodecH264,
		Width:   e.config.Width,
		Height:  e.config.Height,
		FPS:     e.config.FPS,
		Profile: H264ProfileBaseline,
		SPS:     e.sps,
		PPS:     e.pps,
	}
}

// Close implements Encoder.
func (e *H264PCMEncoder) Close() error {
	e.closed = true
	e.out = nil
	return nil
}

// bitWriter writes an RBSP most significant bit first.
type bitWriter struct {
	buf   []byte
	cur   byte
	nbits uint
}

func (w *bitWriter) reset() {
	w.buf = w.buf[:0]
	w.cur = 0
	w.nbits = 0
}

func (w *bitWriter) writeBits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		w.cur = w.cur<<1 | byte(v>>uint(i)&1)
		w.nbits++
		if w.nbits == 8 {
			w.buf = append(w.buf, w.cur)
			w.cur = 0
			w.nbits = 0
		}
	}
}

// writeUE writes an unsigned Exp-Golomb code.
func (w *bitWriter) writeUE(v uint32) {
	x := uint64(v) + 1
	n := 0
	for t := x; t > 1; t >>= 1 {
		n++
	}
	w.writeBits(0, n)
	w.writeBits(x, n+1)
}

// writeSE writes a signed Exp-Golomb code.
func (w *bitWriter) writeSE(v int32) {
	if v > 0 {
		w.writeUE(uint32(2*v - 1))
	} else {
		w.writeUE(uint32(-2 * v))
	}
}

func (w *bitWriter) alignZero() {
	if w.nbits > 0 {
		w.writeBits(0, int(8-w.nbits))
	}
}

func (w *bitWriter) writeTrailingBits() {
	w.writeBits(1, 1)
	w.alignZero()
}

// appendBlock appends a size x size block at (x, y) of a plane, with
// edge samples repeated past the plane bounds. The writer must be
// byte aligned. Zero samples are coded as 1.
func (w *bitWriter) appendBlock(plane []byte, stride, width, height, x, y, size int) {
	for j := 0; j < size; j++ {
		row := min(y+j, height-1) * stride
		for i := 0; i < size; i++ {
			v := plane[row+min(x+i, width-1)]
			w.buf = append(w.buf, max(v, 1))
		}
	}
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}

// addEmulationPrevention inserts 0x03 after every two zero bytes that
// are followed by a byte <= 3.
func addEmulationPrevention(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/64)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
