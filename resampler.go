package screenrec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Resampler converts interleaved audio to interleaved S16 at another
// rate and channel count using linear interpolation.
//
// Positions are tracked exactly in units of 1/outRate input samples, so
// rate conversion never drifts: N input samples produce exactly
// ceil(N*outRate/inRate) output samples once Flush has run.
type Resampler struct {
	inRate, outRate int
	inChannels      int
	outChannels     int
	inFormat        AudioFormat

	pos  int64   // Next output position relative to the current block start
	prev []int32 // Last input sample of the previous block, remixed
	cur  []int32 // Scratch for interpolation endpoints
	next []int32
}

// NewResampler creates a resampler. All parameters must be positive.
func NewResampler(inRate, inChannels int, inFormat AudioFormat, outRate, outChannels int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", inRate, outRate)
	}
	if inChannels <= 0 || outChannels <= 0 {
		return nil, fmt.Errorf("invalid channel counts %d -> %d", inChannels, outChannels)
	}
	if inFormat.BytesPerSample() == 0 {
		return nil, fmt.Errorf("unsupported sample format %v", inFormat)
	}
	return &Resampler{
		inRate:      inRate,
		outRate:     outRate,
		inChannels:  inChannels,
		outChannels: outChannels,
		inFormat:    inFormat,
		prev:        make([]int32, outChannels),
		cur:         make([]int32, outChannels),
		next:        make([]int32, outChannels),
	}, nil
}

// Delay returns the number of input samples consumed whose output has
// not been produced yet.
func (r *Resampler) Delay() int64 {
	if r.pos >= 0 {
		return 0
	}
	out := int64(r.outRate)
	return (-r.pos + out - 1) / out
}

// OutputSamples returns the upper bound on samples produced by Process
// for n input samples: ceil((delay + n) * outRate / inRate).
func (r *Resampler) OutputSamples(n int) int {
	num := (r.Delay() + int64(n)) * int64(r.outRate)
	den := int64(r.inRate)
	return int((num + den - 1) / den)
}

// Process converts n samples from in and writes S16 output to dst.
// It returns the number of samples written per channel.
func (r *Resampler) Process(in []byte, n int, dst []byte) (int, error) {
	frameBytes := r.inChannels * r.inFormat.BytesPerSample()
	if len(in) < n*frameBytes {
		return 0, fmt.Errorf("input has %d bytes, need %d", len(in), n*frameBytes)
	}
	if n == 0 {
		return 0, nil
	}

	out, step := int64(r.outRate), int64(r.inRate)
	limit := int64(n-1) * out
	capacity := len(dst) / (2 * r.outChannels)
	count := 0

	for ; r.pos < limit; r.pos += step {
		if count >= capacity {
			return count, fmt.Errorf("output exceeds %d samples", capacity)
		}
		idx := floorDiv(r.pos, out)
		frac := r.pos - idx*out
		r.load(r.cur, in, idx)
		r.load(r.next, in, idx+1)
		for c := 0; c < r.outChannels; c++ {
			a, b := int64(r.cur[c]), int64(r.next[c])
			v := a + (b-a)*frac/out
			binary.LittleEndian.PutUint16(dst[(count*r.outChannels+c)*2:], uint16(int16(v)))
		}
		count++
	}

	r.load(r.prev, in, int64(n-1))
	r.pos -= int64(n) * out
	return count, nil
}

// Flush writes the output still owed for consumed input, holding the
// last sample, and resets the position.
func (r *Resampler) Flush(dst []byte) (int, error) {
	capacity := len(dst) / (2 * r.outChannels)
	count := 0
	for ; r.pos < 0; r.pos += int64(r.inRate) {
		if count >= capacity {
			return count, fmt.Errorf("output exceeds %d samples", capacity)
		}
		for c := 0; c < r.outChannels; c++ {
			binary.LittleEndian.PutUint16(dst[(count*r.outChannels+c)*2:], uint16(int16(r.prev[c])))
		}
		count++
	}
	r.pos = 0
	return count, nil
}

// load reads input sample idx into dst, remixed to the output channel
// count. Index -1 is the previous block's last sample.
func (r *Resampler) load(dst []int32, in []byte, idx int64) {
	if idx < 0 {
		copy(dst, r.prev)
		return
	}
	bps := r.inFormat.BytesPerSample()
	base := int(idx) * r.inChannels * bps

	sample := func(ch int) int32 {
		off := base + ch*bps
		if r.inFormat == AudioFormatF32 {
			f := math.Float32frombits(binary.LittleEndian.Uint32(in[off:]))
			return int32(math.Max(-32768, math.Min(32767, math.Round(float64(f)*32767))))
		}
		return int32(int16(binary.LittleEndian.Uint16(in[off:])))
	}

	switch {
	case r.inChannels == r.outChannels:
		for c := range dst {
			dst[c] = sample(c)
		}
	case r.outChannels == 1:
		var sum int32
		for c := 0; c < r.inChannels; c++ {
			sum += sample(c)
		}
		dst[0] = sum / int32(r.inChannels)
	default:
		for c := range dst {
			dst[c] = sample(min(c, r.inChannels-1))
		}
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
