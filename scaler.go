package screenrec

import (
	"fmt"
)

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch ScaleMode = iota
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (may crop).
	ScaleModeFill
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleModeStretch:
		return "stretch"
	case ScaleModeFill:
		return "fill"
	default:
		return "unknown"
	}
}

// VideoScaler scales I420 video frames.
type VideoScaler struct {
	srcWidth, srcHeight int
	dstWidth, dstHeight int
	mode                ScaleMode

	// Pre-allocated contiguous I420 output, planes slice into out
	out              []byte
	outY, outU, outV []byte
}

// NewVideoScaler creates a new scaler for the given dimensions.
func NewVideoScaler(srcWidth, srcHeight, dstWidth, dstHeight int, mode ScaleMode) *VideoScaler {
	ySize := dstWidth * dstHeight
	uvSize := (dstWidth / 2) * (dstHeight / 2)
	out := make([]byte, ySize+2*uvSize)

	return &VideoScaler{
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
		mode:      mode,
		out:       out,
		outY:      out[:ySize],
		outU:      out[ySize : ySize+uvSize],
		outV:      out[ySize+uvSize:],
	}
}

// Scale scales an I420 frame to the target dimensions.
// The returned frame shares the scaler's buffer.
func (s *VideoScaler) Scale(frame *VideoFrame) *VideoFrame {
	if frame.Width == s.dstWidth && frame.Height == s.dstHeight {
		// No scaling needed
		return frame
	}

	// Calculate source region based on scale mode
	srcX, srcY, srcW, srcH := s.calculateSourceRegion(frame.Width, frame.Height)

	// Scale Y plane
	s.scalePlane(frame.Data[0], frame.Stride[0], srcX, srcY, srcW, srcH,
		s.outY, s.dstWidth, s.dstWidth, s.dstHeight)

	// Scale U plane (half resolution)
	s.scalePlane(frame.Data[1], frame.Stride[1], srcX/2, srcY/2, srcW/2, srcH/2,
		s.outU, s.dstWidth/2, s.dstWidth/2, s.dstHeight/2)

	// Scale V plane (half resolution)
	s.scalePlane(frame.Data[2], frame.Stride[2], srcX/2, srcY/2, srcW/2, srcH/2,
		s.outV, s.dstWidth/2, s.dstWidth/2, s.dstHeight/2)

	return &VideoFrame{
		Data:      [][]byte{s.outY, s.outU, s.outV},
		Stride:    []int{s.dstWidth, s.dstWidth / 2, s.dstWidth / 2},
		Width:     s.dstWidth,
		Height:    s.dstHeight,
		Format:    PixelFormatI420,
		Timestamp: frame.Timestamp,
	}
}

// Bytes returns the contiguous I420 output of the last Scale call.
func (s *VideoScaler) Bytes() []byte {
	return s.out
}

// calculateSourceRegion determines what region of the source to use based on scale mode.
func (s *VideoScaler) calculateSourceRegion(srcW, srcH int) (x, y, w, h int) {
	if s.mode != ScaleModeFill {
		return 0, 0, srcW, srcH
	}

	// Crop source to match target aspect ratio
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(s.dstWidth) / float64(s.dstHeight)

	if srcAspect > dstAspect {
		// Source is wider, crop horizontally
		newW := int(float64(srcH) * dstAspect)
		return (srcW - newW) / 2, 0, newW, srcH
	} else if srcAspect < dstAspect {
		// Source is taller, crop vertically
		newH := int(float64(srcW) / dstAspect)
		return 0, (srcH - newH) / 2, srcW, newH
	}
	return 0, 0, srcW, srcH
}

// scalePlane scales a single plane using bilinear interpolation.
func (s *VideoScaler) scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		srcYFrac := srcYFP & 0xFFFF

		y0 := (srcYFP >> 16) + srcY
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			srcXFrac := srcXFP & 0xFFFF

			x0 := (srcXFP >> 16) + srcX
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}

			p00 := int(src[y0*srcStride+x0])
			p10 := int(src[y0*srcStride+x1])
			p01 := int(src[y1*srcStride+x0])
			p11 := int(src[y1*srcStride+x1])

			top := (p00*(0x10000-srcXFrac) + p10*srcXFrac) >> 16
			bottom := (p01*(0x10000-srcXFrac) + p11*srcXFrac) >> 16

			dst[y*dstStride+x] = byte((top*(0x10000-srcYFrac) + bottom*srcYFrac) >> 16)
		}
	}
}

// ConvertToI420 crops region r out of src and writes it to dst as
// tightly packed I420. dst must hold I420Size(r.Width, r.Height) bytes.
// Packed RGB inputs use BT.601 limited range with 2x2 chroma averaging.
func ConvertToI420(src *VideoFrame, r Region, dst []byte) error {
	if r.Width <= 0 || r.Height <= 0 || r.Width%2 != 0 || r.Height%2 != 0 {
		return fmt.Errorf("invalid region %dx%d", r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.Width > src.Width || r.Y+r.Height > src.Height {
		return fmt.Errorf("region %dx%d+%d+%d outside %dx%d frame",
			r.Width, r.Height, r.X, r.Y, src.Width, src.Height)
	}
	if len(dst) < I420Size(r.Width, r.Height) {
		return fmt.Errorf("destination %d bytes, need %d", len(dst), I420Size(r.Width, r.Height))
	}

	ySize := r.Width * r.Height
	cw, ch := r.Width/2, r.Height/2
	dy := dst[:ySize]
	du := dst[ySize : ySize+cw*ch]
	dv := dst[ySize+cw*ch : ySize+2*cw*ch]

	switch src.Format {
	case PixelFormatI420:
		copyPlane(dy, r.Width, src.Data[0], src.Stride[0], r.X, r.Y, r.Width, r.Height)
		copyPlane(du, cw, src.Data[1], src.Stride[1], r.X/2, r.Y/2, cw, ch)
		copyPlane(dv, cw, src.Data[2], src.Stride[2], r.X/2, r.Y/2, cw, ch)
		return nil

	case PixelFormatNV12:
		copyPlane(dy, r.Width, src.Data[0], src.Stride[0], r.X, r.Y, r.Width, r.Height)
		uv, stride := src.Data[1], src.Stride[1]
		for y := 0; y < ch; y++ {
			row := (r.Y/2+y)*stride + (r.X/2)*2
			for x := 0; x < cw; x++ {
				du[y*cw+x] = uv[row+2*x]
				dv[y*cw+x] = uv[row+2*x+1]
			}
		}
		return nil

	case PixelFormatBGRA32, PixelFormatRGBA32, PixelFormatRGB24:
		packedToI420(src, r, dy, du, dv)
		return nil

	default:
		return fmt.Errorf("unsupported pixel format %v", src.Format)
	}
}

func copyPlane(dst []byte, dstStride int, src []byte, srcStride, x, y, w, h int) {
	for row := 0; row < h; row++ {
		off := (y+row)*srcStride + x
		copy(dst[row*dstStride:row*dstStride+w], src[off:off+w])
	}
}

func packedToI420(src *VideoFrame, r Region, dy, du, dv []byte) {
	bpp, ri, gi, bi := 4, 2, 1, 0
	switch src.Format {
	case PixelFormatRGBA32:
		ri, bi = 0, 2
	case PixelFormatRGB24:
		bpp, ri, bi = 3, 0, 2
	}
	data, stride := src.Data[0], src.Stride[0]
	cw := r.Width / 2

	for y := 0; y < r.Height; y += 2 {
		for x := 0; x < r.Width; x += 2 {
			var sr, sg, sb int
			for j := 0; j < 2; j++ {
				row := (r.Y+y+j)*stride + (r.X+x)*bpp
				for i := 0; i < 2; i++ {
					p := row + i*bpp
					pr, pg, pb := int(data[p+ri]), int(data[p+gi]), int(data[p+bi])
					dy[(y+j)*r.Width+x+i] = byte(((66*pr + 129*pg + 25*pb + 128) >> 8) + 16)
					sr += pr
					sg += pg
					sb += pb
				}
			}
			sr, sg, sb = (sr+2)/4, (sg+2)/4, (sb+2)/4
			ci := (y/2)*cw + x/2
			du[ci] = byte(((-38*sr - 74*sg + 112*sb + 128) >> 8) + 128)
			dv[ci] = byte(((112*sr - 94*sg - 18*sb + 128) >> 8) + 128)
		}
	}
}
