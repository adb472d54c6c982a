package screenrec

import (
	"testing"
)

func TestCodec_String(t *testing.T) {
	tests := []struct {
		codec Codec
		want  string
	}{
		{CodecH264, "H264"},
		{CodecPCMS16LE, "PCM_S16LE"},
		{CodecUnknown, "Unknown"},
		{Codec(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.codec.String(); got != tt.want {
				t.Errorf("Codec.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodec_Kind(t *testing.T) {
	if CodecH264.Kind() != MediaKindVideo {
		t.Errorf("H264 kind = %v, want video", CodecH264.Kind())
	}
	if CodecPCMS16LE.Kind() != MediaKindAudio {
		t.Errorf("PCM kind = %v, want audio", CodecPCMS16LE.Kind())
	}
}

func TestCodec_MatroskaID(t *testing.T) {
	tests := []struct {
		codec Codec
		want  string
	}{
		{CodecH264, "V_MPEG4/ISO/AVC"},
		{CodecPCMS16LE, "A_PCM/INT/LIT"},
		{CodecUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.MatroskaID(); got != tt.want {
				t.Errorf("Codec.MatroskaID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestH264Profile_String(t *testing.T) {
	tests := []struct {
		profile H264Profile
		want    string
	}{
		{H264ProfileBaseline, "baseline"},
		{H264ProfileMain, "main"},
		{H264ProfileHigh, "high"},
		{H264Profile(0), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.profile.String(); got != tt.want {
				t.Errorf("H264Profile.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
