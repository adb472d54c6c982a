//go:build linux

package screenrec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestX11BackendInputArgs(t *testing.T) {
	b := x11Backend{}
	assert.Equal(t, "x11grab/pulse", b.Name())
	assert.Equal(t, "default", b.DefaultDevice(DeviceKindMicrophone))

	args, err := b.InputArgs(DeviceKindScreen, FFmpegSourceConfig{
		Device: ":1",
		Region: Region{X: 10, Y: 20, Width: 640, Height: 480},
		FPS:    25,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-f", "x11grab",
		"-framerate", "25",
		"-video_size", "640x480",
		"-draw_mouse", "1",
		"-i", ":1+10,20",
	}, args)

	args, err = b.InputArgs(DeviceKindMicrophone, FFmpegSourceConfig{SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"-f", "pulse", "-sample_rate", "48000", "-channels", "1", "-i", "default"}, args)

	_, err = b.InputArgs(DeviceKind(9), FFmpegSourceConfig{})
	assert.Error(t, err)
}

func TestX11BackendDefaultDisplay(t *testing.T) {
	t.Setenv("DISPLAY", ":7")
	assert.Equal(t, ":7", x11Backend{}.DefaultDevice(DeviceKindScreen))

	t.Setenv("DISPLAY", "")
	assert.Equal(t, ":0.0", x11Backend{}.DefaultDevice(DeviceKindScreen))
}
