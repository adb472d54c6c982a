// Package screenrec records the screen and, optionally, a microphone into
// one MP4 or Matroska file, with interactive start/pause/resume/stop.
//
// Key pieces include:
//   - Recorder and its lifecycle (NotStarted, Started, Paused, Stopped, Finished)
//   - CaptureSource implementations: ffmpeg-backed devices and synthetic sources
//   - Decoders and converters producing I420 video and resampled S16 audio
//   - FrameQueue, the bounded byte ring between capture and encoding
//   - H.264 and PCM encoders, fragmented MP4 and Matroska writers
//
// # Architecture
//
//	Capture (per stream): CaptureSource -> Decoder -> Converter -> FrameQueue
//	Mux: FrameQueue -> Encoder -> interleave by PTS -> ContainerWriter
//
// Each stream has its own capture goroutine. One mux goroutine owns the
// encoders and the container writer and always services the stream whose
// next unit starts first, so packets reach the file in timestamp order.
// Stop drains both queues, flushes every codec and then writes the
// trailer.
//
// # Native Libraries
//
// The native H.264 encoder loads libmedia_h264 (x264) through purego.
// Set SCREENREC_H264_LIB_PATH or MEDIA_SDK_LIB_PATH to the directory
// containing it. Without it the built-in lossless I_PCM encoder is used.
//
// Device capture runs ffmpeg as a subprocess: x11grab and pulse on Linux,
// avfoundation on macOS, gdigrab and dshow on Windows.
//
// # Build Tags
//
//   - noh264: disable the native H.264 encoder
package screenrec
