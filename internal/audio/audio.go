package audio

import "time"

// All PCM handled here is interleaved 16-bit stereo at 48kHz.
const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// SampleAt converts an offset to a per-channel sample index, rounding to the
// nearest sample. Offsets of the timeline are converted independently so
// rounding never accumulates across segments.
func SampleAt(d time.Duration) int {
	return int((int64(d)*SampleRate + int64(time.Second)/2) / int64(time.Second))
}
