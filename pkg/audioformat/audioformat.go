// Package audioformat holds the PCM format vocabulary shared by every
// component of the playback core: the ring buffer, the decode/resample
// pipeline, and the plugin ABI surface.
package audioformat

import "fmt"

// SampleFormat identifies the binary layout of one sample.
type SampleFormat uint8

const (
	U8 SampleFormat = iota
	S16
	S24
	S32
	F32
)

func (f SampleFormat) String() string {
	switch f {
	case U8:
		return "U8"
	case S16:
		return "S16"
	case S24:
		return "S24"
	case S32:
		return "S32"
	case F32:
		return "F32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", uint8(f))
	}
}

// BytesPerSample returns the size in bytes of a single sample in this format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case U8:
		return 1
	case S16:
		return 2
	case S24:
		return 3
	case S32, F32:
		return 4
	default:
		return 0
	}
}

// Format describes a fully specified PCM stream: sample encoding, channel
// count and sample rate. It is the unit of negotiation between decoders,
// resamplers, the ring buffer and the output callback.
type Format struct {
	Sample      SampleFormat
	Channels    int
	SampleRate  int
}

// Equal reports whether two formats describe the same PCM layout.
func (f Format) Equal(other Format) bool {
	return f.Sample == other.Sample && f.Channels == other.Channels && f.SampleRate == other.SampleRate
}

// BytesPerFrame returns the size in bytes of one frame (one sample per channel).
func (f Format) BytesPerFrame() int {
	return f.Sample.BytesPerSample() * f.Channels
}

// Bytes returns the number of bytes needed to hold n frames of this format.
func (f Format) Bytes(frames int) int {
	return f.BytesPerFrame() * frames
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%dch/%dHz", f.Sample, f.Channels, f.SampleRate)
}

// Internal is the canonical PCM format the ring buffer stores samples in.
// All decoder output and all output-callback requests are converted to and
// from this format by the playback engine's two resampler instances.
var Internal = Format{Sample: F32, Channels: 2, SampleRate: 48000}
