// Package pluginabi defines the stable capability contracts the engine
// speaks to loaded modules. It is the vocabulary layer described in
// spec section 4.1/6: three typed entry points (decoder, output,
// resampler), each exposed as a Go interface so the rest of the core
// never has to touch a raw plugin symbol again once pkg/registry has
// bound it.
//
// A native ABI boundary is unavoidable here even in a memory-safe
// language: somebody has to call plugin.Lookup and type-assert the
// result. pkg/registry is that thin adapter; everything above it only
// ever sees the interfaces in this file.
package pluginabi

import "github.com/retrovert-audio/core/pkg/audioformat"

// Entry point symbol names every plugin shared object must export one
// of. Loaded via Go's plugin package by pkg/registry.
const (
	DecoderEntryPoint   = "RvPlaybackPlugin"
	OutputEntryPoint    = "RvOutputPlugin"
	ResamplerEntryPoint = "RvResamplePlugin"
)

// ProbeResult is the verdict a decoder plugin returns from ProbeCanPlay.
type ProbeResult int

const (
	Unsupported ProbeResult = iota
	Supported
	Unsure
)

// DecodeStatus reports the result of one ReadData call.
type DecodeStatus int

const (
	DecodingRequest DecodeStatus = iota
	Ok
	Finished
	Error
)

// ReadInfo is returned by a decoder's ReadData.
type ReadInfo struct {
	Format            audioformat.Format
	FrameCount        int
	Status            DecodeStatus
	VirtualChannelCount int
}

// DecoderInstance is a live, opened decoder plugin instance. It wraps
// whatever user-data handle the plugin allocated in Create; the engine
// never inspects that handle directly.
type DecoderInstance struct {
	Plugin   Decoder
	UserData any
}

// Decoder is the capability surface a `RvPlaybackPlugin` entry point
// must satisfy. Required operations (per spec 4.1.1): ProbeCanPlay,
// SupportedExtensions, Create, Destroy, Open, Close, ReadData. Seek,
// Metadata, StaticInit and SettingsUpdated are optional; the registry
// validates presence of the required set before accepting a plugin.
type Decoder interface {
	Name() string
	Version() string

	ProbeCanPlay(data []byte, filename string, totalSize int64) ProbeResult
	SupportedExtensions() []string

	Create(svc ServiceHandle) (any, error)
	Destroy(userData any)

	Open(userData any, url string, subsong int, svc ServiceHandle) error
	Close(userData any) error

	// ReadData asks the decoder to produce up to maxFrames frames into
	// dst (already sized for maxFrames * desired.BytesPerFrame()) in
	// the format it natively decodes to. The playback engine resamples
	// as needed; decoders never resample themselves.
	ReadData(userData any, dst []byte, maxFrames int) (ReadInfo, error)
}

// Seekable is implemented by decoder plugins that support seeking.
// Optional per spec section 6; the registry never requires it.
type Seekable interface {
	Seek(userData any, ms int) (int, error)
}

// StaticIniter is implemented by plugins with a one-time init hook,
// invoked once at load time with the registry's service handle.
type StaticIniter interface {
	StaticInit(svc ServiceHandle) error
}

// MetadataProvider is implemented by decoder plugins that can report
// tag/metadata information for a URL without a full open+decode.
type MetadataProvider interface {
	Metadata(url string, svc ServiceHandle) error
}

// SettingsAware is implemented by plugins that react to live settings
// changes pushed by the host application.
type SettingsAware interface {
	SettingsUpdated(userData any, svc ServiceHandle) error
}

// PlaybackCallback is handed to an output plugin's Start so it can pull
// data from the engine on its own realtime thread.
type PlaybackCallback struct {
	// Pull is invoked by the output plugin's realtime thread, requesting
	// `frames` frames in `format`. It returns exactly that many frames'
	// worth of bytes; on underrun the missing part is already filled
	// with silence, so the caller never has to pad.
	Pull func(format audioformat.Format, frames int) []byte
}

// Output is the capability surface a `RvOutputPlugin` entry point must
// satisfy (spec section 6). create/destroy/start/stop are required;
// OutputTargetsInfo is informational only (device enumeration is out of
// scope beyond "pick first available output", spec Non-goals).
type Output interface {
	Name() string

	Create(svc ServiceHandle) (any, error)
	Destroy(userData any)

	OutputTargetsInfo() []string

	// Start begins invoking cb.Pull on a realtime thread the plugin
	// owns until Stop is called.
	Start(userData any, cb PlaybackCallback) error
	Stop(userData any) error
}

// ConvertConfig describes a resampler (re)configuration request.
type ConvertConfig struct {
	Input, Output audioformat.Format
}

// Resampler is the capability surface a `RvResamplePlugin` entry point
// must satisfy (spec section 6).
type Resampler interface {
	Name() string

	Create(svc ServiceHandle) (any, error)
	Destroy(userData any)

	SetConfig(userData any, cfg ConvertConfig) error

	// Convert writes up to len(dst)/outFormat.BytesPerFrame() output
	// frames into dst, consuming up to inFrames input frames from src.
	// Returns the number of output frames actually produced.
	Convert(userData any, dst, src []byte, inFrames int) (outFrames int, err error)

	RequiredInputFrameCount(userData any, outFrames int) int
	ExpectedOutputFrameCount(userData any, inFrames int) int
}

// ServiceHandle is the registry's service object, handed to plugins at
// Create/StaticInit time. It gives plugins a way to propagate a log
// name and reach metadata services without the engine exposing its
// internals. The concrete implementation lives in pkg/registry.
type ServiceHandle interface {
	LogName() string
	SetLogName(name string)
}
