// Package main builds as a Go plugin (-buildmode=plugin) exposing a
// FLAC decoder under the RvPlaybackPlugin entry point. It wraps the
// teacher's own pkg/decoders/flac.Decoder (itself a thin layer over
// github.com/drgolem/go-flac) behind the pluginabi.Decoder capability
// surface instead of the old types.AudioDecoder interface, so the same
// underlying codec binding now speaks the plugin ABI the rest of this
// module depends on.
package main

import (
	"log/slog"
	"strings"

	"github.com/retrovert-audio/core/pkg/decoders/flac"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

type descriptor struct{}

func (descriptor) Name() string    { return "flac" }
func (descriptor) Version() string { return "1.0" }

func (descriptor) SupportedExtensions() []string { return []string{".flac", ".fla"} }

// ProbeCanPlay checks the "fLaC" magic marker every FLAC stream opens
// with; a plugin never needs to fully open a file just to answer this.
func (descriptor) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	if len(data) >= 4 && string(data[:4]) == "fLaC" {
		return pluginabi.Supported
	}
	if strings.HasSuffix(strings.ToLower(filename), ".flac") || strings.HasSuffix(strings.ToLower(filename), ".fla") {
		return pluginabi.Unsure
	}
	return pluginabi.Unsupported
}

func (descriptor) Create(svc pluginabi.ServiceHandle) (any, error) {
	return &instance{decoder: flac.NewDecoder()}, nil
}

func (descriptor) Destroy(userData any) {
	inst := userData.(*instance)
	_ = inst.decoder.Close()
}

type instance struct {
	decoder *flac.Decoder
	format  audioformat.Format
}

func (descriptor) Open(userData any, url string, subsong int, svc pluginabi.ServiceHandle) error {
	inst := userData.(*instance)
	if err := inst.decoder.Open(url); err != nil {
		return err
	}
	rate, channels, bps := inst.decoder.GetFormat()
	inst.format = audioformat.Format{Sample: sampleFormatForBits(bps), Channels: channels, SampleRate: rate}
	return nil
}

func (descriptor) Close(userData any) error {
	return userData.(*instance).decoder.Close()
}

func (descriptor) ReadData(userData any, dst []byte, maxFrames int) (pluginabi.ReadInfo, error) {
	inst := userData.(*instance)
	n, err := inst.decoder.DecodeSamples(maxFrames, dst)
	status := pluginabi.Ok
	if n == 0 || err != nil {
		status = pluginabi.Finished
	}
	return pluginabi.ReadInfo{Format: inst.format, FrameCount: n, Status: status}, nil
}

// Metadata opens its own short-lived decoder instance to report the
// stream's native format without disturbing whatever instance the
// playlist driver already has open. go-flac's wrapper exposes no
// vorbis comment block, so this reports the technical format rather
// than tags.
func (descriptor) Metadata(url string, svc pluginabi.ServiceHandle) error {
	dec := flac.NewDecoder()
	if err := dec.Open(url); err != nil {
		return err
	}
	defer dec.Close()

	rate, channels, bps := dec.GetFormat()
	slog.Info("flac: metadata", "log_name", svc.LogName(), "url", url,
		"sample_rate", rate, "channels", channels, "bits_per_sample", bps)
	return nil
}

func sampleFormatForBits(bps int) audioformat.SampleFormat {
	switch bps {
	case 8:
		return audioformat.U8
	case 16:
		return audioformat.S16
	case 24:
		return audioformat.S24
	case 32:
		return audioformat.S32
	default:
		return audioformat.S16
	}
}

// RvPlaybackPlugin is the entry point pkg/registry looks up via
// Go's plugin.Lookup.
func RvPlaybackPlugin() pluginabi.Decoder {
	return descriptor{}
}
