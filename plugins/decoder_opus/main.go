// Package main builds as a Go plugin exposing an Ogg Opus decoder
// under the RvPlaybackPlugin entry point. It wraps pkg/decoders/opus,
// itself grounded on the same author's go-flac wrapper shape applied
// to github.com/drgolem/go-opus, behind pluginabi.Decoder.
package main

import (
	"bytes"
	"strings"

	"github.com/retrovert-audio/core/pkg/decoders/opus"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

type descriptor struct{}

func (descriptor) Name() string    { return "opus" }
func (descriptor) Version() string { return "1.0" }

func (descriptor) SupportedExtensions() []string { return []string{".opus"} }

// ProbeCanPlay looks for the "OpusHead" identification header that
// opens the first page of an Ogg Opus stream (RFC 7845 §5.1). A plain
// Ogg marker with no such header could be Vorbis or FLAC-in-Ogg, which
// this decoder cannot play, so that case only goes to Unsure on
// extension; only the OpusHead payload match is Supported, since
// original_source's probe_can_play only ever treats Supported as a
// match (Unsure is a non-match like Unsupported).
func (descriptor) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	if len(data) >= 4 && string(data[:4]) == "OggS" && bytes.Contains(data, []byte("OpusHead")) {
		return pluginabi.Supported
	}
	if strings.HasSuffix(strings.ToLower(filename), ".opus") {
		return pluginabi.Unsure
	}
	return pluginabi.Unsupported
}

type instance struct {
	decoder *opus.Decoder
	format  audioformat.Format
}

func (descriptor) Create(svc pluginabi.ServiceHandle) (any, error) {
	return &instance{decoder: opus.NewDecoder()}, nil
}

func (descriptor) Destroy(userData any) {
	inst := userData.(*instance)
	_ = inst.decoder.Close()
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

func sampleFormatForBits(bps int) audioformat.SampleFormat {
	if bps == 8 {
		return audioformat.U8
	}
	return audioformat.S16
}

// RvPlaybackPlugin is the entry point pkg/registry looks up via
// Go's plugin.Lookup.
func RvPlaybackPlugin() pluginabi.Decoder {
	return descriptor{}
}
