// Package main builds as a Go plugin exposing a WAV decoder under the
// RvPlaybackPlugin entry point. It wraps the teacher's own
// pkg/decoders/wav.Decoder (a thin layer over github.com/youpy/go-wav
// and github.com/youpy/go-riff, the RIFF chunk walker go-wav builds
// on) behind pluginabi.Decoder, the same pattern decoder_flac uses.
package main

import (
	"strings"

	"github.com/retrovert-audio/core/pkg/decoders/wav"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

type descriptor struct{}

func (descriptor) Name() string    { return "wav" }
func (descriptor) Version() string { return "1.0" }

func (descriptor) SupportedExtensions() []string { return []string{".wav"} }

// ProbeCanPlay checks the "RIFF"...."WAVE" container markers go-riff
// reads; a WAV file carries both in its first 12 bytes.
func (descriptor) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	if len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return pluginabi.Supported
	}
	if strings.HasSuffix(strings.ToLower(filename), ".wav") {
		return pluginabi.Unsure
	}
	return pluginabi.Unsupported
}

type instance struct {
	decoder *wav.Decoder
	format  audioformat.Format
}

func (descriptor) Create(svc pluginabi.ServiceHandle) (any, error) {
	return &instance{decoder: wav.NewDecoder()}, nil
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
