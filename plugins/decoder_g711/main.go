// Package main builds as a Go plugin exposing a raw G.711 (mu-law /
// A-law) decoder under the RvPlaybackPlugin entry point. These are
// headerless telephony formats: the whole file is samples, with no
// magic bytes to key off, so ProbeCanPlay can only ever reach Unsure
// on extension. The playlist driver's plugin probe only opens a
// decoder on a definite Supported answer (original_source's
// probe_can_play treats Unsure the same as Unsupported), so this
// plugin is reachable through pkg/registry's capability lookup but
// never auto-selected by content probing; that is an inherent
// limitation of headerless formats, not a bug in the probe.
// github.com/zaf/g711 decodes a full buffer of companded bytes to
// linear 16-bit PCM at once rather than exposing a streaming reader,
// so Open reads the file into memory up front the same way a
// teacher's one-shot "transform" style command would.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/zaf/g711"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

const g711SampleRate = 8000

type descriptor struct{}

func (descriptor) Name() string    { return "g711" }
func (descriptor) Version() string { return "1.0" }

func (descriptor) SupportedExtensions() []string { return []string{".ulaw", ".alaw", ".ul", ".al"} }

func (descriptor) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".ulaw") || strings.HasSuffix(lower, ".ul") || strings.HasSuffix(lower, ".alaw") || strings.HasSuffix(lower, ".al") {
		return pluginabi.Unsure
	}
	return pluginabi.Unsupported
}

type instance struct {
	pcm    []int16
	pos    int
	format audioformat.Format
}

func (descriptor) Create(svc pluginabi.ServiceHandle) (any, error) {
	return &instance{}, nil
}

func (descriptor) Destroy(userData any) {}

func (descriptor) Open(userData any, url string, subsong int, svc pluginabi.ServiceHandle) error {
	inst := userData.(*instance)

	raw, err := os.ReadFile(url)
	if err != nil {
		return fmt.Errorf("g711: open %s: %w", url, err)
	}

	lower := strings.ToLower(url)
	var pcm []int16
	if strings.HasSuffix(lower, ".alaw") || strings.HasSuffix(lower, ".al") {
		pcm = g711.DecodeAlaw(raw)
	} else {
		pcm = g711.DecodeUlaw(raw)
	}

	inst.pcm = pcm
	inst.pos = 0
	inst.format = audioformat.Format{Sample: audioformat.S16, Channels: 1, SampleRate: g711SampleRate}
	return nil
}

func (descriptor) Close(userData any) error { return nil }

func (descriptor) ReadData(userData any, dst []byte, maxFrames int) (pluginabi.ReadInfo, error) {
	inst := userData.(*instance)
	remaining := len(inst.pcm) - inst.pos
	if remaining <= 0 {
		return pluginabi.ReadInfo{Format: inst.format, Status: pluginabi.Finished}, nil
	}

	frames := maxFrames
	if frames > remaining {
		frames = remaining
	}
	if frames*2 > len(dst) {
		frames = len(dst) / 2
	}

	for i := 0; i < frames; i++ {
		sample := inst.pcm[inst.pos+i]
		dst[i*2] = byte(sample)
		dst[i*2+1] = byte(sample >> 8)
	}
	inst.pos += frames

	status := pluginabi.Ok
	if inst.pos >= len(inst.pcm) {
		status = pluginabi.Finished
	}
	return pluginabi.ReadInfo{Format: inst.format, FrameCount: frames, Status: status}, nil
}

// RvPlaybackPlugin is the entry point pkg/registry looks up via
// Go's plugin.Lookup.
func RvPlaybackPlugin() pluginabi.Decoder {
	return descriptor{}
}
