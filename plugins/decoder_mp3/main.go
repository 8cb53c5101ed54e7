// Package main builds as a Go plugin exposing an MP3 decoder under the
// RvPlaybackPlugin entry point. Unlike decoder_flac, this one is not a
// thin wrap of an existing teacher package: the teacher's own
// pkg/decoders/mp3 binds github.com/drgolem/go-mpg123, a cgo-backed
// decoder this project does not depend on. This plugin instead drives
// github.com/imcarsen/go-mp3 directly, a pure-Go io.Reader decoder in
// the same family as hajimehoshi/go-mp3: NewDecoder wraps a source
// reader and exposes SampleRate plus a plain Read.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/imcarsen/go-mp3"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

type descriptor struct{}

func (descriptor) Name() string    { return "mp3" }
func (descriptor) Version() string { return "1.0" }

func (descriptor) SupportedExtensions() []string { return []string{".mp3"} }

// ProbeCanPlay looks for an ID3v2 tag or an MPEG frame sync pattern
// (0xFFE at the top of the first two bytes covers all four MPEG
// versions). Neither check is a guarantee, hence Unsure rather than
// Supported when only the extension matches.
func (descriptor) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return pluginabi.Supported
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return pluginabi.Supported
	}
	if strings.HasSuffix(strings.ToLower(filename), ".mp3") {
		return pluginabi.Unsure
	}
	return pluginabi.Unsupported
}

type instance struct {
	file    *os.File
	decoder *mp3.Decoder
	format  audioformat.Format
}

func (descriptor) Create(svc pluginabi.ServiceHandle) (any, error) {
	return &instance{}, nil
}

func (descriptor) Destroy(userData any) {
	inst := userData.(*instance)
	if inst.file != nil {
		_ = inst.file.Close()
	}
}

// Open decodes to 16-bit stereo PCM; go-mp3 always produces that
// regardless of the source's channel count, resampling mono up to
// stereo internally.
func (descriptor) Open(userData any, url string, subsong int, svc pluginabi.ServiceHandle) error {
	inst := userData.(*instance)

	f, err := os.Open(url)
	if err != nil {
		return fmt.Errorf("mp3: open %s: %w", url, err)
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("mp3: decode %s: %w", url, err)
	}

	inst.file = f
	inst.decoder = dec
	inst.format = audioformat.Format{Sample: audioformat.S16, Channels: 2, SampleRate: dec.SampleRate()}
	return nil
}

func (descriptor) Close(userData any) error {
	inst := userData.(*instance)
	if inst.file == nil {
		return nil
	}
	return inst.file.Close()
}

func (descriptor) ReadData(userData any, dst []byte, maxFrames int) (pluginabi.ReadInfo, error) {
	inst := userData.(*instance)
	want := maxFrames * inst.format.BytesPerFrame()
	if want > len(dst) {
		want = len(dst) - (len(dst) % inst.format.BytesPerFrame())
	}

	n, err := io.ReadFull(inst.decoder, dst[:want])
	frames := n / inst.format.BytesPerFrame()
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return pluginabi.ReadInfo{}, fmt.Errorf("mp3: read: %w", err)
	}

	status := pluginabi.Ok
	if frames == 0 || errors.Is(err, io.EOF) {
		status = pluginabi.Finished
	}
	return pluginabi.ReadInfo{Format: inst.format, FrameCount: frames, Status: status}, nil
}

// RvPlaybackPlugin is the entry point pkg/registry looks up via
// Go's plugin.Lookup.
func RvPlaybackPlugin() pluginabi.Decoder {
	return descriptor{}
}
