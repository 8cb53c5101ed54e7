// Package main builds as a Go plugin exposing an Ogg Vorbis decoder
// under the RvPlaybackPlugin entry point. No teacher package wraps
// Vorbis, so this one is written fresh against
// github.com/jfreymuth/oggvorbis (itself built on
// github.com/jfreymuth/vorbis for the codebook/residue math), a
// pure-Go decoder that reads interleaved float32 samples directly
// off an io.Reader.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/jfreymuth/oggvorbis"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

type descriptor struct{}

func (descriptor) Name() string    { return "vorbis" }
func (descriptor) Version() string { return "1.0" }

func (descriptor) SupportedExtensions() []string { return []string{".ogg"} }

// ProbeCanPlay looks for the "\x01vorbis" identification header that
// opens the first page of an Ogg Vorbis stream. A bare Ogg marker with
// no such header could just as easily be Opus or FLAC-in-Ogg, which
// this decoder cannot play, so that only goes to Unsure on extension;
// only the vorbis header match is Supported, since original_source's
// probe_can_play only ever treats Supported as a match (Unsure is a
// non-match like Unsupported).
func (descriptor) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	if len(data) >= 4 && string(data[:4]) == "OggS" && bytes.Contains(data, []byte("\x01vorbis")) {
		return pluginabi.Supported
	}
	if strings.HasSuffix(strings.ToLower(filename), ".ogg") {
		return pluginabi.Unsure
	}
	return pluginabi.Unsupported
}

type instance struct {
	file    *os.File
	reader  *oggvorbis.Reader
	format  audioformat.Format
	scratch []float32
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

func (descriptor) Open(userData any, url string, subsong int, svc pluginabi.ServiceHandle) error {
	inst := userData.(*instance)

	f, err := os.Open(url)
	if err != nil {
		return fmt.Errorf("vorbis: open %s: %w", url, err)
	}

	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("vorbis: decode %s: %w", url, err)
	}

	inst.file = f
	inst.reader = reader
	inst.format = audioformat.Format{Sample: audioformat.F32, Channels: reader.Channels(), SampleRate: reader.SampleRate()}
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
	wantSamples := maxFrames * inst.format.Channels
	if cap(inst.scratch) < wantSamples {
		inst.scratch = make([]float32, wantSamples)
	}
	buf := inst.scratch[:wantSamples]

	n, err := inst.reader.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return pluginabi.ReadInfo{}, fmt.Errorf("vorbis: read: %w", err)
	}

	frames := n / inst.format.Channels
	for i := 0; i < n; i++ {
		putFloat32LE(dst[i*4:], buf[i])
	}

	status := pluginabi.Ok
	if frames == 0 || errors.Is(err, io.EOF) {
		status = pluginabi.Finished
	}
	return pluginabi.ReadInfo{Format: inst.format, FrameCount: frames, Status: status}, nil
}

func putFloat32LE(dst []byte, v float32) {
	bits := math.Float32bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}

// RvPlaybackPlugin is the entry point pkg/registry looks up via
// Go's plugin.Lookup.
func RvPlaybackPlugin() pluginabi.Decoder {
	return descriptor{}
}
