// Package main builds as a Go plugin exposing a SoXR-based resampler
// under the RvResamplePlugin entry point. github.com/zaf/resample
// wraps libsoxr behind a streaming io.Writer: cmd/transform.go feeds
// it a full file's worth of bytes in one Write and reads the result
// back out of the io.Writer it was constructed with. This plugin
// adapts that shape to pluginabi.Resampler's pull-per-call Convert by
// giving it a bytes.Buffer as its target writer and draining that
// buffer after every Write.
package main

import (
	"bytes"
	"fmt"

	soxr "github.com/zaf/resample"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

type descriptor struct{}

func (descriptor) Name() string { return "soxr" }

type instance struct {
	out *bytes.Buffer
	res *soxr.Resampler
	cfg pluginabi.ConvertConfig
}

func (descriptor) Create(svc pluginabi.ServiceHandle) (any, error) {
	return &instance{out: &bytes.Buffer{}}, nil
}

func (descriptor) Destroy(userData any) {
	inst := userData.(*instance)
	if inst.res != nil {
		_ = inst.res.Close()
	}
}

func soxrFormatFor(s audioformat.SampleFormat) (soxr.Format, error) {
	switch s {
	case audioformat.S16:
		return soxr.I16, nil
	case audioformat.S32:
		return soxr.I32, nil
	case audioformat.F32:
		return soxr.F32, nil
	default:
		return 0, fmt.Errorf("soxr: unsupported sample format %v", s)
	}
}

func (descriptor) SetConfig(userData any, cfg pluginabi.ConvertConfig) error {
	inst := userData.(*instance)
	if inst.res != nil {
		_ = inst.res.Close()
		inst.res = nil
	}
	inst.out.Reset()

	format, err := soxrFormatFor(cfg.Input.Sample)
	if err != nil {
		return err
	}

	res, err := soxr.New(inst.out, float64(cfg.Input.SampleRate), float64(cfg.Output.SampleRate), cfg.Input.Channels, format, soxr.HighQ)
	if err != nil {
		return fmt.Errorf("soxr: create resampler: %w", err)
	}

	inst.res = res
	inst.cfg = cfg
	return nil
}

func (descriptor) Convert(userData any, dst, src []byte, inFrames int) (int, error) {
	inst := userData.(*instance)
	if inst.res == nil {
		return 0, fmt.Errorf("soxr: Convert called before SetConfig")
	}

	inBytes := inFrames * inst.cfg.Input.BytesPerFrame()
	if inBytes > len(src) {
		inBytes = len(src)
	}

	inst.out.Reset()
	if _, err := inst.res.Write(src[:inBytes]); err != nil {
		return 0, fmt.Errorf("soxr: write: %w", err)
	}

	n := copy(dst, inst.out.Bytes())
	return n / inst.cfg.Output.BytesPerFrame(), nil
}

func (descriptor) RequiredInputFrameCount(userData any, outFrames int) int {
	inst := userData.(*instance)
	if inst.cfg.Output.SampleRate == 0 {
		return outFrames
	}
	ratio := float64(inst.cfg.Input.SampleRate) / float64(inst.cfg.Output.SampleRate)
	return int(float64(outFrames)*ratio) + 1
}

func (descriptor) ExpectedOutputFrameCount(userData any, inFrames int) int {
	inst := userData.(*instance)
	if inst.cfg.Input.SampleRate == 0 {
		return inFrames
	}
	ratio := float64(inst.cfg.Output.SampleRate) / float64(inst.cfg.Input.SampleRate)
	return int(float64(inFrames) * ratio)
}

// RvResamplePlugin is the entry point pkg/registry looks up via Go's
// plugin.Lookup.
func RvResamplePlugin() pluginabi.Resampler {
	return descriptor{}
}
