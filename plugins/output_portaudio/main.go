// Package main builds as a Go plugin exposing a PortAudio output
// device under the RvOutputPlugin entry point. Its write loop is
// lifted from the teacher's own "callback" example
// (pkg/audioplayer/examples/play_callback), which despite the name
// drives github.com/drgolem/go-portaudio with a plain goroutine
// calling the blocking PaStream.Write in a loop rather than a true
// native PortAudio callback; this plugin keeps that shape and sources
// each iteration's buffer from pluginabi.PlaybackCallback.Pull instead
// of a ring buffer the teacher's producer goroutine filled.
package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

const defaultFramesPerBuffer = 512

type descriptor struct{}

func (descriptor) Name() string { return "portaudio" }

func (descriptor) OutputTargetsInfo() []string { return []string{"default"} }

type instance struct {
	stream *portaudio.PaStream

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func (descriptor) Create(svc pluginabi.ServiceHandle) (any, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &instance{stopCh: make(chan struct{})}, nil
}

func (descriptor) Destroy(userData any) {
	portaudio.Terminate()
}

func sampleFmtFor(format audioformat.Format) (portaudio.PaSampleFormat, error) {
	switch format.Sample {
	case audioformat.S16:
		return portaudio.SampleFmtInt16, nil
	case audioformat.S24:
		return portaudio.SampleFmtInt24, nil
	case audioformat.S32, audioformat.F32:
		return portaudio.SampleFmtInt32, nil
	default:
		return 0, fmt.Errorf("portaudio: unsupported sample format %v", format.Sample)
	}
}

// Start opens a stream sized for audioformat.Internal and runs a
// goroutine that repeatedly pulls one buffer's worth of frames from
// cb and writes it to the stream, mirroring the teacher's producer
// loop but with the engine's GetData rendezvous standing in for the
// ringbuffer read.
func (descriptor) Start(userData any, cb pluginabi.PlaybackCallback) error {
	inst := userData.(*instance)
	format := audioformat.Internal

	sampleFmt, err := sampleFmtFor(format)
	if err != nil {
		return err
	}

	stream, err := portaudio.NewStream(portaudio.PaStreamParameters{
		DeviceIndex:  -1,
		ChannelCount: format.Channels,
		SampleFormat: sampleFmt,
	}, float64(format.SampleRate))
	if err != nil {
		return fmt.Errorf("portaudio: create stream: %w", err)
	}
	if err := stream.Open(defaultFramesPerBuffer); err != nil {
		return fmt.Errorf("portaudio: open stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	inst.stream = stream
	inst.wg.Add(1)
	go inst.writeLoop(cb, format)
	return nil
}

func (inst *instance) writeLoop(cb pluginabi.PlaybackCallback, format audioformat.Format) {
	defer inst.wg.Done()
	for {
		select {
		case <-inst.stopCh:
			return
		default:
		}

		buf := cb.Pull(format, defaultFramesPerBuffer)
		frames := len(buf) / format.BytesPerFrame()
		if frames == 0 {
			continue
		}
		if err := inst.stream.Write(frames, buf[:frames*format.BytesPerFrame()]); err != nil {
			slog.Error("portaudio: write failed", "error", err)
			return
		}
	}
}

func (descriptor) Stop(userData any) error {
	inst := userData.(*instance)

	inst.mu.Lock()
	if inst.stopped {
		inst.mu.Unlock()
		return nil
	}
	inst.stopped = true
	inst.mu.Unlock()

	close(inst.stopCh)
	inst.wg.Wait()

	if inst.stream == nil {
		return nil
	}
	if err := inst.stream.StopStream(); err != nil {
		slog.Warn("portaudio: stop stream", "error", err)
	}
	return inst.stream.Close()
}

// RvOutputPlugin is the entry point pkg/registry looks up via Go's
// plugin.Lookup.
func RvOutputPlugin() pluginabi.Output {
	return descriptor{}
}
