package playback

import (
	"testing"
	"time"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

// scriptedDecoder produces a fixed sequence of frame counts, one per
// ReadData call, reporting Finished from the last entry on and
// repeating that last entry for any later call. It lets
// tests drive the engine's update loop deterministically without a
// real codec.
type scriptedDecoder struct {
	format     audioformat.Format
	framesEach []int
	call       int
	destroyed  bool
}

func (d *scriptedDecoder) Name() string    { return "scripted" }
func (d *scriptedDecoder) Version() string { return "test" }
func (d *scriptedDecoder) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	return pluginabi.Unsure
}
func (d *scriptedDecoder) SupportedExtensions() []string { return []string{".test"} }
func (d *scriptedDecoder) Create(svc pluginabi.ServiceHandle) (any, error) { return d, nil }
func (d *scriptedDecoder) Destroy(userData any)                           { d.destroyed = true }
func (d *scriptedDecoder) Open(userData any, url string, subsong int, svc pluginabi.ServiceHandle) error {
	return nil
}
func (d *scriptedDecoder) Close(userData any) error { return nil }

func (d *scriptedDecoder) ReadData(userData any, dst []byte, maxFrames int) (pluginabi.ReadInfo, error) {
	idx := d.call
	if idx >= len(d.framesEach) {
		idx = len(d.framesEach) - 1
	}
	frames := d.framesEach[idx]
	if frames > maxFrames {
		frames = maxFrames
	}
	d.call++

	status := pluginabi.Ok
	if d.call >= len(d.framesEach) {
		status = pluginabi.Finished
	}

	n := d.format.Bytes(frames)
	for i := range dst[:n] {
		dst[i] = byte(i)
	}

	return pluginabi.ReadInfo{Format: d.format, FrameCount: frames, Status: status}, nil
}

type passthroughResampler struct{}

func (passthroughResampler) Name() string                                   { return "passthrough" }
func (passthroughResampler) Create(svc pluginabi.ServiceHandle) (any, error) { return nil, nil }
func (passthroughResampler) Destroy(userData any)                           {}
func (passthroughResampler) SetConfig(userData any, cfg pluginabi.ConvertConfig) error {
	return nil
}
func (passthroughResampler) Convert(userData any, dst, src []byte, inFrames int) (int, error) {
	n := copy(dst, src)
	return n / audioformat.Internal.BytesPerFrame(), nil
}
func (passthroughResampler) RequiredInputFrameCount(userData any, outFrames int) int { return outFrames }
func (passthroughResampler) ExpectedOutputFrameCount(userData any, inFrames int) int { return inFrames }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(Config{
		NewResampler: func() (pluginabi.Resampler, any, error) {
			return passthroughResampler{}, nil, nil
		},
	})
}

func waitForSlotEvent(t *testing.T, ch <-chan SlotEvent, want SlotEvent) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("got event %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func TestEngineDecodesMatchingFormatIntoRing(t *testing.T) {
	e := newTestEngine(t)
	go e.Run()
	defer e.Stop()

	decoder := &scriptedDecoder{format: audioformat.Internal, framesEach: []int{256, 256, 0}}
	reply := make(chan SlotEvent, 2)
	e.Send(QueuePlayback{
		Instance: &pluginabi.DecoderInstance{Plugin: decoder, UserData: decoder},
		Reply:    reply,
	})

	waitForSlotEvent(t, reply, EventPlaybackStarted)
	waitForSlotEvent(t, reply, EventPlaybackEnded)

	if !decoder.destroyed {
		t.Fatalf("expected decoder to be destroyed once finished")
	}
	avail, _ := e.BufferStatus()
	if avail == 0 {
		t.Fatalf("expected some decoded bytes to have reached the ring")
	}
}

func TestEngineGetDataReturnsNoDataOnEmptyRing(t *testing.T) {
	e := newTestEngine(t)
	go e.Run()
	defer e.Stop()

	reply := make(chan DataResult, 1)
	e.Send(GetData{Format: audioformat.Internal, Frames: 128, Reply: reply})

	select {
	case res := <-reply:
		if res.Kind != ResultNoData {
			t.Fatalf("expected ResultNoData on empty ring, got %v", res.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for GetData reply")
	}
}

func TestEngineGetDataServesMatchingFormatFromRing(t *testing.T) {
	e := newTestEngine(t)
	go e.Run()
	defer e.Stop()

	decoder := &scriptedDecoder{format: audioformat.Internal, framesEach: []int{512, 0}}
	reply := make(chan SlotEvent, 2)
	e.Send(QueuePlayback{
		Instance: &pluginabi.DecoderInstance{Plugin: decoder, UserData: decoder},
		Reply:    reply,
	})
	waitForSlotEvent(t, reply, EventPlaybackStarted)

	dataReply := make(chan DataResult, 1)
	e.Send(GetData{Format: audioformat.Internal, Frames: 64, Reply: dataReply})

	select {
	case res := <-dataReply:
		want := audioformat.Internal.Bytes(64)
		if res.Kind != ResultData {
			t.Fatalf("expected ResultData, got %v", res.Kind)
		}
		if len(res.Bytes) != want {
			t.Fatalf("expected %d bytes, got %d", want, len(res.Bytes))
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for GetData reply")
	}
}

func TestEngineGetDataAlwaysRepliesExactlyOnce(t *testing.T) {
	e := newTestEngine(t)
	go e.Run()
	defer e.Stop()

	for i := 0; i < 5; i++ {
		reply := make(chan DataResult, 1)
		e.Send(GetData{Format: audioformat.Internal, Frames: 32, Reply: reply})
		select {
		case <-reply:
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: expected exactly one reply", i)
		}
	}
}
