package core

import (
	"testing"
	"time"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
	"github.com/retrovert-audio/core/pkg/playlist"
	"github.com/retrovert-audio/core/pkg/vfs"
)

type fakeVfs struct{}

func (fakeVfs) LoadURL(url string) vfs.Handle {
	ch := make(chan vfs.Event, 1)
	ch <- vfs.Event{Kind: vfs.EventReadDone, Data: []byte("pcm-bytes")}
	close(ch)
	return vfs.Handle{Recv: ch}
}

type fakeDecoder struct{}

func (fakeDecoder) Name() string    { return "fake" }
func (fakeDecoder) Version() string { return "1" }
func (fakeDecoder) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	return pluginabi.Supported
}
func (fakeDecoder) SupportedExtensions() []string                   { return []string{".fake"} }
func (fakeDecoder) Create(svc pluginabi.ServiceHandle) (any, error) { return struct{}{}, nil }
func (fakeDecoder) Destroy(userData any)                            {}
func (fakeDecoder) Open(userData any, url string, subsong int, svc pluginabi.ServiceHandle) error {
	return nil
}
func (fakeDecoder) Close(userData any) error { return nil }
func (fakeDecoder) ReadData(userData any, dst []byte, maxFrames int) (pluginabi.ReadInfo, error) {
	return pluginabi.ReadInfo{Format: audioformat.Internal, Status: pluginabi.Finished}, nil
}

type fakeOutput struct{}

func (fakeOutput) Name() string                                   { return "fakeout" }
func (fakeOutput) Create(svc pluginabi.ServiceHandle) (any, error) { return struct{}{}, nil }
func (fakeOutput) Destroy(userData any)                            {}
func (fakeOutput) OutputTargetsInfo() []string                     { return []string{"default"} }
func (fakeOutput) Start(userData any, cb pluginabi.PlaybackCallback) error {
	go func() {
		cb.Pull(audioformat.Internal, 64)
	}()
	return nil
}
func (fakeOutput) Stop(userData any) error { return nil }

type fakeResampler struct{}

func (fakeResampler) Name() string                                   { return "fakeresample" }
func (fakeResampler) Create(svc pluginabi.ServiceHandle) (any, error) { return nil, nil }
func (fakeResampler) Destroy(userData any)                            {}
func (fakeResampler) SetConfig(userData any, cfg pluginabi.ConvertConfig) error {
	return nil
}
func (fakeResampler) Convert(userData any, dst, src []byte, inFrames int) (int, error) {
	n := copy(dst, src)
	return n / audioformat.Internal.BytesPerFrame(), nil
}
func (fakeResampler) RequiredInputFrameCount(userData any, outFrames int) int { return outFrames }
func (fakeResampler) ExpectedOutputFrameCount(userData any, inFrames int) int { return inFrames }

func TestCoreStartFailsWithoutOutputPlugin(t *testing.T) {
	c, err := New(Config{Vfs: fakeVfs{}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatalf("expected Start to fail with no output plugin registered")
	}
}

func TestCoreStartStopRoundTrip(t *testing.T) {
	c, err := New(Config{Vfs: fakeVfs{}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Registry().RegisterDecoder(fakeDecoder{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Registry().RegisterOutput(fakeOutput{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Registry().RegisterResampler(fakeResampler{}); err != nil {
		t.Fatal(err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	handle := c.AddURL("song.fake")
	select {
	case reply := <-handle.Recv:
		if reply.Kind != playlist.ReplyPlaybackStarted {
			t.Fatalf("expected ReplyPlaybackStarted, got %v", reply.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to start")
	}
}
