package playlist

import (
	"sync"
	"testing"
	"time"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
	"github.com/retrovert-audio/core/pkg/playback"
	"github.com/retrovert-audio/core/pkg/registry"
	"github.com/retrovert-audio/core/pkg/vfs"
)

type fakeVfs struct {
	mu     sync.Mutex
	events map[string][]vfs.Event
	calls  int
}

func (f *fakeVfs) LoadURL(url string) vfs.Handle {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	ch := make(chan vfs.Event, 8)
	evs := f.events[url]
	go func() {
		defer close(ch)
		for _, ev := range evs {
			ch <- ev
		}
	}()
	return vfs.Handle{Recv: ch}
}

func (f *fakeVfs) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEngine struct {
	mu     sync.Mutex
	queued []playback.QueuePlayback
}

func (f *fakeEngine) Send(msg playback.Message) {
	if q, ok := msg.(playback.QueuePlayback); ok {
		f.mu.Lock()
		f.queued = append(f.queued, q)
		f.mu.Unlock()
	}
}

func (f *fakeEngine) queuedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued)
}

type acceptingDecoder struct{ opened bool }

func (d *acceptingDecoder) Name() string    { return "accept" }
func (d *acceptingDecoder) Version() string { return "1" }
func (d *acceptingDecoder) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	return pluginabi.Supported
}
func (d *acceptingDecoder) SupportedExtensions() []string { return []string{".test"} }
func (d *acceptingDecoder) Create(svc pluginabi.ServiceHandle) (any, error) { return d, nil }
func (d *acceptingDecoder) Destroy(userData any)                           {}
func (d *acceptingDecoder) Open(userData any, url string, subsong int, svc pluginabi.ServiceHandle) error {
	d.opened = true
	return nil
}
func (d *acceptingDecoder) Close(userData any) error { return nil }
func (d *acceptingDecoder) ReadData(userData any, dst []byte, maxFrames int) (pluginabi.ReadInfo, error) {
	return pluginabi.ReadInfo{Format: audioformat.Internal, Status: pluginabi.Finished}, nil
}

type unsureDecoder struct{ opened bool }

func (d *unsureDecoder) Name() string    { return "unsure" }
func (d *unsureDecoder) Version() string { return "1" }
func (d *unsureDecoder) ProbeCanPlay(data []byte, filename string, totalSize int64) pluginabi.ProbeResult {
	return pluginabi.Unsure
}
func (d *unsureDecoder) SupportedExtensions() []string { return []string{".test"} }
func (d *unsureDecoder) Create(svc pluginabi.ServiceHandle) (any, error) { return d, nil }
func (d *unsureDecoder) Destroy(userData any)                           {}
func (d *unsureDecoder) Open(userData any, url string, subsong int, svc pluginabi.ServiceHandle) error {
	d.opened = true
	return nil
}
func (d *unsureDecoder) Close(userData any) error { return nil }
func (d *unsureDecoder) ReadData(userData any, dst []byte, maxFrames int) (pluginabi.ReadInfo, error) {
	return pluginabi.ReadInfo{Format: audioformat.Internal, Status: pluginabi.Finished}, nil
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestAddURLQueuesPlaybackOnReadDone(t *testing.T) {
	r := registry.New()
	dec := &acceptingDecoder{}
	if err := r.RegisterDecoder(dec); err != nil {
		t.Fatal(err)
	}

	vfsStub := &fakeVfs{events: map[string][]vfs.Event{
		"song.test": {{Kind: vfs.EventReadDone, Data: []byte("data")}},
	}}
	engine := &fakeEngine{}

	d := New(Config{Vfs: vfsStub, Registry: r, Engine: engine, Seed: 1})
	go d.Run()
	defer d.Stop()

	handle := d.AddURL("song.test")

	select {
	case reply := <-handle.Recv:
		if reply.Kind != ReplyPlaybackStarted {
			t.Fatalf("expected ReplyPlaybackStarted, got %v", reply.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	waitUntil(t, func() bool { return engine.queuedCount() == 1 })
	if !dec.opened {
		t.Fatalf("expected decoder Open to have been called")
	}
}

// TestUnsureDecoderNeverOpened confirms an Unsure probe result is
// treated as a non-match, never triggering Create+Open, even when a
// Supported decoder is also registered and does get opened. This
// mirrors original_source/core/src/plugin_handler.rs, which only ever
// maps ProbeResult::Supported to a match.
func TestUnsureDecoderNeverOpened(t *testing.T) {
	r := registry.New()
	unsure := &unsureDecoder{}
	accept := &acceptingDecoder{}
	if err := r.RegisterDecoder(unsure); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterDecoder(accept); err != nil {
		t.Fatal(err)
	}

	vfsStub := &fakeVfs{events: map[string][]vfs.Event{
		"song.test": {{Kind: vfs.EventReadDone, Data: []byte("data")}},
	}}
	engine := &fakeEngine{}

	d := New(Config{Vfs: vfsStub, Registry: r, Engine: engine, Seed: 1})
	go d.Run()
	defer d.Stop()

	handle := d.AddURL("song.test")

	select {
	case reply := <-handle.Recv:
		if reply.Kind != ReplyPlaybackStarted {
			t.Fatalf("expected ReplyPlaybackStarted, got %v", reply.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	waitUntil(t, func() bool { return engine.queuedCount() == 1 })
	if unsure.opened {
		t.Fatalf("Unsure decoder should never have been opened")
	}
	if !accept.opened {
		t.Fatalf("expected Supported decoder to have been opened")
	}
}

func TestAddURLNotFoundReplies(t *testing.T) {
	r := registry.New()
	vfsStub := &fakeVfs{events: map[string][]vfs.Event{
		"missing.test": {{Kind: vfs.EventNotFound}},
	}}
	engine := &fakeEngine{}

	d := New(Config{Vfs: vfsStub, Registry: r, Engine: engine, Seed: 1})
	go d.Run()
	defer d.Stop()

	handle := d.AddURL("missing.test")

	select {
	case reply := <-handle.Recv:
		if reply.Kind != ReplyNotFound {
			t.Fatalf("expected ReplyNotFound, got %v", reply.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestRandomizeGivesUpAfterMissedTries(t *testing.T) {
	r := registry.New()
	vfsStub := &fakeVfs{events: map[string][]vfs.Event{
		"empty-dir": {{Kind: vfs.EventDirectory, Listing: vfs.Listing{}}},
	}}
	engine := &fakeEngine{}

	d := New(Config{Vfs: vfsStub, Registry: r, Engine: engine, Seed: 1})
	go d.Run()
	defer d.Stop()

	d.PlayURL("empty-dir")

	// The initial load plus one re-query after each of the first
	// missedRandomizeLimit-1 empty listings makes missedRandomizeLimit
	// loads; the last empty listing reverts the driver to Default mode
	// instead of re-querying, so the call count must stop growing.
	waitUntil(t, func() bool { return vfsStub.callCount() >= missedRandomizeLimit })
	stable := vfsStub.callCount()
	time.Sleep(50 * time.Millisecond)
	if vfsStub.callCount() != stable {
		t.Fatalf("expected vfs calls to stop after giving up, went from %d to %d", stable, vfsStub.callCount())
	}
}
