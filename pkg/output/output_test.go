package output

import (
	"testing"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

type fakeRequester struct {
	result Result
}

func (f *fakeRequester) RequestData(format audioformat.Format, frames int) Result {
	return f.result
}

type fakeOutputPlugin struct {
	started bool
	stopped bool
	cb      pluginabi.PlaybackCallback
}

func (f *fakeOutputPlugin) Name() string                                   { return "fake" }
func (f *fakeOutputPlugin) Create(svc pluginabi.ServiceHandle) (any, error) { return nil, nil }
func (f *fakeOutputPlugin) Destroy(userData any)                           {}
func (f *fakeOutputPlugin) OutputTargetsInfo() []string                   { return []string{"default"} }
func (f *fakeOutputPlugin) Start(userData any, cb pluginabi.PlaybackCallback) error {
	f.started = true
	f.cb = cb
	return nil
}
func (f *fakeOutputPlugin) Stop(userData any) error {
	f.stopped = true
	return nil
}

func TestPickFirstReturnsErrorOnEmpty(t *testing.T) {
	if _, err := PickFirst(nil); err != ErrNoOutputPlugin {
		t.Fatalf("expected ErrNoOutputPlugin, got %v", err)
	}
}

func TestDriverPullPadsShortOutOfDataResult(t *testing.T) {
	format := audioformat.Internal
	req := &fakeRequester{result: Result{Kind: ResultOutOfData, Bytes: []byte{1, 2, 3, 4}}}
	plugin := &fakeOutputPlugin{}
	d := New(plugin, nil, format, req)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := plugin.cb.Pull(format, 4)
	want := format.Bytes(4)
	if len(got) != want {
		t.Fatalf("expected %d bytes, got %d", want, len(got))
	}
	if d.Underruns() != 1 {
		t.Fatalf("expected one underrun recorded for out-of-data, got %d", d.Underruns())
	}
}

func TestDriverPullReturnsSilenceOnNoData(t *testing.T) {
	format := audioformat.Internal
	req := &fakeRequester{result: Result{Kind: ResultNoData}}
	plugin := &fakeOutputPlugin{}
	d := New(plugin, nil, format, req)
	_ = d.Start()

	got := plugin.cb.Pull(format, 8)
	for _, b := range got {
		if b != 0 {
			t.Fatalf("expected silence on no-data result, got non-zero byte")
		}
	}
}

func TestDriverPullPassesThroughFullData(t *testing.T) {
	format := audioformat.Internal
	full := make([]byte, format.Bytes(4))
	for i := range full {
		full[i] = byte(i + 1)
	}
	req := &fakeRequester{result: Result{Kind: ResultData, Bytes: full}}
	plugin := &fakeOutputPlugin{}
	d := New(plugin, nil, format, req)
	_ = d.Start()

	got := plugin.cb.Pull(format, 4)
	if len(got) != len(full) {
		t.Fatalf("expected %d bytes, got %d", len(full), len(got))
	}
	for i := range full {
		if got[i] != full[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], full[i])
		}
	}
	if d.Underruns() != 0 {
		t.Fatalf("expected no underruns on full data, got %d", d.Underruns())
	}
}
