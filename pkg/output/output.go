// Package output implements the output driver (spec section 4.4): it
// owns exactly one output plugin instance and bridges that plugin's
// realtime callback thread to the playback engine's single-rendezvous
// GetData message, the same way the teacher's audioplayer.Player
// bridges a PortAudio stream callback to its ringbuffer consumer, but
// generalized to an arbitrary plugin-supplied Output instead of a
// hardwired portaudio.PaStream.
package output

import (
	"errors"
	"log/slog"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

// ErrNoOutputPlugin is returned when the registry has no output plugin
// to pick from (spec 4.4: "pick the first output plugin in the
// registry list").
var ErrNoOutputPlugin = errors.New("output: no output plugin registered")

// ResultKind classifies a data request's outcome, mirroring
// pkg/playback.DataResultKind without importing that package: the
// output driver only needs to know how to fill a realtime buffer, not
// any engine internals. pkg/core adapts playback.DataResult into
// Result when it wires an engine to a Driver.
type ResultKind int

const (
	ResultData ResultKind = iota
	ResultNoData
	ResultOutOfData
	ResultInvalidRequest
)

// Result is what a Requester hands back for one pull.
type Result struct {
	Kind  ResultKind
	Bytes []byte
}

// Requester is the one rendezvous point the output driver's realtime
// thread crosses into the rest of the core: a single blocking call
// that must always return promptly. pkg/core implements this on top of
// the playback engine's GetData message.
type Requester interface {
	RequestData(format audioformat.Format, frames int) Result
}

// Driver owns a single output plugin instance and keeps it fed via
// Requester.RequestData from the plugin's own realtime thread.
type Driver struct {
	plugin   pluginabi.Output
	userData any
	format   audioformat.Format
	src      Requester

	underruns uint64
}

// PickFirst selects the first output plugin out of a registry-shaped
// list of candidates, per spec 4.4's "pick first" policy. Returns
// ErrNoOutputPlugin if outputs is empty.
func PickFirst(outputs []pluginabi.Output) (pluginabi.Output, error) {
	if len(outputs) == 0 {
		return nil, ErrNoOutputPlugin
	}
	return outputs[0], nil
}

// New creates a Driver around plugin, already created via
// plugin.Create, bound to the given callback format and backed by src
// for data.
func New(plugin pluginabi.Output, userData any, format audioformat.Format, src Requester) *Driver {
	return &Driver{plugin: plugin, userData: userData, format: format, src: src}
}

// Start begins playback: the output plugin is handed a callback it
// will invoke from its own realtime thread whenever it needs more
// frames.
func (d *Driver) Start() error {
	return d.plugin.Start(d.userData, pluginabi.PlaybackCallback{Pull: d.pull})
}

// Stop halts the output plugin's realtime thread.
func (d *Driver) Stop() error {
	return d.plugin.Stop(d.userData)
}

// Destroy releases the underlying plugin instance. The driver must not
// be used afterward.
func (d *Driver) Destroy() {
	d.plugin.Destroy(d.userData)
}

// pull is invoked on the output plugin's realtime thread. It must
// never block indefinitely: the Requester round trip is the single
// allowed rendezvous point in the realtime path (spec section 4.4).
// The plugin always gets the full requested length: a short reply
// keeps its bytes and is padded with silence, and NoData or an
// unexpected reply yields all silence.
func (d *Driver) pull(format audioformat.Format, frames int) []byte {
	res := d.src.RequestData(format, frames)
	want := format.Bytes(frames)

	switch res.Kind {
	case ResultData:
		if len(res.Bytes) >= want {
			return res.Bytes[:want]
		}
		out := make([]byte, want)
		copy(out, res.Bytes)
		return out
	case ResultOutOfData:
		out := make([]byte, want)
		copy(out, res.Bytes)
		d.underruns++
		return out
	case ResultNoData:
		d.underruns++
		return make([]byte, want)
	default:
		slog.Error("output: unexpected data result kind, returning silence", "kind", res.Kind)
		d.underruns++
		return make([]byte, want)
	}
}

// Underruns reports how many realtime pulls had to be padded with
// silence because the engine had no data ready.
func (d *Driver) Underruns() uint64 {
	return d.underruns
}
