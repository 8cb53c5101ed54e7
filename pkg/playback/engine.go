// Package playback implements the decoder thread (spec section 4.3):
// it pulls frames from the currently active decoder instance,
// resamples them into the internal PCM format, fills the ring buffer,
// and serves GetData requests from the output realtime callback.
//
// The engine owns all of its state on a single goroutine; everything
// else talks to it only through the Message channel (spec section 5:
// "single-writer single-reader via messages — no shared mutation, so
// no locks needed inside the engine"). This mirrors the producer/
// consumer split in the teacher's pkg/audioplayer.Player, generalized
// from a single hardwired file decoder to an arbitrary queue of
// plugin-backed decoder instances with format-converting resamplers
// in between.
package playback

import (
	"log/slog"
	"time"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
	"github.com/retrovert-audio/core/pkg/ringbuf"
)

const (
	// framesPerDecodeCall bounds how much a single ReadData call is
	// asked to produce (spec 4.3.1 step 3).
	framesPerDecodeCall = 1024

	// scratchFrameCapacity sizes the two scratch buffers T0/T1 at the
	// maximum of one second of internal-format audio, matching spec
	// 4.3.3's "two of 48000 * 4 * 2 bytes".
	scratchFrameCapacity = 48000
)

// ResamplerFactory creates a fresh resampler plugin instance, used
// once for the "plugin resampler" (decoder output -> internal format)
// and once for the "output resampler" (internal format -> callback
// format). Supplied by the core facade, which knows how to pick the
// first resampler plugin out of the registry (spec 4.4's "pick the
// first ... in the registry list" policy, applied here to resamplers
// too since spec section 3 gives no other selection rule).
type ResamplerFactory func() (plugin pluginabi.Resampler, userData any, err error)

type slot struct {
	instance *pluginabi.DecoderInstance
	reply    chan<- SlotEvent
	started  bool
}

type resamplerState struct {
	plugin    pluginabi.Resampler
	userData  any
	configured bool
	current   pluginabi.ConvertConfig
}

// Engine is the playback engine (C4). Create one with New, then run it
// on its own goroutine with Run.
type Engine struct {
	internal audioformat.Format
	ring     *ringbuf.RingBuffer

	msgCh chan Message
	stop  chan struct{}
	done  chan struct{}

	slots []slot

	pluginResampler resamplerState
	outputResampler resamplerState

	lastRequestFormat      audioformat.Format
	haveLastRequestFormat  bool

	scratchT0 []byte
	scratchT1 []byte

	newResampler ResamplerFactory
}

// Config configures a new Engine.
type Config struct {
	// Internal is the canonical PCM format the ring buffer stores.
	// Defaults to audioformat.Internal (F32/2ch/48kHz) if zero.
	Internal audioformat.Format
	// RingSeconds sizes the ring buffer in seconds of Internal-format
	// audio. Defaults to 2 (spec 4.3.3).
	RingSeconds float64
	// NewResampler is called (lazily) to obtain the plugin/output
	// resampler instances. Required.
	NewResampler ResamplerFactory
	// MessageQueueDepth bounds how many in-flight messages the engine
	// will buffer before a sender blocks (spec 8 invariant 5: bounded
	// per-thread message count).
	MessageQueueDepth int
}

// New creates an Engine that is not yet running; call Run on a
// goroutine to start its loop.
func New(cfg Config) *Engine {
	internal := cfg.Internal
	if internal == (audioformat.Format{}) {
		internal = audioformat.Internal
	}
	ringSeconds := cfg.RingSeconds
	if ringSeconds <= 0 {
		ringSeconds = 2
	}
	queueDepth := cfg.MessageQueueDepth
	if queueDepth <= 0 {
		queueDepth = 64
	}

	ringBytes := internal.Bytes(int(float64(internal.SampleRate) * ringSeconds))

	return &Engine{
		internal:     internal,
		ring:         ringbuf.New(ringBytes),
		msgCh:        make(chan Message, queueDepth),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		scratchT0:    make([]byte, internal.Bytes(scratchFrameCapacity)),
		scratchT1:    make([]byte, internal.Bytes(scratchFrameCapacity)),
		newResampler: cfg.NewResampler,
	}
}

// Send delivers a message to the engine. Safe to call from any
// goroutine; QueuePlayback is typically sent by the playlist driver,
// GetData by the output realtime bridge.
func (e *Engine) Send(msg Message) {
	e.msgCh <- msg
}

// Stop asks the engine's Run loop to exit and waits for it to do so.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

// BufferStatus reports the current ring buffer occupancy, for
// diagnostics and status reporting (mirrors
// audioplayer.Player.GetBufferStatus in the teacher).
func (e *Engine) BufferStatus() (available, capacity uint64) {
	return e.ring.AvailableRead(), e.ring.Len()
}

// Run is the engine's main loop (spec section 4.3): on each iteration,
// try one non-blocking message receive, then call update; sleep 1ms
// only when update did no productive work, so the loop stays
// responsive to GetData's realtime rendezvous.
func (e *Engine) Run() {
	defer close(e.done)

	for {
		select {
		case <-e.stop:
			return
		case msg := <-e.msgCh:
			e.handle(msg)
		default:
		}

		if !e.update() {
			select {
			case <-e.stop:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}
}

func (e *Engine) handle(msg Message) {
	switch m := msg.(type) {
	case QueuePlayback:
		e.slots = append(e.slots, slot{instance: m.Instance, reply: m.Reply})
	case GetData:
		e.getData(m)
	default:
		slog.Error("playback: received unrecognized message type")
	}
}

// update performs one unit of decode/resample/fill work. It returns
// false when it did nothing productive this iteration (no active
// slot, backpressure gate closed, or decoder produced zero frames),
// which tells Run it's safe to sleep.
func (e *Engine) update() bool {
	if len(e.slots) == 0 {
		return false
	}

	// Backpressure gate (spec 4.3.1 step 2): keep roughly half the ring
	// as lookahead and bound CPU usage.
	if e.ring.AvailableRead() >= e.ring.Len()/2 {
		return false
	}

	cur := &e.slots[0]
	decoder := cur.instance.Plugin
	userData := cur.instance.UserData

	maxBytes := e.internal.Bytes(framesPerDecodeCall)
	if len(e.scratchT0) < maxBytes {
		e.scratchT0 = make([]byte, maxBytes)
	}

	info, err := decoder.ReadData(userData, e.scratchT0[:maxBytes], framesPerDecodeCall)
	if err != nil {
		slog.Error("playback: decoder read_data failed", "error", err)
		e.finishSlot(cur)
		return true
	}

	if info.FrameCount > 0 {
		if info.Format.Equal(e.internal) {
			n := e.internal.Bytes(info.FrameCount)
			if werr := e.ring.Write(e.scratchT0[:n]); werr != nil {
				slog.Debug("playback: ring full, deferring write", "error", werr)
			}
		} else {
			e.writeResampled(info)
		}
		e.checkRingInvariant()
	}

	if info.Status == pluginabi.Finished {
		if !cur.started {
			// A decoder that finishes without ever reporting partial
			// progress still gets a Started notification so the
			// playlist's active_songs bookkeeping stays consistent.
			e.notifyStarted(cur)
		}
		e.finishSlot(cur)
		return true
	}

	if !cur.started && info.FrameCount > 0 {
		e.notifyStarted(cur)
	}

	return info.FrameCount > 0
}

func (e *Engine) notifyStarted(s *slot) {
	s.started = true
	select {
	case s.reply <- EventPlaybackStarted:
	default:
	}
}

func (e *Engine) finishSlot(s *slot) {
	s.instance.Plugin.Destroy(s.instance.UserData)
	select {
	case s.reply <- EventPlaybackEnded:
	default:
	}
	e.slots = e.slots[1:]
}

// writeResampled drives the plugin resampler (decoder output -> internal
// format), per spec 4.3.1 step 5.
func (e *Engine) writeResampled(info pluginabi.ReadInfo) {
	if err := e.ensurePluginResampler(); err != nil {
		slog.Error("playback: no resampler plugin available", "error", err)
		return
	}

	cfg := pluginabi.ConvertConfig{Input: info.Format, Output: e.internal}
	if !e.pluginResampler.configured || e.pluginResampler.current != cfg {
		if err := e.pluginResampler.plugin.SetConfig(e.pluginResampler.userData, cfg); err != nil {
			slog.Error("playback: plugin resampler set_config failed", "error", err)
			return
		}
		e.pluginResampler.configured = true
		e.pluginResampler.current = cfg
	}

	requiredIn := e.pluginResampler.plugin.RequiredInputFrameCount(e.pluginResampler.userData, info.FrameCount)
	inBytes := info.Format.Bytes(info.FrameCount)
	if inBytes > len(e.scratchT0) {
		inBytes = len(e.scratchT0)
	}

	outBytesCap := e.internal.Bytes(scratchFrameCapacity)
	if len(e.scratchT1) < outBytesCap {
		e.scratchT1 = make([]byte, outBytesCap)
	}

	outFrames, err := e.pluginResampler.plugin.Convert(e.pluginResampler.userData, e.scratchT1, e.scratchT0[:inBytes], requiredIn)
	if err != nil {
		slog.Error("playback: plugin resampler convert failed", "error", err)
		return
	}

	n := e.internal.Bytes(outFrames)
	if n > 0 {
		if werr := e.ring.Write(e.scratchT1[:n]); werr != nil {
			slog.Debug("playback: ring full, dropping resampled chunk", "error", werr)
		}
	}
}

func (e *Engine) ensurePluginResampler() error {
	if e.pluginResampler.plugin != nil {
		return nil
	}
	p, ud, err := e.newResampler()
	if err != nil {
		return err
	}
	e.pluginResampler = resamplerState{plugin: p, userData: ud}
	return nil
}

func (e *Engine) ensureOutputResampler() error {
	if e.outputResampler.plugin != nil {
		return nil
	}
	p, ud, err := e.newResampler()
	if err != nil {
		return err
	}
	e.outputResampler = resamplerState{plugin: p, userData: ud}
	return nil
}

// checkRingInvariant implements spec 4.3.1's post-write consistency
// check: read index must never be ahead of write index. This should
// never happen given the generation-tagged ring in pkg/ringbuf; if it
// does, log and keep running (RingInvariantViolation is best-effort
// per spec section 7, not fatal).
func (e *Engine) checkRingInvariant() {
	r, w := e.ring.ReadIndex(), e.ring.WriteIndex()
	bufLen := e.ring.Len()
	if r.Extended(bufLen) > w.Extended(bufLen) {
		slog.Error("playback: ring invariant violated, read index ahead of write index",
			"read", r, "write", w)
	}
}

// getData serves one request from the output realtime bridge (spec
// 4.3.2). Exactly one reply is always sent, satisfying spec 8
// invariant 4.
func (e *Engine) getData(req GetData) {
	// Open question (a) from spec design notes: the cached
	// last_request_format is updated even when reconfiguration fails,
	// so a persistently failing resampler doesn't retry set_config on
	// every single callback — it retries only when the requested
	// format itself changes again. This is the policy this
	// implementation commits to; see DESIGN.md.
	formatChanged := !e.haveLastRequestFormat || !req.Format.Equal(e.lastRequestFormat)
	if formatChanged {
		e.lastRequestFormat = req.Format
		e.haveLastRequestFormat = true

		if !req.Format.Equal(e.internal) {
			if err := e.ensureOutputResampler(); err != nil {
				slog.Error("playback: no output resampler plugin available", "error", err)
			} else {
				cfg := pluginabi.ConvertConfig{Input: e.internal, Output: req.Format}
				if err := e.outputResampler.plugin.SetConfig(e.outputResampler.userData, cfg); err != nil {
					slog.Error("playback: output resampler set_config failed", "error", err)
				} else {
					e.outputResampler.configured = true
					e.outputResampler.current = cfg
				}
			}
		}
	}

	if e.ring.AvailableRead() == 0 {
		e.reply(req.Reply, DataResult{Kind: ResultNoData})
		return
	}

	needed := req.Format.Bytes(req.Frames)

	if req.Format.Equal(e.internal) {
		if e.ring.AvailableRead() < uint64(needed) {
			e.reply(req.Reply, DataResult{Kind: ResultNoData})
			return
		}
		dst := make([]byte, needed)
		if _, err := e.ring.Read(dst); err != nil {
			e.reply(req.Reply, DataResult{Kind: ResultNoData})
			return
		}
		e.reply(req.Reply, DataResult{Kind: ResultData, Bytes: dst})
		return
	}

	if !e.outputResampler.configured {
		e.reply(req.Reply, DataResult{Kind: ResultNoData})
		return
	}

	requiredIn := e.outputResampler.plugin.RequiredInputFrameCount(e.outputResampler.userData, req.Frames)
	inBytes := e.internal.Bytes(requiredIn)

	if uint64(inBytes) > e.ring.AvailableRead() {
		e.reply(req.Reply, DataResult{Kind: ResultNoData})
		return
	}

	first, second := e.ring.PeekSpan(inBytes)
	var src []byte
	if second == nil {
		// Contiguous: zero-copy view straight into the ring.
		src = first
	} else {
		// Wraps: stage through scratch T1 (spec 4.3.2 step 5).
		if len(e.scratchT1) < inBytes {
			e.scratchT1 = make([]byte, inBytes)
		}
		copy(e.scratchT1[:len(first)], first)
		copy(e.scratchT1[len(first):inBytes], second)
		src = e.scratchT1[:inBytes]
	}

	dst := make([]byte, needed)
	outFrames, err := e.outputResampler.plugin.Convert(e.outputResampler.userData, dst, src, requiredIn)
	if err != nil {
		slog.Error("playback: output resampler convert failed", "error", err)
		e.reply(req.Reply, DataResult{Kind: ResultInvalidRequest})
		return
	}
	e.ring.Advance(inBytes)

	got := req.Format.Bytes(outFrames)
	if got < needed {
		e.reply(req.Reply, DataResult{Kind: ResultOutOfData, Bytes: dst[:got]})
		return
	}
	e.reply(req.Reply, DataResult{Kind: ResultData, Bytes: dst[:needed]})
}

func (e *Engine) reply(ch chan<- DataResult, result DataResult) {
	select {
	case ch <- result:
	default:
		slog.Error("playback: GetData reply channel was not ready for the one rendezvous send")
	}
}

// ActiveSlotCount reports how many decoder instances are currently
// queued, including the one actively decoding. It reads engine state
// without synchronization, so it is only accurate when called from
// the engine's own goroutine or while Run is not running.
func (e *Engine) ActiveSlotCount() int {
	return len(e.slots)
}
