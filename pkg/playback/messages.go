package playback

import (
	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/pluginabi"
)

// SlotEvent is a lifecycle event the playlist driver observes for a
// queued decoder instance (spec section 3, PlaybackHandle).
type SlotEvent int

const (
	EventPlaybackStarted SlotEvent = iota
	EventPlaybackEnded
)

func (e SlotEvent) String() string {
	switch e {
	case EventPlaybackStarted:
		return "PlaybackStarted"
	case EventPlaybackEnded:
		return "PlaybackEnded"
	default:
		return "Unknown"
	}
}

// PlaybackHandle is the outward-facing, receive-only channel the
// playlist driver polls for lifecycle events on one queued slot.
type PlaybackHandle struct {
	Recv <-chan SlotEvent
}

// DataResultKind classifies a GetData reply.
type DataResultKind int

const (
	ResultData DataResultKind = iota
	ResultNoData
	ResultOutOfData
	ResultInvalidRequest
)

// DataResult is the reply sent back on a GetData request's reply
// channel.
type DataResult struct {
	Kind  DataResultKind
	Bytes []byte
}

// Message is the sealed set of requests the playback engine's thread
// accepts. Message is received non-blocking (try-recv) by the engine's
// main loop, per spec section 5.
type Message interface {
	isPlaybackMessage()
}

// QueuePlayback appends a newly opened decoder instance to the
// engine's slot list. Ownership of instance transfers to the engine:
// it alone will call Destroy on it, exactly once, when the decoder
// reports Finished.
type QueuePlayback struct {
	Instance *pluginabi.DecoderInstance
	Reply    chan<- SlotEvent
}

func (QueuePlayback) isPlaybackMessage() {}

// GetData is sent by the output realtime bridge to request frames
// converted to the given format. This is the single blocking
// rendezvous point in the realtime path (spec section 4.4): Reply must
// be a capacity-1 channel and the engine guarantees exactly one send.
type GetData struct {
	Format audioformat.Format
	Frames int
	Reply  chan<- DataResult
}

func (GetData) isPlaybackMessage() {}
