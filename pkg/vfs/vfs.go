// Package vfs defines the virtual filesystem abstraction the playlist
// driver depends on to list directories and read file contents
// without caring whether a URL refers to a local path, an archive
// member, or a remote resource. The core never talks to the operating
// system directly; it only ever holds a vfs.Vfs.
//
// Modeled on the async, channel-based VFS boundary in
// original_source/core/src/loader.rs, generalized from that file's
// single load_url-into-RecvMsg shape into a small interface so
// alternate backends (network, archive, in-memory fixtures for tests)
// can all be passed to pkg/playlist without it depending on any one of
// them.
package vfs

// EntryKind tells whether a path is listed as a file or a directory.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDir
)

// Listing is the result of reading a directory: the direct children,
// split by kind the same way FilesDirs is in the source material, so
// the playlist driver's randomize step can weight files and
// directories as one flat population the way spec 4.2.3 describes.
type Listing struct {
	Files []string
	Dirs  []string
}

// Total returns the number of direct children, combining files and
// directories.
func (l Listing) Total() int {
	return len(l.Files) + len(l.Dirs)
}

// EventKind classifies a message received on a Handle.
type EventKind int

const (
	// EventProgress carries a 0..1 fraction read-so-far for a large
	// read, purely informational.
	EventProgress EventKind = iota
	// EventDirectory carries a completed directory listing.
	EventDirectory
	// EventReadDone carries the full contents of a completed file read.
	EventReadDone
	// EventError reports a failure loading the URL; the handle produces
	// no further events afterward.
	EventError
	// EventNotFound reports that the URL does not exist.
	EventNotFound
)

// Event is one message delivered on a Handle's channel.
type Event struct {
	Kind     EventKind
	Progress float32
	Listing  Listing
	Data     []byte
	Err      error
}

// Handle is returned by LoadURL; the caller polls Recv (non-blocking,
// via a select/default or try-receive) the same way
// PlaylistInternal.update does over inprogress[i].vfs_handle.recv in
// the source material.
type Handle struct {
	Recv <-chan Event
}

// Vfs loads URLs asynchronously. Implementations run their own work on
// a separate goroutine and report back over the channel embedded in
// the returned Handle; LoadURL itself must never block.
type Vfs interface {
	LoadURL(url string) Handle
}
