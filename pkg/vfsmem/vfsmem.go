// Package vfsmem is the reference Vfs implementation (pkg/vfs): a
// local-filesystem backend that serves directory listings and file
// reads asynchronously, matching the channel-per-request shape of
// original_source/core/src/loader.rs's Loader.
//
// Two small domain concerns ride along with it, grounded on the rest
// of the example pack rather than the teacher (whose decoders never
// needed either):
//   - Directory listings are cached with github.com/patrickmn/go-cache,
//     the way tphakala-birdnet-go's ebird client caches taxonomy
//     lookups, since the playlist driver's randomize walk re-lists the
//     same directories repeatedly.
//   - A short history of read-progress samples is kept in a
//     github.com/smallnest/ringbuffer byte ring so RecentProgress can report
//     recent throughput without the driver having to retain every
//     sample it ever saw.
package vfsmem

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/smallnest/ringbuffer"

	"github.com/retrovert-audio/core/pkg/vfs"
)

const (
	progressChunkSize  = 256 * 1024
	progressSampleSize = 4 // one float32 per sample
	progressHistoryLen = 64
)

// Config configures a Fs.
type Config struct {
	// Root bounds every URL to a subtree, the same way a sandboxed
	// library browser would. Empty means no bound (URLs are absolute
	// filesystem paths).
	Root string
	// DirCacheTTL controls how long a directory listing is trusted
	// before it is re-read from disk. Defaults to 30s.
	DirCacheTTL time.Duration
}

// Fs is a vfs.Vfs backed by the local filesystem.
type Fs struct {
	root string

	dirCache *gocache.Cache

	mu            sync.Mutex
	progress      *ringbuffer.RingBuffer
	progressCount int
}

// New creates a filesystem-backed Vfs.
func New(cfg Config) *Fs {
	ttl := cfg.DirCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Fs{
		root:     cfg.Root,
		dirCache: gocache.New(ttl, 2*ttl),
		progress: ringbuffer.New(progressHistoryLen * progressSampleSize),
	}
}

func (f *Fs) resolve(url string) string {
	if f.root == "" {
		return url
	}
	return filepath.Join(f.root, filepath.Clean(string(filepath.Separator)+url))
}

// LoadURL satisfies vfs.Vfs. The returned Handle's channel receives
// exactly one terminal event (Directory, ReadDone, Error or NotFound),
// preceded by one Progress event per chunk for files larger than one
// read chunk (progressChunkSize bytes).
func (f *Fs) LoadURL(url string) vfs.Handle {
	ch := make(chan vfs.Event, 8)
	go f.load(url, ch)
	return vfs.Handle{Recv: ch}
}

func (f *Fs) load(url string, ch chan<- vfs.Event) {
	defer close(ch)

	path := f.resolve(url)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		ch <- vfs.Event{Kind: vfs.EventNotFound}
		return
	}
	if err != nil {
		ch <- vfs.Event{Kind: vfs.EventError, Err: err}
		return
	}

	if info.IsDir() {
		listing, err := f.listDir(url, path)
		if err != nil {
			ch <- vfs.Event{Kind: vfs.EventError, Err: err}
			return
		}
		ch <- vfs.Event{Kind: vfs.EventDirectory, Listing: listing}
		return
	}

	data, err := f.readFile(path, info.Size(), ch)
	if err != nil {
		ch <- vfs.Event{Kind: vfs.EventError, Err: err}
		return
	}
	ch <- vfs.Event{Kind: vfs.EventReadDone, Data: data}
}

func (f *Fs) listDir(url, path string) (vfs.Listing, error) {
	if cached, ok := f.dirCache.Get(path); ok {
		return cached.(vfs.Listing), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return vfs.Listing{}, err
	}

	var listing vfs.Listing
	for _, e := range entries {
		if e.IsDir() {
			listing.Dirs = append(listing.Dirs, e.Name())
		} else {
			listing.Files = append(listing.Files, e.Name())
		}
	}

	f.dirCache.Set(path, listing, gocache.DefaultExpiration)
	return listing, nil
}

func (f *Fs) readFile(path string, size int64, ch chan<- vfs.Event) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data := make([]byte, 0, size)
	buf := make([]byte, progressChunkSize)
	var readSoFar int64

	for {
		n, err := file.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			readSoFar += int64(n)

			if size > progressChunkSize {
				fraction := float32(readSoFar) / float32(size)
				f.recordProgress(fraction)
				ch <- vfs.Event{Kind: vfs.EventProgress, Progress: fraction}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return data, nil
}

// recordProgress appends one sample to the rolling throughput history,
// evicting the oldest sample once the ring is full — mirrors the
// fixed-depth sample windows the pack's metering code (e.g.
// birdnet-go's analysis ring buffers) keeps for monitoring display.
func (f *Fs) recordProgress(fraction float32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sample [progressSampleSize]byte
	binary.BigEndian.PutUint32(sample[:], math.Float32bits(fraction))

	if f.progressCount >= progressHistoryLen {
		discard := make([]byte, progressSampleSize)
		if _, err := f.progress.Read(discard); err != nil {
			slog.Debug("vfsmem: failed to evict oldest progress sample", "error", err)
		}
		f.progressCount--
	}
	if _, err := f.progress.Write(sample[:]); err != nil {
		slog.Debug("vfsmem: failed to record progress sample", "error", err)
		return
	}
	f.progressCount++
}

// RecentProgress returns up to progressHistoryLen recent progress
// fractions, oldest first. The ring is drained and rewritten in place
// to preserve its contents for the next caller, since the underlying
// buffer exposes no non-destructive peek.
func (f *Fs) RecentProgress() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf := make([]byte, f.progressCount*progressSampleSize)
	if len(buf) > 0 {
		if _, err := f.progress.Read(buf); err != nil && err != io.EOF {
			slog.Debug("vfsmem: failed to read progress history", "error", err)
			return nil
		}
		if _, err := f.progress.Write(buf); err != nil {
			slog.Debug("vfsmem: failed to restore progress history", "error", err)
		}
	}

	out := make([]float32, 0, f.progressCount)
	for i := 0; i+progressSampleSize <= len(buf); i += progressSampleSize {
		out = append(out, math.Float32frombits(binary.BigEndian.Uint32(buf[i:i+progressSampleSize])))
	}
	return out
}

// InvalidateDir drops a cached directory listing, used when the
// playlist driver is told the filesystem changed underneath it.
func (f *Fs) InvalidateDir(url string) {
	f.dirCache.Delete(f.resolve(url))
}
