package vfsmem

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/retrovert-audio/core/pkg/vfs"
)

func TestLoadURLReadsFileContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.raw")
	want := []byte("some pcm bytes")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	fs := New(Config{})
	handle := fs.LoadURL(path)

	select {
	case ev := <-handle.Recv:
		if ev.Kind != vfs.EventReadDone {
			t.Fatalf("expected EventReadDone, got %v (err=%v)", ev.Kind, ev.Err)
		}
		if string(ev.Data) != string(want) {
			t.Fatalf("got %q, want %q", ev.Data, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for read to complete")
	}
}

func TestLoadURLListsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.flac"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	fs := New(Config{})
	handle := fs.LoadURL(dir)

	select {
	case ev := <-handle.Recv:
		if ev.Kind != vfs.EventDirectory {
			t.Fatalf("expected EventDirectory, got %v", ev.Kind)
		}
		if len(ev.Listing.Files) != 1 || len(ev.Listing.Dirs) != 1 {
			t.Fatalf("expected 1 file and 1 dir, got %+v", ev.Listing)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for directory listing")
	}
}

func TestLoadURLNotFound(t *testing.T) {
	fs := New(Config{})
	handle := fs.LoadURL(filepath.Join(t.TempDir(), "missing"))

	select {
	case ev := <-handle.Recv:
		if ev.Kind != vfs.EventNotFound {
			t.Fatalf("expected EventNotFound, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for not-found event")
	}
}

func TestDirectoryListingIsCached(t *testing.T) {
	dir := t.TempDir()
	fs := New(Config{DirCacheTTL: time.Minute})

	<-fs.LoadURL(dir).Recv

	if err := os.WriteFile(filepath.Join(dir, "new.wav"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := <-fs.LoadURL(dir).Recv
	if len(ev.Listing.Files) != 0 {
		t.Fatalf("expected cached (stale) listing with 0 files, got %d", len(ev.Listing.Files))
	}

	fs.InvalidateDir(dir)
	ev = <-fs.LoadURL(dir).Recv
	if len(ev.Listing.Files) != 1 {
		t.Fatalf("expected fresh listing with 1 file after invalidation, got %d", len(ev.Listing.Files))
	}
}

func TestRecentProgressTracksReadsAndIsNonDestructive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.raw")
	if err := os.WriteFile(path, make([]byte, progressChunkSize*3), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := New(Config{})
	handle := fs.LoadURL(path)
	for ev := range handle.Recv {
		if ev.Kind == vfs.EventError {
			t.Fatalf("unexpected error: %v", ev.Err)
		}
	}

	first := fs.RecentProgress()
	if len(first) == 0 {
		t.Fatalf("expected at least one recorded progress sample")
	}
	second := fs.RecentProgress()
	if len(second) != len(first) {
		t.Fatalf("RecentProgress should be repeatable without losing samples: got %d then %d", len(first), len(second))
	}
}
