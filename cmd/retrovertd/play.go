package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/retrovert-audio/core/pkg/core"
	"github.com/retrovert-audio/core/pkg/playlist"
	"github.com/retrovert-audio/core/pkg/vfsmem"
)

var (
	pluginDir     string
	dataDir       string
	randomizeSeed int64
)

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a single file and exit when it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var randomizeCmd = &cobra.Command{
	Use:   "randomize <directory>",
	Short: "Play a directory tree in randomize mode until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runRandomize,
}

func init() {
	for _, cmd := range []*cobra.Command{playCmd, randomizeCmd} {
		cmd.Flags().StringVar(&pluginDir, "plugins", "", "Directory to recursively scan for plugins")
		cmd.Flags().StringVar(&dataDir, "data-dir", "", "Root directory URLs are resolved against")
		cmd.Flags().Int64Var(&randomizeSeed, "seed", 0, "Seed for the randomize walk (0 picks one from the clock)")
	}
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(randomizeCmd)
}

func newCore(path string) (*core.Core, error) {
	if pluginDir == "" {
		return nil, fmt.Errorf("--plugins is required")
	}

	root := dataDir
	if root == "" {
		root = filepath.Dir(path)
	}

	c, err := core.New(core.Config{
		PluginDir:     pluginDir,
		Vfs:           vfsmem.New(vfsmem.Config{Root: root}),
		RandomizeSeed: randomizeSeed,
	})
	if err != nil {
		return nil, fmt.Errorf("building core: %w", err)
	}
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("starting core: %w", err)
	}
	return c, nil
}

func waitForInterruptOr(done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-done:
		slog.Info("playback finished")
	case sig := <-sigCh:
		slog.Info("signal received, stopping", "signal", sig)
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	path := args[0]
	relative := filepath.Base(path)

	c, err := newCore(path)
	if err != nil {
		return err
	}
	defer c.Stop()

	handle := c.AddURL(relative)

	done := make(chan struct{})
	go func() {
		defer close(done)
		reply := <-handle.Recv
		switch reply.Kind {
		case playlist.ReplyPlaybackStarted:
			slog.Info("playback started", "file", path)
		case playlist.ReplyNotFound:
			slog.Error("file not found", "file", path)
		case playlist.ReplyNotSupported:
			slog.Error("no decoder plugin accepted file", "file", path)
		}
	}()

	waitForInterruptOr(done)
	return nil
}

func runRandomize(cmd *cobra.Command, args []string) error {
	path := args[0]
	relative := filepath.Base(path)

	c, err := newCore(path)
	if err != nil {
		return err
	}
	defer c.Stop()

	c.PlayURL(relative)

	statusDone := make(chan struct{})
	go reportBufferStatus(c, statusDone)
	defer close(statusDone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("signal received, stopping", "signal", sig)
	return nil
}

func reportBufferStatus(c *core.Core, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			available, capacity := c.BufferStatus()
			slog.Debug("buffer status", "available", available, "capacity", capacity, "underruns", c.Underruns())
		case <-done:
			return
		}
	}
}
