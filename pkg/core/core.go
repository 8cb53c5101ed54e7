// Package core is the facade that wires the plugin registry, playback
// engine, output driver, playlist driver and virtual filesystem into
// one running instance, and is what cmd/retrovertd drives. Modeled on
// how the teacher's cmd/player.go wires together audioplayer.Player
// and a PortAudio stream, generalized from "one file, one decoder, one
// output device" to the plugin-backed pipeline the rest of this module
// implements.
package core

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/retrovert-audio/core/pkg/audioformat"
	"github.com/retrovert-audio/core/pkg/output"
	"github.com/retrovert-audio/core/pkg/playback"
	"github.com/retrovert-audio/core/pkg/playlist"
	"github.com/retrovert-audio/core/pkg/pluginabi"
	"github.com/retrovert-audio/core/pkg/registry"
	"github.com/retrovert-audio/core/pkg/vfs"
)

// Config configures a new Core instance.
type Config struct {
	// PluginDir is scanned recursively for shared-library plugins when
	// New is called. May be empty if every plugin is registered
	// in-process via Registry().RegisterDecoder/Output/Resampler
	// before Start.
	PluginDir string
	// Vfs resolves URLs for the playlist driver. Required.
	Vfs vfs.Vfs
	// OutputFormat is the PCM format the output plugin's realtime
	// callback requests. Defaults to audioformat.Internal.
	OutputFormat audioformat.Format
	// RingSeconds sizes the playback engine's internal ring buffer.
	RingSeconds float64
	// RandomizeSeed seeds the playlist driver's randomize walk.
	RandomizeSeed int64
}

// Core owns one instance of the full pipeline: one registry, one
// playback engine, one playlist driver, and (after Start) one output
// driver bound to whichever output plugin was available at Start time.
type Core struct {
	registry *registry.Registry
	engine   *playback.Engine
	playlist *playlist.Driver

	outputFormat audioformat.Format
	outDrv       *output.Driver
}

// engineRequester adapts *playback.Engine's message-based GetData
// rendezvous to the small synchronous Requester interface
// pkg/output's realtime callback needs.
type engineRequester struct {
	engine *playback.Engine
}

func (r engineRequester) RequestData(format audioformat.Format, frames int) output.Result {
	reply := make(chan playback.DataResult, 1)
	r.engine.Send(playback.GetData{Format: format, Frames: frames, Reply: reply})
	res := <-reply

	kind := output.ResultInvalidRequest
	switch res.Kind {
	case playback.ResultData:
		kind = output.ResultData
	case playback.ResultNoData:
		kind = output.ResultNoData
	case playback.ResultOutOfData:
		kind = output.ResultOutOfData
	}
	return output.Result{Kind: kind, Bytes: res.Bytes}
}

// New builds a Core from cfg and scans cfg.PluginDir if set. Further
// in-process plugins may be registered via Registry() before Start is
// called; Start is where an output plugin is actually required.
func New(cfg Config) (*Core, error) {
	if cfg.Vfs == nil {
		return nil, errors.New("core: Config.Vfs is required")
	}

	reg := registry.New()
	if cfg.PluginDir != "" {
		if err := reg.ScanDir(cfg.PluginDir); err != nil {
			return nil, fmt.Errorf("core: scanning plugin directory: %w", err)
		}
	}

	outputFormat := cfg.OutputFormat
	if outputFormat == (audioformat.Format{}) {
		outputFormat = audioformat.Internal
	}

	engine := playback.New(playback.Config{
		RingSeconds: cfg.RingSeconds,
		NewResampler: func() (pluginabi.Resampler, any, error) {
			return newResamplerInstance(reg)
		},
	})

	pl := playlist.New(playlist.Config{
		Vfs:      cfg.Vfs,
		Registry: reg,
		Engine:   engine,
		Seed:     cfg.RandomizeSeed,
	})

	return &Core{
		registry:     reg,
		engine:       engine,
		playlist:     pl,
		outputFormat: outputFormat,
	}, nil
}

func newResamplerInstance(reg *registry.Registry) (pluginabi.Resampler, any, error) {
	resamplers := reg.Resamplers()
	if len(resamplers) == 0 {
		return nil, nil, errors.New("core: no resampler plugin registered")
	}
	plugin := resamplers[0]
	userData, err := plugin.Create(registry.NewService(plugin.Name()))
	if err != nil {
		return nil, nil, fmt.Errorf("core: creating resampler instance: %w", err)
	}
	return plugin, userData, nil
}

// Registry exposes the underlying plugin registry, so callers can
// register in-process reference plugins before Start.
func (c *Core) Registry() *registry.Registry {
	return c.registry
}

// Start picks the first registered output plugin (spec 4.4), creates
// an instance of it, and begins the engine, playlist and output
// goroutines. Returns an error if no output plugin is registered.
func (c *Core) Start() error {
	outPlugin, err := output.PickFirst(c.registry.Outputs())
	if err != nil {
		return fmt.Errorf("core: %w", err)
	}
	outUserData, err := outPlugin.Create(registry.NewService(outPlugin.Name()))
	if err != nil {
		return fmt.Errorf("core: creating output plugin instance: %w", err)
	}
	c.outDrv = output.New(outPlugin, outUserData, c.outputFormat, engineRequester{engine: c.engine})

	go c.engine.Run()
	go c.playlist.Run()
	if err := c.outDrv.Start(); err != nil {
		return fmt.Errorf("core: starting output: %w", err)
	}
	slog.Info("core: pipeline started", "output_format", c.outputFormat.String())
	return nil
}

// Stop halts the output, engine and playlist goroutines in that order
// (spec section 5: stop output, drain channels, stop playback, stop
// playlist) so nothing is left trying to pull from a stopped producer.
func (c *Core) Stop() {
	if c.outDrv != nil {
		if err := c.outDrv.Stop(); err != nil {
			slog.Warn("core: stopping output plugin", "error", err)
		}
		c.outDrv.Destroy()
	}
	c.engine.Stop()
	c.playlist.Stop()
}

// AddURL queues a URL without switching the playlist into randomize mode.
func (c *Core) AddURL(url string) playlist.Handle {
	return c.playlist.AddURL(url)
}

// PlayURL queues a URL and switches the playlist driver into randomize
// mode rooted at it.
func (c *Core) PlayURL(url string) playlist.Handle {
	return c.playlist.PlayURL(url)
}

// BufferStatus reports the playback engine's ring buffer occupancy.
func (c *Core) BufferStatus() (available, capacity uint64) {
	return c.engine.BufferStatus()
}

// Underruns reports how many realtime output pulls were padded with
// silence because the engine had no data ready. Valid only after Start.
func (c *Core) Underruns() uint64 {
	if c.outDrv == nil {
		return 0
	}
	return c.outDrv.Underruns()
}
