// Package registry implements the plugin registry (spec section 4.1):
// it dynamically loads shared libraries built with `go build
// -buildmode=plugin`, identifies which of the three entry points
// (decoder / output / resampler) each one exports, validates that the
// required operations are present, and owns the resulting instances in
// kind-ordered lists.
//
// Concurrency model follows spec section 5: the three lists are shared
// with the playback, output and playlist goroutines, guarded by a
// single read-write lock. Writers only appear during startup/reload.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"plugin"
	"strings"
	"sync"

	"github.com/retrovert-audio/core/pkg/pluginabi"
)

// ErrInvalidPlugin is returned (and logged, never fatal) when a shared
// library fails to expose a recognized entry point or is missing a
// required operation.
var ErrInvalidPlugin = errors.New("registry: invalid plugin")

// Kind identifies which of the three typed entry points a plugin
// exposes.
type Kind int

const (
	KindDecoder Kind = iota
	KindOutput
	KindResampler
)

// loadedPlugin is bookkeeping the registry keeps alongside each bound
// instance so reload/diagnostics can report where a plugin came from.
type loadedPlugin struct {
	path    string
	kind    Kind
	service *service
}

// Registry owns every successfully loaded plugin, grouped by kind in
// discovery order (directory walk order, any depth).
type Registry struct {
	mu sync.RWMutex

	decoders        []pluginabi.Decoder
	decoderServices []*service
	outputs         []pluginabi.Output
	resamplers      []pluginabi.Resampler

	loaded []loadedPlugin

	// PluginSuffix is the file extension plugins are expected to carry
	// on disk, configurable because it differs from the native ".so"
	// extension on purpose in some deployments (spec section 4.1:
	// "rvp" or platform-specific shared-library extension).
	PluginSuffix string
}

// New creates an empty registry. PluginSuffix defaults to the native
// Go plugin extension for the host platform ("so" on Linux).
func New() *Registry {
	return &Registry{PluginSuffix: "so"}
}

// ScanDir recursively walks root and loads every file whose extension
// matches r.PluginSuffix or "rvp". Errors loading an individual plugin
// are logged and skipped — they never abort the scan (spec 4.1).
func (r *Registry) ScanDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("plugin scan: failed to stat path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if ext != r.PluginSuffix && ext != "rvp" {
			return nil
		}
		if err := r.LoadFile(path); err != nil {
			slog.Warn("plugin scan: failed to load plugin", "path", path, "error", err)
		}
		return nil
	})
}

// LoadFile opens a single shared library and binds it under whichever
// kind it exposes. A plugin exporting none of the three recognized
// entry points, or missing a required operation, is rejected with
// ErrInvalidPlugin; nothing is registered and the library is left
// unloaded from the registry's point of view (Go's plugin package
// offers no true unload, but an unbound plugin never enters the lists
// the rest of the core reads from).
func (r *Registry) LoadFile(path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPlugin, path, err)
	}

	if sym, err := p.Lookup(pluginabi.DecoderEntryPoint); err == nil {
		factory, ok := sym.(func() pluginabi.Decoder)
		if !ok {
			return fmt.Errorf("%w: %s: %s has wrong type", ErrInvalidPlugin, path, pluginabi.DecoderEntryPoint)
		}
		return r.bindDecoder(path, factory())
	}
	if sym, err := p.Lookup(pluginabi.OutputEntryPoint); err == nil {
		factory, ok := sym.(func() pluginabi.Output)
		if !ok {
			return fmt.Errorf("%w: %s: %s has wrong type", ErrInvalidPlugin, path, pluginabi.OutputEntryPoint)
		}
		return r.bindOutput(path, factory())
	}
	if sym, err := p.Lookup(pluginabi.ResamplerEntryPoint); err == nil {
		factory, ok := sym.(func() pluginabi.Resampler)
		if !ok {
			return fmt.Errorf("%w: %s: %s has wrong type", ErrInvalidPlugin, path, pluginabi.ResamplerEntryPoint)
		}
		return r.bindResampler(path, factory())
	}

	return fmt.Errorf("%w: %s: exposes none of %s/%s/%s", ErrInvalidPlugin, path,
		pluginabi.DecoderEntryPoint, pluginabi.OutputEntryPoint, pluginabi.ResamplerEntryPoint)
}

func (r *Registry) bindDecoder(path string, d pluginabi.Decoder) error {
	if d == nil {
		return fmt.Errorf("%w: %s: decoder descriptor is nil", ErrInvalidPlugin, path)
	}
	// Required operations: ProbeCanPlay, SupportedExtensions, Create,
	// Destroy, Open, Close, ReadData. These are all part of the
	// pluginabi.Decoder interface, so a successful type assertion above
	// already proves they exist as callable methods; what's left to
	// validate is that the plugin actually declares a name/extension
	// list, since an empty one would never match anything.
	if len(d.SupportedExtensions()) == 0 {
		return fmt.Errorf("%w: %s: decoder declares no supported extensions", ErrInvalidPlugin, path)
	}

	svc := newService(d.Name())
	if initer, ok := d.(pluginabi.StaticIniter); ok {
		if err := initer.StaticInit(svc); err != nil {
			return fmt.Errorf("%w: %s: static_init failed: %v", ErrInvalidPlugin, path, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders = append(r.decoders, d)
	r.decoderServices = append(r.decoderServices, svc)
	r.loaded = append(r.loaded, loadedPlugin{path: path, kind: KindDecoder, service: svc})
	slog.Info("registry: loaded decoder plugin", "path", path, "name", d.Name(), "version", d.Version())
	return nil
}

func (r *Registry) bindOutput(path string, o pluginabi.Output) error {
	if o == nil {
		return fmt.Errorf("%w: %s: output descriptor is nil", ErrInvalidPlugin, path)
	}

	svc := newService(o.Name())
	if initer, ok := o.(pluginabi.StaticIniter); ok {
		if err := initer.StaticInit(svc); err != nil {
			return fmt.Errorf("%w: %s: static_init failed: %v", ErrInvalidPlugin, path, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, o)
	r.loaded = append(r.loaded, loadedPlugin{path: path, kind: KindOutput, service: svc})
	slog.Info("registry: loaded output plugin", "path", path, "name", o.Name())
	return nil
}

func (r *Registry) bindResampler(path string, rs pluginabi.Resampler) error {
	if rs == nil {
		return fmt.Errorf("%w: %s: resampler descriptor is nil", ErrInvalidPlugin, path)
	}

	svc := newService(rs.Name())
	if initer, ok := rs.(pluginabi.StaticIniter); ok {
		if err := initer.StaticInit(svc); err != nil {
			return fmt.Errorf("%w: %s: static_init failed: %v", ErrInvalidPlugin, path, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.resamplers = append(r.resamplers, rs)
	r.loaded = append(r.loaded, loadedPlugin{path: path, kind: KindResampler, service: svc})
	slog.Info("registry: loaded resampler plugin", "path", path, "name", rs.Name())
	return nil
}

// Decoders returns a snapshot of the currently registered decoder
// plugins, in discovery order. Safe to call from any goroutine.
func (r *Registry) Decoders() []pluginabi.Decoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pluginabi.Decoder, len(r.decoders))
	copy(out, r.decoders)
	return out
}

// DecoderService returns the ServiceHandle a decoder plugin was bound
// with at load time, the same instance its StaticInit (if any) saw.
// The playlist driver passes this same handle to Create/Open at play
// time rather than minting a fresh one per song, mirroring the
// loader-holds-one-service-per-plugin shape in
// original_source/core/src/playlist.rs's find_playback_plugin
// (`player.service.get_c_api()`). Falls back to a fresh handle named
// after the plugin if it somehow isn't one the registry bound.
func (r *Registry) DecoderService(d pluginabi.Decoder) pluginabi.ServiceHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, registered := range r.decoders {
		if registered == d {
			return r.decoderServices[i]
		}
	}
	return newService(d.Name())
}

// Outputs returns a snapshot of the currently registered output
// plugins, in discovery order.
func (r *Registry) Outputs() []pluginabi.Output {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pluginabi.Output, len(r.outputs))
	copy(out, r.outputs)
	return out
}

// Resamplers returns a snapshot of the currently registered resampler
// plugins, in discovery order.
func (r *Registry) Resamplers() []pluginabi.Resampler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pluginabi.Resampler, len(r.resamplers))
	copy(out, r.resamplers)
	return out
}

// RegisterDecoder binds an already-constructed decoder directly,
// bypassing the shared-library loader. Used by tests and by in-process
// reference plugins that are linked directly into the binary rather
// than built with -buildmode=plugin.
func (r *Registry) RegisterDecoder(d pluginabi.Decoder) error {
	return r.bindDecoder("<in-process>", d)
}

// RegisterOutput binds an already-constructed output plugin directly.
func (r *Registry) RegisterOutput(o pluginabi.Output) error {
	return r.bindOutput("<in-process>", o)
}

// RegisterResampler binds an already-constructed resampler directly.
func (r *Registry) RegisterResampler(rs pluginabi.Resampler) error {
	return r.bindResampler("<in-process>", rs)
}
