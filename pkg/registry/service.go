package registry

import (
	"sync"

	"github.com/retrovert-audio/core/pkg/pluginabi"
)

// service is the concrete pluginabi.ServiceHandle implementation. Each
// loaded plugin gets its own instance so static_init can stamp a
// per-plugin log name without the registry having to track who's
// calling in.
type service struct {
	mu      sync.RWMutex
	logName string
}

func newService(defaultName string) *service {
	return &service{logName: defaultName}
}

// NewService creates a standalone ServiceHandle for a plugin instance
// created outside the load-time StaticInit path, such as the output
// and resampler instances pkg/core creates directly.
func NewService(defaultName string) pluginabi.ServiceHandle {
	return newService(defaultName)
}

func (s *service) LogName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logName
}

func (s *service) SetLogName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logName = name
}
