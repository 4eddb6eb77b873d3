// Package registry manages module lifecycle: registration, dependency
// resolution, initialization, and shutdown of Cropsight modules.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/cropsight/cropsight/pkg/plugin"
	"go.uber.org/zap"
)

// Registry manages the lifecycle of all registered modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]plugin.Plugin
	infos   map[string]plugin.PluginInfo
	order   []string // topological order after Validate
	started []string // modules successfully started, in start order
	logger  *zap.Logger
}

// New creates a new module registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		modules: make(map[string]plugin.Plugin),
		infos:   make(map[string]plugin.PluginInfo),
		logger:  logger,
	}
}

// Register adds a module to the registry. Must be called before Validate.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	name := info.Name

	if name == "" {
		return fmt.Errorf("module has empty name")
	}
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}
	if info.APIVersion < plugin.APIVersionMin || info.APIVersion > plugin.APIVersionCurrent {
		return fmt.Errorf("module %q targets unsupported API version %d (supported: %d-%d)",
			name, info.APIVersion, plugin.APIVersionMin, plugin.APIVersionCurrent)
	}

	r.modules[name] = p
	r.infos[name] = info
	r.logger.Info("module registered",
		zap.String("name", name),
		zap.String("version", info.Version),
		zap.Int("api_version", info.APIVersion),
	)
	return nil
}

// Validate checks that all declared dependencies exist and resolves the
// initialization order via topological sort.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, info := range r.infos {
		for _, dep := range info.Dependencies {
			if _, ok := r.modules[dep]; !ok {
				return fmt.Errorf("module %q depends on %q which is not registered", name, dep)
			}
		}
	}

	order, err := r.topologicalSort()
	if err != nil {
		return err
	}
	r.order = order

	r.logger.Info("module dependency resolution complete",
		zap.Strings("start_order", r.order),
	)
	return nil
}

// topologicalSort orders modules so dependencies initialize first.
// Must be called with r.mu held.
func (r *Registry) topologicalSort() ([]string, error) {
	const (
		white = 0 // unvisited
		gray  = 1 // in progress
		black = 2 // done
	)
	color := make(map[string]int, len(r.modules))
	order := make([]string, 0, len(r.modules))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case gray:
			return fmt.Errorf("module dependency cycle involving %q", name)
		case black:
			return nil
		}
		color[name] = gray
		for _, dep := range r.infos[name].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	// Deterministic iteration is not required for correctness; dependency
	// edges alone constrain the order.
	for name := range r.modules {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// InitAll initializes all modules in dependency order.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		p := r.modules[name]

		r.logger.Info("initializing module", zap.String("name", name))
		if err := p.Init(ctx, depsFn(name)); err != nil {
			return fmt.Errorf("module %q failed to initialize: %w", name, err)
		}

		if v, ok := p.(plugin.Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				return fmt.Errorf("module %q config validation failed: %w", name, err)
			}
		}
	}
	return nil
}

// StartAll starts all initialized modules in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if err := r.modules[name].Start(ctx); err != nil {
			return fmt.Errorf("module %q failed to start: %w", name, err)
		}
		r.started = append(r.started, name)
		r.logger.Info("module started", zap.String("name", name))
	}
	return nil
}

// StopAll stops started modules in reverse start order. Errors are logged,
// not returned: shutdown continues past a failing module.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.started) - 1; i >= 0; i-- {
		name := r.started[i]
		if err := r.modules[name].Stop(ctx); err != nil {
			r.logger.Error("module stop failed", zap.String("name", name), zap.Error(err))
			continue
		}
		r.logger.Info("module stopped", zap.String("name", name))
	}
	r.started = nil
}

// Resolve returns the registered module with the given name.
func (r *Registry) Resolve(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.modules[name]
	return p, ok
}

// All returns all registered modules.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]plugin.Plugin, 0, len(r.modules))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// AllRoutes returns the HTTP routes of every module implementing
// plugin.HTTPProvider, keyed by module name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]plugin.Route)
	for name, p := range r.modules {
		if hp, ok := p.(plugin.HTTPProvider); ok {
			routes[name] = hp.Routes()
		}
	}
	return routes
}
