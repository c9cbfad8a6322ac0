// Package lifecycle implements the Lifecycle Manager (spec §4.5): it
// drives each plugin through registered -> initializing -> active and
// later active -> destroyed. A plugin registers its own actions,
// providers, evaluators and hooks from its Init entry point through the
// Core facade; the Manager does not register anything on the plugin's
// behalf. On destroy the Manager removes everything registered under
// the plugin's name from the Service Registry and Hook Bus.
//
// The init/destroy sequencing and per-plugin isolated context handed
// to each hook is grounded on the teacher's
// api/internal/plugins/runtime.go (Start() loads enabled plugins
// sequentially, builds a PluginContext, calls OnLoad; LoadedPlugin
// tracks status). Unlike that runtime, which has no concurrency
// control around plugin loading at all ("Start should only be called
// once, not thread-safe for multiple callers"), this Lifecycle Manager
// makes initPlugin itself concurrent-safe via a per-plugin memoized
// in-flight operation (golang.org/x/sync/singleflight), per spec §5
// "Plugin init is single-flight per plugin."
package lifecycle

import (
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/streamspace-dev/pluginhost/internal/apperrors"
	"github.com/streamspace-dev/pluginhost/internal/hooks"
	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
	"github.com/streamspace-dev/pluginhost/internal/pluginreg"
	"github.com/streamspace-dev/pluginhost/internal/services"
)

// Event is a lifecycle notification kind, distinct from the Hook Bus:
// these run without priority or event-string lookup and cannot
// interrupt the lifecycle flow (spec §9 "Lifecycle event observers").
type Event string

const (
	EventBeforeInit    Event = "beforeInit"
	EventAfterInit     Event = "afterInit"
	EventBeforeDestroy Event = "beforeDestroy"
	EventAfterDestroy  Event = "afterDestroy"
	EventError         Event = "error"
)

// Observer receives lifecycle notifications. A panicking or erroring
// observer is logged and swallowed; it cannot break the lifecycle
// flow.
type Observer func(event Event, pluginName string, err error)

// Manager is the Lifecycle Manager.
type Manager struct {
	registry *pluginreg.Registry
	services *services.Registry
	hooks    *hooks.Bus
	core     func() pluginapi.Core

	mu          sync.Mutex
	observers   []Observer
	initializing map[string]bool

	group singleflight.Group
	log   zerolog.Logger
}

// New builds a Manager. core is a lazily-evaluated accessor for the
// Core Facade because the facade composes the Manager itself and must
// not be required at construction time.
func New(registry *pluginreg.Registry, svc *services.Registry, bus *hooks.Bus, core func() pluginapi.Core, log zerolog.Logger) *Manager {
	return &Manager{
		registry:     registry,
		services:     svc,
		hooks:        bus,
		core:         core,
		initializing: make(map[string]bool),
		log:          log,
	}
}

// Default builds a Manager using the package's component logger.
func Default(registry *pluginreg.Registry, svc *services.Registry, bus *hooks.Bus, core func() pluginapi.Core) *Manager {
	return New(registry, svc, bus, core, logger.Component("lifecycle"))
}

// OnLifecycle subscribes handler to every lifecycle event and returns
// an unsubscribe function (spec §4.5).
func (m *Manager) OnLifecycle(handler Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, handler)
	idx := len(m.observers) - 1

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.observers) {
			m.observers[idx] = nil
		}
	}
}

func (m *Manager) emit(event Event, name string, err error) {
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, obs := range observers {
		if obs == nil {
			continue
		}
		m.safeObserve(obs, event, name, err)
	}
}

func (m *Manager) safeObserve(obs Observer, event Event, name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("lifecycle observer panicked")
		}
	}()
	obs(event, name, err)
}

// InitPlugin drives name through registered -> initializing -> active.
// It is idempotent for an already-active plugin, memoizes concurrent
// callers onto the same underlying operation, and raises
// CircularDependency if name is already mid-initialization on this
// call stack (a runtime check orthogonal to the Registry's static
// topological check, per spec §9 "Cycle detection twice").
func (m *Manager) InitPlugin(name string) error {
	_, err, _ := m.group.Do(name, func() (any, error) {
		return nil, m.initPluginOnce(name)
	})
	return err
}

func (m *Manager) initPluginOnce(name string) error {
	rec, ok := m.registry.GetState(name)
	if !ok {
		return apperrors.New(apperrors.KindPluginNotFound, "plugin not found: "+name)
	}
	if rec.Status == pluginreg.StatusActive {
		return nil
	}

	m.mu.Lock()
	if m.initializing[name] {
		m.mu.Unlock()
		return apperrors.New(apperrors.KindCircularDependency, "circular dependency detected during init: "+name)
	}
	m.initializing[name] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.initializing, name)
		m.mu.Unlock()
	}()

	missing := m.registry.GetMissingDependencies(name)
	if len(missing) > 0 {
		err := apperrors.Newf(apperrors.KindMissingDependencies, "missing dependencies for %s: %v", name, missing)
		_ = m.registry.UpdateStatus(name, pluginreg.StatusError, err)
		m.emit(EventError, name, err)
		return err
	}

	for _, dep := range rec.Dependencies {
		if !m.registry.Has(dep) {
			continue
		}
		if err := m.InitPlugin(dep); err != nil {
			_ = m.registry.UpdateStatus(name, pluginreg.StatusError, err)
			m.emit(EventError, name, err)
			return err
		}
	}

	m.emit(EventBeforeInit, name, nil)

	_ = m.registry.UpdateStatus(name, pluginreg.StatusInitializing, nil)

	initializer, ok := rec.Plugin.(pluginapi.Initializer)
	if !ok {
		err := apperrors.New(apperrors.KindPluginValidation, "plugin has no init entry point: "+name)
		_ = m.registry.UpdateStatus(name, pluginreg.StatusError, err)
		m.emit(EventError, name, err)
		return err
	}

	if err := initializer.Init(m.core()); err != nil {
		_ = m.registry.UpdateStatus(name, pluginreg.StatusError, err)
		m.emit(EventError, name, err)
		return err
	}

	_ = m.registry.UpdateStatus(name, pluginreg.StatusActive, nil)
	m.emit(EventAfterInit, name, nil)
	return nil
}

// InitAll initializes every registered plugin in load order, failing
// fast on the first error.
func (m *Manager) InitAll() error {
	order, err := m.registry.GetLoadOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := m.InitPlugin(name); err != nil {
			return err
		}
	}
	return nil
}

// DestroyPlugin refuses if any active dependent exists, then unwinds
// the plugin's registrations from the Service Registry and Hook Bus,
// calls its optional destroy entry point, and marks it destroyed.
func (m *Manager) DestroyPlugin(name string) error {
	rec, ok := m.registry.GetState(name)
	if !ok {
		return apperrors.New(apperrors.KindPluginNotFound, "plugin not found: "+name)
	}

	for _, dependent := range m.registry.GetDependents(name) {
		depRec, ok := m.registry.GetState(dependent)
		if ok && depRec.Status == pluginreg.StatusActive {
			return apperrors.New(apperrors.KindUnregisterBlocked, "active dependent exists: "+dependent)
		}
	}

	m.emit(EventBeforeDestroy, name, nil)

	m.services.UnregisterPlugin(name)
	m.hooks.UnregisterPlugin(name)

	if destroyer, ok := rec.Plugin.(pluginapi.Destroyer); ok {
		if err := destroyer.Destroy(); err != nil {
			_ = m.registry.UpdateStatus(name, pluginreg.StatusError, err)
			m.emit(EventError, name, err)
			return err
		}
	}

	_ = m.registry.UpdateStatus(name, pluginreg.StatusDestroyed, nil)
	m.emit(EventAfterDestroy, name, nil)
	return nil
}

// DestroyAll walks the reverse load order, logging and continuing past
// individual failures.
func (m *Manager) DestroyAll() {
	order, err := m.registry.GetLoadOrder()
	if err != nil {
		m.log.Error().Err(err).Msg("cannot compute load order for destroyAll")
		return
	}
	for i := len(order) - 1; i >= 0; i-- {
		if err := m.DestroyPlugin(order[i]); err != nil {
			m.log.Error().Err(err).Str("plugin", order[i]).Msg("error destroying plugin")
		}
	}
}

// ReloadPlugin destroys then re-initializes name, clearing the
// memoized init operation in between so the reload actually re-runs
// Init rather than returning a stale cached result.
func (m *Manager) ReloadPlugin(name string) error {
	if err := m.DestroyPlugin(name); err != nil {
		return err
	}
	m.group.Forget(name)
	return m.InitPlugin(name)
}
