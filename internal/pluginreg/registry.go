// Package pluginreg implements the Plugin Registry (spec §4.4): plugin
// records, their dependency graph, and a cached, priority-tie-broken
// topological load order.
//
// The RWMutex-guarded map is grounded on the teacher's
// api/internal/plugins/registry.go (GlobalPluginRegistry.Register logs a
// warning and overwrites on duplicate name); unlike that registry,
// Register here rejects a duplicate name with
// KindPluginAlreadyExists. That registry's own "Known Limitations" section
// admits it has no dependency management at all; the DFS-based
// topological sort with (-priority, name) tie-breaking here is this
// module's addition, grounded on the dependency-graph shape used by
// the other plugin-registry examples in the retrieved pack.
package pluginreg

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamspace-dev/pluginhost/internal/apperrors"
	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

// Status is a plugin's lifecycle state (spec §3).
type Status string

const (
	StatusRegistered   Status = "registered"
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusError        Status = "error"
	StatusDestroyed    Status = "destroyed"
)

// Record is the Plugin Record (spec §3). The Registry exclusively owns
// Record; Plugin is referenced, never copied.
type Record struct {
	Name         string
	Version      string
	Description  string
	Author       string
	Dependencies []string
	Capabilities pluginapi.Capabilities
	Priority     int
	Status       Status
	LastError    string
	LoadedAt     time.Time

	Plugin pluginapi.Plugin
}

// RegisterOptions mirrors pluginapi.RegisterOptions (priority, alias
// override).
type RegisterOptions = pluginapi.RegisterOptions

// Registry is the Plugin Registry.
type Registry struct {
	mu        sync.RWMutex
	records   map[string]*Record
	loadOrder []string
	cached    bool
	log       zerolog.Logger
}

// New builds an empty Registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{records: make(map[string]*Record), log: log}
}

// Default builds a Registry using the package's component logger.
func Default() *Registry {
	return New(logger.Component("pluginreg"))
}

// Register validates and stores a new Record with status
// StatusRegistered, invalidating the cached load order (spec §4.4).
func (r *Registry) Register(p pluginapi.Plugin, opts RegisterOptions) error {
	name := p.Name()
	if opts.Name != "" {
		name = opts.Name
	}
	if name == "" {
		return apperrors.New(apperrors.KindPluginValidation, "plugin name is required")
	}
	if p.Version() == "" {
		return apperrors.New(apperrors.KindPluginValidation, "plugin version is required")
	}
	if _, ok := p.(pluginapi.Initializer); !ok {
		return apperrors.New(apperrors.KindPluginValidation, "plugin "+name+" has no init entry point")
	}

	caps := pluginapi.Capabilities{}
	if reporter, ok := p.(pluginapi.CapabilityReporter); ok {
		caps = reporter.Capabilities()
	}
	if err := validateUniqueNames(caps); err != nil {
		return err
	}

	var deps []string
	if dependent, ok := p.(pluginapi.DependentPlugin); ok {
		deps = dependent.Dependencies()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[name]; exists {
		return apperrors.New(apperrors.KindPluginAlreadyExists, "plugin already registered: "+name)
	}

	r.records[name] = &Record{
		Name:         name,
		Version:      p.Version(),
		Dependencies: deps,
		Capabilities: caps,
		Priority:     opts.Priority,
		Status:       StatusRegistered,
		Plugin:       p,
	}
	if describable, ok := p.(pluginapi.Describable); ok {
		r.records[name].Description = describable.Description()
		r.records[name].Author = describable.Author()
	}

	r.invalidateCache()
	r.log.Debug().Str("plugin", name).Msg("registered plugin")
	return nil
}

func validateUniqueNames(caps pluginapi.Capabilities) error {
	if err := duplicateCheck(caps.Actions, "action"); err != nil {
		return err
	}
	if err := duplicateCheck(caps.Providers, "provider"); err != nil {
		return err
	}
	return nil
}

func duplicateCheck(names []string, kind string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return apperrors.New(apperrors.KindPluginValidation, "duplicate "+kind+" name within plugin: "+n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// Unregister removes name's record, rejecting the operation if any
// other registered plugin depends on it (spec §3, §4.4).
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[name]; !ok {
		return apperrors.New(apperrors.KindPluginNotFound, "plugin not found: "+name)
	}

	for other, rec := range r.records {
		if other == name {
			continue
		}
		for _, dep := range rec.Dependencies {
			if dep == name {
				return apperrors.New(apperrors.KindUnregisterBlocked, "plugin "+other+" depends on "+name)
			}
		}
	}

	delete(r.records, name)
	r.invalidateCache()
	return nil
}

func (r *Registry) invalidateCache() {
	r.cached = false
	r.loadOrder = nil
}

// GetLoadOrder returns a topological order over every registered
// plugin such that every present dependency of X precedes X, tie-
// broken among nodes with no remaining inbound edges by
// (-priority, name ascending). Missing dependencies are skipped in the
// sort (surfaced separately via GetMissingDependencies); a cycle
// raises apperrors.KindCircularDependency. The result is cached until
// the next mutation (spec §4.4).
func (r *Registry) GetLoadOrder() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached {
		return append([]string(nil), r.loadOrder...), nil
	}

	order, err := r.computeLoadOrder()
	if err != nil {
		return nil, err
	}

	r.loadOrder = order
	r.cached = true
	return append([]string(nil), order...), nil
}

// computeLoadOrder runs a DFS with an explicit visiting set for cycle
// detection, visiting candidate roots in (-priority, name) order at
// every level so ties resolve deterministically.
func (r *Registry) computeLoadOrder() ([]string, error) {
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.tieBreakLess(names[i], names[j])
	})

	visited := make(map[string]bool, len(names))
	visiting := make(map[string]bool, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			return apperrors.New(apperrors.KindCircularDependency, "circular dependency detected at plugin: "+name)
		}
		visiting[name] = true

		rec := r.records[name]
		deps := append([]string(nil), rec.Dependencies...)
		sort.Slice(deps, func(i, j int) bool {
			return r.tieBreakLess(deps[i], deps[j])
		})
		for _, dep := range deps {
			if _, present := r.records[dep]; !present {
				continue // missing dependency: surfaced via GetMissingDependencies, not an error here
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		visiting[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func (r *Registry) tieBreakLess(a, b string) bool {
	pa, pb := r.records[a].Priority, r.records[b].Priority
	if pa != pb {
		return pa > pb // higher priority first == "-priority ascending"
	}
	return a < b
}

// GetDependents returns the names of every registered plugin that
// declares name as a dependency.
func (r *Registry) GetDependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dependents []string
	for other, rec := range r.records {
		for _, dep := range rec.Dependencies {
			if dep == name {
				dependents = append(dependents, other)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// GetMissingDependencies returns name's declared dependencies that are
// not currently registered.
func (r *Registry) GetMissingDependencies(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	if !ok {
		return nil
	}
	var missing []string
	for _, dep := range rec.Dependencies {
		if _, present := r.records[dep]; !present {
			missing = append(missing, dep)
		}
	}
	return missing
}

// AreDependenciesSatisfied reports whether every dependency of name is
// both registered and active.
func (r *Registry) AreDependenciesSatisfied(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	if !ok {
		return false
	}
	for _, dep := range rec.Dependencies {
		depRec, present := r.records[dep]
		if !present || depRec.Status != StatusActive {
			return false
		}
	}
	return true
}

// GetState returns a copy of name's record.
func (r *Registry) GetState(name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// GetAll returns a copy of every record.
func (r *Registry) GetAll() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[name]
	return ok
}

// UpdateStatus transitions name to status, stamping LoadedAt when
// transitioning to StatusActive, and recording lastErr's message when
// provided.
func (r *Registry) UpdateStatus(name string, status Status, lastErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return apperrors.New(apperrors.KindPluginNotFound, "plugin not found: "+name)
	}

	rec.Status = status
	if status == StatusActive {
		rec.LoadedAt = time.Now()
	}
	if lastErr != nil {
		rec.LastError = lastErr.Error()
	}
	return nil
}
