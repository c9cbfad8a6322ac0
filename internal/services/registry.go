// Package services implements the Service Registry and Executor: the
// name -> action/provider/evaluator dispatch layer every plugin
// contributes into and every caller (including the Flow Engine) goes
// through.
//
// The registry's name->record plus owner->set-of-names shape is
// adapted from the teacher's api/internal/plugins/api_registry.go
// (APIRegistry.endpoints keyed by "plugin:method:path", with
// UnregisterAll doing a linear scan by owner). Unlike that registry,
// overwrite here is permitted rather than rejected: spec §3 "Service
// Record" calls for last-writer-wins, since a qualified name like
// "swap:quote" is expected to be re-registered across plugin reloads.
package services

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

// Stats summarizes registry occupancy, in the spirit of the teacher's
// runtime.go "Performance Characteristics" doc sections.
type Stats struct {
	Actions    int
	Providers  int
	Evaluators int
}

// Registry is the Service Registry (spec §4.1). All operations are
// safe for concurrent use; a lookup either observes the full state
// before a mutation or the full state after it (spec §5 "Service
// Registry mutations race-visibility"), guaranteed here by a single
// RWMutex guarding all three maps.
type Registry struct {
	mu sync.RWMutex

	actions    map[string]pluginapi.Action
	providers  map[string]pluginapi.Provider
	evaluators map[string]pluginapi.Evaluator

	actionOwners    map[string]string
	providerOwners  map[string]string
	evaluatorOwners map[string]string

	ownedActions    map[string]map[string]struct{}
	ownedProviders  map[string]map[string]struct{}
	ownedEvaluators map[string]map[string]struct{}

	log zerolog.Logger
}

// New builds an empty Registry. log is used as given; pass logger.Nop()
// to discard output.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		actions:         make(map[string]pluginapi.Action),
		providers:       make(map[string]pluginapi.Provider),
		evaluators:      make(map[string]pluginapi.Evaluator),
		actionOwners:    make(map[string]string),
		providerOwners:  make(map[string]string),
		evaluatorOwners: make(map[string]string),
		ownedActions:    make(map[string]map[string]struct{}),
		ownedProviders:  make(map[string]map[string]struct{}),
		ownedEvaluators: make(map[string]map[string]struct{}),
		log:             log,
	}
}

// Default builds a Registry using the package's component logger.
func Default() *Registry {
	return New(logger.Component("services"))
}

// RegisterAction stores name -> action and indexes it under owner,
// overwriting any previous registration under the same name and
// repairing the old owner's index (spec §4.1).
func (r *Registry) RegisterAction(action pluginapi.Action, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := action.Name()
	if prevOwner, ok := r.actionOwners[name]; ok && prevOwner != owner {
		delete(r.ownedActions[prevOwner], name)
	}
	r.actions[name] = action
	r.actionOwners[name] = owner
	r.indexOwned(r.ownedActions, owner, name)
}

// RegisterProvider is symmetric to RegisterAction.
func (r *Registry) RegisterProvider(provider pluginapi.Provider, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if prevOwner, ok := r.providerOwners[name]; ok && prevOwner != owner {
		delete(r.ownedProviders[prevOwner], name)
	}
	r.providers[name] = provider
	r.providerOwners[name] = owner
	r.indexOwned(r.ownedProviders, owner, name)
}

// RegisterEvaluator is symmetric to RegisterAction.
func (r *Registry) RegisterEvaluator(evaluator pluginapi.Evaluator, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := evaluator.Name()
	if prevOwner, ok := r.evaluatorOwners[name]; ok && prevOwner != owner {
		delete(r.ownedEvaluators[prevOwner], name)
	}
	r.evaluators[name] = evaluator
	r.evaluatorOwners[name] = owner
	r.indexOwned(r.ownedEvaluators, owner, name)
}

func (r *Registry) indexOwned(index map[string]map[string]struct{}, owner, name string) {
	set, ok := index[owner]
	if !ok {
		set = make(map[string]struct{})
		index[owner] = set
	}
	set[name] = struct{}{}
}

// GetAction looks up an action by name.
func (r *Registry) GetAction(name string) (pluginapi.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// GetProvider looks up a provider by name.
func (r *Registry) GetProvider(name string) (pluginapi.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// GetEvaluator looks up an evaluator by name.
func (r *Registry) GetEvaluator(name string) (pluginapi.Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[name]
	return e, ok
}

// GetAllActions returns every registered action.
func (r *Registry) GetAllActions() map[string]pluginapi.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]pluginapi.Action, len(r.actions))
	for k, v := range r.actions {
		out[k] = v
	}
	return out
}

// GetAllProviders returns every registered provider.
func (r *Registry) GetAllProviders() map[string]pluginapi.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]pluginapi.Provider, len(r.providers))
	for k, v := range r.providers {
		out[k] = v
	}
	return out
}

// GetAllEvaluators returns every registered evaluator.
func (r *Registry) GetAllEvaluators() map[string]pluginapi.Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]pluginapi.Evaluator, len(r.evaluators))
	for k, v := range r.evaluators {
		out[k] = v
	}
	return out
}

// UnregisterPlugin removes every action/provider/evaluator owned by
// owner; idempotent, and leaves every other owner's set of names
// unchanged (spec §4.1 invariant).
func (r *Registry) UnregisterPlugin(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.ownedActions[owner] {
		delete(r.actions, name)
		delete(r.actionOwners, name)
	}
	delete(r.ownedActions, owner)

	for name := range r.ownedProviders[owner] {
		delete(r.providers, name)
		delete(r.providerOwners, name)
	}
	delete(r.ownedProviders, owner)

	for name := range r.ownedEvaluators[owner] {
		delete(r.evaluators, name)
		delete(r.evaluatorOwners, name)
	}
	delete(r.ownedEvaluators, owner)

	r.log.Debug().Str("owner", owner).Msg("unregistered all services for plugin")
}

// Stats reports current occupancy.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Actions:    len(r.actions),
		Providers:  len(r.providers),
		Evaluators: len(r.evaluators),
	}
}

// Clear empties the registry entirely.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = make(map[string]pluginapi.Action)
	r.providers = make(map[string]pluginapi.Provider)
	r.evaluators = make(map[string]pluginapi.Evaluator)
	r.actionOwners = make(map[string]string)
	r.providerOwners = make(map[string]string)
	r.evaluatorOwners = make(map[string]string)
	r.ownedActions = make(map[string]map[string]struct{})
	r.ownedProviders = make(map[string]map[string]struct{})
	r.ownedEvaluators = make(map[string]map[string]struct{})
}
