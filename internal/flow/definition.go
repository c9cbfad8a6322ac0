// Package flow implements the Flow Engine (spec §4.6): CRUD over flow
// definitions, validation, and depth-first execution of the
// declarative node/edge graph.
//
// The Node/Edge/Execution/NodeResult shapes are grounded on the
// retrieved 1893661f_Yoriyoi-drop-citadel-agent workflow engine
// (Workflow/Node/Connection/Execution/NodeResult/NodeStatus types,
// dependency-graph execution over typed nodes) and on
// 26516931_xkayo32-pytake's flow engine interfaces (the split between
// definition/validation/execution concerns mirrored here as separate
// files in one package rather than separate interfaces, since this
// module has a single implementation). The trigger/action vocabulary
// generalizes the teacher's own workflow plugin
// (plugins/streamspace-workflows/workflows_plugin.go) into the typed
// node sum spec §9 calls for.
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/streamspace-dev/pluginhost/internal/apperrors"
	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

// ActionRunner is the subset of the Executor the Flow Engine needs to
// dispatch action nodes, kept as a narrow interface here rather than
// importing the services package directly so flow has no compile-time
// dependency on how actions are actually registered.
type ActionRunner interface {
	ExecuteAction(ctx context.Context, name string, input any, opts pluginapi.ExecuteOptions) pluginapi.ActionResult
	Evaluate(ctx context.Context, name string, condition string, data any) (bool, error)
}

// Engine is the Flow Engine.
type Engine struct {
	mu    sync.RWMutex
	flows map[string]pluginapi.FlowDefinition

	executions   map[string]*Execution
	executionsMu sync.RWMutex

	runner ActionRunner
	log    zerolog.Logger
}

// New builds an Engine dispatching action/condition nodes through
// runner.
func New(runner ActionRunner, log zerolog.Logger) *Engine {
	return &Engine{
		flows:      make(map[string]pluginapi.FlowDefinition),
		executions: make(map[string]*Execution),
		runner:     runner,
		log:        log,
	}
}

// Default builds an Engine using the package's component logger.
func Default(runner ActionRunner) *Engine {
	return New(runner, logger.Component("flow"))
}

// Create stores a new flow definition, assigning an id if one was not
// supplied, and stamping CreatedAt/UpdatedAt.
func (e *Engine) Create(def pluginapi.FlowDefinition) (pluginapi.FlowDefinition, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now

	e.mu.Lock()
	defer e.mu.Unlock()
	e.flows[def.ID] = def
	return def, nil
}

// Get returns the flow definition for id.
func (e *Engine) Get(id string) (pluginapi.FlowDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.flows[id]
	return def, ok
}

// Update replaces id's definition, preserving its id and CreatedAt and
// stamping UpdatedAt (spec §4.6: "Update never changes id").
func (e *Engine) Update(id string, def pluginapi.FlowDefinition) (pluginapi.FlowDefinition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.flows[id]
	if !ok {
		return pluginapi.FlowDefinition{}, apperrors.New(apperrors.KindFlowNotFound, "flow not found: "+id)
	}

	def.ID = id
	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now()
	e.flows[id] = def
	return def, nil
}

// Delete removes id's definition and reports whether a deletion
// occurred.
func (e *Engine) Delete(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.flows[id]; !ok {
		return false
	}
	delete(e.flows, id)
	return true
}

// GetAll returns every stored flow definition.
func (e *Engine) GetAll() []pluginapi.FlowDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]pluginapi.FlowDefinition, 0, len(e.flows))
	for _, def := range e.flows {
		out = append(out, def)
	}
	return out
}
