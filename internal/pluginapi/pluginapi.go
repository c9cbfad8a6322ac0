// Package pluginapi defines the contracts a plugin implements and the
// facade object it receives at init: the dynamic-dispatch boundary
// between the core and the external collaborators (concrete plugins)
// that are explicitly out of scope for this module (spec §1). Actions,
// providers, and evaluators are identified by strings rather than
// compile-time symbols, so the natural shape here is an interface
// keyed by name with an opaque tagged payload, matching the "dynamic
// dispatch by name" design note: plugins produce concrete
// implementations, the registries only ever see the interface.
package pluginapi

import (
	"context"
	"time"

	"github.com/streamspace-dev/pluginhost/internal/config"
)

// Plugin is the contract every external plugin satisfies. Dependencies
// and capability lists are purely descriptive; actual registration
// into the Service Registry / Hook Bus happens during Init.
type Plugin interface {
	Name() string
	Version() string
}

// Describable plugins may optionally report descriptive metadata;
// implemented as a separate interface so minimal plugins aren't forced
// to stub out unused getters.
type Describable interface {
	Description() string
	Author() string
}

// DependentPlugin plugins declare other plugins that must be active
// before they init.
type DependentPlugin interface {
	Dependencies() []string
}

// CapabilityReporter plugins declare what they intend to register
// during Init, for reporting purposes only (spec §3 "Plugin Record").
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// Capabilities is a purely descriptive summary of what a plugin
// intends to register. The registry stores this for reporting; it has
// no bearing on what actually gets wired during init.
type Capabilities struct {
	Actions    []string
	Providers  []string
	Evaluators []string
	Hooks      []string
	Chains     []string
}

// Initializer plugins are called once, in dependency order, with the
// Core facade. This is the only mandatory entry point.
type Initializer interface {
	Init(core Core) error
}

// Destroyer plugins are given a chance to release resources on
// unload; optional.
type Destroyer interface {
	Destroy() error
}

// Core is the facade passed to Init, bundling every subsystem a plugin
// may need (spec §6 "Core Facade").
type Core interface {
	Config() *config.Snapshot
	Services() ServiceRegistry
	Hooks() HookBus
	Flow() FlowEngine
	Runtime() Runtime
	Plugins() PluginManager
}

// Runtime is the convenience dispatch surface on Core, with the same
// semantics as calling through the Executor directly.
type Runtime interface {
	ExecuteAction(ctx context.Context, name string, input any, opts ExecuteOptions) ActionResult
	GetData(ctx context.Context, name string, query any) ProviderResult
}

// ServiceRegistry is the subset of the Service Registry exposed to
// plugins through Core.
type ServiceRegistry interface {
	RegisterAction(action Action, owner string)
	RegisterProvider(provider Provider, owner string)
	RegisterEvaluator(evaluator Evaluator, owner string)
	GetAction(name string) (Action, bool)
	GetProvider(name string) (Provider, bool)
	GetEvaluator(name string) (Evaluator, bool)
}

// HookBus is the subset of the Hook Bus exposed to plugins through
// Core.
type HookBus interface {
	Register(def HookDef, owner string) string
	On(event string, handler HookHandler) string
	Once(event string, handler HookHandler) string
	Emit(ctx context.Context, event string, data any, opts EmitOptions) []HookResult
}

// FlowEngine is the subset of the Flow Engine exposed to plugins
// through Core.
type FlowEngine interface {
	Create(def FlowDefinition) (FlowDefinition, error)
	Get(id string) (FlowDefinition, bool)
	Update(id string, def FlowDefinition) (FlowDefinition, error)
	Delete(id string) bool
	GetAll() []FlowDefinition
}

// PluginManager is the subset of plugin lifecycle control exposed to
// plugins through Core (spec §6: "register/load/unload/get/getAll/
// has/getLoadOrder").
type PluginManager interface {
	Register(p Plugin, opts RegisterOptions) error
	Load(name string) error
	Unload(name string) error
	Get(name string) (Plugin, bool)
	GetAll() []Plugin
	Has(name string) bool
	GetLoadOrder() ([]string, error)
}

// RegisterOptions carries the optional priority/alias override spec
// §4.4 describes.
type RegisterOptions struct {
	Priority int
	Name     string
}

// Action is the contract a plugin-contributed action satisfies (spec
// §6 "Action Contract").
type Action interface {
	Name() string
	Execute(ctx context.Context, actx ActionContext) ActionResult
}

// ValidatingAction actions may optionally validate input before
// Execute is called.
type ValidatingAction interface {
	Validate(input any) ValidationResult
}

// ActionContext is the invocation context the Executor builds for
// every executeAction call.
type ActionContext struct {
	PluginName string
	AgentID    string
	Input      any
	Metadata   map[string]any
}

// ActionResult is the uniform shape every action returns; the
// Executor never lets an action's panic/error escape this shape.
type ActionResult struct {
	Success  bool
	Data     any
	Error    string
	Metadata map[string]any
}

// ValidationResult is returned by ValidatingAction.Validate.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ExecuteOptions configures retry behavior for executeAction.
type ExecuteOptions struct {
	Retry      bool
	MaxRetries int
}

// Provider is the contract a plugin-contributed data provider
// satisfies (spec §6 "Provider Contract").
type Provider interface {
	Name() string
	Type() string
	Get(ctx context.Context, pctx ProviderContext) ProviderResult
}

// ProviderContext is the invocation context for a provider Get call.
type ProviderContext struct {
	PluginName string
	AgentID    string
	Query      any
	ChainID    string
}

// ProviderResult is the uniform shape a provider returns.
type ProviderResult struct {
	Success   bool
	Data      any
	Error     string
	Timestamp time.Time
	Cached    bool
}

// Evaluator is the contract a plugin-contributed boolean predicate
// satisfies (spec §6 "Evaluator Contract").
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, ectx EvaluatorContext) bool
}

// EvaluatorContext is the invocation context for an Evaluate call.
type EvaluatorContext struct {
	PluginName string
	AgentID    string
	Condition  string
	Data       any
}

// HookDef is a hook registration (spec §3 "Hook Registration").
type HookDef struct {
	Event    string
	Handler  HookHandler
	Priority int
	Once     bool
}

// HookHandler is the function signature a hook contributes.
type HookHandler func(ctx context.Context, payload HookPayload) error

// HookPayload is what every handler receives on emit.
type HookPayload struct {
	Event     string
	Timestamp time.Time
	Data      any
	Source    string
}

// HookResult records the outcome of invoking a single handler during
// an emit (spec §4.3).
type HookResult struct {
	HookName string
	Success  bool
	Duration time.Duration
	Error    string
}

// EmitOptions configures an emit call.
type EmitOptions struct {
	StopOnError bool
	Source      string
}

// FlowDefinition, Node, and Edge mirror spec §3 "Flow Definition".
type FlowDefinition struct {
	ID          string
	Name        string
	Description string
	Nodes       []Node
	Edges       []Edge
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NodeType enumerates the flow node variants (spec §3, design note
// "heterogeneous node data": modeled as a tagged sum so dispatch and
// validation stay exhaustive).
type NodeType string

const (
	NodeTrigger   NodeType = "trigger"
	NodeAction    NodeType = "action"
	NodeCondition NodeType = "condition"
	NodeLoop      NodeType = "loop"
	NodeDelay     NodeType = "delay"
	NodeSubflow   NodeType = "subflow"
	NodeOutput    NodeType = "output"
)

// Node is one vertex of a flow graph. Data carries the type-specific
// payload as a generic string-keyed map (the wire format, per the
// design note, may be untyped even though dispatch internally treats
// it as a tagged sum via Type).
type Node struct {
	ID   string
	Type NodeType
	Name string
	Data map[string]any
}

// Edge is one directed connection between two nodes.
type Edge struct {
	ID        string
	Source    string
	Target    string
	Handle    string
	Condition *EdgeCondition
}

// EdgeCondition is an edge-level gating condition, evaluated with the
// same operator set as condition nodes.
type EdgeCondition struct {
	Field    string
	Operator string
	Value    any
}
