// Package corehost implements the Core Facade (spec §2 item 7, §6
// "Core Facade"): the single object passed to every plugin's init
// entry point, bundling the Service Registry, Hook Bus, Flow Engine,
// a Plugin Manager view, the runtime convenience dispatcher, and the
// read-only configuration snapshot.
//
// The single-struct-bundling-collaborators shape is grounded on the
// teacher's api/internal/plugins/runtime.go PluginContext, which bundles
// Database/Events/API/UI/Storage/Logger/Scheduler behind one value handed
// to plugin handlers; this module generalizes that to the spec's
// config/services/hooks/flow/runtime/plugins surface.
package corehost

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/streamspace-dev/pluginhost/internal/config"
	"github.com/streamspace-dev/pluginhost/internal/flow"
	"github.com/streamspace-dev/pluginhost/internal/hooks"
	"github.com/streamspace-dev/pluginhost/internal/lifecycle"
	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
	"github.com/streamspace-dev/pluginhost/internal/pluginreg"
	"github.com/streamspace-dev/pluginhost/internal/services"
)

// Facade is the Core Facade. It implements pluginapi.Core.
type Facade struct {
	cfg *config.Snapshot

	serviceRegistry *services.Registry
	executor        *services.Executor
	hookBus         *hooks.Bus
	flowEngine      *flow.Engine
	pluginRegistry  *pluginreg.Registry
	lifecycleMgr    *lifecycle.Manager

	log zerolog.Logger
}

// New builds a fully wired Facade around cfg. The Lifecycle Manager is
// given a lazy accessor back to this Facade (rather than a direct
// reference captured at construction time) since the Facade itself
// isn't finished constructing until after the Manager exists --
// see internal/lifecycle's core func() pluginapi.Core parameter.
func New(cfg *config.Snapshot, log zerolog.Logger) *Facade {
	f := &Facade{cfg: cfg, log: log}

	f.serviceRegistry = services.New(logger.Component("services"))
	f.executor = services.NewExecutor(f.serviceRegistry, logger.Component("executor"))
	f.hookBus = hooks.New(logger.Component("hooks"))
	f.pluginRegistry = pluginreg.New(logger.Component("pluginreg"))
	f.flowEngine = flow.New(f.executor, logger.Component("flow"))
	f.lifecycleMgr = lifecycle.New(f.pluginRegistry, f.serviceRegistry, f.hookBus, func() pluginapi.Core { return f }, logger.Component("lifecycle"))

	return f
}

// Default builds a Facade with an empty configuration snapshot and the
// package's component logger.
func Default() *Facade {
	return New(config.Empty(), logger.Component("corehost"))
}

func (f *Facade) Config() *config.Snapshot         { return f.cfg }
func (f *Facade) Services() pluginapi.ServiceRegistry { return f.serviceRegistry }
func (f *Facade) Hooks() pluginapi.HookBus         { return f.hookBus }
func (f *Facade) Flow() pluginapi.FlowEngine       { return f.flowEngine }
func (f *Facade) Runtime() pluginapi.Runtime       { return f.executor }
func (f *Facade) Plugins() pluginapi.PluginManager { return (*pluginManager)(f) }

// Lifecycle exposes the Lifecycle Manager directly for callers that
// need observer subscription or explicit initAll/destroyAll control
// beyond the plugin-facing Plugins() surface.
func (f *Facade) Lifecycle() *lifecycle.Manager { return f.lifecycleMgr }

// FlowEngine exposes the concrete Flow Engine for callers needing
// execution tracking (GetExecution/Cancel) beyond the CRUD subset
// pluginapi.FlowEngine exposes to plugins.
func (f *Facade) FlowEngine() *flow.Engine { return f.flowEngine }

// ExecuteAction and GetData satisfy pluginapi.Runtime directly on the
// Facade too, so a caller holding a *Facade needn't go through
// Runtime() for the common case.
func (f *Facade) ExecuteAction(ctx context.Context, name string, input any, opts pluginapi.ExecuteOptions) pluginapi.ActionResult {
	return f.executor.ExecuteAction(ctx, name, input, opts)
}

func (f *Facade) GetData(ctx context.Context, name string, query any) pluginapi.ProviderResult {
	return f.executor.GetData(ctx, name, query)
}
