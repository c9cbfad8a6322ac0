package corehost

import "github.com/streamspace-dev/pluginhost/internal/pluginapi"

// pluginManager is a view over *Facade exposing only the
// register/load/unload/get/getAll/has/getLoadOrder surface spec §6
// describes for the Core Facade's "plugins" handle. It shares the
// Facade's fields by type conversion rather than embedding, so a
// plugin holding a pluginapi.PluginManager cannot reach back into the
// rest of Core through it.
type pluginManager Facade

func (p *pluginManager) facade() *Facade { return (*Facade)(p) }

// Register stores the plugin's record in the Plugin Registry. It does
// not initialize the plugin -- call Load (or the Lifecycle Manager's
// InitAll) once every dependency is registered.
func (p *pluginManager) Register(plugin pluginapi.Plugin, opts pluginapi.RegisterOptions) error {
	return p.facade().pluginRegistry.Register(plugin, opts)
}

// Load drives the named plugin through the Lifecycle Manager's init
// sequence, recursively initializing its dependencies first.
func (p *pluginManager) Load(name string) error {
	return p.facade().lifecycleMgr.InitPlugin(name)
}

// Unload destroys the named plugin via the Lifecycle Manager, unwiring
// its services and hooks. The plugin's record remains registered
// (status destroyed) so it can later be reloaded.
func (p *pluginManager) Unload(name string) error {
	return p.facade().lifecycleMgr.DestroyPlugin(name)
}

// Get returns the plugin object registered under name.
func (p *pluginManager) Get(name string) (pluginapi.Plugin, bool) {
	record, ok := p.facade().pluginRegistry.GetState(name)
	if !ok {
		return nil, false
	}
	return record.Plugin, true
}

// GetAll returns every registered plugin object.
func (p *pluginManager) GetAll() []pluginapi.Plugin {
	records := p.facade().pluginRegistry.GetAll()
	out := make([]pluginapi.Plugin, 0, len(records))
	for _, record := range records {
		out = append(out, record.Plugin)
	}
	return out
}

// Has reports whether name is registered.
func (p *pluginManager) Has(name string) bool {
	return p.facade().pluginRegistry.Has(name)
}

// GetLoadOrder returns the Plugin Registry's computed topological
// order.
func (p *pluginManager) GetLoadOrder() ([]string, error) {
	return p.facade().pluginRegistry.GetLoadOrder()
}
