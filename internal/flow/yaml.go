package flow

import (
	"gopkg.in/yaml.v3"

	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

// DefinitionFromYAML parses a flow definition from its YAML wire
// representation (spec §6 "no wire protocol at the core level" binds
// plugins, not the import/export convenience a host embedding this
// module needs to move flow definitions in and out of source control).
func DefinitionFromYAML(data []byte) (pluginapi.FlowDefinition, error) {
	var def pluginapi.FlowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return pluginapi.FlowDefinition{}, err
	}
	return def, nil
}

// DefinitionToYAML renders def as YAML.
func DefinitionToYAML(def pluginapi.FlowDefinition) ([]byte, error) {
	return yaml.Marshal(def)
}
