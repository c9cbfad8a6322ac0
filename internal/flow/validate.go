package flow

import (
	"fmt"

	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

// ValidationResult is the outcome of validating a flow definition
// (spec §4.6).
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks def for structural errors and warnings without
// executing it (spec §4.6).
func Validate(def pluginapi.FlowDefinition) ValidationResult {
	var errs, warnings []string

	if def.Name == "" {
		errs = append(errs, "flow name is required")
	}
	if len(def.Nodes) == 0 {
		errs = append(errs, "flow must contain at least one node")
	}

	nodeIDs := make(map[string]pluginapi.Node, len(def.Nodes))
	for _, n := range def.Nodes {
		if _, dup := nodeIDs[n.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate node id: %s", n.ID))
			continue
		}
		nodeIDs[n.ID] = n
	}

	triggerCount := 0
	for _, n := range def.Nodes {
		errs = append(errs, validateNodeFields(n)...)
		if n.Type == pluginapi.NodeTrigger {
			triggerCount++
		}
	}
	if triggerCount == 0 {
		warnings = append(warnings, "flow has no trigger node")
	}
	if triggerCount > 1 {
		warnings = append(warnings, "flow has multiple trigger nodes")
	}

	for _, e := range def.Edges {
		if _, ok := nodeIDs[e.Source]; !ok {
			errs = append(errs, fmt.Sprintf("edge %s references absent source node %s", e.ID, e.Source))
		}
		if _, ok := nodeIDs[e.Target]; !ok {
			errs = append(errs, fmt.Sprintf("edge %s references absent target node %s", e.ID, e.Target))
		}
		if e.Source == e.Target && e.Source != "" {
			warnings = append(warnings, fmt.Sprintf("self-loop at node %s", e.Source))
		}
	}

	if cyclePath := detectCycle(def); len(cyclePath) > 0 {
		warnings = append(warnings, fmt.Sprintf("cycle detected: %v", cyclePath))
	}

	for _, nodeID := range unreachableFromTriggers(def) {
		warnings = append(warnings, fmt.Sprintf("node %s is unreachable from any trigger", nodeID))
	}

	return ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// validateNodeFields checks the per-node-type required fields spec
// §4.6 lists.
func validateNodeFields(n pluginapi.Node) []string {
	var errs []string
	switch n.Type {
	case pluginapi.NodeAction:
		if stringField(n.Data, "pluginName") == "" || stringField(n.Data, "actionName") == "" {
			errs = append(errs, fmt.Sprintf("action node %s requires pluginName and actionName", n.ID))
		}
	case pluginapi.NodeCondition:
		if _, ok := n.Data["conditions"]; !ok {
			errs = append(errs, fmt.Sprintf("condition node %s requires conditions", n.ID))
		}
	case pluginapi.NodeLoop:
		if stringField(n.Data, "loopType") == "" {
			errs = append(errs, fmt.Sprintf("loop node %s requires loopType", n.ID))
		}
	case pluginapi.NodeDelay:
		if _, ok := n.Data["delayMs"]; !ok {
			errs = append(errs, fmt.Sprintf("delay node %s requires delayMs", n.ID))
		}
	case pluginapi.NodeSubflow:
		if stringField(n.Data, "flowId") == "" {
			errs = append(errs, fmt.Sprintf("subflow node %s requires flowId", n.ID))
		}
	case pluginapi.NodeTrigger:
		if stringField(n.Data, "triggerType") == "" {
			errs = append(errs, fmt.Sprintf("trigger node %s requires triggerType", n.ID))
		}
	}
	return errs
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

// detectCycle returns the first cycle found as a path of node ids, or
// nil if the graph is acyclic.
func detectCycle(def pluginapi.FlowDefinition) []string {
	adjacency := buildAdjacency(def)

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, next := range adjacency[id] {
			if onStack[next] {
				return append(append([]string{}, path...), next)
			}
			if !visited[next] {
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, n := range def.Nodes {
		if !visited[n.ID] {
			if cycle := visit(n.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func buildAdjacency(def pluginapi.FlowDefinition) map[string][]string {
	adjacency := make(map[string][]string)
	for _, e := range def.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}
	return adjacency
}

// unreachableFromTriggers returns every node id not reachable by
// following edges from any trigger node.
func unreachableFromTriggers(def pluginapi.FlowDefinition) []string {
	adjacency := buildAdjacency(def)

	reachable := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, next := range adjacency[id] {
			walk(next)
		}
	}

	for _, n := range def.Nodes {
		if n.Type == pluginapi.NodeTrigger {
			walk(n.ID)
		}
	}

	var unreachable []string
	for _, n := range def.Nodes {
		if !reachable[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}
	return unreachable
}
