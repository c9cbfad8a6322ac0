package flow

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

// dispatch computes a node's output value by type (spec §4.6 "Node
// dispatch"). It never recurses into outgoing edges itself -- that is
// the caller's (walk's) responsibility, except that loop nodes drive
// their own child recursion internally and report back only the
// "complete" continuation.
func (rs *runState) dispatch(ctx context.Context, execution *Execution, node pluginapi.Node) (any, error) {
	switch node.Type {
	case pluginapi.NodeTrigger:
		return execution.varsSnapshot(), nil

	case pluginapi.NodeAction:
		return rs.dispatchAction(ctx, execution, node)

	case pluginapi.NodeCondition:
		return rs.dispatchCondition(execution, node)

	case pluginapi.NodeDelay:
		return nil, rs.dispatchDelay(ctx, execution, node)

	case pluginapi.NodeLoop:
		return rs.dispatchLoop(ctx, execution, node)

	case pluginapi.NodeOutput:
		return execution.getVar("_lastOutput"), nil

	case pluginapi.NodeSubflow:
		return rs.dispatchSubflow(ctx, execution, node)

	default:
		return nil, fmt.Errorf("unknown node type: %s", node.Type)
	}
}

func (rs *runState) dispatchAction(ctx context.Context, execution *Execution, node pluginapi.Node) (any, error) {
	pluginName := stringField(node.Data, "pluginName")
	actionName := stringField(node.Data, "actionName")
	qualified := pluginName + ":" + actionName

	params, _ := node.Data["params"].(map[string]any)
	resolved := resolveParams(params, execution.varsSnapshot())

	result := rs.runner.ExecuteAction(ctx, qualified, resolved, pluginapi.ExecuteOptions{})
	execution.setVar("_lastOutput", result)
	return result, nil
}

func (rs *runState) dispatchCondition(execution *Execution, node pluginapi.Node) (any, error) {
	result := evaluateConditionNode(node.Data, execution.varsSnapshot())
	execution.setVar("_conditionResult", result)
	return result, nil
}

// evaluateConditionNode evaluates data.conditions against vars,
// combining with data.operator ("and"/"or", default "and"); an empty
// condition list evaluates to true (spec §4.6).
func evaluateConditionNode(data map[string]any, vars map[string]any) bool {
	rawConditions, _ := data["conditions"].([]any)
	if len(rawConditions) == 0 {
		return true
	}

	operator, _ := data["operator"].(string)
	if operator == "" {
		operator = "and"
	}

	results := make([]bool, 0, len(rawConditions))
	for _, raw := range rawConditions {
		cond, ok := raw.(map[string]any)
		if !ok {
			results = append(results, false)
			continue
		}
		field := stringField(cond, "field")
		op := stringField(cond, "operator")
		value := cond["value"]

		left, _ := resolvePath(vars, field)
		results = append(results, evalOperator(op, left, value))
	}

	if operator == "or" {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func (rs *runState) dispatchDelay(ctx context.Context, execution *Execution, node pluginapi.Node) error {
	delayMs, _ := toFloat(node.Data["delayMs"])
	duration := time.Duration(delayMs) * time.Millisecond

	if delayType := stringField(node.Data, "delayType"); delayType == "random" {
		if maxMs, ok := toFloat(node.Data["maxDelayMs"]); ok && maxMs > delayMs {
			span := maxMs - delayMs
			duration = time.Duration(delayMs+rand.Float64()*span) * time.Millisecond
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(duration):
		return nil
	}
}

const defaultMaxWhileIterations = 1000

// dispatchLoop drives a loop node's own iteration and completion edges
// directly, rather than reporting an output for walk to fan out from
// (spec §9 Open Question: loop dispatch owns its child recursion). On
// success it has already walked every "complete"-handled edge; on
// failure it aborts remaining iterations and returns the error, which
// walk then routes through the loop node's own error edges exactly as
// it would for any other node.
func (rs *runState) dispatchLoop(ctx context.Context, execution *Execution, node pluginapi.Node) (any, error) {
	var iterationEdges, completeEdges []pluginapi.Edge
	for _, edge := range rs.edgesBySource[node.ID] {
		switch edge.Handle {
		case "complete":
			completeEdges = append(completeEdges, edge)
		case "error", "failure":
		default:
			iterationEdges = append(iterationEdges, edge)
		}
	}

	results, err := rs.runLoopBody(ctx, execution, node, iterationEdges)
	if err != nil {
		return nil, err
	}

	for _, edge := range completeEdges {
		if err := rs.walk(ctx, execution, edge.Target); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (rs *runState) runLoopBody(ctx context.Context, execution *Execution, node pluginapi.Node, iterationEdges []pluginapi.Edge) ([]any, error) {
	loopType := stringField(node.Data, "loopType")
	config, _ := node.Data["config"].(map[string]any)
	var results []any

	runIteration := func(index int, item any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		execution.setVar("_loopIndex", index)
		execution.setVar("_loopItem", item)
		for _, edge := range iterationEdges {
			if err := rs.walk(ctx, execution, edge.Target); err != nil {
				return err
			}
		}
		results = append(results, execution.getVar("_lastOutput"))
		return nil
	}

	switch loopType {
	case "count":
		count, _ := toFloat(config["count"])
		for i := 0; i < int(count); i++ {
			if err := runIteration(i, nil); err != nil {
				return nil, err
			}
		}

	case "while":
		maxIterations := defaultMaxWhileIterations
		if m, ok := toFloat(config["maxIterations"]); ok && m > 0 {
			maxIterations = int(m)
		}
		cond, _ := config["condition"].(map[string]any)
		for i := 0; i < maxIterations; i++ {
			if !evalWhileCondition(cond, execution.varsSnapshot()) {
				break
			}
			if err := runIteration(i, nil); err != nil {
				return nil, err
			}
		}

	default: // "forEach"
		items := loopItems(config, execution.varsSnapshot())
		for i, item := range items {
			if err := runIteration(i, item); err != nil {
				return nil, err
			}
		}
	}

	return results, nil
}

// evalWhileCondition evaluates a single {field, operator, value}
// condition, as data.config.condition carries for "while" loops
// (spec §4.6, §6 node data shapes). A missing condition is never true,
// so a malformed while loop terminates rather than spinning.
func evalWhileCondition(cond map[string]any, vars map[string]any) bool {
	if cond == nil {
		return false
	}
	left, _ := resolvePath(vars, stringField(cond, "field"))
	return evalOperator(stringField(cond, "operator"), left, cond["value"])
}

// loopItems resolves config.items as a dotted path into vars (spec
// §4.6: "resolve data.config.items as a dotted variable path").
func loopItems(config map[string]any, vars map[string]any) []any {
	path := stringField(config, "items")
	if path == "" {
		return nil
	}
	val, ok := resolvePath(vars, path)
	if !ok {
		return nil
	}
	seq, _ := toSequence(val)
	return seq
}

func (rs *runState) dispatchSubflow(ctx context.Context, execution *Execution, node pluginapi.Node) (any, error) {
	flowID := stringField(node.Data, "flowId")
	subExecution, err := rs.engine.Execute(ctx, flowID, execution.varsSnapshot())
	if err != nil {
		return nil, err
	}

	select {
	case <-subExecution.Done():
	case <-ctx.Done():
		rs.engine.Cancel(subExecution.ExecutionID)
		return nil, ctx.Err()
	}

	if subExecution.Status() == StatusFailed {
		return nil, fmt.Errorf("subflow %s failed", flowID)
	}
	return subExecution.Variables(), nil
}
