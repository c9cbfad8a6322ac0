package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/streamspace-dev/pluginhost/internal/apperrors"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

// runState holds the per-execution read-only view of a flow
// definition -- node/edge indices built once up front so walk doesn't
// re-scan the definition's slices on every visit.
type runState struct {
	engine *Engine
	runner ActionRunner

	nodesByID     map[string]pluginapi.Node
	edgesBySource map[string][]pluginapi.Edge
}

func newRunState(e *Engine, def pluginapi.FlowDefinition) *runState {
	nodesByID := make(map[string]pluginapi.Node, len(def.Nodes))
	for _, n := range def.Nodes {
		nodesByID[n.ID] = n
	}
	edgesBySource := make(map[string][]pluginapi.Edge, len(def.Edges))
	for _, edge := range def.Edges {
		edgesBySource[edge.Source] = append(edgesBySource[edge.Source], edge)
	}
	return &runState{engine: e, runner: e.runner, nodesByID: nodesByID, edgesBySource: edgesBySource}
}

// Execute validates def, locates its trigger node, and starts walking
// the graph in a background goroutine, returning the Execution
// immediately so callers can observe its id and call Cancel while the
// walk is still in flight (spec §8 scenario 8: cancel a long-running
// delay node within 100ms).
func (e *Engine) Execute(ctx context.Context, flowID string, input map[string]any) (*Execution, error) {
	def, ok := e.Get(flowID)
	if !ok {
		return nil, apperrors.New(apperrors.KindFlowNotFound, "flow not found: "+flowID)
	}

	result := Validate(def)
	if !result.Valid {
		return nil, apperrors.Newf(apperrors.KindInvalidFlow, "flow %s failed validation: %v", flowID, result.Errors)
	}

	trigger, ok := findTriggerNode(def)
	if !ok {
		return nil, apperrors.New(apperrors.KindInvalidFlow, "flow has no trigger node: "+flowID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	execution := newExecution(flowID, uuid.NewString(), input, cancel)

	e.executionsMu.Lock()
	e.executions[execution.ExecutionID] = execution
	e.executionsMu.Unlock()

	rs := newRunState(e, def)
	go e.run(runCtx, rs, execution, trigger.ID)

	return execution, nil
}

func findTriggerNode(def pluginapi.FlowDefinition) (pluginapi.Node, bool) {
	for _, n := range def.Nodes {
		if n.Type == pluginapi.NodeTrigger {
			return n, true
		}
	}
	return pluginapi.Node{}, false
}

func (e *Engine) run(ctx context.Context, rs *runState, execution *Execution, startNodeID string) {
	err := rs.walk(ctx, execution, startNodeID)
	switch {
	case err == nil:
		execution.finish(StatusCompleted)
	case errors.Is(err, context.Canceled):
		execution.finish(StatusCancelled)
	default:
		e.log.Debug().Str("executionId", execution.ExecutionID).Err(err).Msg("flow execution failed")
		execution.finish(StatusFailed)
	}
}

// walk visits nodeID: dispatches it, records its result, and recurses
// into whichever outgoing edges the node's outcome selects (spec
// §4.6). Loop nodes are the one exception -- they drive their own
// iteration/complete recursion inside dispatchLoop, so walk does no
// further edge enumeration for them on success.
func (rs *runState) walk(ctx context.Context, execution *Execution, nodeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	node, ok := rs.nodesByID[nodeID]
	if !ok {
		return fmt.Errorf("node not found: %s", nodeID)
	}

	execution.startNode(nodeID)
	output, err := rs.dispatch(ctx, execution, node)
	execution.finishNode(nodeID, output, err)

	if err != nil {
		return rs.routeError(ctx, execution, node, err)
	}

	if node.Type == pluginapi.NodeLoop {
		return nil
	}

	for _, edge := range rs.selectEdges(execution, node, output) {
		if err := rs.walk(ctx, execution, edge.Target); err != nil {
			return err
		}
	}
	return nil
}

// routeError handles a failed node: if it has outgoing error/failure
// edges it routes into those and the flow continues; otherwise the
// error propagates up the call stack to fail the whole execution.
func (rs *runState) routeError(ctx context.Context, execution *Execution, node pluginapi.Node, nodeErr error) error {
	var errorEdges []pluginapi.Edge
	for _, edge := range rs.edgesBySource[node.ID] {
		if edge.Handle == "error" || edge.Handle == "failure" {
			errorEdges = append(errorEdges, edge)
		}
	}
	if len(errorEdges) == 0 {
		return nodeErr
	}

	execution.setVar("_error", map[string]any{
		"message": nodeErr.Error(),
		"nodeId":  node.ID,
		"nodeName": node.Name,
	})
	for _, edge := range errorEdges {
		if err := rs.walk(ctx, execution, edge.Target); err != nil {
			return err
		}
	}
	return nil
}

// selectEdges picks the non-error outgoing edges to follow after a
// successful dispatch: condition nodes route by the "true"/"false"
// handle matching their boolean result, every other node type follows
// every non-error edge, and any edge carrying its own EdgeCondition is
// additionally gated on that condition against the current variables.
func (rs *runState) selectEdges(execution *Execution, node pluginapi.Node, output any) []pluginapi.Edge {
	all := rs.edgesBySource[node.ID]
	vars := execution.varsSnapshot()

	candidates := make([]pluginapi.Edge, 0, len(all))
	for _, edge := range all {
		if edge.Handle == "error" || edge.Handle == "failure" {
			continue
		}
		if node.Type == pluginapi.NodeCondition {
			want := "false"
			if result, _ := output.(bool); result {
				want = "true"
			}
			if edge.Handle != want {
				continue
			}
		}
		if edge.Condition != nil {
			left, _ := resolvePath(vars, edge.Condition.Field)
			if !evalOperator(edge.Condition.Operator, left, edge.Condition.Value) {
				continue
			}
		}
		candidates = append(candidates, edge)
	}
	return candidates
}

// GetExecution returns the tracked execution for id.
func (e *Engine) GetExecution(id string) (*Execution, bool) {
	e.executionsMu.RLock()
	defer e.executionsMu.RUnlock()
	execution, ok := e.executions[id]
	return execution, ok
}

// Cancel requests cancellation of a running execution, reporting
// whether a running execution with that id was found. The execution's
// status transitions to cancelled once its walk goroutine observes the
// cancelled context (spec §8 scenario 8).
func (e *Engine) Cancel(id string) bool {
	execution, ok := e.GetExecution(id)
	if !ok {
		return false
	}
	if execution.Status() != StatusRunning {
		return false
	}
	execution.cancel()
	return true
}

// Clear discards every tracked execution. Stored flow definitions are
// untouched.
func (e *Engine) Clear() {
	e.executionsMu.Lock()
	defer e.executionsMu.Unlock()
	e.executions = make(map[string]*Execution)
}
