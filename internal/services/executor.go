package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/streamspace-dev/pluginhost/internal/apperrors"
	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

// Executor is a thin dispatcher wrapping a Registry: it adds input
// validation, retry with exponential backoff, and error normalization
// (spec §4.2).
type Executor struct {
	registry *Registry
	log      zerolog.Logger
}

// NewExecutor wraps registry.
func NewExecutor(registry *Registry, log zerolog.Logger) *Executor {
	return &Executor{registry: registry, log: log}
}

// DefaultExecutor wraps registry using the package's component logger.
func DefaultExecutor(registry *Registry) *Executor {
	return NewExecutor(registry, logger.Component("executor"))
}

// derivePluginName returns the substring before the first ':' in a
// qualified name, or "unknown" if there is none (spec §4.2).
func derivePluginName(name string) string {
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		return name[:idx]
	}
	return "unknown"
}

// ExecuteAction dispatches name with input, applying validation and
// optional retry. It never returns an error for "not found" or for an
// action panicking/erroring -- those are reported via the returned
// ActionResult's Success/Error fields (spec §4.2 contract).
func (e *Executor) ExecuteAction(ctx context.Context, name string, input any, opts pluginapi.ExecuteOptions) pluginapi.ActionResult {
	action, ok := e.registry.GetAction(name)
	if !ok {
		return pluginapi.ActionResult{Success: false, Error: "Action not found: " + name}
	}

	if validating, ok := action.(pluginapi.ValidatingAction); ok {
		vr := validating.Validate(input)
		if !vr.Valid {
			return pluginapi.ActionResult{Success: false, Error: "Validation failed: " + strings.Join(vr.Errors, ", ")}
		}
	}

	actx := pluginapi.ActionContext{
		PluginName: derivePluginName(name),
		AgentID:    uuid.NewString(),
		Input:      input,
	}

	if !opts.Retry {
		return e.invokeOnce(ctx, action, actx)
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var result pluginapi.ActionResult
	backoff := 10 * time.Millisecond
	for attempt := 1; attempt <= maxRetries; attempt++ {
		result = e.invokeOnce(ctx, action, actx)
		if result.Success {
			return result
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return pluginapi.ActionResult{Success: false, Error: ctx.Err().Error()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return result
}

// invokeOnce calls the action's entry point once, recovering panics
// and normalizing them into the same {success:false, error} shape a
// returned error would produce (spec §7 ActionExecutionError).
func (e *Executor) invokeOnce(ctx context.Context, action pluginapi.Action, actx pluginapi.ActionContext) (result pluginapi.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("action", action.Name()).Interface("panic", r).Msg("action panicked")
			result = pluginapi.ActionResult{Success: false, Error: "action panicked"}
		}
	}()
	return action.Execute(ctx, actx)
}

// GetData dispatches to the named Provider, normalizing panics into
// the provider's own timestamped failure shape (spec §4.2).
func (e *Executor) GetData(ctx context.Context, name string, query any) pluginapi.ProviderResult {
	provider, ok := e.registry.GetProvider(name)
	if !ok {
		return pluginapi.ProviderResult{Success: false, Error: "Provider not found: " + name, Timestamp: timeNow()}
	}

	pctx := pluginapi.ProviderContext{
		PluginName: derivePluginName(name),
		AgentID:    uuid.NewString(),
		Query:      query,
	}

	return e.invokeProvider(ctx, provider, pctx)
}

func (e *Executor) invokeProvider(ctx context.Context, provider pluginapi.Provider, pctx pluginapi.ProviderContext) (result pluginapi.ProviderResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("provider", provider.Name()).Interface("panic", r).Msg("provider panicked")
			result = pluginapi.ProviderResult{Success: false, Error: "provider panicked", Timestamp: timeNow()}
		}
	}()
	return provider.Get(ctx, pctx)
}

// Evaluate dispatches to the named Evaluator and returns its boolean
// verdict. Unlike ExecuteAction/GetData, a missing evaluator is
// reported via error rather than a result shape (spec §4.2).
func (e *Executor) Evaluate(ctx context.Context, name string, condition string, data any) (bool, error) {
	evaluator, ok := e.registry.GetEvaluator(name)
	if !ok {
		return false, apperrors.Wrap(apperrors.KindServiceNotFound, "evaluator not found: "+name, errors.New(name))
	}

	ectx := pluginapi.EvaluatorContext{
		PluginName: derivePluginName(name),
		AgentID:    uuid.NewString(),
		Condition:  condition,
		Data:       data,
	}
	return evaluator.Evaluate(ctx, ectx), nil
}

var timeNow = time.Now
