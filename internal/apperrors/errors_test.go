package apperrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginhost/internal/apperrors"
)

func TestNew(t *testing.T) {
	err := apperrors.New(apperrors.KindServiceNotFound, "no such service")
	assert.Equal(t, apperrors.KindServiceNotFound, err.Kind)
	assert.Contains(t, err.Error(), "no such service")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := apperrors.Wrap(apperrors.KindActionExecution, "action failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestIsMatchesByKindNotMessage(t *testing.T) {
	a := apperrors.New(apperrors.KindCircularDependency, "cycle: a -> b -> a")
	b := apperrors.New(apperrors.KindCircularDependency, "cycle: x -> y -> x")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, apperrors.New(apperrors.KindMissingDependencies, "")))
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", apperrors.New(apperrors.KindFlowNotFound, "flow x"))

	kind, ok := apperrors.KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindFlowNotFound, kind)

	_, ok = apperrors.KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWithDetails(t *testing.T) {
	err := apperrors.New(apperrors.KindPluginValidation, "bad manifest").
		WithDetails(map[string]any{"plugin": "demo"})

	assert.Equal(t, "demo", err.Details["plugin"])
}

func TestIsHelper(t *testing.T) {
	err := apperrors.New(apperrors.KindUnregisterBlocked, "dependents exist")
	assert.True(t, apperrors.Is(err, apperrors.KindUnregisterBlocked))
	assert.False(t, apperrors.Is(err, apperrors.KindCancelled))
}
