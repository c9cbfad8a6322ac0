package hooks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginhost/internal/hooks"
	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

func TestPriorityOrderedHooks(t *testing.T) {
	b := hooks.New(logger.Nop())

	var order []string
	record := func(name string) pluginapi.HookHandler {
		return func(ctx context.Context, payload pluginapi.HookPayload) error {
			order = append(order, name)
			return nil
		}
	}

	b.OnWithOwner("custom:test", record("L"), 1, "")
	b.OnWithOwner("custom:test", record("H"), 10, "")
	b.OnWithOwner("custom:test", record("M"), 5, "")

	results := b.Emit(context.Background(), "custom:test", nil, pluginapi.EmitOptions{})

	assert.Equal(t, []string{"H", "M", "L"}, order)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestStopOnErrorHaltsWalk(t *testing.T) {
	b := hooks.New(logger.Nop())

	var ran []string
	b.OnWithOwner("custom:x", func(ctx context.Context, p pluginapi.HookPayload) error {
		ran = append(ran, "first")
		return nil
	}, 10, "")
	b.OnWithOwner("custom:x", func(ctx context.Context, p pluginapi.HookPayload) error {
		ran = append(ran, "failing")
		return errors.New("boom")
	}, 5, "")
	b.OnWithOwner("custom:x", func(ctx context.Context, p pluginapi.HookPayload) error {
		ran = append(ran, "last")
		return nil
	}, 1, "")

	results := b.Emit(context.Background(), "custom:x", nil, pluginapi.EmitOptions{StopOnError: true})
	assert.Equal(t, []string{"first", "failing"}, ran)
	assert.Len(t, results, 2)
}

func TestContinueOnErrorRunsAllAndReportsOneFailure(t *testing.T) {
	b := hooks.New(logger.Nop())

	var ran []string
	b.OnWithOwner("custom:x", func(ctx context.Context, p pluginapi.HookPayload) error {
		ran = append(ran, "first")
		return nil
	}, 10, "")
	b.OnWithOwner("custom:x", func(ctx context.Context, p pluginapi.HookPayload) error {
		ran = append(ran, "failing")
		return errors.New("boom")
	}, 5, "")
	b.OnWithOwner("custom:x", func(ctx context.Context, p pluginapi.HookPayload) error {
		ran = append(ran, "last")
		return nil
	}, 1, "")

	results := b.Emit(context.Background(), "custom:x", nil, pluginapi.EmitOptions{StopOnError: false})
	assert.Equal(t, []string{"first", "failing", "last"}, ran)
	require.Len(t, results, 3)

	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestOnceRemovedAfterFirstEmit(t *testing.T) {
	b := hooks.New(logger.Nop())
	calls := 0
	b.Once("one-shot", func(ctx context.Context, p pluginapi.HookPayload) error {
		calls++
		return nil
	})

	b.Emit(context.Background(), "one-shot", nil, pluginapi.EmitOptions{})
	b.Emit(context.Background(), "one-shot", nil, pluginapi.EmitOptions{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.GetTotalHookCount())
}

func TestUnregisterPluginRemovesOnlyItsHooks(t *testing.T) {
	b := hooks.New(logger.Nop())
	b.OnWithOwner("evt:a", func(ctx context.Context, p pluginapi.HookPayload) error { return nil }, 0, "P")
	b.OnWithOwner("evt:b", func(ctx context.Context, p pluginapi.HookPayload) error { return nil }, 0, "P")
	b.OnWithOwner("evt:a", func(ctx context.Context, p pluginapi.HookPayload) error { return nil }, 0, "Q")

	b.UnregisterPlugin("P")

	assert.Equal(t, 1, b.GetTotalHookCount())
}

func TestHandlerPanicRecoveredAsFailure(t *testing.T) {
	b := hooks.New(logger.Nop())
	b.On("evt", func(ctx context.Context, p pluginapi.HookPayload) error {
		panic("boom")
	})

	results := b.Emit(context.Background(), "evt", nil, pluginapi.EmitOptions{})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestClearRemovesEverything(t *testing.T) {
	b := hooks.New(logger.Nop())
	b.On("evt", func(ctx context.Context, p pluginapi.HookPayload) error { return nil })
	b.Clear()
	assert.Equal(t, 0, b.GetTotalHookCount())
}
