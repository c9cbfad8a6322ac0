package pluginreg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginhost/internal/apperrors"
	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
	"github.com/streamspace-dev/pluginhost/internal/pluginreg"
)

type stubPlugin struct {
	name string
	deps []string
}

func (s *stubPlugin) Name() string                  { return s.name }
func (s *stubPlugin) Version() string               { return "1.0.0" }
func (s *stubPlugin) Dependencies() []string        { return s.deps }
func (s *stubPlugin) Init(core pluginapi.Core) error { return nil }

func register(t *testing.T, r *pluginreg.Registry, name string, deps ...string) {
	t.Helper()
	err := r.Register(&stubPlugin{name: name, deps: deps}, pluginreg.RegisterOptions{})
	require.NoError(t, err)
}

func TestDependencyOrderedInit(t *testing.T) {
	r := pluginreg.New(logger.Nop())

	// Registered out of dependency order: D, C, B, A.
	register(t, r, "D", "B", "C")
	register(t, r, "C", "A")
	register(t, r, "B", "A")
	register(t, r, "A")

	order, err := r.GetLoadOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}

	assert.Less(t, pos["A"], pos["B"])
	assert.Less(t, pos["A"], pos["C"])
	assert.Less(t, pos["B"], pos["D"])
	assert.Less(t, pos["C"], pos["D"])
	assert.Equal(t, 3, pos["D"])
}

func TestCircularDependencyDetection(t *testing.T) {
	r := pluginreg.New(logger.Nop())
	register(t, r, "X", "Y")
	register(t, r, "Y", "X")

	_, err := r.GetLoadOrder()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindCircularDependency))
}

func TestMissingDependenciesSkippedNotErrored(t *testing.T) {
	r := pluginreg.New(logger.Nop())
	register(t, r, "A", "ghost")

	order, err := r.GetLoadOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, order)
	assert.Equal(t, []string{"ghost"}, r.GetMissingDependencies("A"))
}

func TestLoadOrderTieBreaksByPriorityThenName(t *testing.T) {
	r := pluginreg.New(logger.Nop())
	require.NoError(t, r.Register(&stubPlugin{name: "low"}, pluginreg.RegisterOptions{Priority: 0}))
	require.NoError(t, r.Register(&stubPlugin{name: "high"}, pluginreg.RegisterOptions{Priority: 10}))
	require.NoError(t, r.Register(&stubPlugin{name: "mid"}, pluginreg.RegisterOptions{Priority: 5}))

	order, err := r.GetLoadOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestUnregisterBlockedByDependents(t *testing.T) {
	r := pluginreg.New(logger.Nop())
	register(t, r, "base")
	register(t, r, "dependent", "base")

	err := r.Unregister("base")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnregisterBlocked))
}

func TestRegisterDuplicateNameRejected(t *testing.T) {
	r := pluginreg.New(logger.Nop())
	register(t, r, "dup")

	err := r.Register(&stubPlugin{name: "dup"}, pluginreg.RegisterOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPluginAlreadyExists))
}

func TestGetLoadOrderEveryPluginExactlyOnce(t *testing.T) {
	r := pluginreg.New(logger.Nop())
	register(t, r, "A")
	register(t, r, "B", "A")
	register(t, r, "C", "A")

	order, err := r.GetLoadOrder()
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, n := range order {
		seen[n]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "plugin %s appeared %d times", name, count)
	}
	assert.Len(t, order, 3)
}

func TestUpdateStatusActiveStampsLoadedAt(t *testing.T) {
	r := pluginreg.New(logger.Nop())
	register(t, r, "A")

	require.NoError(t, r.UpdateStatus("A", pluginreg.StatusActive, nil))
	rec, ok := r.GetState("A")
	require.True(t, ok)
	assert.Equal(t, pluginreg.StatusActive, rec.Status)
	assert.False(t, rec.LoadedAt.IsZero())
}
