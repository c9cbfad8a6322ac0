package lifecycle_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginhost/internal/apperrors"
	"github.com/streamspace-dev/pluginhost/internal/hooks"
	"github.com/streamspace-dev/pluginhost/internal/lifecycle"
	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
	"github.com/streamspace-dev/pluginhost/internal/pluginreg"
	"github.com/streamspace-dev/pluginhost/internal/services"
)

type countingPlugin struct {
	name     string
	deps     []string
	initCnt  int32
	initFunc func(core pluginapi.Core) error
}

func (p *countingPlugin) Name() string           { return p.name }
func (p *countingPlugin) Version() string        { return "1.0.0" }
func (p *countingPlugin) Dependencies() []string { return p.deps }
func (p *countingPlugin) Init(core pluginapi.Core) error {
	atomic.AddInt32(&p.initCnt, 1)
	if p.initFunc != nil {
		return p.initFunc(core)
	}
	return nil
}

func newHarness() (*pluginreg.Registry, *services.Registry, *hooks.Bus, *lifecycle.Manager) {
	reg := pluginreg.New(logger.Nop())
	svc := services.New(logger.Nop())
	bus := hooks.New(logger.Nop())
	var mgr *lifecycle.Manager
	mgr = lifecycle.New(reg, svc, bus, func() pluginapi.Core { return nil }, logger.Nop())
	return reg, svc, bus, mgr
}

func TestDependencyOrderedInitAll(t *testing.T) {
	reg, _, _, mgr := newHarness()

	var order []string
	var mu sync.Mutex
	mk := func(name string, deps ...string) *countingPlugin {
		return &countingPlugin{name: name, deps: deps, initFunc: func(core pluginapi.Core) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
	}

	d := mk("D", "B", "C")
	c := mk("C", "A")
	b := mk("B", "A")
	a := mk("A")

	require.NoError(t, reg.Register(d, pluginreg.RegisterOptions{}))
	require.NoError(t, reg.Register(c, pluginreg.RegisterOptions{}))
	require.NoError(t, reg.Register(b, pluginreg.RegisterOptions{}))
	require.NoError(t, reg.Register(a, pluginreg.RegisterOptions{}))

	require.NoError(t, mgr.InitAll())

	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["A"], pos["B"])
	assert.Less(t, pos["A"], pos["C"])
	assert.Less(t, pos["B"], pos["D"])
	assert.Less(t, pos["C"], pos["D"])
	assert.EqualValues(t, 1, a.initCnt)
	assert.EqualValues(t, 1, b.initCnt)
	assert.EqualValues(t, 1, c.initCnt)
	assert.EqualValues(t, 1, d.initCnt)
}

func TestReInitializingActivePluginIsNoOp(t *testing.T) {
	reg, _, _, mgr := newHarness()
	p := &countingPlugin{name: "solo"}
	require.NoError(t, reg.Register(p, pluginreg.RegisterOptions{}))

	require.NoError(t, mgr.InitPlugin("solo"))
	require.NoError(t, mgr.InitPlugin("solo"))
	require.NoError(t, mgr.InitPlugin("solo"))

	assert.EqualValues(t, 1, p.initCnt)
}

func TestConcurrentInitIsSingleFlight(t *testing.T) {
	reg, _, _, mgr := newHarness()
	start := make(chan struct{})
	p := &countingPlugin{name: "slow", initFunc: func(core pluginapi.Core) error {
		<-start
		return nil
	}}
	require.NoError(t, reg.Register(p, pluginreg.RegisterOptions{}))

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = mgr.InitPlugin("slow")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, p.initCnt)
}

func TestMissingDependenciesRaised(t *testing.T) {
	reg, _, _, mgr := newHarness()
	p := &countingPlugin{name: "needs-ghost", deps: []string{"ghost"}}
	require.NoError(t, reg.Register(p, pluginreg.RegisterOptions{}))

	err := mgr.InitPlugin("needs-ghost")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindMissingDependencies))
}

func TestDestroyBlockedByActiveDependent(t *testing.T) {
	reg, _, _, mgr := newHarness()
	base := &countingPlugin{name: "base"}
	dep := &countingPlugin{name: "dep", deps: []string{"base"}}
	require.NoError(t, reg.Register(base, pluginreg.RegisterOptions{}))
	require.NoError(t, reg.Register(dep, pluginreg.RegisterOptions{}))

	require.NoError(t, mgr.InitAll())

	err := mgr.DestroyPlugin("base")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnregisterBlocked))
}

func TestReloadPluginReInitializes(t *testing.T) {
	reg, _, _, mgr := newHarness()
	p := &countingPlugin{name: "reload-me"}
	require.NoError(t, reg.Register(p, pluginreg.RegisterOptions{}))

	require.NoError(t, mgr.InitPlugin("reload-me"))
	require.NoError(t, mgr.ReloadPlugin("reload-me"))

	assert.EqualValues(t, 2, p.initCnt)
}

func TestLifecycleObserversNotified(t *testing.T) {
	reg, _, _, mgr := newHarness()
	p := &countingPlugin{name: "observed"}
	require.NoError(t, reg.Register(p, pluginreg.RegisterOptions{}))

	var events []lifecycle.Event
	var mu sync.Mutex
	unsub := mgr.OnLifecycle(func(event lifecycle.Event, name string, err error) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})
	defer unsub()

	require.NoError(t, mgr.InitPlugin("observed"))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, lifecycle.EventBeforeInit)
	assert.Contains(t, events, lifecycle.EventAfterInit)
}
