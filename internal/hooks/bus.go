// Package hooks implements the priority-ordered Hook Bus (spec §4.3):
// a per-event ordered sequence of handlers, indexed by owning plugin
// for bulk removal.
//
// Grounded on the teacher's api/internal/plugins/event_bus.go
// (subscribers map[string][]EventHandler, Subscribe/Unsubscribe/Emit),
// generalized from the teacher's async fire-and-forget Emit (one
// goroutine per handler, errors discarded) to the spec's sequential,
// priority-ordered emit that can optionally stop on the first error
// and always reports a per-handler result.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/pluginapi"
)

type registration struct {
	id       string
	event    string
	handler  pluginapi.HookHandler
	priority int
	once     bool
	owner    string
	seq      uint64
}

// Bus is the Hook Bus. Safe for concurrent use: registration, removal,
// and emit all hold the same mutex, so one-shot removal is atomic with
// respect to concurrent registration on the same event (spec §5).
type Bus struct {
	mu    sync.Mutex
	byEvt map[string][]*registration
	byID  map[string]*registration
	owned map[string]map[string]struct{}
	seq   uint64
	log   zerolog.Logger
}

// New builds an empty Bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		byEvt: make(map[string][]*registration),
		byID:  make(map[string]*registration),
		owned: make(map[string]map[string]struct{}),
		log:   log,
	}
}

// Default builds a Bus using the package's component logger.
func Default() *Bus {
	return New(logger.Component("hooks"))
}

// Register appends def to event's sequence, re-sorting so higher
// priority runs first with ties broken by registration order, and
// indexes the registration under owner. Returns the new registration's
// id.
func (b *Bus) Register(def pluginapi.HookDef, owner string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	reg := &registration{
		id:       uuid.NewString(),
		event:    def.Event,
		handler:  def.Handler,
		priority: def.Priority,
		once:     def.Once,
		owner:    owner,
		seq:      b.seq,
	}

	b.byEvt[def.Event] = append(b.byEvt[def.Event], reg)
	b.sortEvent(def.Event)
	b.byID[reg.id] = reg

	if owner != "" {
		set, ok := b.owned[owner]
		if !ok {
			set = make(map[string]struct{})
			b.owned[owner] = set
		}
		set[reg.id] = struct{}{}
	}

	return reg.id
}

func (b *Bus) sortEvent(event string) {
	list := b.byEvt[event]
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
}

// On registers handler for event with default priority and no owner,
// a convenience wrapper over Register (spec §4.3).
func (b *Bus) On(event string, handler pluginapi.HookHandler) string {
	return b.Register(pluginapi.HookDef{Event: event, Handler: handler}, "")
}

// OnWithOwner is On but attributed to owner, for plugin-contributed
// hooks bound outside of lifecycle init (e.g. ad hoc subscriptions).
func (b *Bus) OnWithOwner(event string, handler pluginapi.HookHandler, priority int, owner string) string {
	return b.Register(pluginapi.HookDef{Event: event, Handler: handler, Priority: priority}, owner)
}

// Once is On with the one-shot flag set.
func (b *Bus) Once(event string, handler pluginapi.HookHandler) string {
	return b.Register(pluginapi.HookDef{Event: event, Handler: handler, Once: true}, "")
}

// Unregister removes a single hook by id.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeByID(id)
}

func (b *Bus) removeByID(id string) {
	reg, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)
	if reg.owner != "" {
		delete(b.owned[reg.owner], id)
	}
	list := b.byEvt[reg.event]
	for i, r := range list {
		if r.id == id {
			b.byEvt[reg.event] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// UnregisterPlugin removes every hook owned by owner, across all
// events (spec §4.3).
func (b *Bus) UnregisterPlugin(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.owned[owner]))
	for id := range b.owned[owner] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		b.removeByID(id)
	}
	delete(b.owned, owner)
}

// Emit walks event's ordered sequence synchronously, invoking each
// handler in turn. One-shot hooks are removed after invocation
// regardless of outcome. If opts.StopOnError is set and a handler
// returns an error, the walk stops and the results collected so far
// are returned; otherwise every handler runs and the bus itself never
// propagates a handler's error to the caller (spec §4.3).
func (b *Bus) Emit(ctx context.Context, event string, data any, opts pluginapi.EmitOptions) []pluginapi.HookResult {
	b.mu.Lock()
	list := append([]*registration(nil), b.byEvt[event]...)
	b.mu.Unlock()

	payload := pluginapi.HookPayload{
		Event:     event,
		Timestamp: time.Now(),
		Data:      data,
		Source:    opts.Source,
	}

	results := make([]pluginapi.HookResult, 0, len(list))
	for _, reg := range list {
		start := time.Now()
		err := b.invoke(reg.handler, ctx, payload)
		duration := time.Since(start)

		result := pluginapi.HookResult{HookName: reg.id, Success: err == nil, Duration: duration}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)

		if reg.once {
			b.Unregister(reg.id)
		}

		if err != nil && opts.StopOnError {
			break
		}
	}

	return results
}

func (b *Bus) invoke(handler pluginapi.HookHandler, ctx context.Context, payload pluginapi.HookPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("event", payload.Event).Interface("panic", r).Msg("hook handler panicked")
			err = panicAsError(r)
		}
	}()
	return handler(ctx, payload)
}

type handlerPanic struct{ value any }

func (p *handlerPanic) Error() string { return "hook handler panicked" }

func panicAsError(v any) error { return &handlerPanic{value: v} }

// GetTotalHookCount returns the number of hooks registered across all
// events.
func (b *Bus) GetTotalHookCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

// Clear removes every hook.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byEvt = make(map[string][]*registration)
	b.byID = make(map[string]*registration)
	b.owned = make(map[string]map[string]struct{})
}
