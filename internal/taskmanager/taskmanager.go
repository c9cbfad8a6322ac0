// Package taskmanager implements a bounded-concurrency worker pool.
// It is adjacent to the plugin host core rather than required by it:
// the Executor and Flow Engine can dispatch work through it when a
// host wants an upper bound on in-flight work, but neither depends on
// it directly.
//
// The shape is adapted from the teacher's api/internal/plugins
// scheduler.go: a single shared runner, jobs tagged by owner so they
// can all be torn down together, panics recovered so one bad task
// can't take down the pool. Where the teacher's scheduler runs jobs on
// a cron tick, this pool runs them as soon as a concurrency slot frees
// up, ordered by priority.
package taskmanager

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/streamspace-dev/pluginhost/internal/logger"
)

// Status is the lifecycle state of a submitted Task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is a unit of work submitted to the Manager.
type Task struct {
	ID       string
	Owner    string
	Priority int
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Observer receives lifecycle notifications for tasks as they move
// through the pool. Implementations must return quickly; they are
// invoked synchronously: queued notifications (and cancellations from
// Submit after Close or from CancelOwner) on the caller's goroutine,
// every other status on the worker goroutine driving the task.
type Observer func(taskID string, status Status, err error)

// Manager is a priority-ordered, bounded-concurrency worker pool.
type Manager struct {
	mu        sync.Mutex
	queue     taskHeap
	observers []Observer
	sem       *semaphore.Weighted
	log       zerolog.Logger
	wg        sync.WaitGroup
	seq       uint64

	closed bool
}

// New builds a Manager allowing at most maxConcurrent tasks to run at
// once. log is used as given; pass logger.Nop() to discard output.
func New(maxConcurrent int64, log zerolog.Logger) *Manager {
	return &Manager{
		sem: semaphore.NewWeighted(maxConcurrent),
		log: log,
	}
}

// Default constructs a Manager using the package's component logger
// and a concurrency cap of 8, a reasonable default for an embedded
// host with no explicit tuning.
func Default() *Manager {
	return New(8, logger.Component("taskmanager"))
}

// OnEvent registers an observer invoked for every status transition of
// every task. Intended for tests and metrics bridges, not control flow.
func (m *Manager) OnEvent(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Submit enqueues a task and returns its id immediately; the task runs
// asynchronously once a concurrency slot is available and it is next
// by (priority desc, submission order).
func (m *Manager) Submit(t Task) string {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.notify(t.ID, StatusCancelled, nil)
		return t.ID
	}
	m.seq++
	heap.Push(&m.queue, &heapItem{task: t, seq: m.seq})
	m.mu.Unlock()

	m.notify(t.ID, StatusQueued, nil)

	m.wg.Add(1)
	go m.drainOne()

	return t.ID
}

// Wait blocks until every submitted task has finished (completed,
// failed, or cancelled).
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close prevents further submissions; tasks already queued still run.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// CancelOwner drops every not-yet-started task belonging to owner from
// the queue, notifying observers of cancellation. Tasks already
// running are unaffected; Run functions that accept a context should
// check ctx.Done() to cooperate with cancellation.
func (m *Manager) CancelOwner(owner string) {
	m.mu.Lock()
	var kept taskHeap
	var dropped []string
	for _, item := range m.queue {
		if item.task.Owner == owner {
			dropped = append(dropped, item.task.ID)
			continue
		}
		kept = append(kept, item)
	}
	heap.Init(&kept)
	m.queue = kept
	m.mu.Unlock()

	for _, id := range dropped {
		m.notify(id, StatusCancelled, nil)
	}
}

func (m *Manager) drainOne() {
	defer m.wg.Done()

	if err := m.sem.Acquire(context.Background(), 1); err != nil {
		m.log.Error().Err(err).Msg("acquire concurrency slot")
		return
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	if m.queue.Len() == 0 {
		m.mu.Unlock()
		return
	}
	item := heap.Pop(&m.queue).(*heapItem)
	m.mu.Unlock()

	task := item.task

	m.notify(task.ID, StatusStarted, nil)

	ctx := context.Background()
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	err := m.runSafely(ctx, task)
	if err != nil {
		if err == context.DeadlineExceeded || err == context.Canceled {
			m.notify(task.ID, StatusCancelled, err)
			return
		}
		m.notify(task.ID, StatusFailed, err)
		return
	}
	m.notify(task.ID, StatusCompleted, nil)
}

func (m *Manager) runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("task", task.ID).Interface("panic", r).Msg("task panicked")
			err = &panicError{value: r}
		}
	}()
	return task.Run(ctx)
}

func (m *Manager) notify(taskID string, status Status, err error) {
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, obs := range observers {
		obs(taskID, status, err)
	}
}

type panicError struct{ value any }

func (p *panicError) Error() string { return fmt.Sprintf("task panicked: %v", p.value) }

// heapItem and taskHeap implement container/heap's Interface so tasks
// pop in (priority desc, insertion order asc) without pulling in a
// third-party priority-queue library; none appears anywhere in the
// retrieved example pack for this shape.
type heapItem struct {
	task Task
	seq  uint64
}

type taskHeap []*heapItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*heapItem))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
