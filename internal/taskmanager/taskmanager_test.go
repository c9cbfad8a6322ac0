package taskmanager_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginhost/internal/logger"
	"github.com/streamspace-dev/pluginhost/internal/taskmanager"
)

func TestSubmitRunsTaskToCompletion(t *testing.T) {
	m := taskmanager.New(2, logger.Nop())

	var ran bool
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)

	m.OnEvent(func(id string, status taskmanager.Status, err error) {
		if status == taskmanager.StatusCompleted {
			wg.Done()
		}
	})

	m.Submit(taskmanager.Task{
		Run: func(ctx context.Context) error {
			mu.Lock()
			ran = true
			mu.Unlock()
			return nil
		},
	})

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, ran)
}

func TestPriorityOrderingRunsHighestFirst(t *testing.T) {
	m := taskmanager.New(1, logger.Nop())

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(3)

	m.OnEvent(func(id string, status taskmanager.Status, err error) {
		if status == taskmanager.StatusCompleted {
			wg.Done()
		}
	})

	block := make(chan struct{})
	m.Submit(taskmanager.Task{
		ID: "blocker", Priority: 100,
		Run: func(ctx context.Context) error {
			<-block
			return nil
		},
	})
	// give the blocker time to be popped and start, holding the single slot
	time.Sleep(20 * time.Millisecond)

	m.Submit(taskmanager.Task{
		ID: "low", Priority: 1,
		Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, "low")
			mu.Unlock()
			return nil
		},
	})
	m.Submit(taskmanager.Task{
		ID: "high", Priority: 10,
		Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, "high")
			mu.Unlock()
			return nil
		},
	})

	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, "high", order[0])
	assert.Equal(t, "low", order[1])
}

func TestTaskTimeoutReportsCancelled(t *testing.T) {
	m := taskmanager.New(1, logger.Nop())

	statusCh := make(chan taskmanager.Status, 1)
	m.OnEvent(func(id string, status taskmanager.Status, err error) {
		if status == taskmanager.StatusCancelled || status == taskmanager.StatusFailed {
			select {
			case statusCh <- status:
			default:
			}
		}
	})

	m.Submit(taskmanager.Task{
		Timeout: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	select {
	case status := <-statusCh:
		assert.Equal(t, taskmanager.StatusCancelled, status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task status")
	}
}

func TestPanicRecoveredAsFailure(t *testing.T) {
	m := taskmanager.New(1, logger.Nop())

	statusCh := make(chan taskmanager.Status, 1)
	m.OnEvent(func(id string, status taskmanager.Status, err error) {
		if status == taskmanager.StatusFailed {
			select {
			case statusCh <- status:
			default:
			}
		}
	})

	m.Submit(taskmanager.Task{
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	})

	select {
	case status := <-statusCh:
		assert.Equal(t, taskmanager.StatusFailed, status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task status")
	}
}

func TestCancelOwnerDropsQueuedTasks(t *testing.T) {
	m := taskmanager.New(1, logger.Nop())

	block := make(chan struct{})
	m.Submit(taskmanager.Task{
		Owner: "other",
		Run: func(ctx context.Context) error {
			<-block
			return nil
		},
	})
	time.Sleep(20 * time.Millisecond)

	cancelled := make(chan struct{}, 1)
	m.OnEvent(func(id string, status taskmanager.Status, err error) {
		if status == taskmanager.StatusCancelled {
			cancelled <- struct{}{}
		}
	})

	m.Submit(taskmanager.Task{
		Owner: "victim",
		Run: func(ctx context.Context) error {
			return nil
		},
	})
	m.CancelOwner("victim")

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected cancellation notification")
	}
	close(block)
}
