package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrphanReclaimer struct {
	calls int32
}

func (f *fakeOrphanReclaimer) ReclaimOrphans(ctx context.Context, olderThanSeconds int) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return 0, nil
}

func TestPoolStartSpawnsConfiguredWorkerCount(t *testing.T) {
	broker := &fakeBroker{}
	runner := &fakeRunner{}
	pool := NewPool("test-proc", broker, runner, 3, &fakeOrphanReclaimer{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	assert.Len(t, pool.Health(), 3)
}

func TestPoolStartIsIdempotent(t *testing.T) {
	broker := &fakeBroker{}
	runner := &fakeRunner{}
	pool := NewPool("test-proc", broker, runner, 2, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	pool.Start(ctx) // must not spawn a second set of workers
	defer pool.Stop()

	assert.Len(t, pool.Health(), 2)
}

func TestPoolProcessesAllQueuedMessages(t *testing.T) {
	broker := &fakeBroker{}
	for i := 0; i < 5; i++ {
		require.NoError(t, broker.Publish(context.Background(), WorkflowsQueueName, TriggerMessage{ExecutionID: "e"}))
	}
	runner := &fakeRunner{}
	pool := NewPool("test-proc", broker, runner, 2, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.Eventually(t, func() bool { return runner.count() == 5 }, 2*time.Second, 5*time.Millisecond)
	pool.Stop()
}

func TestPoolRunsOrphanReclaimOnTicker(t *testing.T) {
	broker := &fakeBroker{}
	runner := &fakeRunner{}
	reclaimer := &fakeOrphanReclaimer{}
	pool := NewPool("test-proc", broker, runner, 1, reclaimer, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&reclaimer.calls) > 0 }, time.Second, 5*time.Millisecond)
}
