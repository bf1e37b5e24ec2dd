package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu       sync.Mutex
	messages []TriggerMessage
}

func (b *fakeBroker) Publish(ctx context.Context, queueName string, msg TriggerMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

func (b *fakeBroker) Consume(ctx context.Context, queueName string) (*TriggerMessage, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		return nil, false, nil
	}
	msg := b.messages[0]
	b.messages = b.messages[1:]
	return &msg, true, nil
}

type fakeRunner struct {
	mu  sync.Mutex
	ran []string
}

func (r *fakeRunner) RunMessage(ctx context.Context, msg TriggerMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, msg.ExecutionID)
	return nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func TestWorkerProcessesQueuedMessage(t *testing.T) {
	broker := &fakeBroker{}
	require.NoError(t, broker.Publish(context.Background(), WorkflowsQueueName, TriggerMessage{ExecutionID: "e1"}))
	runner := &fakeRunner{}

	w := NewWorker("w1", broker, runner, WorkflowsQueueName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	health := w.Health()
	assert.Equal(t, WorkerStatusIdle, health.Status)
	assert.Equal(t, 1, health.Processed)
}

func TestWorkerStopIsGraceful(t *testing.T) {
	broker := &fakeBroker{}
	runner := &fakeRunner{}
	w := NewWorker("w1", broker, runner, WorkflowsQueueName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	w.Stop() // must return once the poll loop observes stopCh, not hang
	assert.Equal(t, WorkerStatusIdle, w.Health().Status)
}
