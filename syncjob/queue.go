package syncjob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// MemoryQueue is a single process job queue. It honours the "drop" dedup
// policy for messages still waiting and delays requeued messages.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []queuedMessage
	deadLetter []*core.JobExecutionMessage
	now        func() time.Time
}

type queuedMessage struct {
	msg       *core.JobExecutionMessage
	notBefore time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("syncjob: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg.DedupPolicy == "drop" && msg.IdempotencyKey != "" {
		for _, queued := range q.ready {
			if queued.msg.IdempotencyKey == msg.IdempotencyKey {
				return nil
			}
		}
	}
	q.ready = append(q.ready, queuedMessage{msg: cloneMessage(msg)})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for i, queued := range q.ready {
		if queued.notBefore.After(now) {
			continue
		}
		q.ready = append(q.ready[:i], q.ready[i+1:]...)
		return &memoryDelivery{queue: q, msg: queued.msg}, nil
	}
	return nil, ErrQueueEmpty
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []*core.JobExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*core.JobExecutionMessage(nil), q.deadLetter...)
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *core.JobExecutionMessage
	done  bool
}

func (d *memoryDelivery) Message() *core.JobExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	if d.done {
		return fmt.Errorf("syncjob: delivery already settled")
	}
	d.done = true
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	if d.done {
		return fmt.Errorf("syncjob: delivery already settled")
	}
	d.done = true
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if opts.DeadLetter || !opts.Requeue {
		d.queue.deadLetter = append(d.queue.deadLetter, d.msg)
		return nil
	}
	d.queue.ready = append(d.queue.ready, queuedMessage{msg: d.msg, notBefore: d.queue.now().Add(opts.Delay)})
	return nil
}

func cloneMessage(msg *core.JobExecutionMessage) *core.JobExecutionMessage {
	out := *msg
	out.Parameters = make(map[string]any, len(msg.Parameters))
	for key, value := range msg.Parameters {
		out.Parameters[key] = value
	}
	return &out
}

var (
	_ core.JobEnqueuer = (*MemoryQueue)(nil)
	_ core.JobDequeuer = (*MemoryQueue)(nil)
	_ core.JobDelivery = (*memoryDelivery)(nil)
)
