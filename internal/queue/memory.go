package queue

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryCapacity = 1024

type MemoryQueue struct {
	mu       sync.Mutex
	queues   map[string]chan Message
	capacity int
	closed   chan struct{}
	once     sync.Once
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryQueue{
		queues:   make(map[string]chan Message),
		capacity: capacity,
		closed:   make(chan struct{}),
	}
}

func (q *MemoryQueue) channel(name string) chan Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan Message, q.capacity)
		q.queues[name] = ch
	}
	return ch
}

func (q *MemoryQueue) Enqueue(ctx context.Context, queue string, msg Message) error {
	name, err := validName(queue)
	if err != nil {
		return err
	}
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.channel(name) <- msg:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, queue string, wait time.Duration) (Message, bool, error) {
	name, err := validName(queue)
	if err != nil {
		return Message{}, false, err
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case msg := <-q.channel(name):
		return msg, true, nil
	case <-timer.C:
		return Message{}, false, nil
	case <-q.closed:
		return Message{}, false, ErrClosed
	case <-ctx.Done():
		return Message{}, false, ctx.Err()
	}
}

// Len reports the number of buffered messages on queue.
func (q *MemoryQueue) Len(queue string) int {
	return len(q.channel(queue))
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
