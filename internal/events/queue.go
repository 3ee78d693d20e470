// internal/events/queue.go
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/metrics"
)

var (
	ErrQueueFull   = errors.New("event queue is full")
	ErrQueueClosed = errors.New("event queue is closed")
)

// Subscriber consumes completion events after the transaction has committed.
// A failing subscriber never affects the transaction or the other subscribers.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, evt domain.TransactionCompleted) error
}

// QueueConfig configures the event queue.
type QueueConfig struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int

	// Workers is the number of concurrent workers (default: 4)
	Workers int

	// MaxWaitTime is how long Publish waits for room before dropping (default: 50ms)
	MaxWaitTime time.Duration

	// HandlerTimeout bounds each subscriber call (default: 30s)
	HandlerTimeout time.Duration
}

// Queue is a bounded in-process queue of completion events drained by a worker pool.
type Queue struct {
	queue       chan domain.TransactionCompleted
	subscribers []Subscriber
	config      QueueConfig
	logger      *slog.Logger
	metrics     metrics.MetricsCollector

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	published int64
	dropped   int64
	failed    int64
}

// NewQueue starts the worker pool. The queue must be closed with Close.
func NewQueue(config QueueConfig, logger *slog.Logger, collector metrics.MetricsCollector, subscribers ...Subscriber) *Queue {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 50 * time.Millisecond
	}
	if config.HandlerTimeout == 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	q := &Queue{
		queue:       make(chan domain.TransactionCompleted, config.QueueSize),
		subscribers: subscribers,
		config:      config,
		logger:      logger,
		metrics:     collector,
	}
	for i := 0; i < config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Publish enqueues evt. If the queue stays full for MaxWaitTime the event is dropped
// and ErrQueueFull is returned.
func (q *Queue) Publish(ctx context.Context, evt domain.TransactionCompleted) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	timer := time.NewTimer(q.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case q.queue <- evt:
		atomic.AddInt64(&q.published, 1)
		q.metrics.RecordQueueDepth(len(q.queue))
		return nil
	case <-timer.C:
		atomic.AddInt64(&q.dropped, 1)
		q.metrics.RecordEventDropped()
		q.logDropped(evt, ErrQueueFull)
		return ErrQueueFull
	case <-ctx.Done():
		q.logDropped(evt, ctx.Err())
		return ctx.Err()
	}
}

// logDropped writes the whole event so it can be replayed from the logs.
func (q *Queue) logDropped(evt domain.TransactionCompleted, reason error) {
	q.logger.Error("Completion event dropped",
		"transaction_id", evt.TransactionID,
		"reference", evt.Reference,
		"reason", reason,
		slog.Any("event", evt),
	)
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for evt := range q.queue {
		q.metrics.RecordQueueDepth(len(q.queue))
		q.deliver(evt)
	}
}

func (q *Queue) deliver(evt domain.TransactionCompleted) {
	for _, sub := range q.subscribers {
		ctx, cancel := context.WithTimeout(context.Background(), q.config.HandlerTimeout)
		err := q.safeHandle(ctx, sub, evt)
		cancel()
		if err != nil {
			atomic.AddInt64(&q.failed, 1)
			q.logger.Error("Event subscriber failed",
				"subscriber", sub.Name(),
				"transaction_id", evt.TransactionID,
				"reference", evt.Reference,
				"error", err,
			)
		}
	}
}

func (q *Queue) safeHandle(ctx context.Context, sub Subscriber, evt domain.TransactionCompleted) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("subscriber panicked")
			q.logger.Error("Recovered subscriber panic", "subscriber", sub.Name(), "panic", r)
		}
	}()
	return sub.Handle(ctx, evt)
}

// Close stops accepting events and waits until every queued event has been delivered.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Stats is a point-in-time view of the queue counters.
type Stats struct {
	QueueDepth int
	Published  int64
	Dropped    int64
	Failed     int64
}

func (q *Queue) Stats() Stats {
	return Stats{
		QueueDepth: len(q.queue),
		Published:  atomic.LoadInt64(&q.published),
		Dropped:    atomic.LoadInt64(&q.dropped),
		Failed:     atomic.LoadInt64(&q.failed),
	}
}
