// internal/events/queue_test.go
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/metrics"
	"wallet-engine/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	name  string
	err   error
	block chan struct{}

	mu   sync.Mutex
	seen []int64
}

func (r *recordingSubscriber) Name() string { return r.name }

func (r *recordingSubscriber) Handle(_ context.Context, evt domain.TransactionCompleted) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.seen = append(r.seen, evt.TransactionID)
	r.mu.Unlock()
	return r.err
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

type panickingSubscriber struct{}

func (panickingSubscriber) Name() string { return "panics" }
func (panickingSubscriber) Handle(context.Context, domain.TransactionCompleted) error {
	panic("boom")
}

func TestQueueDeliversToEverySubscriber(t *testing.T) {
	failing := &recordingSubscriber{name: "failing", err: errors.New("smtp down")}
	ok := &recordingSubscriber{name: "ok"}
	q := NewQueue(QueueConfig{Workers: 2}, util.DiscardLogger(), metrics.NoOpCollector{}, failing, panickingSubscriber{}, ok)

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, q.Publish(context.Background(), domain.TransactionCompleted{TransactionID: i}))
	}
	require.NoError(t, q.Close())

	assert.Equal(t, 10, ok.count())
	assert.Equal(t, 10, failing.count())
	stats := q.Stats()
	assert.Equal(t, int64(10), stats.Published)
	assert.Equal(t, int64(20), stats.Failed)
}

func TestQueueBackpressure(t *testing.T) {
	block := make(chan struct{})
	slow := &recordingSubscriber{name: "slow", block: block}
	q := NewQueue(QueueConfig{QueueSize: 1, Workers: 1, MaxWaitTime: 10 * time.Millisecond}, util.DiscardLogger(), nil, slow)

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, domain.TransactionCompleted{TransactionID: 1}))

	// The worker picks up event 1 and blocks; event 2 fills the queue; event 3 is dropped.
	require.Eventually(t, func() bool { return q.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Publish(ctx, domain.TransactionCompleted{TransactionID: 2}))
	assert.ErrorIs(t, q.Publish(ctx, domain.TransactionCompleted{TransactionID: 3}), ErrQueueFull)
	assert.Equal(t, int64(1), q.Stats().Dropped)

	close(block)
	require.NoError(t, q.Close())
	assert.Equal(t, 2, slow.count())

	assert.ErrorIs(t, q.Publish(ctx, domain.TransactionCompleted{TransactionID: 4}), ErrQueueClosed)
}

func TestQueueLogsDroppedEvent(t *testing.T) {
	var buf bytes.Buffer
	block := make(chan struct{})
	slow := &recordingSubscriber{name: "slow", block: block}
	q := NewQueue(QueueConfig{QueueSize: 1, Workers: 1, MaxWaitTime: 10 * time.Millisecond}, util.NewLogger(&buf, "info"), nil, slow)

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, domain.TransactionCompleted{TransactionID: 1}))
	require.Eventually(t, func() bool { return q.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Publish(ctx, domain.TransactionCompleted{TransactionID: 2}))

	source, dest := int64(4), int64(5)
	dropped := domain.TransactionCompleted{
		EventID:          "evt-3",
		TransactionID:    3,
		Reference:        "TR-0a1b2c3d",
		Type:             domain.TransactionTypeTransfer,
		SourceActorID:    &source,
		DestinationActor: &dest,
		Amount:           decimal.RequireFromString("12.50"),
		Fee:              decimal.RequireFromString("0.25"),
		CompletedAt:      time.Date(2024, time.June, 14, 10, 0, 0, 0, time.UTC),
	}
	require.ErrorIs(t, q.Publish(ctx, dropped), ErrQueueFull)

	close(block)
	require.NoError(t, q.Close())

	var entry struct {
		Msg   string                      `json:"msg"`
		Event domain.TransactionCompleted `json:"event"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "Completion event dropped", entry.Msg)
	assert.Equal(t, dropped.EventID, entry.Event.EventID)
	assert.Equal(t, dropped.Reference, entry.Event.Reference)
	assert.Equal(t, dropped.Type, entry.Event.Type)
	assert.Equal(t, &dest, entry.Event.DestinationActor)
	assert.True(t, dropped.Amount.Equal(entry.Event.Amount))
	assert.True(t, dropped.Fee.Equal(entry.Event.Fee))
	assert.True(t, dropped.CompletedAt.Equal(entry.Event.CompletedAt))
}
