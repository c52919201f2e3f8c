package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"FinExec/internal/domain/models"
	"FinExec/pkg/logger"
	"FinExec/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FilteredDelivery(t *testing.T) {
	bus := NewBus(logger.NewNop(), metrics.Nop{})
	all := bus.Subscribe(4)
	risk := bus.Subscribe(4, models.EventRiskBlocked)

	bus.Publish(models.Event{Type: models.EventSignalExecuted, Symbol: "BTCUSDT"})
	bus.Publish(models.Event{Type: models.EventRiskBlocked, Symbol: "ETHUSDT"})

	assert.Len(t, all.C(), 2)
	require.Len(t, risk.C(), 1)
	e := <-risk.C()
	assert.Equal(t, "ETHUSDT", e.Symbol)
}

func TestBus_DropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus(logger.NewNop(), metrics.Nop{})
	sub := bus.Subscribe(1)

	bus.Publish(models.Event{Type: models.EventTwapSlice})
	bus.Publish(models.Event{Type: models.EventTwapSlice})
	bus.Publish(models.Event{Type: models.EventTwapSlice})

	assert.Len(t, sub.C(), 1)
	assert.EqualValues(t, 2, bus.Dropped())
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	bus := NewBus(logger.NewNop(), metrics.Nop{})
	a := bus.Subscribe(1)
	b := bus.Subscribe(1)
	a.Close()

	_, ok := <-a.C()
	assert.False(t, ok)

	bus.Close()
	_, ok = <-b.C()
	assert.False(t, ok)

	late := bus.Subscribe(1)
	_, ok = <-late.C()
	assert.False(t, ok)
	bus.Publish(models.Event{Type: models.EventTwapSlice})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingPublisher) PublishEvent(_ context.Context, e models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestForward_DrainsUntilClose(t *testing.T) {
	bus := NewBus(logger.NewNop(), metrics.Nop{})
	sub := bus.Subscribe(8)
	pub := &recordingPublisher{}

	done := make(chan struct{})
	go func() {
		Forward(context.Background(), sub, pub, logger.NewNop())
		close(done)
	}()

	bus.Publish(models.Event{Type: models.EventSignalExecuted})
	bus.Publish(models.Event{Type: models.EventSignalFailed})
	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not exit")
	}
}
