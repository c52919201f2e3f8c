package events

import (
	"sync"
	"sync/atomic"

	"FinExec/internal/domain/models"
	domrepo "FinExec/internal/domain/repository"
	"FinExec/pkg/logger"
)

// Bus fans events out to subscriber channels. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber and
// counted.
type Bus struct {
	log     *logger.Logger
	metrics domrepo.Metrics

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	dropped atomic.Int64
}

type Subscription struct {
	id    uint64
	bus   *Bus
	types map[models.EventType]struct{}
	ch    chan models.Event
	once  sync.Once
}

// C is closed when the subscription or the bus is closed.
func (s *Subscription) C() <-chan models.Event { return s.ch }

func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

func (s *Subscription) wants(t models.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewBus(lgr *logger.Logger, metrics domrepo.Metrics) *Bus {
	return &Bus{
		log:     lgr.With("event-bus"),
		metrics: metrics,
		subs:    make(map[uint64]*Subscription),
	}
}

// Subscribe registers a buffered subscription. With no types every event is delivered.
func (b *Bus) Subscribe(buffer int, types ...models.EventType) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{
		id:    b.nextID,
		bus:   b,
		types: make(map[models.EventType]struct{}, len(types)),
		ch:    make(chan models.Event, buffer),
	}
	for _, t := range types {
		s.types[t] = struct{}{}
	}
	if b.closed {
		s.close()
		return s
	}
	b.subs[s.id] = s
	return s
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		s.close()
	}
}

func (b *Bus) Publish(e models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
			b.metrics.EventsDropped(1)
			b.log.Debug("event dropped", logger.String("type", string(e.Type)))
		}
	}
}

func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Close closes every subscription channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.close()
		delete(b.subs, id)
	}
}
