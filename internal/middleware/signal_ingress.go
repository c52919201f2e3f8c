package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FinExec/internal/domain/models"
	domrepo "FinExec/internal/domain/repository"
	"FinExec/internal/service/ratelimit"
	"FinExec/pkg/logger"
	"FinExec/pkg/queue"
)

var (
	ErrThrottled  = errors.New("signal throttled")
	ErrBufferFull = errors.New("ingress retry buffer full")
)

// Submitter is the admission side of the signal processor.
type Submitter interface {
	Submit(sig models.TradingSignal) error
}

// SignalIngress sits between the asynchronous intake paths (Kafka, Redis
// queue) and the processor. It validates, throttles per strategy, and parks
// signals in a bounded buffer while the admission queue is full.
type SignalIngress struct {
	log     *logger.Logger
	sub     Submitter
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter

	bufCh      chan models.TradingSignal
	backoffMin time.Duration
	backoffMax time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}

	accepted  atomic.Int64
	throttled atomic.Int64
	buffered  atomic.Int64
	dropped   atomic.Int64
}

type IngressStats struct {
	Accepted  int64 `json:"accepted"`
	Throttled int64 `json:"throttled"`
	Buffered  int64 `json:"buffered"`
	Dropped   int64 `json:"dropped"`
	Pending   int   `json:"pending"`
}

type IngressOption func(*SignalIngress)

// WithStrategyRate allows burst signals per strategy, refilled at perSec.
func WithStrategyRate(burst, perSec float64) IngressOption {
	return func(s *SignalIngress) {
		if burst > 0 {
			s.limiter = ratelimit.New(burst, perSec)
		}
	}
}

// WithLimiter replaces the per-strategy limiter.
func WithLimiter(l *ratelimit.Limiter) IngressOption {
	return func(s *SignalIngress) { s.limiter = l }
}

func WithBufferSize(n int) IngressOption {
	return func(s *SignalIngress) {
		if n > 0 {
			s.bufCh = make(chan models.TradingSignal, n)
		}
	}
}

func WithRetryBackoff(min, max time.Duration) IngressOption {
	return func(s *SignalIngress) {
		if min > 0 {
			s.backoffMin = min
		}
		if max >= s.backoffMin {
			s.backoffMax = max
		}
	}
}

func NewSignalIngress(lgr *logger.Logger, sub Submitter, metrics domrepo.Metrics, opts ...IngressOption) *SignalIngress {
	s := &SignalIngress{
		log:        lgr.With("signal-ingress"),
		sub:        sub,
		metrics:    metrics,
		limiter:    ratelimit.New(20, 10),
		bufCh:      make(chan models.TradingSignal, 1000),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process admits one signal. A full admission queue parks the signal for
// retry and still returns nil; only a full retry buffer is reported.
func (s *SignalIngress) Process(sig models.TradingSignal) error {
	if err := sig.Validate(); err != nil {
		s.metrics.RecordError("ingress_validate")
		return err
	}
	if s.limiter != nil && !s.limiter.Allow(throttleKey(sig)) {
		s.throttled.Add(1)
		s.metrics.RecordError("ingress_throttle")
		return fmt.Errorf("%w: %s", ErrThrottled, throttleKey(sig))
	}

	err := s.sub.Submit(sig)
	switch {
	case err == nil:
		s.accepted.Add(1)
		return nil
	case errors.Is(err, queue.ErrQueueFull):
		select {
		case s.bufCh <- sig:
			s.buffered.Add(1)
			s.log.Debug("signal parked for retry",
				logger.String("signal_id", sig.ID),
				logger.Int("pending", len(s.bufCh)))
			return nil
		default:
			s.dropped.Add(1)
			s.metrics.RecordError("ingress_buffer_full")
			return ErrBufferFull
		}
	default:
		return err
	}
}

func throttleKey(sig models.TradingSignal) string {
	if sig.StrategyID != "" {
		return "strategy:" + sig.StrategyID
	}
	return "symbol:" + sig.Symbol
}

// Start launches the retry drain and the limiter sweeper.
func (s *SignalIngress) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("ingress drain panic", logger.Any("panic", r))
			}
		}()
		s.drain(ctx, stopCh)
	}()
}

func (s *SignalIngress) drain(ctx context.Context, stopCh <-chan struct{}) {
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-sweep.C:
			if s.limiter != nil {
				s.limiter.Sweep()
			}
		case sig := <-s.bufCh:
			if !s.resubmit(ctx, stopCh, sig) {
				return
			}
		}
	}
}

// resubmit retries one parked signal with capped exponential backoff until
// the queue takes it. It returns false when the ingress is stopping.
func (s *SignalIngress) resubmit(ctx context.Context, stopCh <-chan struct{}, sig models.TradingSignal) bool {
	backoff := s.backoffMin
	for {
		err := s.sub.Submit(sig)
		if err == nil {
			s.accepted.Add(1)
			return true
		}
		if !errors.Is(err, queue.ErrQueueFull) {
			s.dropped.Add(1)
			s.log.Warn("parked signal rejected",
				logger.String("signal_id", sig.ID),
				logger.Error(err))
			return true
		}
		s.metrics.RecordError("ingress_retry")
		select {
		case <-ctx.Done():
			s.requeue(sig)
			return false
		case <-stopCh:
			s.requeue(sig)
			return false
		case <-time.After(backoff):
		}
		if backoff < s.backoffMax {
			backoff = min(backoff*2, s.backoffMax)
		}
	}
}

func (s *SignalIngress) requeue(sig models.TradingSignal) {
	select {
	case s.bufCh <- sig:
	default:
		s.dropped.Add(1)
	}
}

// Stop halts the retry drain. Parked signals stay buffered until the next Start.
func (s *SignalIngress) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()
	<-done
	if n := len(s.bufCh); n > 0 {
		s.log.Warn("ingress stopped with parked signals", logger.Int("pending", n))
	}
}

func (s *SignalIngress) Stats() IngressStats {
	return IngressStats{
		Accepted:  s.accepted.Load(),
		Throttled: s.throttled.Load(),
		Buffered:  s.buffered.Load(),
		Dropped:   s.dropped.Load(),
		Pending:   len(s.bufCh),
	}
}
