package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FinExec/internal/domain/models"
	domrepo "FinExec/internal/domain/repository"
	mid "FinExec/internal/middleware"
	"FinExec/pkg/clock"
	pkghttp "FinExec/pkg/http"
	pkgkafka "FinExec/pkg/kafka"
	"FinExec/pkg/logger"
	"FinExec/pkg/queue"

	"github.com/creasty/defaults"
)

// SignalIntake admits decoded signals; satisfied by middleware.SignalIngress.
type SignalIntake interface {
	Process(sig models.TradingSignal) error
}

// decodeSignal parses and validates a SubmitSignalRequest body.
func decodeSignal(b []byte, now clock.Clock) (models.TradingSignal, error) {
	var req models.SubmitSignalRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return models.TradingSignal{}, fmt.Errorf("%w: %v", models.ErrInvalidSignal, err)
	}
	if err := defaults.Set(&req); err != nil {
		return models.TradingSignal{}, err
	}
	if err := pkghttp.ValidateStruct(&req); err != nil {
		return models.TradingSignal{}, fmt.Errorf("%w: %v", models.ErrInvalidSignal, err)
	}
	sig, err := req.Signal(now.Now())
	if err != nil {
		return models.TradingSignal{}, fmt.Errorf("%w: %v", models.ErrInvalidSignal, err)
	}
	return sig, nil
}

// KafkaSignalsHandler feeds signals published on a Kafka topic into the intake.
// Throttled and duplicate signals are dropped; malformed ones fail so the
// consumer routes them to its DLQ.
type KafkaSignalsHandler struct {
	topic   string
	intake  SignalIntake
	metrics domrepo.Metrics
	clock   clock.Clock
	log     *logger.Logger
}

func NewKafkaSignalsHandler(lgr *logger.Logger, topic string, intake SignalIntake, metrics domrepo.Metrics, clk clock.Clock) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{topic: topic, intake: intake, metrics: metrics, clock: clk, log: lgr.With("kafka-signals")}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

func (h *KafkaSignalsHandler) Handle(_ context.Context, b []byte) error {
	sig, err := decodeSignal(b, h.clock)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	return dropExpected(h.log, sig, h.intake.Process(sig))
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)

// SignalSubmitJob admits signals enqueued on the Redis job queue. Malformed
// payloads are marked permanent and dead-lettered without retries.
type SignalSubmitJob struct {
	intake SignalIntake
	clock  clock.Clock
	log    *logger.Logger
}

const SignalSubmitJobType = "signal.submit"

func NewSignalSubmitJob(lgr *logger.Logger, intake SignalIntake, clk clock.Clock) *SignalSubmitJob {
	return &SignalSubmitJob{intake: intake, clock: clk, log: lgr.With("signal-job")}
}

func (j *SignalSubmitJob) Name() string { return "signal-submit" }
func (j *SignalSubmitJob) Type() string { return SignalSubmitJobType }

func (j *SignalSubmitJob) Handle(_ context.Context, payload interface{}) error {
	var raw []byte
	switch v := payload.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return queue.Permanent(fmt.Errorf("marshal payload: %w", err))
		}
		raw = b
	}
	sig, err := decodeSignal(raw, j.clock)
	if err != nil {
		return queue.Permanent(err)
	}
	return dropExpected(j.log, sig, j.intake.Process(sig))
}

var _ queue.Job = (*SignalSubmitJob)(nil)

// dropExpected swallows outcomes that a redelivery would not change.
func dropExpected(lgr *logger.Logger, sig models.TradingSignal, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mid.ErrThrottled) || errors.Is(err, models.ErrDuplicateSignal) {
		lgr.Warn("signal dropped", logger.String("signal_id", sig.ID), logger.Error(err))
		return nil
	}
	return err
}
