package metrics

import (
	"time"

	"FinExec/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	submitted     *prometheus.CounterVec
	processed     *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	riskScore     prometheus.Histogram
	queueDepth    prometheus.Gauge
	activeSignals prometheus.Gauge
	orders        *prometheus.CounterVec
	twapSlices    *prometheus.CounterVec
	twapFinished  *prometheus.CounterVec
	eventsDropped prometheus.Counter
	errorsTotal   *prometheus.CounterVec
}

// New registers the pipeline collectors on reg. Pass prometheus.DefaultRegisterer
// to expose them on /metrics.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finexec_signals_submitted_total",
			Help: "Signals offered to the admission queue",
		}, []string{"result"}),
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finexec_signals_processed_total",
			Help: "Processing results by status",
		}, []string{"status", "symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finexec_signal_processing_seconds",
			Help:    "Time from dequeue to result",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		riskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "finexec_risk_score",
			Help:    "Risk scores produced by the risk gate",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "finexec_queue_depth",
			Help: "Signals waiting in the admission queue",
		}),
		activeSignals: f.NewGauge(prometheus.GaugeOpts{
			Name: "finexec_active_signals",
			Help: "Signals currently being processed",
		}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finexec_orders_total",
			Help: "Orders sent to the exchange",
		}, []string{"symbol", "side", "status"}),
		twapSlices: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finexec_twap_slices_total",
			Help: "TWAP child orders sent",
		}, []string{"symbol"}),
		twapFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finexec_twap_finished_total",
			Help: "TWAP plans finished by outcome",
		}, []string{"outcome"}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "finexec_events_dropped_total",
			Help: "Events dropped because a subscriber was slow",
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finexec_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
	}
}

func (r *Recorder) SignalSubmitted(accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	r.submitted.WithLabelValues(result).Inc()
}

func (r *Recorder) SignalProcessed(status models.ResultStatus, symbol string, latency time.Duration) {
	r.processed.WithLabelValues(string(status), symbol).Inc()
	r.latency.WithLabelValues(string(status)).Observe(latency.Seconds())
}

func (r *Recorder) RiskScore(score float64) { r.riskScore.Observe(score) }

func (r *Recorder) QueueDepth(n int) { r.queueDepth.Set(float64(n)) }

func (r *Recorder) ActiveSignals(n int) { r.activeSignals.Set(float64(n)) }

func (r *Recorder) OrderPlaced(symbol string, side models.OrderSide, status models.OrderStatus) {
	r.orders.WithLabelValues(symbol, string(side), string(status)).Inc()
}

func (r *Recorder) TwapSlice(symbol string) { r.twapSlices.WithLabelValues(symbol).Inc() }

func (r *Recorder) TwapFinished(outcome string) { r.twapFinished.WithLabelValues(outcome).Inc() }

func (r *Recorder) EventsDropped(n int) { r.eventsDropped.Add(float64(n)) }

func (r *Recorder) RecordError(kind string) { r.errorsTotal.WithLabelValues(kind).Inc() }

// Nop discards every observation.
type Nop struct{}

func (Nop) SignalSubmitted(bool)                                       {}
func (Nop) SignalProcessed(models.ResultStatus, string, time.Duration) {}
func (Nop) RiskScore(float64)                                          {}
func (Nop) QueueDepth(int)                                             {}
func (Nop) ActiveSignals(int)                                          {}
func (Nop) OrderPlaced(string, models.OrderSide, models.OrderStatus)   {}
func (Nop) TwapSlice(string)                                           {}
func (Nop) TwapFinished(string)                                        {}
func (Nop) EventsDropped(int)                                          {}
func (Nop) RecordError(string)                                         {}
