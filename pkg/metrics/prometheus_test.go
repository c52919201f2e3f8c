package metrics

import (
	"testing"
	"time"

	"FinExec/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SignalSubmitted(true)
	r.SignalSubmitted(true)
	r.SignalSubmitted(false)
	r.SignalProcessed(models.StatusExecuted, "BTCUSDT", 20*time.Millisecond)
	r.QueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.submitted.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.submitted.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.processed.WithLabelValues("EXECUTED", "BTCUSDT")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.queueDepth))
}
