package volatility

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"FinExec/internal/domain/models"
	"FinExec/pkg/cache"
	xhttp "FinExec/pkg/http"
	"FinExec/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type candleStub struct {
	candles []models.Candle
	err     error
	calls   int
}

func (s *candleStub) Candles(context.Context, string, string, int) ([]models.Candle, error) {
	s.calls++
	return s.candles, s.err
}

type countingSource struct {
	v     float64
	err   error
	calls atomic.Int32
}

func (c *countingSource) Volatility(context.Context, string) (float64, error) {
	c.calls.Add(1)
	return c.v, c.err
}

func bars(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Symbol: "BTCUSDT", Close: c}
	}
	return out
}

func TestCandleEstimator(t *testing.T) {
	src := &candleStub{candles: bars(100, 102, 99.96, 101.9592)}
	e := NewCandleEstimator("test", src, CandleConfig{Period: 3})
	v, err := e.Volatility(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.02, v, 1e-9)

	src.candles = bars(100)
	_, err = e.Volatility(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrInsufficientData)

	src.err = errors.New("clickhouse down")
	_, err = e.Volatility(context.Background(), "BTCUSDT")
	assert.ErrorContains(t, err, "clickhouse down")
}

func TestCandleEstimator_Realized(t *testing.T) {
	src := &candleStub{candles: bars(100, 101, 100, 101, 100)}
	e := NewCandleEstimator("test", src, CandleConfig{Period: 4, Method: MethodRealized})
	v, err := e.Volatility(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Greater(t, v, 0.009)
	assert.Less(t, v, 0.013)
}

func TestChain_FallsBack(t *testing.T) {
	bad := &countingSource{err: errors.New("nope")}
	good := &countingSource{v: 0.03}
	c := NewChain(logger.NewNop(), bad, good, Static(0.5))

	v, err := c.Volatility(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.03, v)
	assert.Equal(t, int32(1), bad.calls.Load())

	_, err = NewChain(logger.NewNop(), bad).Volatility(context.Background(), "ETHUSDT")
	assert.ErrorContains(t, err, "nope")
}

func TestCached_ServesFromCache(t *testing.T) {
	inner := &countingSource{v: 0.021}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	c := NewCached(inner, mc, 0)

	for i := 0; i < 3; i++ {
		v, err := c.Volatility(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, 0.021, v)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	inner.err = errors.New("down")
	_, err := c.Volatility(context.Background(), "SOLUSDT")
	assert.Error(t, err)
}

func TestRemote_RetriesTemporaryErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		assert.Equal(t, "/vol/forecast", r.URL.Path)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req forecastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTCUSDT", req.Symbol)
		assert.Equal(t, 0.01, req.Features["nowcast_sigma"])
		_ = json.NewEncoder(w).Encode(forecastResponse{Forecast: 0.042, Model: "garch"})
	}))
	defer srv.Close()

	r := NewRemote(xhttp.NewClient(xhttp.WithBaseURL(srv.URL)), "", 3, Static(0.01))
	v, err := r.Volatility(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.042, v)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRemote_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad symbol", http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewRemote(xhttp.NewClient(xhttp.WithBaseURL(srv.URL)), "1h", 3, nil)
	_, err := r.Volatility(context.Background(), "???")
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, int32(1), hits.Load())
}
