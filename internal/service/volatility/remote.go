package volatility

import (
	"context"
	"errors"
	"fmt"
	"time"

	drepo "FinExec/internal/domain/repository"
	svcmetrics "FinExec/internal/service/metrics"
	xhttp "FinExec/pkg/http"
)

type forecastRequest struct {
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
	Horizon  string             `json:"horizon"`
}

type forecastResponse struct {
	Forecast float64 `json:"forecast"`
	Nowcast  float64 `json:"nowcast"`
	Model    string  `json:"model"`
}

// Remote asks a forecasting service for the volatility over Horizon. The
// local nowcast, when configured, is sent along as a feature.
type Remote struct {
	client   *xhttp.Client
	horizon  string
	attempts int
	nowcast  drepo.VolatilitySource
}

func NewRemote(client *xhttp.Client, horizon string, attempts int, nowcast drepo.VolatilitySource) *Remote {
	if horizon == "" {
		horizon = "5m"
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Remote{client: client, horizon: horizon, attempts: attempts, nowcast: nowcast}
}

func (r *Remote) Volatility(ctx context.Context, symbol string) (float64, error) {
	start := time.Now()
	defer func() {
		svcmetrics.VolatilityLatency.WithLabelValues("remote").Observe(time.Since(start).Seconds())
	}()

	feats := map[string]float64{}
	if r.nowcast != nil {
		if v, err := r.nowcast.Volatility(ctx, symbol); err == nil {
			feats["nowcast_sigma"] = v
		}
	}

	req := forecastRequest{Symbol: symbol, Features: feats, Horizon: r.horizon}
	var resp forecastResponse
	var err error
retry:
	for i := 1; ; i++ {
		if err = r.client.PostJSON(ctx, "/vol/forecast", req, &resp); err == nil {
			return resp.Forecast, nil
		}
		var se *xhttp.StatusError
		if (errors.As(err, &se) && !se.Temporary()) || i >= r.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		}
	}
	svcmetrics.VolatilityErrors.WithLabelValues("remote").Inc()
	return 0, fmt.Errorf("remote volatility forecast: %w", err)
}
