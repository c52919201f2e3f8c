package exchange

import (
	"fmt"
	"time"

	"FinExec/internal/domain/models"
)

// candleBook keeps the most recent one-minute bars per symbol.
type candleBook struct {
	limit int
	bars  map[string][]models.Candle
}

func newCandleBook(limit int) *candleBook {
	if limit <= 0 {
		limit = 1440
	}
	return &candleBook{limit: limit, bars: make(map[string][]models.Candle)}
}

func (b *candleBook) add(t models.Trade) {
	bucket := t.Timestamp.UTC().Truncate(time.Minute)
	list := b.bars[t.Symbol]
	if n := len(list); n > 0 && list[n-1].Bucket.Equal(bucket) {
		c := &list[n-1]
		c.High = max(c.High, t.Price)
		c.Low = min(c.Low, t.Price)
		c.Close = t.Price
		c.Volume += t.Volume
		return
	}
	if n := len(list); n > 0 && bucket.Before(list[n-1].Bucket) {
		// late print for a closed bar
		return
	}
	list = append(list, models.Candle{
		Bucket: bucket, Symbol: t.Symbol,
		Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price, Volume: t.Volume,
	})
	if len(list) > b.limit {
		list = append(list[:0:0], list[len(list)-b.limit:]...)
	}
	b.bars[t.Symbol] = list
}

// klines resamples the stored minute bars to interval and returns the last limit bars, oldest first.
func (b *candleBook) klines(symbol, interval string, limit int) ([]models.Candle, error) {
	step, err := intervalDuration(interval)
	if err != nil {
		return nil, err
	}
	src := b.bars[symbol]
	var out []models.Candle
	for _, c := range src {
		bucket := c.Bucket.Truncate(step)
		if n := len(out); n > 0 && out[n-1].Bucket.Equal(bucket) {
			o := &out[n-1]
			o.High = max(o.High, c.High)
			o.Low = min(o.Low, c.Low)
			o.Close = c.Close
			o.Volume += c.Volume
			continue
		}
		c.Bucket = bucket
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func intervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "", "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported kline interval %q", interval)
}
