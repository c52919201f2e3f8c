package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinExec/internal/domain/models"
	domrepo "FinExec/internal/domain/repository"
	pkgch "FinExec/pkg/clickhouse"
	applogger "FinExec/pkg/logger"
)

var _ domrepo.CandleSource = (*CHCandleSource)(nil)

// CHCandleSource reads bars from a ClickHouse candles table with columns
// (bucket, interval, symbol, open, high, low, close, volume).
type CHCandleSource struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleSource(ch *pkgch.Client, table string, lgr *applogger.Logger) *CHCandleSource {
	return &CHCandleSource{db: ch.DB(), table: table, l: lgr.With("ch-candles")}
}

// CandleSchema is the DDL for the candles table.
func CandleSchema(table string) string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            bucket   DateTime64(3),
            interval LowCardinality(String),
            symbol   LowCardinality(String),
            open     Float64,
            high     Float64,
            low      Float64,
            close    Float64,
            volume   Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, interval, bucket)`, table)
}

// Candles returns the latest limit bars, oldest first.
func (s *CHCandleSource) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND interval = ?
        ORDER BY bucket DESC
        LIMIT ?`, s.table)

	rows, err := s.db.QueryContext(ctx, q, symbol, interval, limit)
	if err != nil {
		s.l.Error("clickhouse candles query error",
			applogger.String("symbol", symbol),
			applogger.String("interval", interval),
			applogger.Error(err))
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, limit)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse candles ok",
		applogger.String("symbol", symbol),
		applogger.String("interval", interval),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

// StoreCandles batch-inserts closed bars.
func (s *CHCandleSource) StoreCandles(ctx context.Context, interval string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (bucket, interval, symbol, open, high, low, close, volume)", s.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Bucket, interval, c.Symbol, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append candle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
