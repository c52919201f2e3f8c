package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"FinExec/internal/domain/models"
	domrepo "FinExec/internal/domain/repository"
)

var _ domrepo.ResultSink = (*ClickHouseResultSink)(nil)

// ClickHouseResultSink appends every processing result to signal_results for
// offline analysis.
type ClickHouseResultSink struct {
	db    *sql.DB
	table string
}

func NewClickHouseResultSink(db *sql.DB, table string) *ClickHouseResultSink {
	if table == "" {
		table = "signal_results"
	}
	return &ClickHouseResultSink{db: db, table: table}
}

func (s *ClickHouseResultSink) Init(ctx context.Context) error {
	ddl := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts           DateTime64(3),
            signal_id    String,
            symbol       LowCardinality(String),
            action       LowCardinality(String),
            priority     LowCardinality(String),
            strategy_id  String,
            confidence   Float64,
            status       LowCardinality(String),
            success      UInt8,
            order_id     String,
            error        String,
            risk_score   Float64,
            exec_ms      Int64,
            metadata     String
        ) ENGINE = MergeTree
        ORDER BY (symbol, ts)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseResultSink) Store(ctx context.Context, sig models.TradingSignal, r models.SignalProcessingResult) error {
	meta := "{}"
	if len(r.Metadata) > 0 {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(b)
	}
	var success uint8
	if r.Success {
		success = 1
	}
	q := fmt.Sprintf(`INSERT INTO %s (ts, signal_id, symbol, action, priority, strategy_id, confidence,
        status, success, order_id, error, risk_score, exec_ms, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err := s.db.ExecContext(ctx, q,
		r.Timestamp,
		r.SignalID,
		r.Symbol,
		string(sig.Action),
		sig.Priority.String(),
		sig.StrategyID,
		sig.Confidence,
		string(r.Status),
		success,
		r.OrderID,
		r.Error,
		r.RiskScore,
		r.ExecutionTime.Milliseconds(),
		meta,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *ClickHouseResultSink) Close() error {
	return nil // connection owned by pkg/clickhouse.Client
}

// NopResultSink discards results when ClickHouse is disabled.
type NopResultSink struct{}

func (NopResultSink) Init(context.Context) error                                                       { return nil }
func (NopResultSink) Store(context.Context, models.TradingSignal, models.SignalProcessingResult) error { return nil }
func (NopResultSink) Close() error                                                                     { return nil }
