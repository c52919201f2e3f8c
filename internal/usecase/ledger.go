package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/cache"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"

	"github.com/google/uuid"
)

type LedgerConfig struct {
	KeyTTL     time.Duration
	GCInterval time.Duration
}

// Ledger owns the hash-chained audit log and idempotency keys.
type Ledger struct {
	log    *logger.Logger
	audit  drepo.AuditRepository
	keys   drepo.IdempotencyRepository
	locker cache.Service
	clock  clock.Clock
	cfg    LedgerConfig
}

// NewLedger wires the ledger. locker may be nil; it only guards the GC loop
// across instances.
func NewLedger(
	lgr *logger.Logger,
	cfg LedgerConfig,
	audit drepo.AuditRepository,
	keys drepo.IdempotencyRepository,
	locker cache.Service,
	clk clock.Clock,
) *Ledger {
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = 24 * time.Hour
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	return &Ledger{
		log:    lgr.With("ledger"),
		audit:  audit,
		keys:   keys,
		locker: locker,
		clock:  clk,
		cfg:    cfg,
	}
}

// DeriveKey builds the default idempotency key for an action on an entity.
func DeriveKey(action, entityID string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%d", action, entityID, ts.UnixMilli())
}

// Execute runs fn at most once per key. A completed key returns the stored
// result with replayed set; a failed key is retried; a pending key yields
// models.ErrRequestInFlight.
func (l *Ledger) Execute(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (json.RawMessage, bool, error) {
	rec, err := l.keys.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	if rec != nil {
		switch {
		case rec.Status == models.IdempotencyCompleted:
			return rec.Result, true, nil
		case rec.Status == models.IdempotencyPending && l.clock.Now().Before(rec.TTLAt):
			return nil, false, models.ErrRequestInFlight
		default:
			// failed or abandoned pending keys are retried
			if err := l.keys.Delete(ctx, key); err != nil {
				return nil, false, fmt.Errorf("clear idempotency key: %w", err)
			}
		}
	}

	if err := l.keys.CreatePending(ctx, key, l.clock.Now().Add(l.cfg.KeyTTL)); err != nil {
		return nil, false, err
	}

	v, err := l.run(ctx, fn)
	if err != nil {
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		if ferr := l.keys.Fail(ctx, key, body); ferr != nil {
			l.log.Error("mark idempotency key failed", logger.String("key", key), logger.Error(ferr))
		}
		return nil, false, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("marshal result: %w", err)
	}
	if err := l.keys.Complete(ctx, key, raw); err != nil {
		return raw, false, fmt.Errorf("complete idempotency key: %w", err)
	}
	return raw, false, nil
}

func (l *Ledger) run(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (v interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("idempotent action panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Append adds one entry to the audit chain.
func (l *Ledger) Append(ctx context.Context, action, actor string, payload interface{}) (models.AuditLogEntry, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.AuditLogEntry{}, fmt.Errorf("marshal audit payload: %w", err)
	}
	if actor == "" {
		actor = "system"
	}
	ts := l.clock.Now().UTC().Truncate(time.Millisecond)

	return l.audit.Append(ctx, func(prevHash string, seq int64) (models.AuditLogEntry, error) {
		return models.AuditLogEntry{
			ID:        uuid.NewString(),
			Seq:       seq,
			Action:    action,
			Actor:     actor,
			Payload:   body,
			PrevHash:  prevHash,
			Hash:      chainHash(prevHash, ts, action, actor, body),
			Timestamp: ts,
		}, nil
	})
}

// Verify recomputes every hash from genesis and reports the first broken link.
func (l *Ledger) Verify(ctx context.Context) (models.AuditVerification, error) {
	out := models.AuditVerification{OK: true}
	prev := ""
	err := l.audit.Scan(ctx, func(e models.AuditLogEntry) bool {
		out.Entries++
		if e.PrevHash != prev || chainHash(e.PrevHash, e.Timestamp, e.Action, e.Actor, e.Payload) != e.Hash {
			out.OK = false
			out.BrokenAt = e.Seq
			return false
		}
		prev = e.Hash
		return true
	})
	if err != nil {
		return models.AuditVerification{}, err
	}
	if !out.OK {
		l.log.Error("audit chain broken", logger.Int64("seq", out.BrokenAt))
	}
	return out, nil
}

func (l *Ledger) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := l.keys.DeleteExpired(ctx, l.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return n, nil
}

// RunGC purges expired keys every GCInterval until ctx is done. With a
// locker only one instance purges per interval.
func (l *Ledger) RunGC(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.gcOnce(ctx)
		}
	}
}

func (l *Ledger) gcOnce(ctx context.Context) {
	if l.locker != nil {
		ok, err := l.locker.TryLock(ctx, "ledger:gc", l.cfg.GCInterval/2)
		if err != nil {
			l.log.Warn("gc lock", logger.Error(err))
			return
		}
		if !ok {
			return
		}
	}
	n, err := l.PurgeExpired(ctx)
	if err != nil {
		l.log.Error("idempotency gc", logger.Error(err))
		return
	}
	if n > 0 {
		l.log.Info("expired idempotency keys purged", logger.Int64("count", n))
	}
}

type orderAudit struct {
	Order  models.ExecutionOrder   `json:"order"`
	Result *models.ExecutionResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// AuditOrder appends order.placed or order.rejected. Failures are logged only.
func (l *Ledger) AuditOrder(ctx context.Context, actor string, order models.ExecutionOrder, res *models.ExecutionResult, err error) {
	action := "order.placed"
	p := orderAudit{Order: order, Result: res}
	if err != nil || res == nil {
		action = "order.rejected"
		if err != nil {
			p.Error = err.Error()
		}
	}
	actx, cancel := auditContext(ctx)
	defer cancel()
	if _, aerr := l.Append(actx, action, actor, p); aerr != nil {
		l.log.Error("audit order",
			logger.String("client_order_id", order.ClientOrderID),
			logger.Error(aerr))
	}
}

type signalAudit struct {
	SignalID   string  `json:"signalId"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Status     string  `json:"status"`
	StrategyID string  `json:"strategyId,omitempty"`
	RiskScore  float64 `json:"riskScore"`
	OrderID    string  `json:"orderId,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// AuditSignal appends signal.executed, signal.rejected, signal.failed or
// signal.dry_run for a processed signal. Failures are logged only.
func (l *Ledger) AuditSignal(ctx context.Context, sig models.TradingSignal, res models.SignalProcessingResult) {
	action := "signal." + strings.ToLower(string(res.Status))
	actor := sig.StrategyID
	if actor == "" {
		actor = "processor"
	}
	p := signalAudit{
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Action:     string(sig.Action),
		Status:     string(res.Status),
		StrategyID: sig.StrategyID,
		RiskScore:  res.RiskScore,
		OrderID:    res.OrderID,
		Error:      res.Error,
	}
	actx, cancel := auditContext(ctx)
	defer cancel()
	if _, err := l.Append(actx, action, actor, p); err != nil {
		l.log.Error("audit signal",
			logger.String("signal_id", sig.ID),
			logger.String("status", string(res.Status)),
			logger.Error(err))
	}
}

// auditContext detaches ctx when it is already done so the entry still lands.
func auditContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func chainHash(prevHash string, ts time.Time, action, actor string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(ts.UnixMilli(), 10)))
	h.Write([]byte("|"))
	h.Write([]byte(action))
	h.Write([]byte("|"))
	h.Write([]byte(actor))
	h.Write([]byte("|"))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
