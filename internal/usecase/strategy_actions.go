package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/clock"
	"FinExec/pkg/logger"
)

var strategyAuditActions = map[models.StrategyAction]string{
	models.StrategyStart: "strategy.started",
	models.StrategyPause: "strategy.paused",
	models.StrategyStop:  "strategy.stopped",
}

// StrategyActions applies start/pause/stop to strategies exactly once per
// idempotency key and records each change in the audit chain.
type StrategyActions struct {
	log    *logger.Logger
	ledger *Ledger
	repo   drepo.StrategyRepository
	events drepo.EventSink
	clock  clock.Clock
}

func NewStrategyActions(lgr *logger.Logger, ledger *Ledger, repo drepo.StrategyRepository, events drepo.EventSink, clk clock.Clock) *StrategyActions {
	return &StrategyActions{
		log:    lgr.With("strategy-actions"),
		ledger: ledger,
		repo:   repo,
		events: events,
		clock:  clk,
	}
}

func (s *StrategyActions) Create(ctx context.Context, id, name string) (*models.Strategy, error) {
	st := &models.Strategy{ID: id, Name: name, Status: models.StrategyDraft}
	if err := s.repo.CreateStrategy(ctx, st); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, "strategy.created", "system", map[string]string{"strategyId": id, "name": name}); err != nil {
		s.log.Error("audit strategy create", logger.String("strategy_id", id), logger.Error(err))
	}
	return st, nil
}

func (s *StrategyActions) Get(ctx context.Context, id string) (*models.Strategy, error) {
	return s.repo.GetStrategy(ctx, id)
}

// Transition moves a strategy to the status implied by action. An empty key
// derives one from the action, id and current time; repeating a request with
// the same key replays the first outcome without touching the strategy.
func (s *StrategyActions) Transition(ctx context.Context, strategyID string, action models.StrategyAction, actor, key string) (models.StrategyTransition, error) {
	target, err := action.Target()
	if err != nil {
		return models.StrategyTransition{}, err
	}
	if actor == "" {
		actor = "system"
	}
	if key == "" {
		key = DeriveKey("strategy_"+string(action), strategyID, s.clock.Now())
	}

	raw, replayed, err := s.ledger.Execute(ctx, key, func(ctx context.Context) (interface{}, error) {
		st, err := s.repo.GetStrategy(ctx, strategyID)
		if err != nil {
			return nil, err
		}
		prev := st.Status
		if _, err := s.repo.UpdateStrategyStatus(ctx, strategyID, target); err != nil {
			return nil, err
		}

		tr := models.StrategyTransition{StrategyID: strategyID, IdempotencyKey: key, PrevStatus: prev, NewStatus: target}
		if _, err := s.ledger.Append(ctx, strategyAuditActions[action], actor, map[string]interface{}{
			"strategyId":     strategyID,
			"idempotencyKey": key,
			"prevStatus":     prev,
			"newStatus":      target,
		}); err != nil {
			return nil, fmt.Errorf("audit strategy transition: %w", err)
		}
		s.events.Publish(models.Event{Type: models.EventStrategyChanged, Timestamp: s.clock.Now(), Payload: tr})
		s.log.Info("strategy status changed",
			logger.String("strategy_id", strategyID),
			logger.String("from", string(prev)),
			logger.String("to", string(target)),
			logger.String("actor", actor))
		return tr, nil
	})
	if err != nil {
		return models.StrategyTransition{}, err
	}

	var tr models.StrategyTransition
	if err := json.Unmarshal(raw, &tr); err != nil {
		return models.StrategyTransition{}, fmt.Errorf("decode stored transition: %w", err)
	}
	tr.Replayed = replayed
	return tr, nil
}
