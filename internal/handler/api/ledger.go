package api

import (
	"FinExec/internal/domain/models"
	xhttp "FinExec/pkg/http"
	xlogger "FinExec/pkg/logger"

	"github.com/labstack/echo/v4"
)

func (h *PipelineHandler) CreateStrategy(c echo.Context) error {
	req := &models.CreateStrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.strategies.Create(c.Request().Context(), req.ID, req.Name)
	if err != nil {
		h.logger.Warn("create strategy", xlogger.String("strategy_id", req.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.CreatedResponse(c, st)
}

func (h *PipelineHandler) GetStrategy(c echo.Context) error {
	id := c.Param("id")
	st, err := h.strategies.Get(c.Request().Context(), id)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, st)
}

// StrategyAction applies start, pause or stop. The Idempotency-Key header
// takes precedence over the body field.
func (h *PipelineHandler) StrategyAction(c echo.Context) error {
	req := &models.StrategyActionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}
	res, err := h.strategies.Transition(c.Request().Context(), req.ID, models.StrategyAction(req.Action), req.Actor, key)
	if err != nil {
		h.logger.Warn("strategy action",
			xlogger.String("strategy_id", req.ID),
			xlogger.String("action", req.Action),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineHandler) VerifyAudit(c echo.Context) error {
	res, err := h.ledger.Verify(c.Request().Context())
	if err != nil {
		h.logger.Error("audit verify", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}
