package api

import (
	"FinExec/internal/domain/models"
	xhttp "FinExec/pkg/http"
	xlogger "FinExec/pkg/logger"

	"github.com/labstack/echo/v4"
)

func (h *PipelineHandler) RiskStatus(c echo.Context) error {
	st, err := h.risk.GetRiskStatus(c.Request().Context())
	if err != nil {
		h.logger.Error("risk status", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *PipelineHandler) RiskAlerts(c echo.Context) error {
	alerts := h.risk.GetRiskAlerts()
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

func (h *PipelineHandler) EmergencyStop(c echo.Context) error {
	req := &models.EmergencyStopRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if err := h.risk.SetEmergencyStop(ctx, *req.Active, req.Reason); err != nil {
		h.logger.Error("emergency stop", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if _, err := h.ledger.Append(ctx, "risk.emergency_stop", "api", map[string]interface{}{
		"active": *req.Active,
		"reason": req.Reason,
	}); err != nil {
		h.logger.Error("audit emergency stop", xlogger.Error(err))
	}
	st, err := h.risk.GetRiskStatus(ctx)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *PipelineHandler) UpdateRiskConfig(c echo.Context) error {
	req := &models.RiskConfigPatch{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.risk.UpdateRiskConfig(*req))
}

func (h *PipelineHandler) ResetRisk(c echo.Context) error {
	if err := h.risk.Reset(c.Request().Context()); err != nil {
		h.logger.Error("risk reset", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return h.RiskStatus(c)
}
