package api

import (
	"FinExec/internal/domain/models"
	xhttp "FinExec/pkg/http"
	xlogger "FinExec/pkg/logger"

	"github.com/labstack/echo/v4"
)

func (h *PipelineHandler) CreateTwap(c echo.Context) error {
	req := &models.CreateTwapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	handle, err := h.twap.CreateTwap(c.Request().Context(), models.TwapPlan{
		Symbol:     req.Symbol,
		Side:       models.OrderSide(req.Side),
		TotalQty:   req.TotalQty,
		Slices:     req.Slices,
		MinMs:      req.MinMs,
		MaxMs:      req.MaxMs,
		Type:       models.OrderType(req.Type),
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		h.logger.Warn("create twap", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	snap, err := h.twap.GetTwap(handle.ID)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.CreatedResponse(c, snap)
}

func (h *PipelineHandler) GetTwap(c echo.Context) error {
	req := &models.TwapIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.twap.GetTwap(req.ID)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *PipelineHandler) CancelTwap(c echo.Context) error {
	req := &models.TwapIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.twap.CancelTwap(req.ID) {
		return xhttp.AppErrorResponse(c, toAppError(models.ErrUnknownTwap))
	}
	snap, err := h.twap.GetTwap(req.ID)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *PipelineHandler) TwapStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.twap.Stats())
}
