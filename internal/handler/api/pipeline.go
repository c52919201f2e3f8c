package api

import (
	"net/http"

	"FinExec/internal/domain/models"
	"FinExec/internal/usecase"
	"FinExec/pkg/clock"
	xhttp "FinExec/pkg/http"
	xlogger "FinExec/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PipelineHandler exposes the signal pipeline, risk gate, TWAP scheduler and
// ledger over HTTP.
type PipelineHandler struct {
	logger     *xlogger.Logger
	clock      clock.Clock
	processor  *usecase.SignalProcessor
	executor   *usecase.SignalExecutor
	risk       *usecase.RiskGuard
	twap       *usecase.TwapScheduler
	strategies *usecase.StrategyActions
	ledger     *usecase.Ledger
	candles    *usecase.CandlesUseCase
}

func NewPipelineHandler(
	logger *xlogger.Logger,
	clk clock.Clock,
	processor *usecase.SignalProcessor,
	executor *usecase.SignalExecutor,
	risk *usecase.RiskGuard,
	twap *usecase.TwapScheduler,
	strategies *usecase.StrategyActions,
	ledger *usecase.Ledger,
	candles *usecase.CandlesUseCase,
) *PipelineHandler {
	return &PipelineHandler{
		logger:     logger.With("api"),
		clock:      clk,
		processor:  processor,
		executor:   executor,
		risk:       risk,
		twap:       twap,
		strategies: strategies,
		ledger:     ledger,
		candles:    candles,
	}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/signals", h.SubmitSignal)
	g.GET("/signals/history", h.SignalHistory)

	g.POST("/processor/start", h.StartProcessor)
	g.POST("/processor/stop", h.StopProcessor)
	g.POST("/processor/clear", h.ClearQueue)
	g.PATCH("/processor/config", h.UpdateProcessorConfig)
	g.GET("/processor/status", h.ProcessorStatus)
	g.GET("/processor/metrics", h.ProcessorMetrics)

	g.GET("/executions/history", h.ExecutionHistory)
	g.GET("/executions/stats", h.ExecutionStats)

	g.GET("/risk/status", h.RiskStatus)
	g.GET("/risk/alerts", h.RiskAlerts)
	g.POST("/risk/emergency-stop", h.EmergencyStop)
	g.PATCH("/risk/config", h.UpdateRiskConfig)
	g.POST("/risk/reset", h.ResetRisk)

	g.POST("/twap", h.CreateTwap)
	g.GET("/twap/stats", h.TwapStats)
	g.GET("/twap/:id", h.GetTwap)
	g.DELETE("/twap/:id", h.CancelTwap)

	g.POST("/strategies", h.CreateStrategy)
	g.GET("/strategies/:id", h.GetStrategy)
	g.POST("/strategies/:id/:action", h.StrategyAction)
	g.GET("/audit/verify", h.VerifyAudit)

	g.GET("/candles", h.Candles)
}

func (h *PipelineHandler) SubmitSignal(c echo.Context) error {
	req := &models.SubmitSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sig, err := req.Signal(h.clock.Now())
	if err != nil {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{Code: "ERR_SIGNAL", Message: err.Error()}})
	}
	if err := h.processor.Submit(sig); err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"accepted": true,
		"signalId": sig.ID,
		"queue":    h.processor.GetStatus().QueueSize,
	})
}

func (h *PipelineHandler) SignalHistory(c echo.Context) error {
	req := &models.SignalHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.processor.GetSignalHistory(req.Symbol, req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PipelineHandler) StartProcessor(c echo.Context) error {
	if err := h.processor.Start(c.Request().Context()); err != nil {
		h.logger.Error("start processor", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, h.processor.GetStatus())
}

func (h *PipelineHandler) StopProcessor(c echo.Context) error {
	h.processor.Stop()
	return xhttp.SuccessResponse(c, h.processor.GetStatus())
}

func (h *PipelineHandler) ClearQueue(c echo.Context) error {
	n := h.processor.ClearQueue()
	return xhttp.SuccessResponse(c, map[string]int{"cleared": n})
}

func (h *PipelineHandler) UpdateProcessorConfig(c echo.Context) error {
	req := &models.ProcessorConfigPatch{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cfg, err := h.processor.UpdateConfig(*req)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, cfg)
}

func (h *PipelineHandler) ProcessorStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.processor.GetStatus())
}

func (h *PipelineHandler) ProcessorMetrics(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.processor.GetMetrics())
}

func (h *PipelineHandler) ExecutionHistory(c echo.Context) error {
	req := &models.ExecutionHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.processor.GetExecutionHistory(req.SignalID, req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PipelineHandler) ExecutionStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.executor.GetExecutionStats())
}

func (h *PipelineHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Limit:    req.Limit,
	})
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.DataResponse(c, http.StatusOK, res)
}
