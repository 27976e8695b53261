package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"PriceBand/internal/domain/models"
	apimetrics "PriceBand/internal/service/metrics"
	"PriceBand/internal/usecase"
	xhttp "PriceBand/pkg/http"
	xlogger "PriceBand/pkg/logger"
	"PriceBand/pkg/queue"

	"github.com/labstack/echo/v4"
)

// RefreshRunner runs a refresh synchronously.
type RefreshRunner interface {
	Refresh(ctx context.Context, mode string, symbols []string) (*models.SummaryTable, error)
}

// RefreshQueue accepts refresh requests for background workers.
type RefreshQueue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
	Stats(ctx context.Context) (queue.Stats, error)
}

// ForecastEchoHandler serves the band API.
type ForecastEchoHandler struct {
	logger  *xlogger.Logger
	query   *usecase.BandQuery
	refresh RefreshRunner
	queue   RefreshQueue
}

func NewForecastEchoHandler(logger *xlogger.Logger, query *usecase.BandQuery, refresh RefreshRunner, q RefreshQueue) *ForecastEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ForecastEchoHandler{logger: logger, query: query, refresh: refresh, queue: q}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/summary", h.Summary)
	g.GET("/snapshot", h.Snapshot)
	g.GET("/series/:symbol", h.Series)
	g.GET("/dates", h.Dates)
	g.GET("/status", h.Status)
	g.POST("/refresh", h.Refresh)
}

func observe(endpoint string, start time.Time) {
	apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *ForecastEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	apimetrics.APIErrors.WithLabelValues(endpoint).Inc()
	if errors.Is(err, models.ErrNoData) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()).WithError(err))
	}
	h.logger.Error("forecast api error", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func badDate(v string) *xhttp.AppError {
	return xhttp.BadRequestErrorf("date %q is not a calendar day", v).
		WithField("date").
		WithParam("layout", models.DateLayout)
}

// checkSymbols rejects the first entry that is not a ticker.
func checkSymbols(field string, symbols []string) *xhttp.AppError {
	for _, s := range symbols {
		if !xhttp.ValidSymbol(s) {
			return xhttp.BadRequestErrorf("%q is not a valid symbol", s).
				WithField(field).
				WithParam("symbol", s)
		}
	}
	return nil
}

func (h *ForecastEchoHandler) Summary(c echo.Context) error {
	defer observe("summary", time.Now())
	req := &models.SummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var (
		res *models.SummaryTable
		err error
	)
	if req.Date == "" {
		res, err = h.query.Latest(c.Request().Context())
	} else {
		day, ok := xhttp.ParseDay(req.Date)
		if !ok {
			return xhttp.AppErrorResponse(c, badDate(req.Date))
		}
		res, err = h.query.SummaryAt(day)
	}
	if err != nil {
		return h.fail(c, "summary", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

type snapshotResponse struct {
	Date time.Time             `json:"date"`
	Rows map[string]models.Row `json:"rows"`
}

func (h *ForecastEchoHandler) Snapshot(c echo.Context) error {
	defer observe("snapshot", time.Now())
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	day, ok := xhttp.ParseDay(req.Date)
	if !ok {
		return xhttp.AppErrorResponse(c, badDate(req.Date))
	}
	symbols := xhttp.ParseSymbols(req.Symbols)
	if err := checkSymbols("symbols", symbols); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.query.Snapshot(day, symbols)
	if err != nil {
		return h.fail(c, "snapshot", err)
	}
	return xhttp.SuccessResponse(c, snapshotResponse{Date: day, Rows: rows})
}

func (h *ForecastEchoHandler) Series(c echo.Context) error {
	defer observe("series", time.Now())
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if err := checkSymbols("symbol", []string{symbol}); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.query.Tail(symbol, req.Limit)
	if err != nil {
		return h.fail(c, "series", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ForecastEchoHandler) Dates(c echo.Context) error {
	defer observe("dates", time.Now())
	dates := h.query.Dates()
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(models.DateLayout)
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

type statusResponse struct {
	usecase.Status
	Queue *queue.Stats `json:"queue,omitempty"`
}

func (h *ForecastEchoHandler) Status(c echo.Context) error {
	defer observe("status", time.Now())
	res := statusResponse{Status: h.query.Status()}
	if h.queue != nil {
		st, err := h.queue.Stats(c.Request().Context())
		if err != nil {
			h.logger.Warn("queue stats unavailable", xlogger.Error(err))
		} else {
			res.Queue = &st
		}
	}
	return xhttp.SuccessResponse(c, res)
}

// Refresh queues a refresh when a queue is configured and answers 202;
// otherwise it refreshes inline and returns the new latest summary.
func (h *ForecastEchoHandler) Refresh(c echo.Context) error {
	defer observe("refresh", time.Now())
	req := &models.RefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	for i, s := range req.Symbols {
		req.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if err := checkSymbols("symbols", req.Symbols); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	if h.queue != nil {
		if err := h.queue.Enqueue(c.Request().Context(), usecase.RefreshMessageType, req); err != nil {
			return h.fail(c, "refresh", err)
		}
		return xhttp.DataResponse(c, http.StatusAccepted, req)
	}
	if h.refresh == nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("refresh is not available"))
	}
	res, err := h.refresh.Refresh(c.Request().Context(), req.Mode, req.Symbols)
	if err != nil {
		return h.fail(c, "refresh", err)
	}
	return xhttp.SuccessResponse(c, res)
}
