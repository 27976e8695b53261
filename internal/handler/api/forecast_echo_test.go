package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceBand/internal/domain/models"
	"PriceBand/internal/usecase"
	"PriceBand/pkg/queue"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeRunner struct {
	mode    string
	symbols []string
	err     error
}

func (f *fakeRunner) Refresh(_ context.Context, mode string, symbols []string) (*models.SummaryTable, error) {
	f.mode, f.symbols = mode, symbols
	if f.err != nil {
		return nil, f.err
	}
	return &models.SummaryTable{AsOf: day(2024, 1, 3)}, nil
}

type fakeQueue struct {
	msgType string
	payload interface{}
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.msgType, q.payload = msgType, payload
	return nil
}

func (q *fakeQueue) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{Pending: 2}, nil
}

func newState() *usecase.ForecastState {
	bars := []models.Bar{
		{Date: day(2024, 1, 1), Open: 10, High: 11, Low: 9, Close: 10},
		{Date: day(2024, 1, 2), Open: 10, High: 12, Low: 9, Close: 11},
		{Date: day(2024, 1, 3), Open: 11, High: 13, Low: 10, Close: 12},
	}
	st := usecase.NewForecastState()
	st.Swap(map[string]*models.EnrichedSeries{
		"AAPL": models.Enrich(models.NewSeries("AAPL", bars)),
	}, &models.SummaryTable{AsOf: day(2024, 1, 3), Rows: []models.SummaryRow{{Symbol: "AAPL", Close: 12}}})
	return st
}

func serve(h *ForecastEchoHandler, method, target, body string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSummaryLatest(t *testing.T) {
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(newState(), nil, nil), nil, nil)
	rec := serve(h, http.MethodGet, "/api/summary", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var table models.SummaryTable
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &table))
	assert.Equal(t, day(2024, 1, 3), table.AsOf)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "AAPL", table.Rows[0].Symbol)
}

func TestSummaryNotFoundWithoutData(t *testing.T) {
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(usecase.NewForecastState(), nil, nil), nil, nil)
	rec := serve(h, http.MethodGet, "/api/summary", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode(t, rec).Status)
}

func TestSummaryRejectsBadDate(t *testing.T) {
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(newState(), nil, nil), nil, nil)
	rec := serve(h, http.MethodGet, "/api/summary?date=2024-13-40", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidSymbolsAreRejected(t *testing.T) {
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(newState(), nil, nil), &fakeRunner{}, nil)

	rec := serve(h, http.MethodGet, "/api/snapshot?date=2024-01-02&symbols=aapl,bad%20one", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errs []struct {
		Code   string                 `json:"code"`
		Field  string                 `json:"field"`
		Params map[string]interface{} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BAD_REQUEST", errs[0].Code)
	assert.Equal(t, "symbols", errs[0].Field)
	assert.Equal(t, "BAD ONE", errs[0].Params["symbol"])

	rec = serve(h, http.MethodGet, "/api/series/aa;pl", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/api/refresh", `{"symbols":["aapl","x y"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotAndSeries(t *testing.T) {
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(newState(), nil, nil), nil, nil)

	rec := serve(h, http.MethodGet, "/api/snapshot?date=2024-01-02&symbols=aapl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"AAPL"`)

	rec = serve(h, http.MethodGet, "/api/series/aapl?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	assert.Equal(t, int64(2), list.Total)

	rec = serve(h, http.MethodGet, "/api/series/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDates(t *testing.T) {
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(newState(), nil, nil), nil, nil)
	rec := serve(h, http.MethodGet, "/api/dates", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows []string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, list.Rows)
}

func TestRefreshInline(t *testing.T) {
	runner := &fakeRunner{}
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(newState(), nil, nil), runner, nil)
	rec := serve(h, http.MethodPost, "/api/refresh", `{"symbols":["msft"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecase.ModeUpdate, runner.mode)
	assert.Equal(t, []string{"MSFT"}, runner.symbols)

	runner.err = errors.New("boom")
	rec = serve(h, http.MethodPost, "/api/refresh", `{"mode":"build"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRefreshQueued(t *testing.T) {
	q := &fakeQueue{}
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(newState(), nil, nil), &fakeRunner{}, q)
	rec := serve(h, http.MethodPost, "/api/refresh", `{"mode":"build"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, usecase.RefreshMessageType, q.msgType)
	req, ok := q.payload.(*models.RefreshRequest)
	require.True(t, ok)
	assert.Equal(t, usecase.ModeBuild, req.Mode)

	rec = serve(h, http.MethodPost, "/api/refresh", `{"mode":"rebuild"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusIncludesQueue(t *testing.T) {
	h := NewForecastEchoHandler(nil, usecase.NewBandQuery(newState(), nil, nil), nil, &fakeQueue{})
	rec := serve(h, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"pending":2`)
	assert.Contains(t, body, `"symbols":["AAPL"]`)
}
