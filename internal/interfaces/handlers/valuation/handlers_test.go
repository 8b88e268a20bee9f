package valuation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"unitfund-backend/internal/application/holdings"
	"unitfund-backend/internal/application/nav"
	"unitfund-backend/internal/application/valuations"
	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/signature"
	"unitfund-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedSecret = "feed_secret"

type feedFunc func(ctx context.Context) (domain.EquityReading, error)

func (f feedFunc) Fetch(ctx context.Context) (domain.EquityReading, error) { return f(ctx) }

func setupValuationTest(t *testing.T, feed nav.EquityFeed) *fiber.App {
	t.Helper()
	db := testutil.NewDB(t)
	store := &valuations.Store{DB: db}
	h := &Handlers{
		Pipeline: &nav.Pipeline{Engine: &nav.Engine{
			Valuations: store,
			Holdings:   &holdings.Service{DB: db},
			Feed:       feed,
		}},
		Valuations:    store,
		SigningSecret: feedSecret,
	}
	app := fiber.New()
	app.Post("/api/v1/valuation/ticks", h.Push)
	app.Post("/api/v1/valuation/poll", h.Poll)
	app.Post("/api/v1/valuation/revalue", h.Revalue)
	app.Get("/api/v1/valuation/latest", h.Latest)
	app.Get("/api/v1/valuation/records", h.Records)
	app.Get("/api/v1/valuation/records/:date", h.Record)
	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func push(t *testing.T, app *fiber.App, payload string, sign bool) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/valuation/ticks", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		req.Header.Set("X-Feed-Signature", signature.SHA256Hex(feedSecret, []byte(payload)))
	}
	return doRequest(t, app, req)
}

func noFeed(context.Context) (domain.EquityReading, error) {
	return domain.EquityReading{}, domain.ErrExternalFeedUnavailable
}

func TestPush_RecordsSeedNav(t *testing.T) {
	app := setupValuationTest(t, feedFunc(noFeed))

	status, out := push(t, app, `{"equity":"250000.50","balance":"250000.50","timestamp":"2026-03-02T16:00:00Z"}`, true)
	require.Equal(t, fiber.StatusOK, status, out)
	record := out["data"].(map[string]interface{})["record"].(map[string]interface{})
	assert.Equal(t, "2026-03-02", record["date"])
	assert.Equal(t, "1000", record["nav_per_unit"])

	status, out = doRequest(t, app, httptest.NewRequest("GET", "/api/v1/valuation/latest", nil))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "2026-03-02", out["data"].(map[string]interface{})["date"])
}

func TestPush_RejectsUnsignedAndMalformed(t *testing.T) {
	app := setupValuationTest(t, feedFunc(noFeed))

	status, _ := push(t, app, `{"equity":"100","timestamp":"2026-03-02T16:00:00Z"}`, false)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = push(t, app, `{"balance":"100"}`, true)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestPush_RetroactiveIsConflict(t *testing.T) {
	app := setupValuationTest(t, feedFunc(noFeed))

	status, _ := push(t, app, `{"equity":"100000","timestamp":"2026-03-03T16:00:00Z"}`, true)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = push(t, app, `{"equity":"90000","timestamp":"2026-03-02T16:00:00Z"}`, true)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestPoll(t *testing.T) {
	at := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	ok := feedFunc(func(context.Context) (domain.EquityReading, error) {
		return domain.EquityReading{Equity: decimal.NewFromInt(5000), Balance: decimal.NewFromInt(5000), Timestamp: at}, nil
	})
	app := setupValuationTest(t, ok)
	status, out := doRequest(t, app, httptest.NewRequest("POST", "/api/v1/valuation/poll", nil))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "NAV recorded", out["message"])

	down := setupValuationTest(t, feedFunc(noFeed))
	status, _ = doRequest(t, down, httptest.NewRequest("POST", "/api/v1/valuation/poll", nil))
	assert.Equal(t, fiber.StatusBadGateway, status)
}

func TestRevalue_NothingRecorded(t *testing.T) {
	app := setupValuationTest(t, feedFunc(noFeed))
	status, _ := doRequest(t, app, httptest.NewRequest("POST", "/api/v1/valuation/revalue", nil))
	assert.Equal(t, fiber.StatusNotFound, status)

	status, out := doRequest(t, app, httptest.NewRequest("GET", "/api/v1/valuation/latest", nil))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "1000", out["data"].(map[string]interface{})["nav_per_unit"])
}

func TestRecords_Range(t *testing.T) {
	app := setupValuationTest(t, feedFunc(noFeed))
	for _, ts := range []string{"2026-03-02", "2026-03-03", "2026-03-04"} {
		status, _ := push(t, app, `{"equity":"1000","timestamp":"`+ts+`T16:00:00Z"}`, true)
		require.Equal(t, fiber.StatusOK, status)
	}

	status, out := doRequest(t, app, httptest.NewRequest("GET", "/api/v1/valuation/records?from=2026-03-03", nil))
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["data"], 2)

	status, _ = doRequest(t, app, httptest.NewRequest("GET", "/api/v1/valuation/records?to=03/04/2026", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRecord_ByDate(t *testing.T) {
	app := setupValuationTest(t, feedFunc(noFeed))
	status, _ := push(t, app, `{"equity":"1000","timestamp":"2026-03-02T16:00:00Z"}`, true)
	require.Equal(t, fiber.StatusOK, status)

	status, out := doRequest(t, app, httptest.NewRequest("GET", "/api/v1/valuation/records/2026-03-02", nil))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "2026-03-02", out["data"].(map[string]interface{})["date"])

	status, _ = doRequest(t, app, httptest.NewRequest("GET", "/api/v1/valuation/records/2026-03-03", nil))
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = doRequest(t, app, httptest.NewRequest("GET", "/api/v1/valuation/records/yesterday", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
}
