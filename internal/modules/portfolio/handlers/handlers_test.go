package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/modules/portfolio"
	"github.com/aristath/tracker/internal/modules/snapshots"
	testingpkg "github.com/aristath/tracker/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router    chi.Router
	store     *testingpkg.MockPositionStore
	snapshots *testingpkg.MockSnapshotStore
	clock     *testingpkg.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	clock := testingpkg.NewFakeClock(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	store := testingpkg.NewMockPositionStore()
	snapshotStore := testingpkg.NewMockSnapshotStore()
	writer := snapshots.NewWriter(snapshotStore, clock, snapshots.WriterConfig{Location: time.UTC, Attempts: 1}, log)
	service := portfolio.NewPortfolioService(store, writer, clock, log)

	router := chi.NewRouter()
	NewHandler(service, snapshotStore, clock, time.UTC, log).RegisterRoutes(router)

	return &fixture{router: router, store: store, snapshots: snapshotStore, clock: clock}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestCreatePosition(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/positions",
		`{"owner_id":1,"name":"Bitcoin","category":"crypto","symbol":"btc","quantity":"2","unit_price":"10000","cost_basis":"8000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	data := decodeData(t, rec)
	assert.Equal(t, "BTC", data["symbol"])
	assert.Equal(t, "20000", data["current_value"])
	assert.Equal(t, "25", data["profit_rate"])

	records := f.snapshots.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "2026-10-19", records[0].Date)
}

func TestCreatePosition_BadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"owner_id":`},
		{"unknown field", `{"owner_id":1,"name":"x","colour":"red"}`},
		{"missing owner", `{"name":"x","quantity":"1","unit_price":"1"}`},
		{"negative quantity", `{"owner_id":1,"name":"x","quantity":"-1","unit_price":"1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/positions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListPositions(t *testing.T) {
	f := newFixture(t)
	f.store.SetPositions(testingpkg.NewPositionFixtures())

	rec := f.do(http.MethodGet, "/positions?owner_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	assert.Equal(t, float64(3), data["count"])

	rec = f.do(http.MethodGet, "/positions", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositions_FilteredByCategory(t *testing.T) {
	f := newFixture(t)
	f.store.SetPositions(testingpkg.NewPositionFixtures())

	rec := f.do(http.MethodGet, "/positions?owner_id=1&category=crypto", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, float64(2), data["count"])

	rec = f.do(http.MethodGet, "/positions?owner_id=1&category=cash", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	require.Equal(t, float64(1), data["count"])
	positions := data["positions"].([]interface{})
	assert.Equal(t, "Savings", positions[0].(map[string]interface{})["name"])

	rec = f.do(http.MethodGet, "/positions?owner_id=1&category=bond", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeData(t, rec)["count"])

	rec = f.do(http.MethodGet, "/positions?owner_id=1&category=stamps", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestGetUpdateDeletePosition(t *testing.T) {
	f := newFixture(t)
	stored := f.store.SetPositions([]domain.Position{
		testingpkg.NewCryptoPosition(1, "ETH", "10", "2000", "1500"),
	})
	id := stored[0].ID

	rec := f.do(http.MethodGet, "/positions/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ETH", decodeData(t, rec)["symbol"])

	rec = f.do(http.MethodPatch, "/positions/1", `{"unit_price":"3000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, "30000", data["current_value"])
	assert.Equal(t, "100", data["profit_rate"])

	rec = f.do(http.MethodPatch, "/positions/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/positions/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := f.store.Get(id)
	assert.False(t, ok)

	rec = f.do(http.MethodGet, "/positions/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodDelete, "/positions/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/positions/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePosition_ConflictExhausted(t *testing.T) {
	f := newFixture(t)
	f.store.SetPositions([]domain.Position{
		testingpkg.NewCryptoPosition(1, "BTC", "1", "40000", "40000"),
	})
	f.store.ConflictOnSave(1, domain.MaxConflictAttempts)

	rec := f.do(http.MethodPatch, "/positions/1", `{"quantity":"2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetPositionSnapshots(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.snapshots.SetRecords([]domain.SnapshotRecord{
		{PositionID: 1, Symbol: "BTC", SnapshotTime: now.Add(-40 * 24 * time.Hour), Date: "2026-09-09"},
		{PositionID: 1, Symbol: "BTC", SnapshotTime: now.Add(-24 * time.Hour), Date: "2026-10-18"},
		{PositionID: 2, Symbol: "ETH", SnapshotTime: now.Add(-24 * time.Hour), Date: "2026-10-18"},
	})

	rec := f.do(http.MethodGet, "/positions/1/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snaps := decodeData(t, rec)["snapshots"].([]interface{})
	assert.Len(t, snaps, 1)

	rec = f.do(http.MethodGet, "/positions/1/snapshots?start=2026-09-01&end=2026-10-19", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snaps = decodeData(t, rec)["snapshots"].([]interface{})
	assert.Len(t, snaps, 2)

	rec = f.do(http.MethodGet, "/positions/1/snapshots?start=2026-09-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
