package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/iglogger/internal/config"
	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {

	assert := assert.New(t)

	now := time.Date(2024, time.June, 21, 10, 0, 0, 0, time.UTC)
	store := status.NewStoreWithClock(time.Minute, func() time.Time { return now })
	srv := NewServer(config.Config{HTTP: config.HTTPConfig{Port: 8080}}, store)
	assert.Equal(":8080", srv.Addr)

	rec := get(t, srv.Handler, "/healthcheck")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("health_check: OK", rec.Body.String())

	now = now.Add(2 * time.Minute)
	rec = get(t, srv.Handler, "/healthcheck")
	assert.Equal(http.StatusServiceUnavailable, rec.Code)
	assert.Equal("health_check: FAIL", rec.Body.String())
}

func TestStatus(t *testing.T) {

	assert := assert.New(t)

	store := status.NewStore(time.Minute)
	store.CycleCompleted(domain.CycleReport{
		Timestamp: time.Now(),
		State:     domain.EngineStateAggregating,
		Identity:  domain.DeviceIdentity{Version: "2.3.4", ModelName: "FRONIUS IG 30"},
		Sample:    &domain.SampleSet{PowerNow: 1523, EnergyDay: 4250},
	})
	srv := NewServer(config.Config{}, store)

	rec := get(t, srv.Handler, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal("aggregating", body["state"])
	assert.Equal(true, body["healthy"])
	assert.Equal(1.0, body["cycles"])
	assert.Equal("FRONIUS IG 30", body["identity"].(map[string]any)["model_name"])
	assert.Equal(1523.0, body["sample"].(map[string]any)["power_now"])
}
