package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/benchkit/dmmlogd/internal/api"
	"codeberg.org/benchkit/dmmlogd/internal/event"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
	"codeberg.org/benchkit/dmmlogd/internal/registry"
	"codeberg.org/benchkit/dmmlogd/internal/store"
	"codeberg.org/benchkit/dmmlogd/internal/transport"
)

func newTestServer(t *testing.T) (*api.Server, *store.Store) {
	t.Helper()

	bus := event.NewBus()
	t.Cleanup(bus.Close)

	reg := registry.New(transport.NewSim("sim0"), bus, logger.Default())
	require.NoError(t, reg.AddOrUpdate(registry.DeviceConfig{
		Name:     "DMM1",
		Address:  "sim0",
		Function: "DC Voltage",
		Enabled:  true,
	}))
	_, err := reg.Connect(context.Background(), "DMM1", "sim0")
	require.NoError(t, err)
	t.Cleanup(reg.CloseAll)

	st := store.New(100)
	now := time.Now()
	for i, v := range []float64{5.0, 5.1, 5.2} {
		st.Record(measurement.Measurement{
			Timestamp:  now.Add(time.Duration(i) * time.Second),
			DeviceName: "DMM1",
			Function:   "DC Voltage",
			Value:      v,
			Unit:       "V",
			Status:     measurement.StatusOK,
		})
	}

	return api.New(":0", st, reg, 10*time.Minute, logger.Default()), st
}

func get(t *testing.T, srv *api.Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDevices(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/devices")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []registry.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "DMM1", out[0].Name)
	assert.True(t, out[0].Connected)
	assert.Equal(t, "DC Voltage", out[0].Function)
}

func TestFunctions(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/functions")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []struct {
		Name   string   `json:"name"`
		Unit   string   `json:"unit"`
		Ranges []string `json:"ranges"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 8)
}

func TestMeasurements(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/measurements?device=DMM1&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []measurement.Measurement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, 5.1, out[0].Value)
	assert.Equal(t, 5.2, out[1].Value)
}

func TestMeasurementsInvalidLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/measurements?limit=oops")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeries(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/series/DMM1")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []measurement.Point
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 3)
}

func TestSeriesInvalidWindow(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/series/DMM1?window=-5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/stats?device=DMM1")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Count   int      `json:"count"`
		Devices []string `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, []string{"DMM1"}, out.Devices)
}
