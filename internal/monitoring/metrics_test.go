package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(m *Monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(m.Middleware())
	m.Register(r)
	r.GET("/tasks/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_RecordsRequests(t *testing.T) {
	m := NewMonitor()
	r := newRouter(m)

	get(r, "/ok")
	get(r, "/tasks/1")
	get(r, "/tasks/2")
	get(r, "/nowhere")

	snapshot := m.Snapshot()
	assert.Equal(t, int64(4), snapshot.RequestCount)
	assert.Equal(t, int64(3), snapshot.ErrorCount)
	assert.Equal(t, int64(0), snapshot.ActiveRequests)
	assert.Equal(t, int64(1), snapshot.StatusCodes["200"])
	assert.Equal(t, int64(3), snapshot.StatusCodes["404"])
	assert.Equal(t, int64(2), snapshot.Endpoints["GET /tasks/:id"])
	assert.Equal(t, int64(1), snapshot.Endpoints["GET unmatched"])
}

func TestSnapshot_IsACopy(t *testing.T) {
	m := NewMonitor()
	get(newRouter(m), "/ok")

	snapshot := m.Snapshot()
	snapshot.StatusCodes["200"] = 99

	assert.Equal(t, int64(1), m.Snapshot().StatusCodes["200"])
}

func TestHealthHandler(t *testing.T) {
	m := NewMonitor()
	m.RegisterHealthCheck("database", func(ctx context.Context) error { return nil })
	r := newRouter(m)

	w := get(r, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string                 `json:"status"`
		Checks map[string]HealthCheck `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, StatusHealthy, body.Checks["database"].Status)

	m.RegisterHealthCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })

	w = get(r, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "connection refused", body.Checks["redis"].Message)
}

func TestReadinessAndLiveness(t *testing.T) {
	m := NewMonitor()
	failing := true
	m.RegisterHealthCheck("database", func(ctx context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})
	r := newRouter(m)

	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(r, "/livez").Code)

	failing = false
	assert.Equal(t, http.StatusOK, get(r, "/readyz").Code)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMonitor()
	r := newRouter(m)
	get(r, "/ok")

	w := get(r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "application")
	assert.Contains(t, body, "system")
}

func TestMetricsHandler_ComponentStats(t *testing.T) {
	m := NewMonitor()
	m.RegisterStats("notifications", func() map[string]interface{} {
		return map[string]interface{}{"state": "closed", "failure_count": 0}
	})
	r := newRouter(m)

	w := get(r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Components map[string]map[string]interface{} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body.Components, "notifications")
	assert.Equal(t, "closed", body.Components["notifications"]["state"])
	assert.EqualValues(t, 0, body.Components["notifications"]["failure_count"])
}
