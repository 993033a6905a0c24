package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/service"
)

type pingStub struct {
	err error
}

func (p pingStub) PingContext(ctx context.Context) error { return p.err }
func (p pingStub) Ping(ctx context.Context) error        { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	cases := []struct {
		name   string
		db     error
		cache  error
		status int
	}{
		{name: "all healthy", status: http.StatusOK},
		{name: "database down", db: errors.New("connection refused"), status: http.StatusServiceUnavailable},
		{name: "cache down only", cache: errors.New("redis timeout"), status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMetricsHandler(nil, pingStub{err: tc.db}, pingStub{err: tc.cache})
			c, w := newTestContext(http.MethodGet, "/ready", "", nil)
			h.Ready(c)

			require.Equal(t, tc.status, w.Code)
			var body struct {
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tc.cache != nil {
				assert.Equal(t, "redis timeout", body.Checks["cache"])
			}
		})
	}
}

func TestMetricsHandlerSnapshotAndPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordGeneration(3, 1)
	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/lessons", http.StatusOK, 20*time.Millisecond)
	h := NewMetricsHandler(metrics, nil, nil)

	c, w := newTestContext(http.MethodGet, "/metrics/snapshot", "", &teacherActor)
	h.Snapshot(c)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot models.MetricsSnapshot
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &snapshot))
	assert.Equal(t, uint64(3), snapshot.LessonsGenerated)
	assert.Equal(t, uint64(1), snapshot.RequestsTotal)

	c, w = newTestContext(http.MethodGet, "/metrics", "", nil)
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "lessons_generated_total"))
}

func TestMetricsHandlerWithoutService(t *testing.T) {
	h := NewMetricsHandler(nil, nil, nil)

	c, _ := newTestContext(http.MethodGet, "/metrics", "", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, c.Writer.Status())
}
