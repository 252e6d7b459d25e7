package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

func TestOnEvent_CountsByTypeAndOutcome(t *testing.T) {
	m := NewMetrics()
	m.OnEvent(board.Event{Type: board.EventStatusAdvanced, OK: true})
	m.OnEvent(board.Event{Type: board.EventStatusAdvanced, OK: true})
	m.OnEvent(board.Event{Type: board.EventPersistFailed})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("status_advanced", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("persist_failed", "false")))
}

func TestObserveRemote(t *testing.T) {
	m := NewMetrics()
	m.ObserveRemote("/api/save-control", 20*time.Millisecond, nil)
	m.ObserveRemote("/api/save-control", time.Second, fmt.Errorf("x: %w", remote.ErrUnavailable))
	m.ObserveRemote("/api/save-control", time.Second, &remote.APIError{StatusCode: 500})
	m.ObserveRemote("/api/get-data", time.Second, errors.New("decode"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteRequests.WithLabelValues("/api/save-control", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteRequests.WithLabelValues("/api/save-control", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteRequests.WithLabelValues("/api/save-control", "api_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteRequests.WithLabelValues("/api/get-data", "error")))
}

func TestHandler_ExposesSummaryGauges(t *testing.T) {
	m := NewMetrics()
	m.TrackSummary(func() control.Summary {
		return control.Summary{Total: 3, HighRisk: 2, Completed: 1, InProgress: 1, NotStarted: 1}
	})
	m.ObserveHTTP(http.MethodGet, 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "controldesk_controls_total 3")
	assert.Contains(t, body, "controldesk_controls_high_risk 2")
	assert.Contains(t, body, `controldesk_http_requests_total{code="200",method="GET"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestSetupTracing_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing("controldesk-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "board.AdvanceStatus")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "board.AdvanceStatus")
	assert.Contains(t, buf.String(), "controldesk-test")
}
