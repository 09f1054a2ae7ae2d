package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordMutation("memory", "add")
	c.RecordTransition("committed")
	c.RecordExternalCall("conversation_api", "send_message", time.Now(), errors.New("x"))
	c.RecordHTTP("GET", "/health", 200, time.Millisecond)
}

func TestCounters(t *testing.T) {
	c := NewCollector("chimera_test")

	c.RecordMutation("memory", "add")
	c.RecordMutation("memory", "add")
	c.RecordTransition("committed")
	c.RecordExternalCall("conversation_api", "send_message", time.Now(), errors.New("boom"))
	c.RecordExternalCall("conversation_api", "send_message", time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Mutations.WithLabelValues("memory", "add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Transitions.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ExternalCalls.WithLabelValues("conversation_api", "send_message", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ExternalCalls.WithLabelValues("conversation_api", "send_message", "success")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("chimera_test")
	c.RecordTransition("started")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "chimera_test_workspace_transitions_total"))
}
