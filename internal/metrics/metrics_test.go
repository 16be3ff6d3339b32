package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.EventRecorded()
	m.EventRecorded()
	m.StorageFailure("put_event")
	m.PatternMatched("security_sequence")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageFailures.WithLabelValues("put_event")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "opsmemory_pattern_matches_total"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.EventRecorded()
	m.StorageFailure("x")
	m.ObserveAnalysis("patterns", 0.1)
}
