package matchclickhouse

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmemory/pkg/models"
)

func TestWriterInsertsRows(t *testing.T) {
	var query, user string
	var rows []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("query")
		user = r.Header.Get("X-ClickHouse-User")
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			var m map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
			rows = append(rows, m)
		}
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL + "/", Database: "ops", Username: "writer"})
	require.NoError(t, err)

	detected := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteMatches([]models.PatternMatch{
		{ID: "m1", Type: models.PatternTemporalAnomaly, Severity: models.SeverityMedium, DetectedAt: detected, Details: map[string]any{"hour": 3}},
		{ID: "m2", Type: models.PatternDeviceFailure},
	}))

	assert.Equal(t, "INSERT INTO `ops`.`pattern_matches` FORMAT JSONEachRow", query)
	assert.Equal(t, "writer", user)
	require.Len(t, rows, 2)
	assert.Equal(t, "temporal_anomaly", rows[0]["pattern_type"])
	assert.Equal(t, "2026-02-01 10:00:00", rows[0]["detected_at"])
	assert.Equal(t, `{"hour":3}`, rows[0]["details"])
	assert.Equal(t, "{}", rows[1]["details"])
	assert.Equal(t, []any{}, rows[1]["evidence"])
}

func TestWriterSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Code: 60. Table does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	err = w.WriteMatches([]models.PatternMatch{{ID: "m1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Table does not exist")
}
