package matchhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmemory/pkg/models"
)

func TestWriterPostsBatch(t *testing.T) {
	var got []models.PatternMatch
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer abc"}})
	require.NoError(t, err)
	require.NoError(t, w.WriteMatches([]models.PatternMatch{{ID: "m1"}, {ID: "m2"}}))

	assert.Equal(t, "Bearer abc", token)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[1].ID)
}

func TestWriterReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	assert.Error(t, w.WriteMatches([]models.PatternMatch{{ID: "m1"}}))
	assert.NoError(t, w.WriteMatches(nil))
}

func TestNewWriterRequiresURL(t *testing.T) {
	_, err := NewWriter(Config{})
	assert.Error(t, err)
}
