package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/oracle/valuation", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ValuationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "token-1", req.TokenID)
		assert.Equal(t, "PATENT", req.Metadata["category"])

		json.NewEncoder(w).Encode(ValuationResponse{
			EstimatedValue:     12_500,
			ConfidenceInterval: []float64{10_000, 15_000},
			ModelUncertainty:   0.12,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.EstimateValue(context.Background(), "token-1", map[string]any{"category": "PATENT"})
	require.NoError(t, err)
	assert.Equal(t, 12_500.0, got.EstimatedValue)
	assert.Equal(t, []float64{10_000, 15_000}, got.ConfidenceInterval)
}

func TestEstimateValueServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.EstimateValue(context.Background(), "token-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL).Health(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	require.Error(t, NewClient(down.URL).Health(context.Background()))
}
