package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPModel_Generate_NormalizesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(embeddingsResponse{Embedding: []float32{3, 4, 0}})
	}))
	defer srv.Close()

	model := NewHTTPModel(srv.URL, "test-model", 3, nil)
	got, err := model.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got[0], 1e-5)
	assert.InDelta(t, 0.8, got[1], 1e-5)
}

func TestHTTPModel_GenerateBatch_FallsBackWhenUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			w.WriteHeader(http.StatusNotFound)
		case "/api/embeddings":
			_ = json.NewEncoder(w).Encode(embeddingsResponse{Embedding: []float32{1, 0, 0}})
		}
	}))
	defer srv.Close()

	model := NewHTTPModel(srv.URL, "test-model", 3, nil)
	got, err := model.GenerateBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 1.0, got[0][0], 1e-5)
}

func TestHTTPModel_Generate_UnknownModelIsValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	model := NewHTTPModel(srv.URL, "missing-model", 3, nil)
	_, err := model.Generate(context.Background(), "hi")
	assert.Error(t, err)
}
