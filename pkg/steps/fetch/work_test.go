package fetch_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowboard/flowboard/pkg/steps/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWork_Execute_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("quarterly report body"))
	}))
	defer server.Close()

	work, err := fetch.NewWork(map[string]any{}, slog.Default())
	require.NoError(t, err)

	output, err := work.Execute(t.Context(), map[string]any{"document_url": server.URL})
	require.NoError(t, err)

	assert.Equal(t, "quarterly report body", output["content"])
	assert.Equal(t, "text/plain", output["content_type"])
	assert.Equal(t, len("quarterly report body"), output["size"])
	assert.Equal(t, server.URL, output["document_url"])
}

func TestWork_Execute_MissingURL(t *testing.T) {
	t.Parallel()

	work, err := fetch.NewWork(map[string]any{}, slog.Default())
	require.NoError(t, err)

	_, err = work.Execute(t.Context(), map[string]any{})
	assert.Error(t, err)
}

func TestWork_Execute_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	work, err := fetch.NewWork(map[string]any{}, slog.Default())
	require.NoError(t, err)

	_, err = work.Execute(t.Context(), map[string]any{"document_url": server.URL})
	assert.ErrorContains(t, err, "502")
}

func TestWork_Execute_SizeCap(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer server.Close()

	work, err := fetch.NewWork(map[string]any{"max_bytes": float64(100)}, slog.Default())
	require.NoError(t, err)

	output, err := work.Execute(t.Context(), map[string]any{"document_url": server.URL})
	require.NoError(t, err)
	assert.Equal(t, 100, output["size"])
}
