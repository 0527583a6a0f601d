package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, http.StatusNotFound, "TASK_NOT_FOUND", "task not found", map[string]string{"task_id": "9"}))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env, ok := ParseError(rec.Body.Bytes())
	require.True(t, ok)
	require.Equal(t, "TASK_NOT_FOUND", env.Code)
	require.Equal(t, "9", env.Meta["task_id"])
}

func TestParseError_RejectsNonEnvelopes(t *testing.T) {
	_, ok := ParseError([]byte(`{"detail":"Not found."}`))
	require.False(t, ok)

	_, ok = ParseError([]byte(`<html>`))
	require.False(t, ok)
}
