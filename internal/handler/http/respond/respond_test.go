package respond

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusAccepted, map[string]int{"enqueued": 3})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"enqueued":3}`, rec.Body.String())
}

func TestJSON_NilBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestJSON_EncodingError(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, map[string]any{"ch": make(chan int)})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestError_AppError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	rec := httptest.NewRecorder()
	err := fmt.Errorf("handler: %w", NewAppError(http.StatusNotFound, "source not found", errors.New("sql: no rows")))
	Error(rec, logger, err)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "source not found", decodeError(t, rec))
	assert.Empty(t, logs.String(), "client errors are not logged")
}

func TestError_InternalIsHidden(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	rec := httptest.NewRecorder()
	Error(rec, logger, errors.New("dial postgres://u:pw@db/monitor: refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))
	assert.Contains(t, logs.String(), "u:****@db")
	assert.NotContains(t, logs.String(), "pw@")
}

func TestAppError(t *testing.T) {
	inner := errors.New("boom")
	e := NewAppError(http.StatusBadRequest, "invalid id", inner)

	assert.Equal(t, "boom", e.Error())
	assert.ErrorIs(t, e, inner)
	assert.Equal(t, "invalid id", NewAppError(400, "invalid id", nil).Error())
}
