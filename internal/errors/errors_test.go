package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorError(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewNotFoundError("subtitle")
		assert.Equal(t, "NOT_FOUND: subtitle not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := WrapInternalError(cause, "failed to store settings")
		assert.Contains(t, err.Error(), "failed to store settings")
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, cause, errors.Unwrap(err))
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{NewValidationError("bad snapshot"), ErrorTypeValidation, http.StatusBadRequest},
		{NewNotFoundError("narration"), ErrorTypeNotFound, http.StatusNotFound},
		{NewInternalError("boom"), ErrorTypeInternal, http.StatusInternalServerError},
		{NewTimeoutError("probe"), ErrorTypeTimeout, http.StatusRequestTimeout},
		{NewConflictError("replaced"), ErrorTypeConflict, http.StatusConflict},
		{NewRateLimitError("slow down"), ErrorTypeRateLimit, http.StatusTooManyRequests},
		{NewServiceDownError("redis"), ErrorTypeServiceDown, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantType, tt.err.Type)
		assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
	}
}

func TestWithDetailsAndCode(t *testing.T) {
	err := NewValidationError("start after end").
		WithCode("SUBTITLE_RANGE").
		WithDetails(map[string]interface{}{"subtitle_id": 3})

	assert.Equal(t, "SUBTITLE_RANGE", err.Code)
	assert.Equal(t, 3, err.Details["subtitle_id"])
}

func TestGetAppError(t *testing.T) {
	appErr := NewValidationError("x")
	got, ok := GetAppError(appErr)
	assert.True(t, ok)
	assert.Equal(t, appErr, got)

	_, ok = GetAppError(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsAppError(errors.New("plain")))
	assert.True(t, IsAppError(appErr))
}
