package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := Write("toggle like", fmt.Errorf("connection refused"))

	assert.True(t, errors.Is(err, ErrWrite))
	assert.False(t, errors.Is(err, ErrRead))
	assert.Contains(t, err.Error(), "connection refused")

	wrapped := fmt.Errorf("feed: %w", err)
	assert.True(t, errors.Is(wrapped, ErrWrite))
	assert.Equal(t, CodeWriteFailed, CodeOf(wrapped))
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeLookupFailed, http.StatusBadGateway},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeWriteFailed, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
			if tt.code != CodeWriteFailed && tt.code != CodeInternal {
				assert.Equal(t, tt.code, CodeForStatus(tt.want, CodeInternal))
			}
		})
	}
}

func TestError_Retryable(t *testing.T) {
	assert.True(t, Read("page", nil).Retryable())
	assert.True(t, Lookup(nil).Retryable())
	assert.False(t, Validation("too long").Retryable())
}

func TestError_WithDetailsKeepsCode(t *testing.T) {
	err := ErrValidation.WithDetails(map[string]string{"name": "is required"})
	assert.Equal(t, CodeValidation, err.Code)
	assert.NotNil(t, err.Details)
	assert.Nil(t, ErrValidation.Details)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "letter not found", NotFoundf("letter %s", "not found").Error())
	assert.Equal(t, "save letter: disk full", Write("save letter", fmt.Errorf("disk full")).Error())
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, http.StatusInternalServerError, Code("UNKNOWN").HTTPStatus())
}
