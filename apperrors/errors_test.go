package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"source", SourceUnavailable("query failed", errors.New("dial tcp: refused")), true},
		{"cache", CacheUnavailable("set failed", errors.New("EOF")), true},
		{"wrapped cache", fmt.Errorf("write snapshot: %w", CacheUnavailable("set failed", nil)), true},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"unauthorized", Unauthorized("bad token"), false},
		{"validation", ValidationFailed("hour out of range", nil), false},
		{"geo", GeoWriteFailed("evt-1", errors.New("boom")), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestCacheUnavailable_HighLoad(t *testing.T) {
	saturated := CacheUnavailable("set failed", errors.New("ERR max number of clients reached"))
	assert.True(t, saturated.HighLoad)
	assert.True(t, IsHighLoad(fmt.Errorf("cycle: %w", saturated)))

	down := CacheUnavailable("set failed", errors.New("connection refused"))
	assert.False(t, down.HighLoad)
}

func TestAppError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("timeout")
	err := SourceUnavailable("failed to query events", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "source_unavailable")
	assert.Contains(t, err.Error(), "failed to query events")
	assert.Equal(t, KindSourceUnavailable, KindOf(err))
	assert.True(t, Is(err, KindSourceUnavailable))
	assert.False(t, Is(err, KindCacheUnavailable))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Unauthorized("no token")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ValidationFailed("bad", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(CacheUnavailable("down", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("x")))
	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
}
