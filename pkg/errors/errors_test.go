package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation app error", Validation("query too short"), http.StatusBadRequest},
		{"not found app error", NotFound("42"), http.StatusNotFound},
		{"normalization", Normalization("7", "empty title"), http.StatusUnprocessableEntity},
		{"wrapped storage", Storage("upsert", errors.New("conn reset")), http.StatusServiceUnavailable},
		{"wrapped source", fmt.Errorf("fetch: %w", ErrSourceUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestStorage_KeepsBothChains(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Storage("upsert", cause)

	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "upsert")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("fetch 9: %w", NotFound("9"))))
	assert.False(t, IsNotFound(ErrStorage))
}
