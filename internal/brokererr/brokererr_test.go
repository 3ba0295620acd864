package brokererr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"no worker", ErrNoWorker, KindNoWorker},
		{"wrapped timeout", fmt.Errorf("dispatch: %w", ErrTimeout), KindTimeout},
		{"worker gone", ErrWorkerGone, KindWorkerGone},
		{"unrecognized", fmt.Errorf("some other error"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing user", ErrMissingUser, http.StatusBadRequest},
		{"no worker", ErrNoWorker, http.StatusServiceUnavailable},
		{"transport error", ErrTransport, http.StatusBadGateway},
		{"worker gone", ErrWorkerGone, http.StatusBadGateway},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"unrecognized", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestDispatchError(t *testing.T) {
	err := New("Dispatcher.dispatch", ErrTimeout, map[string]any{"request_id": "req-1"})

	assert.Equal(t, KindTimeout, err.Kind)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "req-1")
}
