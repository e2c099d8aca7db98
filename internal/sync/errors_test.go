package sync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"smsrelay-agent/internal/api"
	"smsrelay-agent/internal/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", context.DeadlineExceeded, KindCanceled},
		{"unauthorized", &api.StatusError{StatusCode: http.StatusUnauthorized}, KindAuthRejected},
		{"server error", &api.StatusError{StatusCode: http.StatusInternalServerError}, KindServerError},
		{"bad gateway", &api.StatusError{StatusCode: http.StatusBadGateway}, KindServerError},
		{"bad request", &api.StatusError{StatusCode: http.StatusBadRequest}, KindClientError},
		{"conflict", &api.StatusError{StatusCode: http.StatusConflict}, KindClientError},
		{"storage", &store.StorageError{Op: "insert", Err: errors.New("locked")}, KindStorage},
		{"dns", &net.DNSError{Err: "no such host", Name: "example.invalid"}, KindTransientNetwork},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindTransientNetwork},
		{"unknown", errors.New("something odd"), KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassify_Wrapped(t *testing.T) {
	err := fmt.Errorf("submit request: %w", &api.StatusError{StatusCode: http.StatusUnauthorized})
	assert.Equal(t, KindAuthRejected, Classify(err))

	err = fmt.Errorf("batch: %w", &store.StorageError{Op: "count", Err: errors.New("io")})
	assert.Equal(t, KindStorage, Classify(err))
}

func TestErrorKind_Retryable(t *testing.T) {
	assert.True(t, KindTransientNetwork.Retryable())
	assert.True(t, KindServerError.Retryable())
	assert.True(t, KindAuthRejected.Retryable())
	assert.True(t, KindClientError.Retryable())
	assert.True(t, KindStorage.Retryable())
	assert.False(t, KindCanceled.Retryable())
}
