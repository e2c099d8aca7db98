package sync

import (
	"context"
	"errors"
	"net"

	"smsrelay-agent/internal/api"
	"smsrelay-agent/internal/store"
)

// ErrorKind is the closed set of failure categories the engine acts on.
// Classification is structural (error types and status codes), never by
// matching message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransientNetwork
	KindAuthRejected
	KindServerError
	KindClientError
	KindStorage
	KindCanceled
)

// String returns the kind name for logs and status messages.
func (k ErrorKind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient-network"
	case KindAuthRejected:
		return "auth-rejected"
	case KindServerError:
		return "server-error"
	case KindClientError:
		return "client-error"
	case KindStorage:
		return "storage"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether the engine should keep retrying under backoff.
// Client errors are conservatively retryable; the per-event quarantine is
// the escape hatch for permanently rejected submissions.
func (k ErrorKind) Retryable() bool {
	return k != KindCanceled
}

// Classify maps an error to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}

	var se *api.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Unauthorized():
			return KindAuthRejected
		case se.StatusCode >= 500:
			return KindServerError
		case se.StatusCode >= 400:
			return KindClientError
		default:
			return KindServerError
		}
	}

	var storageErr *store.StorageError
	if errors.As(err, &storageErr) {
		return KindStorage
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransientNetwork
	}

	return KindUnknown
}
