// Package feed defines the external message provider feed consumed by the
// reconciler. The platform message store is the source of truth for what
// messages exist; the agent only reads it.
package feed

import (
	"context"
	"fmt"
)

// Kind is the event category reported by the provider.
type Kind string

const (
	KindReceived  Kind = "RECEIVED"
	KindSent      Kind = "SENT"
	KindDelivered Kind = "DELIVERED"
	KindOutbox    Kind = "OUTBOX"
	KindDraft     Kind = "DRAFT"
	KindFailed    Kind = "FAILED"
	KindQueued    Kind = "QUEUED"
)

// Provider message type codes, as reported by the device message store.
const (
	providerTypeInbox  = 1
	providerTypeSent   = 2
	providerTypeDraft  = 3
	providerTypeOutbox = 4
	providerTypeFailed = 5
	providerTypeQueued = 6
)

// KindFromProviderType maps a provider message type code to a Kind.
// Unrecognized codes are preserved as "UNKNOWN (n)".
func KindFromProviderType(t int) Kind {
	switch t {
	case providerTypeInbox:
		return KindReceived
	case providerTypeSent:
		return KindSent
	case providerTypeDraft:
		return KindDraft
	case providerTypeOutbox:
		return KindOutbox
	case providerTypeFailed:
		return KindFailed
	case providerTypeQueued:
		return KindQueued
	default:
		return Kind(fmt.Sprintf("UNKNOWN (%d)", t))
	}
}

// Entry is one message activity record from the provider feed.
type Entry struct {
	ProviderID   *int64
	Counterparty string
	Body         string
	OriginTS     int64 // ms since epoch
	SentTS       *int64
	Kind         Kind
	ThreadKey    *int64
	DisplayName  *string
}

// Source hands back the provider feed, newest first.
type Source interface {
	ListEvents(ctx context.Context) ([]Entry, error)
}
