// Package reconcile merges the provider feed into the local event store.
package reconcile

import (
	"context"
	"time"

	"smsrelay-agent/internal/feed"
	"smsrelay-agent/internal/infra/logger"
	"smsrelay-agent/internal/store"
)

// Reconciler pulls the provider feed and inserts entries not yet present
// locally, in chronological order. It is safe to run passes concurrently;
// the store's insert dedup keeps overlapping passes from double-writing.
type Reconciler struct {
	source      feed.Source
	events      *store.EventStore
	settleDelay time.Duration
	log         logger.Logger

	// trigger coalesces live-capture notifications; capacity one is enough
	// because a pending pass already covers any burst of notifications.
	trigger chan struct{}
}

// New creates a new Reconciler. settleDelay is how long a live-capture
// trigger waits for the provider to fully commit the record before the
// catch-up pass runs.
func New(source feed.Source, events *store.EventStore, settleDelay time.Duration, log logger.Logger) *Reconciler {
	return &Reconciler{
		source:      source,
		events:      events,
		settleDelay: settleDelay,
		log:         log.Sub("Reconciler"),
		trigger:     make(chan struct{}, 1),
	}
}

// Reconcile runs one pass: read the feed newest-first, collect entries until
// the first one already known locally, then insert the collected entries
// oldest-first. Returns the number of newly inserted events. A feed read
// failure aborts the pass; the next trigger retries it.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	r.log.Debugf("Starting reconciliation pass...")

	entries, err := r.source.ListEvents(ctx)
	if err != nil {
		r.log.Errorf("Feed read failed, aborting pass: %v", err)
		return 0, err
	}

	var pending []feed.Entry
	for _, entry := range entries {
		// Malformed provider records carry no counterparty or body.
		if entry.Counterparty == "" || entry.Body == "" {
			continue
		}

		if entry.ProviderID != nil {
			existing, err := r.events.GetByProviderID(*entry.ProviderID)
			if err != nil {
				r.log.Errorf("Lookup failed for provider id %d, aborting pass: %v", *entry.ProviderID, err)
				return 0, err
			}
			if existing != nil {
				// Everything older than this entry is already ingested.
				break
			}
		}

		pending = append(pending, entry)
	}

	// Insert in chronological order, oldest first.
	inserted := 0
	now := time.Now().UnixMilli()
	for i := len(pending) - 1; i >= 0; i-- {
		entry := pending[i]
		ok, err := r.events.Insert(entryToEvent(entry, now))
		if err != nil {
			r.log.Errorf("Failed to save event (provider id %v): %v", derefID(entry.ProviderID), err)
			continue
		}
		if ok {
			inserted++
			r.log.Debugf("Added new event: provider id %v, type %s", derefID(entry.ProviderID), entry.Kind)
		}
	}

	if inserted > 0 {
		r.log.Infof("Reconciled %d new events", inserted)
	} else {
		r.log.Debugf("No new events found")
	}
	return inserted, nil
}

// Notify schedules a catch-up pass after the settle delay. It never blocks;
// a burst of notifications collapses into one pending pass.
func (r *Reconciler) Notify() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run consumes live-capture triggers and runs a periodic full pass until the
// context is canceled. An initial pass runs immediately on start.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
		r.log.Warnf("Initial reconciliation failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			// Let the provider finish committing the record.
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.settleDelay):
			}
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.log.Warnf("Triggered reconciliation failed: %v", err)
			}
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.log.Warnf("Periodic reconciliation failed: %v", err)
			}
		}
	}
}

func entryToEvent(entry feed.Entry, capturedTS int64) *store.Event {
	return &store.Event{
		ProviderID:   entry.ProviderID,
		OriginTS:     entry.OriginTS,
		CapturedTS:   capturedTS,
		Counterparty: entry.Counterparty,
		Body:         entry.Body,
		EventType:    string(entry.Kind),
		ThreadKey:    entry.ThreadKey,
		SentTS:       entry.SentTS,
		DisplayName:  entry.DisplayName,
	}
}

func derefID(p *int64) interface{} {
	if p == nil {
		return "<none>"
	}
	return *p
}
