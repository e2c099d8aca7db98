package store

import (
	"database/sql"
	"errors"

	"smsrelay-agent/internal/infra/logger"
)

// dedupWindowMillis is the fallback identity window for events without a
// provider id. The comparison is strictly less-than.
const dedupWindowMillis = 5000

// Event is one captured message activity record.
type Event struct {
	ID         int64
	ProviderID *int64
	OriginTS   int64 // when the message occurred, ms since epoch
	CapturedTS int64 // when the agent recorded it, ms since epoch

	Counterparty string
	Body         string
	EventType    string

	ThreadKey   *int64
	SentTS      *int64
	DisplayName *string

	SyncedAt *int64 // nil until the remote acknowledges the event
}

// Synced reports whether the event has been acknowledged by the remote.
func (e *Event) Synced() bool {
	return e.SyncedAt != nil
}

// EventStore handles captured event persistence and dedup.
type EventStore struct {
	store     *Store
	log       logger.Logger
	observers *observerHub
}

// NewEventStore creates a new EventStore.
func NewEventStore(s *Store) *EventStore {
	es := &EventStore{
		store: s,
		log:   s.log.Sub("Events"),
	}
	es.observers = newObserverHub(es)
	return es
}

const eventColumns = `id, provider_id, origin_ts, captured_ts, counterparty,
	body, event_type, thread_key, sent_ts, display_name, synced_at`

// Insert stores a new event unless a duplicate already exists. A duplicate
// is a row with the same provider id, or, for events without one, a row with
// the same counterparty and body within the dedup window. Returns whether a
// new row was created; duplicates are a normal, silent outcome.
func (s *EventStore) Insert(e *Event) (bool, error) {
	if e.ProviderID != nil {
		existing, err := s.GetByProviderID(*e.ProviderID)
		if err != nil {
			return false, err
		}
		if existing != nil {
			s.log.Debugf("Skipping duplicate event (provider id %d)", *e.ProviderID)
			return false, nil
		}
	} else {
		similar, err := s.FindSimilar(e.Counterparty, e.Body, e.OriginTS)
		if err != nil {
			return false, err
		}
		if similar != nil {
			s.log.Debugf("Skipping near-duplicate event from %s at %d", e.Counterparty, e.OriginTS)
			return false, nil
		}
	}

	// The partial unique index on provider_id backstops a concurrent insert
	// of the same provider id between the check above and this statement.
	res, err := s.store.Exec(`
		INSERT INTO sms_events (
			provider_id, origin_ts, captured_ts, counterparty,
			body, event_type, thread_key, sent_ts, display_name, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(provider_id) WHERE provider_id IS NOT NULL DO NOTHING
	`,
		nullInt64Ptr(e.ProviderID), e.OriginTS, e.CapturedTS, e.Counterparty,
		e.Body, e.EventType, nullInt64Ptr(e.ThreadKey), nullInt64Ptr(e.SentTS),
		nullStringPtr(e.DisplayName))
	if err != nil {
		return false, storageErr("insert event", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("insert event", err)
	}
	if rows == 0 {
		return false, nil
	}

	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}

	s.observers.notify()
	return true, nil
}

// GetByProviderID fetches an event by its external provider id.
// Returns nil if no such event exists.
func (s *EventStore) GetByProviderID(providerID int64) (*Event, error) {
	row := s.store.QueryRow(`
		SELECT `+eventColumns+` FROM sms_events WHERE provider_id = ? LIMIT 1
	`, providerID)
	return scanEventRow(row, "get by provider id")
}

// FindSimilar returns an event with the same counterparty and body whose
// origin timestamp is within the dedup window of the given timestamp.
// Used as a fallback identity check when no provider id is available.
func (s *EventStore) FindSimilar(counterparty, body string, originTS int64) (*Event, error) {
	row := s.store.QueryRow(`
		SELECT `+eventColumns+` FROM sms_events
		WHERE counterparty = ? AND body = ? AND ABS(origin_ts - ?) < ?
		LIMIT 1
	`, counterparty, body, originTS, dedupWindowMillis)
	return scanEventRow(row, "find similar")
}

// GetAll returns all events, newest first.
func (s *EventStore) GetAll() ([]*Event, error) {
	rows, err := s.store.Query(`
		SELECT ` + eventColumns + ` FROM sms_events ORDER BY origin_ts DESC
	`)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	return scanEvents(rows, "list events")
}

// GetUnsynced returns events not yet acknowledged by the remote,
// oldest first.
func (s *EventStore) GetUnsynced() ([]*Event, error) {
	rows, err := s.store.Query(`
		SELECT ` + eventColumns + ` FROM sms_events
		WHERE synced_at IS NULL ORDER BY origin_ts ASC
	`)
	if err != nil {
		return nil, storageErr("list unsynced", err)
	}
	return scanEvents(rows, "list unsynced")
}

// MarkSynced records the remote acknowledgment timestamp for an event.
// Idempotent: a second call leaves the original timestamp in place.
func (s *EventStore) MarkSynced(eventID int64, syncedAt int64) error {
	res, err := s.store.Exec(`
		UPDATE sms_events SET synced_at = ? WHERE id = ? AND synced_at IS NULL
	`, syncedAt, eventID)
	if err != nil {
		return storageErr("mark synced", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		s.observers.notify()
	}
	return nil
}

// UnsyncedCount returns the number of events awaiting upload.
func (s *EventStore) UnsyncedCount() (int, error) {
	var count int
	err := s.store.QueryRow(`
		SELECT COUNT(*) FROM sms_events WHERE synced_at IS NULL
	`).Scan(&count)
	if err != nil {
		return 0, storageErr("count unsynced", err)
	}
	return count, nil
}

// Observe subscribes to event snapshots. The current snapshot is delivered
// immediately; a new one follows every insert or sync-state update. Slow
// subscribers only ever see the latest state. The returned cancel function
// releases the subscription.
func (s *EventStore) Observe() (<-chan []*Event, func()) {
	return s.observers.subscribe()
}

func scanEvent(scan func(dest ...interface{}) error) (*Event, error) {
	var e Event
	var providerID, threadKey, sentTS, syncedAt sql.NullInt64
	var displayName sql.NullString

	err := scan(&e.ID, &providerID, &e.OriginTS, &e.CapturedTS, &e.Counterparty,
		&e.Body, &e.EventType, &threadKey, &sentTS, &displayName, &syncedAt)
	if err != nil {
		return nil, err
	}

	e.ProviderID = int64Ptr(providerID)
	e.ThreadKey = int64Ptr(threadKey)
	e.SentTS = int64Ptr(sentTS)
	e.SyncedAt = int64Ptr(syncedAt)
	if displayName.Valid {
		e.DisplayName = &displayName.String
	}
	return &e, nil
}

func scanEventRow(row *sql.Row, op string) (*Event, error) {
	e, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	return e, nil
}

func scanEvents(rows *sql.Rows, op string) ([]*Event, error) {
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, storageErr(op, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return events, nil
}

// Null-safe SQL helpers.

func nullInt64Ptr(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullStringPtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
