package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsrelay-agent/internal/feed"
	"smsrelay-agent/internal/infra/logger"
	"smsrelay-agent/internal/store"
)

// fakeSource hands back a fixed feed, newest first, and records how many
// times it was read.
type fakeSource struct {
	mu      sync.Mutex
	entries []feed.Entry
	err     error
	reads   int
}

func (f *fakeSource) ListEvents(ctx context.Context) ([]feed.Entry, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeSource) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func newTestEventStore(t *testing.T) *store.EventStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return store.NewEventStore(s)
}

func int64p(v int64) *int64 { return &v }

func entry(providerID, originTS int64) feed.Entry {
	return feed.Entry{
		ProviderID:   int64p(providerID),
		Counterparty: "+15551230000",
		Body:         "hello",
		OriginTS:     originTS,
		Kind:         feed.KindReceived,
	}
}

func TestReconciler_InsertsNewEntriesChronologically(t *testing.T) {
	events := newTestEventStore(t)
	source := &fakeSource{entries: []feed.Entry{
		entry(3, 3000),
		entry(2, 2000),
		entry(1, 1000),
	}}
	r := New(source, events, time.Millisecond, logger.Nop())

	inserted, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	all, err := events.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Insert order is oldest-first: locally assigned ids grow with time.
	assert.Less(t, all[2].ID, all[1].ID)
	assert.Less(t, all[1].ID, all[0].ID)
}

func TestReconciler_ShortCircuitsAtFirstKnownEntry(t *testing.T) {
	events := newTestEventStore(t)

	// Entry #4 (newest-first) is already ingested.
	_, err := events.Insert(&store.Event{
		ProviderID:   int64p(7),
		OriginTS:     7000,
		CapturedTS:   7001,
		Counterparty: "+15551230000",
		Body:         "hello",
		EventType:    "RECEIVED",
	})
	require.NoError(t, err)

	source := &fakeSource{entries: []feed.Entry{
		entry(10, 10000),
		entry(9, 9000),
		entry(8, 8000),
		entry(7, 7000), // known: stop here
		entry(6, 6000),
		entry(5, 5000),
		entry(4, 4000),
		entry(3, 3000),
		entry(2, 2000),
		entry(1, 1000),
	}}
	r := New(source, events, time.Millisecond, logger.Nop())

	inserted, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	// Entries older than the known one were never ingested.
	older, err := events.GetByProviderID(6)
	require.NoError(t, err)
	assert.Nil(t, older)

	count, err := events.UnsyncedCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestReconciler_SkipsMalformedEntries(t *testing.T) {
	events := newTestEventStore(t)

	missingBody := entry(3, 3000)
	missingBody.Body = ""
	missingCounterparty := entry(2, 2000)
	missingCounterparty.Counterparty = ""

	source := &fakeSource{entries: []feed.Entry{
		missingBody,
		missingCounterparty,
		entry(1, 1000),
	}}
	r := New(source, events, time.Millisecond, logger.Nop())

	inserted, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestReconciler_FeedFailureAbortsPass(t *testing.T) {
	events := newTestEventStore(t)
	source := &fakeSource{err: errors.New("provider unavailable")}
	r := New(source, events, time.Millisecond, logger.Nop())

	inserted, err := r.Reconcile(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, inserted)
}

func TestReconciler_RerunIsIdempotent(t *testing.T) {
	events := newTestEventStore(t)
	source := &fakeSource{entries: []feed.Entry{
		entry(2, 2000),
		entry(1, 1000),
	}}
	r := New(source, events, time.Millisecond, logger.Nop())

	inserted, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestReconciler_NotifyNeverBlocks(t *testing.T) {
	r := New(&fakeSource{}, newTestEventStore(t), time.Millisecond, logger.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Notify()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
}

func TestReconciler_RunHandlesTriggers(t *testing.T) {
	events := newTestEventStore(t)
	source := &fakeSource{}
	r := New(source, events, time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Hour)
		close(done)
	}()

	// The initial pass runs on start; a trigger schedules another after the
	// settle delay.
	r.Notify()
	require.Eventually(t, func() bool {
		return source.readCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
