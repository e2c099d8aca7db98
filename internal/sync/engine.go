// Package sync drains unsynced events to the remote server with retry.
package sync

import (
	"context"
	"fmt"
	"time"

	"smsrelay-agent/internal/api"
	"smsrelay-agent/internal/infra/logger"
	"smsrelay-agent/internal/store"
)

// TokenSource supplies bearer tokens. Satisfied by *api.AuthCache.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
	Invalidate()
}

// Submitter uploads one event. Satisfied by *api.Client.
type Submitter interface {
	Submit(ctx context.Context, token string, payload *api.SubmitRequest) error
}

// Config holds the engine's pacing and retry tuning.
type Config struct {
	BatchSize       int
	PacingDelay     time.Duration // between submissions within a batch
	BatchDelay      time.Duration // between batches while work remains
	IdleDelay       time.Duration // while the store is fully drained
	Backoff         Backoff
	MaxEventRejects int // client-error rejections before quarantine
}

// DefaultConfig returns the reference engine tuning.
func DefaultConfig() Config {
	return Config{
		BatchSize:       10,
		PacingDelay:     100 * time.Millisecond,
		BatchDelay:      2 * time.Second,
		IdleDelay:       30 * time.Second,
		Backoff:         DefaultBackoff(),
		MaxEventRejects: 5,
	}
}

// Engine is the continuous upload loop. Events are submitted strictly
// oldest-first; a batch stops at the first failure so delivery order is
// preserved. One Engine runs per process lifetime.
type Engine struct {
	events *store.EventStore
	auth   TokenSource
	client Submitter
	cfg    Config
	log    logger.Logger

	status chan string

	// Only touched from the Run goroutine.
	rejects     map[int64]int
	quarantined map[int64]bool
}

// NewEngine creates a sync Engine.
func NewEngine(events *store.EventStore, auth TokenSource, client Submitter, cfg Config, log logger.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxEventRejects <= 0 {
		cfg.MaxEventRejects = DefaultConfig().MaxEventRejects
	}
	return &Engine{
		events:      events,
		auth:        auth,
		client:      client,
		cfg:         cfg,
		log:         log.Sub("SyncEngine"),
		status:      make(chan string, 16),
		rejects:     make(map[int64]int),
		quarantined: make(map[int64]bool),
	}
}

// Status delivers free-form progress messages ("Synced 3 messages",
// "Sync failed, retrying in 4s..."). Messages are dropped when no one is
// listening; the channel never blocks the loop.
func (e *Engine) Status() <-chan string {
	return e.status
}

// Run executes the sync loop until the context is canceled. It first
// verifies connectivity by acquiring a token, retrying under backoff, then
// drains unsynced events continuously.
func (e *Engine) Run(ctx context.Context) {
	e.log.Infof("Starting sync engine...")
	defer e.log.Infof("Sync engine stopped")

	connAttempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.auth.GetToken(ctx); err == nil {
			break
		} else {
			if Classify(err) == KindCanceled {
				return
			}
			connAttempt++
			delay := e.cfg.Backoff.Delay(connAttempt)
			e.log.Warnf("Cannot connect to server (attempt %d): %v", connAttempt, err)
			e.statusf("Connection failed, retrying in %ds...", int(delay/time.Second))
			if !e.wait(ctx, delay) {
				return
			}
		}
	}

	e.log.Infof("Connected to server, starting sync")
	e.statusf("Connected to server")

	retryAttempt := 0
	for ctx.Err() == nil {
		synced, err := e.syncBatch(ctx)
		if synced > 0 {
			e.log.Infof("Synced %d messages", synced)
			e.statusf("Synced %d messages", synced)
		}

		if err != nil {
			if Classify(err) == KindCanceled {
				return
			}
			if Classify(err) == KindAuthRejected {
				// Next GetToken re-authenticates transparently.
				e.auth.Invalidate()
			}
			retryAttempt++
			delay := e.cfg.Backoff.Delay(retryAttempt)
			e.log.Errorf("Sync batch failed (attempt %d, %s): %v", retryAttempt, Classify(err), err)
			e.statusf("Sync failed, retrying in %ds...", int(delay/time.Second))
			if !e.wait(ctx, delay) {
				return
			}
			continue
		}

		retryAttempt = 0

		remaining, err := e.events.UnsyncedCount()
		if err != nil {
			retryAttempt++
			delay := e.cfg.Backoff.Delay(retryAttempt)
			e.log.Errorf("Unsynced count failed: %v", err)
			if !e.wait(ctx, delay) {
				return
			}
			continue
		}

		// Quarantined events stay unsynced but are not pending work.
		remaining -= len(e.quarantined)

		if remaining <= 0 {
			e.log.Debugf("All messages synced, waiting for new ones...")
			e.statusf("All messages synced")
			if !e.wait(ctx, e.cfg.IdleDelay) {
				return
			}
		} else {
			if !e.wait(ctx, e.cfg.BatchDelay) {
				return
			}
		}
	}
}

// syncBatch submits up to BatchSize unsynced events in order. It returns the
// number of events acknowledged and marked synced; the first failure stops
// the batch. An event is either fully marked synced or left untouched.
func (e *Engine) syncBatch(ctx context.Context) (int, error) {
	unsynced, err := e.events.GetUnsynced()
	if err != nil {
		return 0, err
	}

	batch := make([]*store.Event, 0, e.cfg.BatchSize)
	for _, ev := range unsynced {
		if e.quarantined[ev.ID] {
			continue
		}
		batch = append(batch, ev)
		if len(batch) == e.cfg.BatchSize {
			break
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	e.log.Debugf("Found %d unsynced messages", len(batch))

	synced := 0
	for _, ev := range batch {
		token, err := e.auth.GetToken(ctx)
		if err != nil {
			return synced, err
		}

		if err := e.client.Submit(ctx, token, api.SubmitRequestFromEvent(ev)); err != nil {
			e.noteRejection(ev, err)
			return synced, err
		}
		delete(e.rejects, ev.ID)

		if err := e.events.MarkSynced(ev.ID, time.Now().UnixMilli()); err != nil {
			return synced, err
		}
		synced++
		e.log.Debugf("Synced event %d", ev.ID)

		// Inter-request pacing keeps the server comfortable.
		if !e.wait(ctx, e.cfg.PacingDelay) {
			return synced, ctx.Err()
		}
	}

	return synced, nil
}

// noteRejection tracks client-error rejections per event. After
// MaxEventRejects of them the event is quarantined for the process lifetime
// so one poison record cannot stall the queue forever.
func (e *Engine) noteRejection(ev *store.Event, err error) {
	if Classify(err) != KindClientError {
		return
	}
	e.rejects[ev.ID]++
	if e.rejects[ev.ID] >= e.cfg.MaxEventRejects {
		e.quarantined[ev.ID] = true
		delete(e.rejects, ev.ID)
		e.log.Errorf("Quarantining event %d after %d rejections", ev.ID, e.cfg.MaxEventRejects)
		e.statusf("Quarantined event %d after repeated rejections", ev.ID)
	}
}

// wait sleeps for d or until cancellation; it reports whether the full wait
// elapsed. Every engine wait goes through here so stopping is observable
// within one suspension point.
func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *Engine) statusf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	select {
	case e.status <- msg:
	default:
	}
}
