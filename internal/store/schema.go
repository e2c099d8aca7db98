package store

// schema contains all agent table definitions.
//
// Tables:
//   - sms_events      - captured message events with sync bookkeeping
//   - sms_credentials - stored login credentials and the last issued token
const schema = `
-- ============================================================
-- Captured message events
-- ============================================================
CREATE TABLE IF NOT EXISTS sms_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider_id INTEGER,
    origin_ts INTEGER NOT NULL,
    captured_ts INTEGER NOT NULL,
    counterparty TEXT NOT NULL,
    body TEXT NOT NULL,
    event_type TEXT NOT NULL,
    thread_key INTEGER,
    sent_ts INTEGER,
    display_name TEXT,
    synced_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sms_events_provider_id
    ON sms_events(provider_id) WHERE provider_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_sms_events_unsynced
    ON sms_events(origin_ts) WHERE synced_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_sms_events_dedup
    ON sms_events(counterparty, origin_ts);

-- ============================================================
-- Credentials
-- ============================================================
CREATE TABLE IF NOT EXISTS sms_credentials (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`
