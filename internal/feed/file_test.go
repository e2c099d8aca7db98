package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsrelay-agent/internal/infra/logger"
)

func writeFeed(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))
	return path
}

func TestFileSource_ListEvents(t *testing.T) {
	path := writeFeed(t, `{"providerId":1,"phoneNumber":"+15550001","body":"first","smsTimestamp":1000,"type":1}
{"providerId":2,"phoneNumber":"+15550002","body":"second","smsTimestamp":3000,"type":2,"threadId":7,"person":"Bob"}
{"providerId":3,"phoneNumber":"+15550003","body":"third","smsTimestamp":2000,"type":1,"dateSent":1900}
`)
	source := NewFileSource(path, logger.Nop())

	entries, err := source.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first regardless of file order.
	assert.Equal(t, int64(3000), entries[0].OriginTS)
	assert.Equal(t, int64(2000), entries[1].OriginTS)
	assert.Equal(t, int64(1000), entries[2].OriginTS)

	assert.Equal(t, "+15550002", entries[0].Counterparty)
	assert.Equal(t, KindSent, entries[0].Kind)
	require.NotNil(t, entries[0].ThreadKey)
	assert.Equal(t, int64(7), *entries[0].ThreadKey)
	require.NotNil(t, entries[0].DisplayName)
	assert.Equal(t, "Bob", *entries[0].DisplayName)

	require.NotNil(t, entries[1].SentTS)
	assert.Equal(t, int64(1900), *entries[1].SentTS)
	assert.Nil(t, entries[2].SentTS)
}

func TestFileSource_MissingFileIsEmptyFeed(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "nope.jsonl"), logger.Nop())

	entries, err := source.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSource_SkipsMalformedLines(t *testing.T) {
	path := writeFeed(t, `{"providerId":1,"phoneNumber":"+15550001","body":"ok","smsTimestamp":1000,"type":1}
not json at all

{"providerId":2,"phoneNumber":"+15550002","body":"also ok","smsTimestamp":2000,"type":1}
`)
	source := NewFileSource(path, logger.Nop())

	entries, err := source.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "also ok", entries[0].Body)
	assert.Equal(t, "ok", entries[1].Body)
}

func TestFileSource_NilProviderID(t *testing.T) {
	path := writeFeed(t, `{"phoneNumber":"+15550001","body":"no id","smsTimestamp":1000,"type":1}
`)
	source := NewFileSource(path, logger.Nop())

	entries, err := source.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].ProviderID)
}

func TestFileSource_CanceledContext(t *testing.T) {
	source := NewFileSource(writeFeed(t, ""), logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := source.ListEvents(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKindFromProviderType(t *testing.T) {
	assert.Equal(t, KindReceived, KindFromProviderType(1))
	assert.Equal(t, KindSent, KindFromProviderType(2))
	assert.Equal(t, KindDraft, KindFromProviderType(3))
	assert.Equal(t, KindOutbox, KindFromProviderType(4))
	assert.Equal(t, KindFailed, KindFromProviderType(5))
	assert.Equal(t, KindQueued, KindFromProviderType(6))
	assert.Equal(t, Kind("UNKNOWN (99)"), KindFromProviderType(99))
}
