package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"smsrelay-agent/internal/infra/logger"
)

// fileEntry is the JSONL wire form of a feed entry. Field names follow the
// provider export format.
type fileEntry struct {
	ProviderID *int64  `json:"providerId"`
	Phone      string  `json:"phoneNumber"`
	Body       string  `json:"body"`
	Timestamp  int64   `json:"smsTimestamp"`
	DateSent   *int64  `json:"dateSent"`
	Type       int     `json:"type"`
	ThreadID   *int64  `json:"threadId"`
	Person     *string `json:"person"`
}

// FileSource reads the provider feed from a newline-delimited JSON file.
// It stands in for the device message store on platforms without one.
type FileSource struct {
	path string
	log  logger.Logger
}

// NewFileSource creates a FileSource for the given JSONL file.
func NewFileSource(path string, log logger.Logger) *FileSource {
	return &FileSource{path: path, log: log.Sub("Feed")}
}

// ListEvents reads the full feed, newest first. A missing file is an empty
// feed; unparseable lines are skipped.
func (s *FileSource) ListEvents(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var fe fileEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			s.log.Warnf("Skipping malformed feed line %d: %v", line, err)
			continue
		}
		entries = append(entries, Entry{
			ProviderID:   fe.ProviderID,
			Counterparty: fe.Phone,
			Body:         fe.Body,
			OriginTS:     fe.Timestamp,
			SentTS:       fe.DateSent,
			Kind:         KindFromProviderType(fe.Type),
			ThreadKey:    fe.ThreadID,
			DisplayName:  fe.Person,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	// Provider feeds hand back newest-first; enforce that ordering here so
	// the reconciler's short-circuit walk holds for hand-edited files too.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OriginTS > entries[j].OriginTS
	})
	return entries, nil
}
