package store

import (
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// Credential storage keys.
const (
	credKeyUsername     = "username"
	credKeyPassword     = "password"
	credKeyToken        = "token"
	credKeyRefreshToken = "refresh_token"
	credKeyTokenExpiry  = "token_expiry"
)

// Credentials is a stored username/password pair.
type Credentials struct {
	Username string
	Password string
}

// CredentialStore persists login credentials and the most recently issued
// token. At-rest encryption of the backing database is an external concern.
type CredentialStore struct {
	store *Store
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(s *Store) *CredentialStore {
	return &CredentialStore{store: s}
}

func (s *CredentialStore) put(key, value string) error {
	_, err := s.store.Exec(`
		INSERT INTO sms_credentials (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	return storageErr("save credential", err)
}

func (s *CredentialStore) get(key string) (string, bool, error) {
	var value string
	err := s.store.QueryRow(`
		SELECT value FROM sms_credentials WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("read credential", err)
	}
	return value, true, nil
}

// StoredCredentials returns the saved username/password pair, or nil when
// no credentials have been stored yet.
func (s *CredentialStore) StoredCredentials() (*Credentials, error) {
	username, okU, err := s.get(credKeyUsername)
	if err != nil {
		return nil, err
	}
	password, okP, err := s.get(credKeyPassword)
	if err != nil {
		return nil, err
	}
	if !okU || !okP {
		return nil, nil
	}
	return &Credentials{Username: username, Password: password}, nil
}

// SaveCredentials stores a username/password pair.
func (s *CredentialStore) SaveCredentials(username, password string) error {
	if err := s.put(credKeyUsername, username); err != nil {
		return err
	}
	return s.put(credKeyPassword, password)
}

// SaveToken stores the latest issued token, its optional refresh token, and
// its expiry timestamp (ms since epoch).
func (s *CredentialStore) SaveToken(token, refreshToken string, expiresAt int64) error {
	if err := s.put(credKeyToken, token); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := s.put(credKeyRefreshToken, refreshToken); err != nil {
			return err
		}
	}
	return s.put(credKeyTokenExpiry, strconv.FormatInt(expiresAt, 10))
}

// ClearAll removes all stored credentials and tokens.
func (s *CredentialStore) ClearAll() error {
	_, err := s.store.Exec(`DELETE FROM sms_credentials`)
	return storageErr("clear credentials", err)
}
