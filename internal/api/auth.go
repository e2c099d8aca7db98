package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"smsrelay-agent/internal/infra/logger"
	"smsrelay-agent/internal/store"
)

// defaultCacheTTL is used when the login exchange does not state a validity
// window and the token itself carries no exp claim.
const defaultCacheTTL = 5 * time.Minute

// Authenticator performs the login exchange. Satisfied by *Client.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*AuthResponse, error)
}

// CredentialSource supplies stored credentials and records issued tokens.
// Satisfied by *store.CredentialStore.
type CredentialSource interface {
	StoredCredentials() (*store.Credentials, error)
	SaveToken(token, refreshToken string, expiresAt int64) error
}

// AuthCache caches the bearer token between submissions so the sync loop
// does not re-authenticate on every request. Concurrent callers during an
// exchange block on the cache lock and then see the freshly cached token,
// so at most one exchange is ever in flight.
type AuthCache struct {
	client Authenticator
	creds  CredentialSource
	ttl    time.Duration
	log    logger.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAuthCache creates an AuthCache. A zero ttl selects the 5 minute default.
func NewAuthCache(client Authenticator, creds CredentialSource, ttl time.Duration, log logger.Logger) *AuthCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &AuthCache{
		client: client,
		creds:  creds,
		ttl:    ttl,
		log:    log.Sub("AuthCache"),
	}
}

// GetToken returns the cached token while it is fresh, otherwise performs a
// blocking login exchange and caches the result.
func (a *AuthCache) GetToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if a.token != "" && now.Before(a.expiresAt) {
		a.log.Debugf("Using cached token")
		return a.token, nil
	}

	creds, err := a.creds.StoredCredentials()
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}
	if creds == nil {
		return "", fmt.Errorf("no stored credentials")
	}

	a.log.Debugf("Authenticating with server...")
	resp, err := a.client.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		return "", err
	}

	ttl := a.ttl
	if resp.ExpiresIn > 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second
	} else if exp, ok := tokenExpiry(resp.Token); ok {
		if until := time.Until(exp); until > 0 {
			ttl = until
		}
	}

	a.token = resp.Token
	a.expiresAt = now.Add(ttl)
	a.log.Infof("Token cached for %s", ttl.Round(time.Second))

	if err := a.creds.SaveToken(resp.Token, resp.RefreshToken, a.expiresAt.UnixMilli()); err != nil {
		a.log.Warnf("Failed to persist token: %v", err)
	}

	return a.token, nil
}

// Invalidate discards the cached token; the next GetToken re-authenticates.
// Called on an authorization-rejected response from the remote.
func (a *AuthCache) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expiresAt = time.Time{}
	a.log.Debugf("Token cache cleared")
}

// tokenExpiry extracts the exp claim from a JWT without verifying it. The
// server remains authoritative; this only shapes client-side cache TTL.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
