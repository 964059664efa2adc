package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OAuthRefresher wraps a refresh-token exchange behind a cached
// access-token accessor. Unlike JWTServiceAccount (which mints its own
// signed assertion), this lifecycle starts from a long-lived refresh token
// issued out of band (an interactive OAuth consent flow) and is generic
// across vendors — the actual token endpoint call is injected so no vendor
// name is hardcoded here, per spec.md's instruction to model this as a
// decorator rather than one hardcoded integration.
type OAuthRefresher struct {
	refreshToken string
	refresh      func(ctx context.Context, refreshToken string) (accessToken string, newRefreshToken string, expiresIn time.Duration, err error)

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewOAuthRefresher constructs a refresher seeded with an initial refresh
// token (loaded from the provider's credentials_file, never the TOML
// config itself).
func NewOAuthRefresher(refreshToken string, refresh func(ctx context.Context, refreshToken string) (string, string, time.Duration, error)) *OAuthRefresher {
	return &OAuthRefresher{refreshToken: refreshToken, refresh: refresh}
}

// AccessToken returns a valid access token, refreshing if the cached one is
// within 120s of expiring. A successful refresh rotates the in-memory refresh
// token if the vendor issued a new one.
func (o *OAuthRefresher) AccessToken(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.accessToken != "" && time.Now().Add(120*time.Second).Before(o.expiresAt) {
		return o.accessToken, nil
	}

	access, newRefresh, expiresIn, err := o.refresh(ctx, o.refreshToken)
	if err != nil {
		return "", fmt.Errorf("oauth: refresh access token: %w", err)
	}
	if newRefresh != "" {
		o.refreshToken = newRefresh
	}
	o.accessToken = access
	o.expiresAt = time.Now().Add(expiresIn)
	return access, nil
}
