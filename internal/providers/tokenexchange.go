package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenExchange wraps the OAuth 2.0 token-exchange grant (RFC 8693): an
// existing subject token (e.g. a workload identity token mounted into the
// process) is exchanged for a vendor-scoped access token. Distinct from
// OAuthRefresher because there is no long-lived refresh token in play — the
// subject token is re-read fresh on every exchange, matching how a platform
// rotates workload identity tokens out from under the process.
type TokenExchange struct {
	subjectTokenSource func(ctx context.Context) (string, error)
	exchange           func(ctx context.Context, subjectToken string) (accessToken string, expiresIn time.Duration, err error)

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewTokenExchange(subjectTokenSource func(ctx context.Context) (string, error),
	exchange func(ctx context.Context, subjectToken string) (string, time.Duration, error)) *TokenExchange {
	return &TokenExchange{subjectTokenSource: subjectTokenSource, exchange: exchange}
}

// AccessToken returns a cached access token, re-exchanging once it's within
// 60s of expiring.
func (t *TokenExchange) AccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && time.Now().Add(60*time.Second).Before(t.expiresAt) {
		return t.accessToken, nil
	}

	subjectToken, err := t.subjectTokenSource(ctx)
	if err != nil {
		return "", fmt.Errorf("tokenexchange: read subject token: %w", err)
	}
	access, expiresIn, err := t.exchange(ctx, subjectToken)
	if err != nil {
		return "", fmt.Errorf("tokenexchange: exchange: %w", err)
	}
	t.accessToken = access
	t.expiresAt = time.Now().Add(expiresIn)
	return access, nil
}
