package providers

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTServiceAccount mints a short-lived signed JWT from a service-account
// private key and exchanges it for a bearer token, caching the result until
// shortly before it expires. This is the auth lifecycle spec.md names for
// vendors that authenticate service accounts via a signed assertion (the
// Google Vertex AI / OIDC-federation pattern) rather than a static key.
type JWTServiceAccount struct {
	issuer    string
	subject   string
	audience  string
	key       *rsa.PrivateKey
	keyID     string
	ttl       time.Duration
	exchanger func(ctx context.Context, assertion string) (token string, expiresIn time.Duration, err error)

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewJWTServiceAccount constructs a minter. exchanger performs the actual
// network call trading the signed assertion for a bearer token (vendor
// specific); it is injected so this type stays vendor-agnostic.
func NewJWTServiceAccount(issuer, subject, audience string, key *rsa.PrivateKey, keyID string, ttl time.Duration,
	exchanger func(ctx context.Context, assertion string) (string, time.Duration, error)) *JWTServiceAccount {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWTServiceAccount{issuer: issuer, subject: subject, audience: audience, key: key,
		keyID: keyID, ttl: ttl, exchanger: exchanger}
}

// Token returns a valid bearer token, minting and exchanging a fresh
// assertion if the cached one has expired or is within 30s of expiring.
func (j *JWTServiceAccount) Token(ctx context.Context) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cached != "" && time.Now().Add(30*time.Second).Before(j.expiresAt) {
		return j.cached, nil
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   j.subject,
		Audience:  jwt.ClaimStrings{j.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = j.keyID

	assertion, err := token.SignedString(j.key)
	if err != nil {
		return "", fmt.Errorf("jwtauth: sign assertion: %w", err)
	}

	bearer, expiresIn, err := j.exchanger(ctx, assertion)
	if err != nil {
		return "", fmt.Errorf("jwtauth: exchange assertion: %w", err)
	}

	j.cached = bearer
	j.expiresAt = time.Now().Add(expiresIn)
	return bearer, nil
}
