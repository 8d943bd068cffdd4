// Package mcpauth provides a minimal bearer-token source for the HTTP
// transport's Authorization header. Full OAuth2 authorization-code flows
// are out of the core's scope (spec §1 Non-goals: "no TLS/HTTP internals");
// this package only covers the common case of a pre-provisioned HTTP MCP
// server that accepts a short-lived bearer token the client mints itself,
// wrapped as an oauth2.TokenSource so it composes with net/http clients the
// same way a full OAuth2 flow would.
package mcpauth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// BearerMinter signs short-lived HS256 JWTs and exposes them as an
// oauth2.TokenSource for use with an *http.Client built via
// oauth2.NewClient.
type BearerMinter struct {
	signingKey []byte
	issuer     string
	subject    string
	ttl        time.Duration
}

// NewBearerMinter returns a minter that signs tokens for subject, issued by
// issuer, valid for ttl.
func NewBearerMinter(signingKey []byte, issuer, subject string, ttl time.Duration) *BearerMinter {
	return &BearerMinter{signingKey: signingKey, issuer: issuer, subject: subject, ttl: ttl}
}

// Token implements oauth2.TokenSource by minting a fresh signed JWT.
func (m *BearerMinter) Token() (*oauth2.Token, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": m.issuer,
		"sub": m.subject,
		"iat": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.signingKey)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      now.Add(m.ttl),
	}, nil
}

// TokenSource wraps the minter in oauth2.ReuseTokenSource so callers get a
// fresh token only once the previous one is within its expiry skew.
func (m *BearerMinter) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, m)
}

// AuthHeader mints a token and returns the literal "Authorization" header
// value ("Bearer <token>"), for ServerConfigBuilder.WithHeader.
func (m *BearerMinter) AuthHeader() (string, error) {
	tok, err := m.Token()
	if err != nil {
		return "", err
	}
	return "Bearer " + tok.AccessToken, nil
}
