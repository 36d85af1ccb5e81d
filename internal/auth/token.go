// ABOUTME: JWT issue and verify for bearer tokens and API keys
// ABOUTME: Uses HS256 signing with a configurable secret, stateless verification

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/chat-gateway/internal/store"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// MinSecretLength is the minimum JWT secret length in bytes.
const MinSecretLength = 32

// Token type claim values. Bearer auth accepts only access tokens; refresh
// tokens are good for /api/auth/refresh only; api_key tokens are verified by
// store lookup, never by signature alone.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeAPIKey  = "api_key"
)

// Claims is the self-contained claim set carried by every issued token.
// Verification does not consult the store, so Username/Email/Role may be
// stale relative to later principal updates; callers re-check is_active.
type Claims struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed, time-bounded tokens. There is no
// revocation list: rotating the secret is the only global invalidation.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	apiKeyTTL  time.Duration
}

// NewCodec creates a token codec. The secret must be at least
// MinSecretLength bytes.
func NewCodec(secret []byte, accessTTL, refreshTTL, apiKeyTTL time.Duration) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	return &Codec{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		apiKeyTTL:  apiKeyTTL,
	}, nil
}

// IssueSessionToken creates a short-lived access token for a principal.
func (c *Codec) IssueSessionToken(p *store.Principal) (string, time.Time, error) {
	return c.issue(p, TokenTypeAccess, c.accessTTL)
}

// IssueRefreshToken creates a refresh token for a principal. It is accepted
// only by VerifyRefresh, never as a bearer credential.
func (c *Codec) IssueRefreshToken(p *store.Principal) (string, time.Time, error) {
	return c.issue(p, TokenTypeRefresh, c.refreshTTL)
}

// IssueAPIKey creates a long-lived API key for a principal. The caller
// persists it onto the principal record; verification happens by store
// lookup rather than signature decoding.
func (c *Codec) IssueAPIKey(principalID string) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: TokenTypeAPIKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.apiKeyTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// issue signs a claim set snapshotting the principal's identity fields.
func (c *Codec) issue(p *store.Principal, tokenType string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Username:  p.Username,
		Email:     p.Email,
		Role:      p.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify validates a bearer token and returns its claims. Only access
// tokens pass; refresh and api_key typed tokens are rejected as invalid.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims, err := c.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.TokenType)
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (c *Codec) VerifyRefresh(tokenString string) (*Claims, error) {
	claims, err := c.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.TokenType)
	}
	return claims, nil
}

// parse verifies the signature and expiry of any token issued by this codec.
func (c *Codec) parse(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	return &claims, nil
}
