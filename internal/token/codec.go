package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of a short-lived access token. Immutable once
// issued; there is no server-side revocation for access tokens, they simply
// age out.
type AccessClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. TokenID is an opaque
// identifier that lets a revocation list invalidate one refresh token
// without touching the rest.
type RefreshClaims struct {
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id"`
	jwt.RegisteredClaims
}

// Config holds the signing material and lifetimes for the codec. Built once
// at process start and passed in explicitly; the codec never reads
// environment state on its own.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

// Codec mints and verifies HS256-signed tokens. It holds no mutable state
// and is safe for concurrent use.
type Codec struct {
	config Config
}

var validMethods = []string{jwt.SigningMethodHS256.Alg()}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.config.AccessTTL
}

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration {
	return c.config.RefreshTTL
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, configErrorf("signing secret is not set")
	}
	if cfg.AccessTTL <= 0 {
		return nil, configErrorf("access token lifetime must be positive, got %s", cfg.AccessTTL)
	}
	if cfg.RefreshTTL <= 0 {
		return nil, configErrorf("refresh token lifetime must be positive, got %s", cfg.RefreshTTL)
	}
	return &Codec{config: cfg}, nil
}

// MintAccess issues a signed access token for the given identity. The role
// is coerced to a string regardless of how the caller models it.
func (c *Codec) MintAccess(userID, email string, role interface{}) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID,
		Email:  email,
		Role:   coerceRole(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.AccessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// MintRefresh issues a signed refresh token carrying a caller-supplied token
// ID for later revocation.
func (c *Codec) MintRefresh(userID, tokenID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID:  userID,
		TokenID: tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.RefreshTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccess checks signature and expiry and returns the embedded claims.
// Expired tokens are reported as ErrTokenExpired so the caller can prompt a
// refresh; everything else that fails verification is ErrInvalidToken.
func (c *Codec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (c *Codec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Codec) verify(tokenString string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.config.Secret, nil
	}, jwt.WithValidMethods(validMethods))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// DecodeUnverified extracts access claims without checking signature or
// expiry. Diagnostic use only (logging, support tooling); the result MUST
// never be used to authorize anything. Returns nil if the token cannot be
// parsed structurally.
func DecodeUnverified(tokenString string) *AccessClaims {
	claims := &AccessClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}

func coerceRole(role interface{}) string {
	switch v := role.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
