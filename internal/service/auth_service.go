package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authz-service/internal/ratelimit"
	"authz-service/internal/token"
)

var (
	// ErrRefreshTokenRevoked means the refresh token verified but its ID is
	// on the denylist, typically because it was already used once.
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
)

// RevocationStore is the denylist consulted and updated on every refresh.
// Revoke must atomically claim the token ID and report whether this caller
// won the claim; the rotation guarantee rests on that atomicity, not on a
// prior IsRevoked read.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (claimed bool, err error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// UserDirectory resolves the profile fields embedded in freshly minted
// access tokens. User persistence lives outside this service; callers plug
// in whatever backs their user records. A nil directory mints access tokens
// carrying only the user ID.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (email string, role string, err error)
}

// TokenPair is one issued access/refresh credential set.
type TokenPair struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

// AuthService ties the token codec, the refresh denylist, and the rate-limit
// evaluator into the request-admission operations exposed to handlers.
type AuthService struct {
	codec       *token.Codec
	revocations RevocationStore
	limiter     *ratelimit.Evaluator
	users       UserDirectory
	audit       AuditPublisher
	logger      *zap.Logger
}

func NewAuthService(
	codec *token.Codec,
	revocations RevocationStore,
	limiter *ratelimit.Evaluator,
	users UserDirectory,
	audit AuditPublisher,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		codec:       codec,
		revocations: revocations,
		limiter:     limiter,
		users:       users,
		audit:       audit,
		logger:      logger,
	}
}

// IssueTokens mints a fresh access/refresh pair for an authenticated
// identity. Authentication itself (password/OAuth) happened upstream; this
// is the issuance step only.
func (s *AuthService) IssueTokens(ctx context.Context, userID, email string, role interface{}) (*TokenPair, error) {
	access, err := s.codec.MintAccess(userID, email, role)
	if err != nil {
		return nil, err
	}

	tokenID := uuid.NewString()
	refresh, err := s.codec.MintRefresh(userID, tokenID)
	if err != nil {
		return nil, err
	}

	s.publishAudit(ctx, AuditEvent{
		Type:      EventTokenIssued,
		UserID:    userID,
		TokenID:   tokenID,
		Timestamp: time.Now().UTC(),
	})

	return &TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: time.Now().Add(s.codec.AccessTTL()),
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair and rotates it: the
// presented token's ID lands on the denylist, so a second use of the same
// token fails with ErrRefreshTokenRevoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		s.publishAudit(ctx, AuditEvent{
			Type:      EventTokenRejected,
			Reason:    "refresh_verification_failed",
			Timestamp: time.Now().UTC(),
		})
		return nil, err
	}

	// Fast path for tokens already known to be burned; the authoritative
	// single-use decision is the atomic claim below.
	revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("revocation check failed: %w", err)
	}
	if revoked {
		return nil, s.rejectReusedRefresh(ctx, claims.UserID, claims.TokenID)
	}

	expiresAt := time.Now().Add(s.codec.RefreshTTL())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	claimed, err := s.revocations.Revoke(ctx, claims.TokenID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !claimed {
		// Lost the claim to a concurrent refresh of the same token.
		return nil, s.rejectReusedRefresh(ctx, claims.UserID, claims.TokenID)
	}

	email, role := "", ""
	if s.users != nil {
		email, role, err = s.users.Lookup(ctx, claims.UserID)
		if err != nil {
			return nil, fmt.Errorf("user lookup failed: %w", err)
		}
	}

	pair, err := s.IssueTokens(ctx, claims.UserID, email, role)
	if err != nil {
		return nil, err
	}

	s.publishAudit(ctx, AuditEvent{
		Type:      EventTokenRefreshed,
		UserID:    claims.UserID,
		TokenID:   claims.TokenID,
		Timestamp: time.Now().UTC(),
	})
	return pair, nil
}

func (s *AuthService) rejectReusedRefresh(ctx context.Context, userID, tokenID string) error {
	s.publishAudit(ctx, AuditEvent{
		Type:      EventTokenRejected,
		UserID:    userID,
		TokenID:   tokenID,
		Reason:    "refresh_token_revoked",
		Timestamp: time.Now().UTC(),
	})
	return ErrRefreshTokenRevoked
}

// VerifyAccess validates an access token and returns its claims.
func (s *AuthService) VerifyAccess(tokenString string) (*token.AccessClaims, error) {
	return s.codec.VerifyAccess(tokenString)
}

// Authorize is the full admission path: verify the access token, then count
// the request against the verified identity's quota tiers. The rate-limit
// result is returned as a value; only store unavailability is an error on
// that leg.
func (s *AuthService) Authorize(ctx context.Context, accessToken string, windows ...ratelimit.Window) (*token.AccessClaims, ratelimit.Result, error) {
	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		s.publishAudit(ctx, AuditEvent{
			Type:      EventTokenRejected,
			Reason:    "access_verification_failed",
			Timestamp: time.Now().UTC(),
		})
		return nil, ratelimit.Result{}, err
	}

	result, err := s.limiter.CheckAll(ctx, claims.UserID, windows...)
	if err != nil {
		return claims, ratelimit.Result{}, err
	}

	if !result.Allowed {
		s.publishAudit(ctx, AuditEvent{
			Type:      EventRateLimited,
			UserID:    claims.UserID,
			Window:    string(result.Window),
			Timestamp: time.Now().UTC(),
		})
	}
	return claims, result, nil
}

// CheckRateLimit counts one request for an arbitrary identity string across
// the given window tiers. Exposed for callers that rate-limit before or
// without token verification (by IP, by API key).
func (s *AuthService) CheckRateLimit(ctx context.Context, identity string, windows ...ratelimit.Window) (ratelimit.Result, error) {
	return s.limiter.CheckAll(ctx, identity, windows...)
}
