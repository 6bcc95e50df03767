package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"authz-service/internal/client"
	"authz-service/internal/util"
)

const revokedTokenPrefix = "revoked_token:"

// RevocationStore is a denylist of refresh token IDs. Entries live only
// until the token they block would have expired anyway, so the list stays
// bounded by the refresh lifetime.
type RevocationStore struct {
	client *client.RedisClient
}

func NewRevocationStore(client *client.RedisClient) *RevocationStore {
	return &RevocationStore{client: client}
}

// Revoke claims a refresh token ID until expiresAt and reports whether this
// call was the one that claimed it. The claim is a single SETNX, so when
// several service instances race on the same token exactly one observes
// claimed=true. Revoking an already expired token is a no-op that counts as
// claimed.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return true, nil
	}

	claimed, err := s.client.SetNX(ctx, revokedTokenPrefix+tokenID, "revoked", ttl)
	if err != nil {
		util.Error("Failed to revoke refresh token",
			zap.String("token_id", tokenID),
			zap.Error(err))
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	util.Debug("Refresh token revocation attempted",
		zap.String("token_id", tokenID),
		zap.Bool("claimed", claimed),
		zap.Duration("ttl", ttl))
	return claimed, nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := s.client.Exists(ctx, revokedTokenPrefix+tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to check refresh token revocation: %w", err)
	}
	return revoked, nil
}
