package service

import (
	"go.uber.org/zap"

	"authz-service/internal/ratelimit"
	"authz-service/internal/token"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	codec       *token.Codec
	revocations RevocationStore
	limiter     *ratelimit.Evaluator
	users       UserDirectory
	audit       AuditPublisher
	logger      *zap.Logger
	authService *AuthService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	codec *token.Codec,
	revocations RevocationStore,
	limiter *ratelimit.Evaluator,
	users UserDirectory,
	audit AuditPublisher,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		codec:       codec,
		revocations: revocations,
		limiter:     limiter,
		users:       users,
		audit:       audit,
		logger:      logger,
	}
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.codec,
			f.revocations,
			f.limiter,
			f.users,
			f.audit,
			f.logger,
		)
	}
	return f.authService
}
