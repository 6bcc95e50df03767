package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"authz-service/internal/ratelimit"
	"authz-service/internal/service"
	"authz-service/internal/token"
	"authz-service/internal/util"
)

// AuthHandler handles HTTP requests for token operations
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// IssueTokensRequest carries the identity minted into a fresh token pair.
// Authentication happened upstream; this endpoint is for trusted internal
// callers only and must not be exposed publicly.
type IssueTokensRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// RefreshRequest carries the refresh token being exchanged.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterRoutes registers all token routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/tokens", func(r chi.Router) {
		// Issuance and refresh run before any token is verified, so the
		// quota identity is the caller address.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(h.authService, h.logger, ratelimit.WindowPerMinute, ratelimit.WindowPerHour))
			r.Post("/", h.IssueTokens)
			r.Post("/refresh", h.Refresh)
		})

		// Verified routes are limited per user ID.
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(h.authService, h.logger))
			r.Use(RateLimit(h.authService, h.logger, ratelimit.WindowPerMinute, ratelimit.WindowPerHour))
			r.Get("/introspect", h.Introspect)
		})
	})
}

// IssueTokens mints an access/refresh pair for an already-authenticated
// identity.
func (h *AuthHandler) IssueTokens(w http.ResponseWriter, r *http.Request) {
	var req IssueTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if util.ContainsSuspicious(req.UserID) || util.ContainsSuspicious(req.Email) {
		h.respondWithError(w, http.StatusBadRequest, errors.New("identity contains disallowed characters"), "Invalid request")
		return
	}
	req.UserID = util.SanitizeInput(req.UserID)
	req.Email = util.SanitizeInput(req.Email)
	req.Role = util.SanitizeInput(req.Role)
	if req.UserID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("user_id is required"), "Invalid request")
		return
	}

	pair, err := h.authService.IssueTokens(r.Context(), req.UserID, req.Email, req.Role)
	if err != nil {
		h.logger.Error("failed to issue tokens", zap.String("user_id", req.UserID), zap.Error(err))
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to issue tokens")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    pair,
		Message: "Tokens issued",
	})
}

// Refresh exchanges a refresh token for a new pair, rotating the old one.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("refresh_token is required"), "Invalid request")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to refresh tokens")
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    pair,
		Message: "Tokens refreshed",
	})
}

// Introspect returns the verified claims of the presented access token.
func (h *AuthHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, errors.New("missing claims"), "Unauthorized")
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"user_id":    claims.UserID,
			"email":      claims.Email,
			"role":       claims.Role,
			"expires_at": claims.ExpiresAt,
		},
	})
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.respondWithJSON(w, statusCode, Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	})
}

func (h *AuthHandler) getStatusCode(err error) int {
	var cfgErr *token.ConfigError
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, token.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrRefreshTokenRevoked):
		return http.StatusUnauthorized
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
