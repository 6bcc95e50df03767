package token

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken covers bad signatures and structurally malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired means the signature checked out but the token is past its expiry.
	// Callers should route this into the refresh flow instead of rejecting outright.
	ErrTokenExpired = errors.New("token expired")
)

// ConfigError reports missing or malformed token configuration (unset secret,
// bad lifetime string). It is fatal at startup or first use and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "token config: " + e.Reason
}

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}
