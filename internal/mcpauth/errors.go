package mcpauth

import (
	"errors"
	"fmt"
)

// Sentinel errors for the auth flow
var (
	// ErrVerifierMissing is returned when the PKCE code verifier is gone from
	// storage. Unlike most storage misses this one is fatal to the in-progress
	// exchange: the authorization code can never be redeemed without it.
	ErrVerifierMissing = errors.New("code verifier not found: auth flow corrupted or timed out")

	// ErrStateNotFound is returned when a callback carries a state token that
	// was never issued, has expired, or whose stored record is corrupt.
	ErrStateNotFound = errors.New("state not found or expired")

	// ErrNoRegistrationEndpoint is returned when the upstream requires a
	// registered client but does not offer dynamic client registration.
	ErrNoRegistrationEndpoint = errors.New("authorization server does not support dynamic client registration")
)

// Error codes surfaced to HTTP clients in the error envelope.
const (
	CodeAuthFailed       = "AUTH_FAILED"
	CodeInitError        = "INIT_ERROR"
	CodeAuthURLNotFound  = "AUTH_URL_NOT_FOUND"
	CodeInvalidAction    = "INVALID_ACTION"
	CodeLogoutError      = "LOGOUT_ERROR"
	CodeRefreshFailed    = "REFRESH_FAILED"
	CodeStatusCheckError = "STATUS_CHECK_ERROR"
)

// AuthError is the structured error carried inside an AuthResult and in JSON
// error envelopes. It never contains token material.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AuthResult is the outcome of an InitAuth call. Exactly one of the three
// shapes holds: authenticated (Success), needs-redirect (AuthURL set), or
// failed (Err set).
type AuthResult struct {
	Success bool       `json:"success"`
	AuthURL string     `json:"authUrl,omitempty"`
	Err     *AuthError `json:"error,omitempty"`
}
