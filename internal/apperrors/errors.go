package apperrors

import (
	"errors"
)

var (
	// Issuer rejected the authorization code or returned a malformed response
	ErrExchangeFailed = errors.New("token exchange failed")

	// No usable token on file; the authorization flow has to be run again
	ErrUnauthorized = errors.New("no usable token, authorization required")

	// Proactive refresh failed. Swallowed unless the refresh policy disables fallback
	ErrRefreshFailed = errors.New("token refresh failed")

	// Token store could not read or write the record
	ErrPersistenceFailed = errors.New("token persistence failed")

	// Token store is empty
	ErrTokenNotFound = errors.New("token not found")

	// OAuth state parameter is missing, forged or expired
	ErrInvalidState = errors.New("oauth state is invalid")
)
