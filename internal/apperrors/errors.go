package apperrors

import (
	"errors"
)

var (
	// Client authentication failures. All three surface to the caller as one
	// generic authentication error; the audit trail keeps them apart.
	ErrUnknownClient      = errors.New("client not found")
	ErrInactiveClient     = errors.New("client is inactive")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrClientAlreadyExists = errors.New("client already exists")

	ErrTokenInvalid = errors.New("session token is invalid")
	ErrTokenExpired = errors.New("session token is expired")

	ErrResellerNotFound = errors.New("reseller not found")
	ErrResellerInactive = errors.New("reseller is inactive")

	// Ciphertext failed authentication or was sealed under a different
	// tenant key. Fatal for the request, never ignored.
	ErrIntegrity = errors.New("ciphertext integrity check failed")

	// Provider token exchange failed and no valid cached token remains.
	ErrUpstreamAuth = errors.New("upstream token exchange failed")

	ErrBearerNotCached = errors.New("no cached bearer token")

	// Retriever claim denied because another device owns the number.
	// A normal denied-status outcome, not a failure.
	ErrAssignmentConflict = errors.New("fax number is assigned to another device")
	ErrNotAssignmentOwner = errors.New("device does not own the assignment")
	ErrNumberNotInDomain  = errors.New("fax number does not belong to the client")
)
