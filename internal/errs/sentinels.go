// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across relay/ledger/store layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotConnected indicates an operation that needs the relay was
	// attempted while the transport is down or not yet registered.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidPayload indicates a malformed QR payload or wire message.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrBadSignature indicates a transaction signature that does not
	// verify against its claimed public key.
	ErrBadSignature = errors.New("bad signature")

	// ErrUnauthorized indicates a failed payment confirmation. Retryable.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyApplied indicates a replayed transaction id; the ledger
	// treats the application as a no-op.
	ErrAlreadyApplied = errors.New("already applied")

	// ErrStatusRegression indicates an attempt to move a transaction
	// status backwards in its lifecycle.
	ErrStatusRegression = errors.New("status regression")
)
