package engine

import "errors"

// Failure taxonomy. Every operation is all-or-nothing: a returned error
// means no state was mutated. Callers match with errors.Is.
var (
	// Authorization
	ErrNotOwner    = errors.New("caller is not owner")
	ErrNotProvider = errors.New("caller is not a provider")

	// Availability
	ErrPaused = errors.New("engine is paused")

	// RateLimit
	ErrCooldownActive = errors.New("cooldown not elapsed")

	// Lifecycle
	ErrBatchOpen      = errors.New("a batch is already open")
	ErrBatchNotOpen   = errors.New("no batch is open")
	ErrInvalidBatchID = errors.New("batch id does not match current batch")

	// Precondition
	ErrProviderExists  = errors.New("address already has provider role")
	ErrProviderMissing = errors.New("address lacks provider role")
	ErrPauseUnchanged  = errors.New("pause flag already has that value")
	ErrEmptyAggregate  = errors.New("no orders contributed to both totals")

	// Protocol
	ErrUnknownRequest = errors.New("unknown decryption request")
	ErrReplayAttempt  = errors.New("decryption request already processed")

	// Consistency
	ErrStateMismatch = errors.New("aggregate state changed since request")

	// Integrity
	ErrInvalidProof = errors.New("decryption proof verification failed")

	// Read surface
	ErrOrderNotFound = errors.New("order not found")
)
