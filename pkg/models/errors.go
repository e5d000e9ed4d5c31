package models

import "errors"

// Sentinel errors shared across the ledger, roles, and orchestrator packages.
// Callers match them with errors.Is after unwrapping.
var (
	// ErrInvalidInput rejects malformed registration input
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means no intent or executor exists for the given key
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists rejects a duplicate intent id
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnauthorized rejects a caller without the required role
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTransition rejects a move the lifecycle state machine forbids
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState rejects execution from a non-executable status
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyCompleted rejects completion of an already completed intent
	ErrAlreadyCompleted = errors.New("already completed")
	// ErrAlreadyExecutor rejects granting a role an identity already holds
	ErrAlreadyExecutor = errors.New("already an executor")
	// ErrBudgetExceeded rejects a plan whose estimated cost exceeds the
	// intent's declared cost estimate
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrSlippageExceeded fails a swap whose realized output fell below
	// the step's minimum output
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrVenueSuspended fails execution against a venue whose circuit
	// breaker is open
	ErrVenueSuspended = errors.New("venue suspended")
)
