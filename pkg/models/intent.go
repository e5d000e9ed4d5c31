package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IntentStatus represents the lifecycle state of an intent
type IntentStatus string

const (
	// StatusPending is the initial state of a registered intent
	StatusPending IntentStatus = "pending"
	// StatusParsed means the description was parsed into an execution plan
	StatusParsed IntentStatus = "parsed"
	// StatusExecuting means an execution attempt is in progress
	StatusExecuting IntentStatus = "executing"
	// StatusCompleted means an execution attempt succeeded; terminal
	StatusCompleted IntentStatus = "completed"
	// StatusFailed means the last execution attempt failed; retryable
	StatusFailed IntentStatus = "failed"
	// StatusCancelled means the owner withdrew the intent; terminal
	StatusCancelled IntentStatus = "cancelled"
)

// ValidStatus reports whether s is one of the defined lifecycle states
func ValidStatus(s IntentStatus) bool {
	switch s {
	case StatusPending, StatusParsed, StatusExecuting, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions
func Terminal(s IntentStatus) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions is the allowed move set of the lifecycle state machine.
// Completed and Cancelled have no outgoing edges.
var transitions = map[IntentStatus][]IntentStatus{
	StatusPending:   {StatusParsed, StatusCancelled},
	StatusParsed:    {StatusExecuting, StatusCancelled},
	StatusExecuting: {StatusCompleted, StatusFailed},
	StatusFailed:    {StatusExecuting},
}

// CanTransition reports whether the lifecycle allows moving from one status to another
func CanTransition(from, to IntentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Intent represents a financial intent registered with the ledger
type Intent struct {
	ID                  common.Hash    `json:"id"`
	Owner               common.Address `json:"owner"`
	Description         string         `json:"description"`
	Payload             []byte         `json:"payload,omitempty"`
	Status              IntentStatus   `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	ExecutedAt          *time.Time     `json:"executed_at,omitempty"`
	CostEstimate        uint64         `json:"cost_estimate"`
	ExecutionCount      uint64         `json:"execution_count"`
	ExecutionCommitment common.Hash    `json:"execution_commitment"`
}

// Executable reports whether the orchestrator may start an attempt from the
// intent's current status
func (i *Intent) Executable() bool {
	return i.Status == StatusParsed || i.Status == StatusFailed
}
