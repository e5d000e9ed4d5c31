package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FailureKind classifies why an execution attempt failed
type FailureKind string

const (
	// FailureNamed is a recognized business rejection from a venue or rule
	FailureNamed FailureKind = "named"
	// FailureUnknown is an unexpected infrastructure or venue error
	FailureUnknown FailureKind = "unknown"
)

// ExecutionReceipt records the outcome of a single execution attempt
type ExecutionReceipt struct {
	AttemptID       string        `json:"attempt_id"`
	IntentID        common.Hash   `json:"intent_id"`
	Attempt         uint64        `json:"attempt"`
	Success         bool          `json:"success"`
	TotalOutput     *big.Int      `json:"total_output,omitempty"`
	ResourceAtStart uint64        `json:"resource_at_start"`
	ResourceAtEnd   uint64        `json:"resource_at_end"`
	ResourceUsed    uint64        `json:"resource_used"`
	Elapsed         time.Duration `json:"elapsed"`
	FailureKind     FailureKind   `json:"failure_kind,omitempty"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}
