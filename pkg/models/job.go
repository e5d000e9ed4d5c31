package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutionJob represents a queued request to execute an intent's plan
type ExecutionJob struct {
	IntentID common.Hash
	Caller   common.Address
	Steps    []ExecutionStep
}

// RetryJob represents a job that needs to be retried
type RetryJob struct {
	Job         ExecutionJob
	RetryCount  int
	NextAttempt time.Time
	ErrorType   string // Type of error that caused the retry
}
