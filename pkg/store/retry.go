package store

import (
	"math/rand"
	"strings"
	"time"
)

// retryConfig controls backoff for contended SQLite writes.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// isTransientSQLiteErr reports whether err is a transient SQLite failure
// worth retrying. With several workers and the poll loop sharing one
// database file, short BUSY/LOCKED windows are expected under WAL.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",
		"(6)",
		"(522)",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOp runs fn, retrying transient SQLite errors with jittered
// exponential backoff. Non-transient errors return immediately.
func retryOp(cfg retryConfig, fn func() error) error {
	var err error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoffDelay(cfg, attempt))
		}
		err = fn()
		if err == nil || !isTransientSQLiteErr(err) {
			return err
		}
	}
	return err
}

// backoffDelay doubles the base delay per attempt, caps it at maxDelay,
// and adds up to one baseDelay of jitter.
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt-1)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}
