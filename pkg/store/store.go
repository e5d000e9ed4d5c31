// Package store persists the intent ledger in SQLite.
//
// WAL mode lets the poll loop, the execution workers, and the health server
// read and write the same database concurrently without a separate server
// process. Timestamps are stored as unix nanoseconds so listings order
// correctly and round-trip exactly.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/ledger"
	"github.com/intentline-hq/intentline/pkg/models"

	_ "modernc.org/sqlite"
)

// Store implements the ledger store on SQLite with WAL mode for concurrent
// access.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
// All store write operations go through it to absorb transient SQLite
// errors (BUSY, LOCKED, IOERR_SHORT_READ) under concurrent access.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS intents (
		id              TEXT PRIMARY KEY,
		owner           TEXT NOT NULL,
		description     TEXT NOT NULL,
		payload         BLOB,
		status          TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		executed_at     INTEGER,
		cost_estimate   INTEGER NOT NULL,
		execution_count INTEGER NOT NULL DEFAULT 0,
		commitment      TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_intents_owner ON intents(owner, created_at);
	CREATE INDEX IF NOT EXISTS idx_intents_status ON intents(status, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts a new intent. A duplicate id fails with ErrAlreadyExists.
func (s *Store) Put(intent models.Intent) error {
	err := retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO intents (id, owner, description, payload, status, created_at, executed_at, cost_estimate, execution_count, commitment)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			intent.ID.Hex(),
			intent.Owner.Hex(),
			intent.Description,
			intent.Payload,
			string(intent.Status),
			intent.CreatedAt.UnixNano(),
			encodeTime(intent.ExecutedAt),
			int64(intent.CostEstimate),
			int64(intent.ExecutionCount),
			intent.ExecutionCommitment.Hex(),
		)
		return err
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("intent %s: %w", intent.ID.Hex(), models.ErrAlreadyExists)
		}
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

// Get returns the intent with the given id.
func (s *Store) Get(id common.Hash) (models.Intent, error) {
	row := s.db.QueryRow(
		`SELECT id, owner, description, payload, status, created_at, executed_at, cost_estimate, execution_count, commitment
		 FROM intents WHERE id = ?`, id.Hex(),
	)
	intent, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Intent{}, fmt.Errorf("intent %s: %w", id.Hex(), models.ErrNotFound)
		}
		return models.Intent{}, fmt.Errorf("get intent: %w", err)
	}
	return intent, nil
}

// Update rewrites an existing intent. A missing id fails with ErrNotFound.
func (s *Store) Update(intent models.Intent) error {
	var affected int64
	err := retryOnContention(func() error {
		res, err := s.db.Exec(
			`UPDATE intents
			 SET owner = ?, description = ?, payload = ?, status = ?, created_at = ?, executed_at = ?, cost_estimate = ?, execution_count = ?, commitment = ?
			 WHERE id = ?`,
			intent.Owner.Hex(),
			intent.Description,
			intent.Payload,
			string(intent.Status),
			intent.CreatedAt.UnixNano(),
			encodeTime(intent.ExecutedAt),
			int64(intent.CostEstimate),
			int64(intent.ExecutionCount),
			intent.ExecutionCommitment.Hex(),
			intent.ID.Hex(),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("intent %s: %w", intent.ID.Hex(), models.ErrNotFound)
	}
	return nil
}

// ListByOwner returns every intent registered by owner, oldest first.
func (s *Store) ListByOwner(owner common.Address) ([]models.Intent, error) {
	return s.list(
		`SELECT id, owner, description, payload, status, created_at, executed_at, cost_estimate, execution_count, commitment
		 FROM intents WHERE owner = ? ORDER BY created_at, id`, owner.Hex(),
	)
}

// ListByStatus returns every intent in the given status, oldest first.
func (s *Store) ListByStatus(status models.IntentStatus) ([]models.Intent, error) {
	return s.list(
		`SELECT id, owner, description, payload, status, created_at, executed_at, cost_estimate, execution_count, commitment
		 FROM intents WHERE status = ? ORDER BY created_at, id`, string(status),
	)
}

// Count returns the total number of stored intents.
func (s *Store) Count() (uint64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM intents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count intents: %w", err)
	}
	return uint64(n), nil
}

// CountByOwner returns the number of intents registered by owner.
func (s *Store) CountByOwner(owner common.Address) (uint64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM intents WHERE owner = ?`, owner.Hex()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count intents by owner: %w", err)
	}
	return uint64(n), nil
}

func (s *Store) list(query string, arg any) ([]models.Intent, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var out []models.Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		out = append(out, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	return out, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (models.Intent, error) {
	var (
		id, owner, description, status, commitment string
		payload                                    []byte
		createdAt                                  int64
		executedAt                                 sql.NullInt64
		costEstimate, executionCount               int64
	)
	err := row.Scan(&id, &owner, &description, &payload, &status, &createdAt, &executedAt, &costEstimate, &executionCount, &commitment)
	if err != nil {
		return models.Intent{}, err
	}

	intent := models.Intent{
		ID:                  common.HexToHash(id),
		Owner:               common.HexToAddress(owner),
		Description:         description,
		Payload:             payload,
		Status:              models.IntentStatus(status),
		CreatedAt:           time.Unix(0, createdAt).UTC(),
		CostEstimate:        uint64(costEstimate),
		ExecutionCount:      uint64(executionCount),
		ExecutionCommitment: common.HexToHash(commitment),
	}
	if executedAt.Valid {
		t := time.Unix(0, executedAt.Int64).UTC()
		intent.ExecutedAt = &t
	}
	return intent, nil
}

// encodeTime maps an optional timestamp to a nullable nanosecond column.
func encodeTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
