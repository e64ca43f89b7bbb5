// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics. Each ledger transaction runs in a SERIALIZABLE database
// transaction that locks the account revision row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"fieldledger/internal/infra/persistence/memory"
	"fieldledger/internal/infra/persistence/retry"
	"fieldledger/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN     = "postgres://localhost/fieldledger?sslmode=disable"
	defaultAccount = "default"
)

// Postgres SQLSTATE codes that mean "run the transaction again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_state (
		account TEXT NOT NULL,
		bucket TEXT NOT NULL,
		payload JSONB NOT NULL,
		PRIMARY KEY (account, bucket)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_revision (
		account TEXT PRIMARY KEY,
		revision BIGINT NOT NULL
	)`,
}

// Option customises a Store.
type Option func(*Store)

// WithAccount scopes the store to one account (default "default").
func WithAccount(account string) Option {
	return func(s *Store) {
		if account != "" {
			s.account = account
		}
	}
}

// WithRetryPolicy overrides the serialization-failure retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db       *sql.DB
	mu       sync.Mutex
	account  string
	revision int64
	policy   retry.Policy
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the state tables exist and hydrates the in-memory store from any
// existing snapshot of the account.
func NewStore(dsn string, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{
		Store:    memory.NewStore(engine),
		db:       db,
		account:  defaultAccount,
		revision: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO ledger_revision(account,revision) VALUES($1,$2) ON CONFLICT(account) DO NOTHING`,
		s.account, int64(0)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure revision: %w", err)
	}
	if err := s.Refresh(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, ddl := range schema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure state tables: %w", err)
		}
	}
	return nil
}

// Refresh reloads the working set when another session has committed.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retry.Do(ctx, s.policy, isSerializationFailure, func(int) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if err := s.syncLocked(ctx, tx, false); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) syncLocked(ctx context.Context, tx *sql.Tx, forUpdate bool) error {
	query := `SELECT revision FROM ledger_revision WHERE account = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var rev int64
	if err := tx.QueryRowContext(ctx, query, s.account).Scan(&rev); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read revision: %w", err)
	}
	if rev == s.revision {
		return nil
	}
	snapshot, err := loadSnapshot(ctx, tx, s.account)
	if err != nil {
		return err
	}
	s.ImportState(snapshot)
	s.revision = rev
	return nil
}

func loadSnapshot(ctx context.Context, tx *sql.Tx, account string) (memory.Snapshot, error) {
	rows, err := tx.QueryContext(ctx, `SELECT bucket, payload FROM ledger_state WHERE account = $1`, account)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

// RunInTransaction applies fn within a serializable database transaction and
// persists the staged buckets before commit. Readers see the new state only
// once the commit has succeeded. Serialization failures are retried; fn may
// therefore run more than once and must only act through tx.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	var (
		res     domain.Result
		changes []domain.Change
	)
	s.mu.Lock()
	err := retry.Do(ctx, s.policy, isSerializationFailure, func(int) error {
		var err error
		res, changes, err = s.attempt(ctx, fn)
		return err
	})
	s.mu.Unlock()
	if err != nil {
		return res, err
	}
	s.Publish(changes)
	return res, nil
}

func (s *Store) attempt(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, []domain.Change, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Result{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.syncLocked(ctx, tx, true); err != nil {
		return domain.Result{}, nil, err
	}

	res, staged, err := s.Stage(ctx, fn)
	if err != nil {
		return res, nil, err
	}
	next := s.revision + 1
	if err := s.persist(ctx, tx, staged.Snapshot(), next); err != nil {
		return res, nil, err
	}
	if err := tx.Commit(); err != nil {
		return res, nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	staged.Commit()
	s.revision = next
	return res, staged.Changes(), nil
}

func (s *Store) persist(ctx context.Context, tx *sql.Tx, snapshot memory.Snapshot, revision int64) error {
	buckets, err := snapshot.EncodeBuckets()
	if err != nil {
		return err
	}
	for _, bucket := range memory.Buckets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_state(account,bucket,payload) VALUES($1,$2,$3) ON CONFLICT(account,bucket) DO UPDATE SET payload=EXCLUDED.payload`,
			s.account, bucket, buckets[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_revision(account,revision) VALUES($1,$2) ON CONFLICT(account) DO UPDATE SET revision=EXCLUDED.revision`,
		s.account, revision); err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	return nil
}

// View refreshes the working set and runs fn against a read-only snapshot.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	return s.Store.View(ctx, fn)
}

// Revision reports the last revision observed for the account.
func (s *Store) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
