// Package sqlite provides a SQLite-backed persistent store. Ledger state lives
// in JSON buckets keyed by account; a revision row per account lets several
// processes share one database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite" // pure go sqlite driver
	sqlite3 "modernc.org/sqlite/lib"

	"fieldledger/internal/infra/persistence/memory"
	"fieldledger/internal/infra/persistence/retry"
	"fieldledger/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Aliases keep signatures short while exposing domain types.
type (
	// Result is an alias of domain.Result.
	Result = domain.Result
	// RulesEngine is an alias of domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction is an alias of domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView is an alias of domain.TransactionView.
	TransactionView = domain.TransactionView
)

const (
	defaultPath    = "fieldledger.db"
	defaultAccount = "default"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_state (
	account TEXT NOT NULL,
	bucket TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (account, bucket)
);
CREATE TABLE IF NOT EXISTS ledger_revision (
	account TEXT PRIMARY KEY,
	revision INTEGER NOT NULL
);`

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

// WithRetryPolicy overrides the busy retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// Store persists the in-memory state to SQLite. Every transaction runs inside
// an immediate SQLite transaction so concurrent writers serialise on the
// database lock.
type Store struct {
	*memory.Store
	db       *sqlx.DB
	mu       sync.Mutex
	path     string
	account  string
	revision int64
	policy   retry.Policy
}

type stateRow struct {
	Bucket  string `db:"bucket"`
	Payload []byte `db:"payload"`
}

// NewStore opens (or creates) the database at path and hydrates the
// in-memory working set from the stored snapshot.
func NewStore(path string, engine *RulesEngine, opts ...Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state tables: %w", err)
	}
	s := &Store{
		Store:    memory.NewStore(engine),
		db:       db,
		path:     path,
		account:  defaultAccount,
		revision: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Refresh(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Refresh reloads the working set when another session has committed.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retry.Do(ctx, s.policy, isBusy, func(int) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		return s.syncLocked(ctx, tx)
	})
}

func (s *Store) syncLocked(ctx context.Context, tx *sqlx.Tx) error {
	var rev int64
	err := tx.GetContext(ctx, &rev, `SELECT revision FROM ledger_revision WHERE account = ?`, s.account)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read revision: %w", err)
	}
	if rev == s.revision {
		return nil
	}
	var rows []stateRow
	if err := tx.SelectContext(ctx, &rows, `SELECT bucket, payload FROM ledger_state WHERE account = ?`, s.account); err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	var snapshot memory.Snapshot
	for _, r := range rows {
		if err := snapshot.DecodeBucket(r.Bucket, r.Payload); err != nil {
			return err
		}
	}
	s.ImportState(snapshot)
	s.revision = rev
	return nil
}

// RunInTransaction applies fn inside a SQLite transaction. fn runs against a
// staged copy of the working set; the copy becomes visible to readers and
// subscribers only after the database commit succeeds. fn may run more than
// once when the database is busy, so it must only act through tx.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	var (
		res     Result
		changes []domain.Change
	)
	s.mu.Lock()
	err := retry.Do(ctx, s.policy, isBusy, func(int) error {
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

func (s *Store) attempt(ctx context.Context, fn func(tx Transaction) error) (Result, []domain.Change, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Result{}, nil, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.syncLocked(ctx, tx); err != nil {
		return Result{}, nil, err
	}

	res, staged, err := s.Stage(ctx, fn)
	if err != nil {
		return res, nil, err
	}
	buckets, err := staged.Snapshot().EncodeBuckets()
	if err != nil {
		return res, nil, err
	}
	for _, bucket := range memory.Buckets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_state(account,bucket,payload) VALUES(?,?,?) ON CONFLICT(account,bucket) DO UPDATE SET payload=excluded.payload`,
			s.account, bucket, buckets[bucket]); err != nil {
			return res, nil, fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	next := s.revision + 1
	if next < 1 {
		next = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_revision(account,revision) VALUES(?,?) ON CONFLICT(account) DO UPDATE SET revision=excluded.revision`,
		s.account, next); err != nil {
		return res, nil, fmt.Errorf("bump revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return res, nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	staged.Commit()
	s.revision = next
	return res, staged.Changes(), nil
}

// View refreshes the working set and runs fn against a read-only snapshot.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
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
func (s *Store) DB() *sql.DB { return s.db.DB }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
