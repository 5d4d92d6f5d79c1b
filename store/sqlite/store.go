package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	escrowstore "github.com/xraph/escrow/store"
	"github.com/xraph/escrow/transfer"
)

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("escrow/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("escrow/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, principal string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("principal = ?", principal).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, escrow.ErrNotFound
		}
		return nil, fmt.Errorf("escrow/sqlite: get account: %w", err)
	}
	return fromAccountModel(m)
}

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	m, err := toAccountModel(a)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()
	_, err = s.sdb.NewInsert(m).
		OnConflict("(principal) DO UPDATE").
		Set("storage_balance = EXCLUDED.storage_balance").
		Set("used_bytes = EXCLUDED.used_bytes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/sqlite: put account: %w", err)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, principal string) error {
	res, err := s.sdb.NewDelete((*accountModel)(nil)).
		Where("principal = ?", principal).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/sqlite: delete account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

// ==================== Transfer Store ====================

func (s *Store) RecordTransfer(ctx context.Context, t *transfer.Transfer) error {
	_, err := s.sdb.NewInsert(toTransferModel(t)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/sqlite: record transfer: %w", err)
	}
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, principal string, limit int) ([]*transfer.Transfer, error) {
	var models []transferModel
	q := s.sdb.NewSelect(&models).
		Where("recipient = ?", principal).
		OrderExpr("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("escrow/sqlite: list transfers: %w", err)
	}

	result := make([]*transfer.Transfer, len(models))
	for i := range models {
		t, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
