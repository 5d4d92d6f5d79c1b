package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	escrowstore "github.com/xraph/escrow/store"
	"github.com/xraph/escrow/transfer"
)

// Collection name constants.
const (
	colAccounts  = "escrow_accounts"
	colTransfers = "escrow_transfers"
)

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all escrow collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("escrow/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": principal}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, escrow.ErrNotFound
		}
		return nil, fmt.Errorf("escrow/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	m, err := toAccountModel(a)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()

	_, err = s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Principal}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"storage_balance": m.StorageBalance,
				"used_bytes":      m.UsedBytes,
				"updated_at":      m.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"created_at": m.CreatedAt,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: put account: %w", err)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, principal string) error {
	res, err := s.mdb.NewDelete((*accountModel)(nil)).
		Filter(bson.M{"_id": principal}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: delete account: %w", err)
	}
	if res.DeletedCount() == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

// ==================== Transfer Store ====================

func (s *Store) RecordTransfer(ctx context.Context, t *transfer.Transfer) error {
	_, err := s.mdb.NewInsert(toTransferModel(t)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: record transfer: %w", err)
	}
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, principal string, limit int) ([]*transfer.Transfer, error) {
	var models []transferModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"recipient": principal}).
		Sort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("escrow/mongo: list transfers: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all escrow collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		},
		colTransfers: {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}}},
		},
	}
}
