package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// DBTX is satisfied by *sql.DB, *sql.Tx and the traced database wrapper
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore implements Store for PostgreSQL/SQLite
type SQLStore struct {
	db   *sql.DB
	conn DBTX
	inTx bool

	collections *CollectionRepository
	items       *CollectionItemRepository
	itemData    *ItemDataRepository
	attachments *AttachmentRepository
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store over db. conn, when not nil, is used for queries
// outside transactions (for example a traced wrapper around db).
func NewSQLStore(db *sql.DB, conn DBTX) *SQLStore {
	if conn == nil {
		conn = db
	}
	return newSQLStore(db, conn, false)
}

func newSQLStore(db *sql.DB, conn DBTX, inTx bool) *SQLStore {
	return &SQLStore{
		db:          db,
		conn:        conn,
		inTx:        inTx,
		collections: NewCollectionRepository(conn),
		items:       NewCollectionItemRepository(conn),
		itemData:    NewItemDataRepository(conn),
		attachments: NewAttachmentRepository(conn),
	}
}

func (s *SQLStore) Collections() CollectionRepo { return s.collections }
func (s *SQLStore) Items() CollectionItemRepo { return s.items }
func (s *SQLStore) ItemData() ItemDataRepo { return s.itemData }
func (s *SQLStore) Attachments() AttachmentRepo { return s.attachments }
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Transaction runs fn against a store bound to a single database transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
// Nested calls reuse the outer transaction.
func (s *SQLStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newSQLStore(s.db, tx, true)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// placeholders renders "$start, $start+1, ..." for n arguments
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
