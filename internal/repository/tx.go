package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/formdef/internal/models"
)

// Querier is implemented by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Stores are the repositories of one kind bound to a single transaction.
type Stores struct {
	Entities EntityRepository
	Versions VersionRepository
}

// TxManager runs a function inside one transaction.
type TxManager interface {
	// WithinTx commits when fn returns nil and rolls back on error or panic.
	// The transaction is always finished before WithinTx returns.
	WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(Stores) error) error
}

// ReadOnly are the options for transactions that only read.
var ReadOnly = &sql.TxOptions{ReadOnly: true}

type postgresTxManager struct {
	db   *sqlx.DB
	kind models.Kind
	log  *slog.Logger
}

// NewPostgresTxManager creates a transaction manager for one entity kind.
func NewPostgresTxManager(db *sqlx.DB, kind models.Kind) TxManager {
	return &postgresTxManager{
		db:   db,
		kind: kind,
		log:  slog.Default().With("component", "TxManager", "kind", kind.Name),
	}
}

func (m *postgresTxManager) WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(Stores) error) error {
	tx, err := m.db.BeginTxx(ctx, opts)
	if err != nil {
		m.log.ErrorContext(ctx, "failed to begin transaction", "error", err)
		return fmt.Errorf("begin transaction: %w: %w", ErrStorage, err)
	}

	defer func() {
		if p := recover(); p != nil {
			m.rollback(ctx, tx)
			panic(p)
		}
	}()

	stores := Stores{
		Entities: NewPostgresEntityRepository(tx, m.kind),
		Versions: NewPostgresVersionRepository(tx, m.kind),
	}

	if err = fn(stores); err != nil {
		m.rollback(ctx, tx)
		return err
	}

	if err = tx.Commit(); err != nil {
		m.log.ErrorContext(ctx, "failed to commit transaction", "error", err)
		return fmt.Errorf("commit transaction: %w: %w", ErrStorage, err)
	}
	return nil
}

func (m *postgresTxManager) rollback(ctx context.Context, tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		m.log.ErrorContext(ctx, "failed to roll back transaction", "error", err)
	}
}
