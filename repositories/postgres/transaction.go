package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/repositories"
)

// txContextKey carries the open transaction inside a context. Repository
// methods never touch it directly; GetExecutor does the lookup.
type txContextKey struct{}

// txManager implements repositories.TransactionManager on top of *sql.DB.
type txManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a transaction manager backed by db.
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &txManager{db: db, logger: logger}
}

// Begin opens a transaction with the driver's default isolation level.
func (m *txManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	m.logger.Debug("transaction started")
	return &pgTx{tx: sqlTx, ctx: ctx, logger: m.logger}, nil
}

// InTransaction runs fn inside a single transaction. The context handed to fn
// carries the transaction, so every repository call made with that context
// joins it. Commit happens only when fn returns nil; an error or a panic in
// fn rolls back instead.
func (m *txManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) (err error) {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
	}()

	if err = fn(context.WithValue(ctx, txContextKey{}, tx), tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// pgTx implements repositories.Transaction around *sql.Tx.
type pgTx struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.logger.Debug("transaction committed")
	return nil
}

// Rollback aborts the transaction. A transaction that already finished is
// not an error here, which makes Rollback safe to call from a defer.
func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

func (t *pgTx) Context() context.Context {
	return t.ctx
}

// Executor is the query surface shared by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor picks where a query runs: inside the transaction carried by
// ctx when one is present, on the pooled connection otherwise.
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := ctx.Value(txContextKey{}).(*pgTx); ok {
		return tx.tx
	}
	return db.DB
}
