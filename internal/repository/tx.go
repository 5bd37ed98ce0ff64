package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxRepositories are repositories bound to a single transaction
type TxRepositories struct {
	Products ProductRepository
	Carts    CartRepository
	Orders   OrderRepository
}

// TxManager runs work atomically
type TxManager interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

type txManager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTxManager creates a TxManager over db
func NewTxManager(db *sql.DB, logger *zap.Logger) TxManager {
	return &txManager{db: db, logger: logger}
}

func (m *txManager) WithinTx(ctx context.Context, fn func(repos TxRepositories) error) (err error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(TxRepositories{
		Products: NewProductRepository(tx),
		Carts:    NewCartRepository(tx),
		Orders:   NewOrderRepository(tx),
	}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
