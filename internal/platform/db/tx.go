package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WithTx runs fn in a transaction and commits when fn returns nil. The
// transaction is rolled back when fn fails or panics; a failed rollback is
// joined onto fn's error.
func WithTx(ctx context.Context, conn *sql.DB, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return MapError(fmt.Errorf("db: begin tx: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("db: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return MapError(fmt.Errorf("db: commit tx: %w", err))
	}
	return nil
}
