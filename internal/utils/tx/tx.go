package tx

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// Tx is an open transaction on the SQL driver
type Tx = dialect.Tx

// WithTransaction runs fn inside one transaction. The transaction is rolled back when fn
// returns an error or panics, and committed otherwise.
func WithTransaction(ctx context.Context, drv *entsql.Driver, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
