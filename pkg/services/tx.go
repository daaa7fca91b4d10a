package services

import (
	"context"
	"fmt"

	"github.com/atrium-crm/atrium-engine/pkg/database"
)

// TxRunner executes a function inside a database transaction. The engine
// depends on this boundary rather than on a connection so the commit and
// rollback behavior stays in one place.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type scopeTxRunner struct{}

// NewScopeTxRunner returns a TxRunner that opens the transaction on the
// tenant-scoped connection carried in the context. Repositories running
// under the same context share the connection and therefore the transaction.
func NewScopeTxRunner() TxRunner {
	return &scopeTxRunner{}
}

func (r *scopeTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
