package repository

import (
	"context"
	"database/sql"

	"github.com/AgusMolinaCode/bitlab/internal/models"
)

// Notifier receives a ChangeEvent after every committed mutation.
type Notifier interface {
	Publish(models.ChangeEvent)
}

type nopNotifier struct{}

func (nopNotifier) Publish(models.ChangeEvent) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
