package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medimeet/appointment-api/internal/repository"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// missingOrStale explains a guarded update that touched no rows: either the
// row does not exist or its status no longer matched.
func (r *BaseRepository) missingOrStale(ctx context.Context, table string, id uuid.UUID, op string) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return classify(err, op)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, repository.ErrPreconditionFailed)
}

// Ping reports whether the database answers.
func (r *BaseRepository) Ping(ctx context.Context) error {
	return classify(r.db.PingContext(ctx), "ping")
}
