package repository

import (
	"context"
	"time"

	"github.com/rpattn/entityhistory/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// EntitySchemaRepository defines the interface for entity schema operations
type EntitySchemaRepository interface {
	Create(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error)
	GetByName(ctx context.Context, organizationID uuid.UUID, name string) (domain.EntitySchema, error)
	Update(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error)
	ListEntityTypes(ctx context.Context) ([]string, error)
}

// EntityRepository defines the interface for entity operations. Create and
// Update append to the change log in the same transaction as the write.
type EntityRepository interface {
	Create(ctx context.Context, entity domain.Entity, reason string) (domain.Entity, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)
	Update(ctx context.Context, entity domain.Entity, reason string) (domain.Entity, error)
}

// EntityChangeRepository reads the entity change log.
type EntityChangeRepository interface {
	// ListSince returns the changes recorded for entityID strictly after
	// since, newest first, property changes in captured order.
	ListSince(ctx context.Context, entityID uuid.UUID, since time.Time) ([]domain.EntityChange, error)
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx, so reads can run either
// standalone or inside a snapshot transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
