package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/entityhistory/internal/auth"
	"github.com/rpattn/entityhistory/internal/db"
	"github.com/rpattn/entityhistory/internal/domain"
	"github.com/rpattn/entityhistory/internal/snapshot"
)

// HistorySource serves the snapshot inputs of one entity type from Postgres.
// It is an EntityLoader, a ChangeLogProvider and a ConsistentReader.
type HistorySource struct {
	entityType string
	pool       *pgxpool.Pool
}

var (
	_ snapshot.EntityLoader[uuid.UUID]      = (*HistorySource)(nil)
	_ snapshot.ChangeLogProvider[uuid.UUID] = (*HistorySource)(nil)
	_ snapshot.ConsistentReader[uuid.UUID]  = (*HistorySource)(nil)
)

// NewHistorySource creates a source for entities of entityType.
func NewHistorySource(pool *pgxpool.Pool, entityType string) *HistorySource {
	return &HistorySource{entityType: entityType, pool: pool}
}

// LoadEntity loads the live entity. Entities of another type or outside the
// caller's organization scope are reported as not found.
func (h *HistorySource) LoadEntity(ctx context.Context, id uuid.UUID) (snapshot.PropertySource, error) {
	entity, err := getEntity(ctx, h.pool, id)
	if err != nil {
		return nil, err
	}
	if !Visible(ctx, h.entityType, entity) {
		return nil, fmt.Errorf("failed to get entity %s: %w", id, snapshot.ErrEntityNotFound)
	}
	return entity, nil
}

// LoadChanges lists changes recorded after since, newest first.
func (h *HistorySource) LoadChanges(ctx context.Context, id uuid.UUID, since time.Time) ([]domain.EntityChange, error) {
	return listChangesSince(ctx, h.pool, id, since)
}

// ReadSnapshot reads the entity and its change log inside one read-only
// REPEATABLE READ transaction, so the live values seeding the trails and the
// changes walked back from them cannot be torn by a concurrent writer.
func (h *HistorySource) ReadSnapshot(ctx context.Context, id uuid.UUID, since time.Time) (snapshot.PropertySource, []domain.EntityChange, error) {
	var (
		entity  domain.Entity
		changes []domain.EntityChange
	)
	err := db.WithSnapshotTx(ctx, h.pool, func(tx pgx.Tx) error {
		var err error
		entity, err = getEntity(ctx, tx, id)
		if err != nil {
			return err
		}
		if !Visible(ctx, h.entityType, entity) {
			return fmt.Errorf("failed to get entity %s: %w", id, snapshot.ErrEntityNotFound)
		}
		changes, err = listChangesSince(ctx, tx, id, since)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return entity, changes, nil
}

// Visible reports whether entity may be served for entityType under the
// organization scope carried by ctx.
func Visible(ctx context.Context, entityType string, entity domain.Entity) bool {
	return entity.EntityType == entityType && auth.InScope(ctx, entity.OrganizationID)
}
