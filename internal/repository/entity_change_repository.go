package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/entityhistory/internal/domain"
)

// The change log is read newest first. id breaks ties between changes
// recorded within the same instant so the order stays deterministic.
const listChangesSinceSQL = `
	SELECT c.id, c.entity_id, c.entity_type, c.change_type, c.change_time, c.reason,
	       p.property_name, p.original_value, p.new_value, p.property_type
	FROM entity_changes c
	LEFT JOIN entity_property_changes p ON p.entity_change_id = c.id
	WHERE c.entity_id = $1 AND c.change_time > $2
	ORDER BY c.change_time DESC, c.id DESC, p.ordinal ASC`

type entityChangeRepository struct {
	pool *pgxpool.Pool
}

// NewEntityChangeRepository wires a change log repository backed by pgxpool.
func NewEntityChangeRepository(pool *pgxpool.Pool) EntityChangeRepository {
	return &entityChangeRepository{pool: pool}
}

func (r *entityChangeRepository) ListSince(ctx context.Context, entityID uuid.UUID, since time.Time) ([]domain.EntityChange, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("entity change repository not initialized")
	}
	return listChangesSince(ctx, r.pool, entityID, since)
}

const insertChangeSQL = `
	INSERT INTO entity_changes (entity_id, entity_type, change_type, change_time, reason)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`

const insertPropertyChangeSQL = `
	INSERT INTO entity_property_changes
	  (entity_change_id, ordinal, property_name, original_value, new_value, property_type)
	VALUES ($1, $2, $3, $4, $5, $6)`

// newChange builds a change stamped with the current time. An empty reason
// is stored as NULL.
func newChange(entityID uuid.UUID, entityType string, changeType domain.ChangeType, reason string, propertyChanges []domain.EntityPropertyChange) domain.EntityChange {
	change := domain.EntityChange{
		EntityID:        entityID,
		EntityType:      entityType,
		ChangeType:      changeType,
		ChangeTime:      time.Now().UTC(),
		PropertyChanges: propertyChanges,
	}
	if reason != "" {
		change.Reason = &reason
	}
	return change
}

// insertChange appends change and its property changes inside tx, so the log
// commits together with the write it describes.
func insertChange(ctx context.Context, tx pgx.Tx, change domain.EntityChange) (domain.EntityChange, error) {
	if err := tx.QueryRow(ctx, insertChangeSQL,
		change.EntityID, change.EntityType, string(change.ChangeType), change.ChangeTime, change.Reason,
	).Scan(&change.ID); err != nil {
		return domain.EntityChange{}, fmt.Errorf("failed to record entity change: %w", err)
	}

	if len(change.PropertyChanges) == 0 {
		return change, nil
	}
	if err := tx.SendBatch(ctx, propertyChangeBatch(change.ID, change.PropertyChanges)).Close(); err != nil {
		return domain.EntityChange{}, fmt.Errorf("failed to record property changes: %w", err)
	}
	return change, nil
}

// propertyChangeBatch queues one insert per property change. The ordinal
// keeps captured order when the log is read back.
func propertyChangeBatch(changeID int64, propertyChanges []domain.EntityPropertyChange) *pgx.Batch {
	batch := &pgx.Batch{}
	for ordinal, propertyChange := range propertyChanges {
		batch.Queue(insertPropertyChangeSQL,
			changeID, ordinal, propertyChange.PropertyName, propertyChange.OriginalValue,
			propertyChange.NewValue, propertyChange.PropertyType,
		)
	}
	return batch
}

// changeRow is one joined row of a change and (optionally) one of its
// property changes.
type changeRow struct {
	ID            int64
	EntityID      uuid.UUID
	EntityType    string
	ChangeType    string
	ChangeTime    time.Time
	Reason        pgtype.Text
	PropertyName  pgtype.Text
	OriginalValue pgtype.Text
	NewValue      pgtype.Text
	PropertyType  pgtype.Text
}

func listChangesSince(ctx context.Context, q querier, entityID uuid.UUID, since time.Time) ([]domain.EntityChange, error) {
	rows, err := q.Query(ctx, listChangesSinceSQL, entityID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity changes: %w", err)
	}
	defer rows.Close()

	var changeRows []changeRow
	for rows.Next() {
		var row changeRow
		if err := rows.Scan(
			&row.ID, &row.EntityID, &row.EntityType, &row.ChangeType, &row.ChangeTime, &row.Reason,
			&row.PropertyName, &row.OriginalValue, &row.NewValue, &row.PropertyType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity change: %w", err)
		}
		changeRows = append(changeRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity changes: %w", err)
	}

	return groupChangeRows(changeRows), nil
}

// groupChangeRows folds consecutive rows sharing a change id into one
// EntityChange, keeping row order for both changes and property changes.
func groupChangeRows(rows []changeRow) []domain.EntityChange {
	changes := []domain.EntityChange{}
	for _, row := range rows {
		if len(changes) == 0 || changes[len(changes)-1].ID != row.ID {
			change := domain.EntityChange{
				ID:         row.ID,
				EntityID:   row.EntityID,
				EntityType: row.EntityType,
				ChangeType: domain.ChangeType(row.ChangeType),
				ChangeTime: row.ChangeTime,
			}
			if row.Reason.Valid {
				reason := row.Reason.String
				change.Reason = &reason
			}
			changes = append(changes, change)
		}

		if !row.PropertyName.Valid {
			continue
		}
		current := &changes[len(changes)-1]
		current.PropertyChanges = append(current.PropertyChanges, domain.EntityPropertyChange{
			PropertyName:  row.PropertyName.String,
			OriginalValue: row.OriginalValue.String,
			NewValue:      row.NewValue.String,
			PropertyType:  row.PropertyType.String,
		})
	}
	return changes
}
