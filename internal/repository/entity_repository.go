package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/entityhistory/internal/db"
	"github.com/rpattn/entityhistory/internal/domain"
	"github.com/rpattn/entityhistory/internal/schema/validator"
	"github.com/rpattn/entityhistory/internal/snapshot"
)

const selectEntityColumns = `
	SELECT e.id, e.organization_id, e.schema_id, e.entity_type, e.properties,
	       e.version, e.created_at, e.updated_at, s.fields
	FROM entities e
	LEFT JOIN entity_schemas s ON s.id = e.schema_id`

// entityRepository implements EntityRepository interface
type entityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(pool *pgxpool.Pool) EntityRepository {
	return &entityRepository{pool: pool}
}

// Create inserts a new entity and logs a CREATED change whose property
// changes start from null.
func (r *entityRepository) Create(ctx context.Context, entity domain.Entity, reason string) (domain.Entity, error) {
	if err := r.validateProperties(ctx, entity); err != nil {
		return domain.Entity{}, err
	}
	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO entities (id, organization_id, schema_id, entity_type, properties, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			entity.ID, entity.OrganizationID, nullableUUID(entity.SchemaID), entity.EntityType,
			propertiesJSON, entity.Version, entity.CreatedAt, entity.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create entity: %w", err)
		}
		change := newChange(entity.ID, entity.EntityType, domain.ChangeTypeCreated, reason, domain.DiffProperties(nil, entity.Properties))
		_, err := insertChange(ctx, tx, change)
		return err
	})
	if err != nil {
		return domain.Entity{}, err
	}

	return r.GetByID(ctx, entity.ID)
}

// GetByID retrieves an entity by ID
func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	return getEntity(ctx, r.pool, id)
}

// GetByIDs retrieves multiple entities by their IDs. Missing IDs are skipped.
func (r *entityRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return []domain.Entity{}, nil
	}

	rows, err := r.pool.Query(ctx, selectEntityColumns+` WHERE e.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities by IDs: %w", err)
	}
	defer rows.Close()

	entities := make([]domain.Entity, 0, len(ids))
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}

	return entities, nil
}

// Update replaces the entity's properties, bumps its version and logs the
// properties that changed. The live row is locked so the logged original
// values are the ones being replaced.
func (r *entityRepository) Update(ctx context.Context, entity domain.Entity, reason string) (domain.Entity, error) {
	if err := r.validateProperties(ctx, entity); err != nil {
		return domain.Entity{}, err
	}
	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			entityType  string
			currentJSON []byte
		)
		if err := tx.QueryRow(ctx,
			`SELECT entity_type, properties FROM entities WHERE id = $1 FOR UPDATE`, entity.ID,
		).Scan(&entityType, &currentJSON); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("failed to update entity %s: %w", entity.ID, snapshot.ErrEntityNotFound)
			}
			return fmt.Errorf("failed to lock entity %s: %w", entity.ID, err)
		}
		current, err := domain.FromJSONBProperties(currentJSON)
		if err != nil {
			return fmt.Errorf("failed to decode properties for entity %s: %w", entity.ID, err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE entities
			 SET properties = $2, schema_id = $3, version = version + 1, updated_at = now()
			 WHERE id = $1`,
			entity.ID, propertiesJSON, nullableUUID(entity.SchemaID),
		); err != nil {
			return fmt.Errorf("failed to update entity: %w", err)
		}

		propertyChanges := domain.DiffProperties(current, entity.Properties)
		if len(propertyChanges) == 0 {
			return nil
		}
		_, err = insertChange(ctx, tx, newChange(entity.ID, entityType, domain.ChangeTypeUpdated, reason, propertyChanges))
		return err
	})
	if err != nil {
		return domain.Entity{}, err
	}

	return r.GetByID(ctx, entity.ID)
}

// validateProperties checks the entity against its schema. Entities without a
// schema are stored as given.
func (r *entityRepository) validateProperties(ctx context.Context, entity domain.Entity) error {
	if entity.SchemaID == uuid.Nil {
		return nil
	}

	var fieldsJSON []byte
	if err := r.pool.QueryRow(ctx, `SELECT fields FROM entity_schemas WHERE id = $1`, entity.SchemaID).Scan(&fieldsJSON); err != nil {
		return fmt.Errorf("failed to load schema %s: %w", entity.SchemaID, err)
	}
	var fields []domain.FieldDefinition
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return fmt.Errorf("failed to decode fields for schema %s: %w", entity.SchemaID, err)
	}
	return validator.ValidateProperties(entity.Properties, fields)
}

func getEntity(ctx context.Context, q querier, id uuid.UUID) (domain.Entity, error) {
	entity, err := scanEntity(q.QueryRow(ctx, selectEntityColumns+` WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, fmt.Errorf("failed to get entity %s: %w", id, snapshot.ErrEntityNotFound)
		}
		return domain.Entity{}, err
	}
	return entity, nil
}

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var (
		id             uuid.UUID
		organizationID uuid.UUID
		schemaID       pgtype.UUID
		entityType     string
		propertiesJSON []byte
		version        int64
		createdAt      time.Time
		updatedAt      time.Time
		fieldsJSON     []byte
	)
	if err := row.Scan(&id, &organizationID, &schemaID, &entityType, &propertiesJSON, &version, &createdAt, &updatedAt, &fieldsJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, err
		}
		return domain.Entity{}, fmt.Errorf("failed to scan entity: %w", err)
	}

	return buildEntity(id, organizationID, schemaID, entityType, propertiesJSON, version, createdAt, updatedAt, fieldsJSON)
}

func buildEntity(
	id uuid.UUID,
	orgID uuid.UUID,
	schemaID pgtype.UUID,
	entityType string,
	propertiesJSON json.RawMessage,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
	fieldsJSON []byte,
) (domain.Entity, error) {
	properties, err := domain.FromJSONBProperties(propertiesJSON)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to decode properties for entity %s: %w", id, err)
	}

	entity := domain.Entity{
		ID:             id,
		OrganizationID: orgID,
		EntityType:     entityType,
		Properties:     properties,
		Version:        version,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
	if schemaID.Valid {
		entity.SchemaID = uuid.UUID(schemaID.Bytes)
	}

	if fieldsJSON != nil {
		var fields []domain.FieldDefinition
		if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
			return domain.Entity{}, fmt.Errorf("failed to decode schema fields for entity %s: %w", id, err)
		}
		entity.Fields = domain.EntitySchema{Fields: fields}.FieldNames()
	}

	return entity, nil
}

func nullableUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}
